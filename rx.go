package wilc

import (
	"log/slog"
	"sync"
	"time"

	"github.com/soypat/seqs/eth"
)

const (
	ethHeaderLen = 14
	// eapRetries bounds the times a buffered EAPOL frame waits for the
	// interface to record its peer.
	eapRetries = 5
)

// PktStatus is the receive status the bus attaches to a frame.
type PktStatus uint8

const (
	PktStatusNew PktStatus = iota
	// PktStatusBuffered marks a frame released from the EAPOL buffer.
	PktStatusBuffered
)

// eapBuffer holds one EAPOL frame received before the station recorded its peer.
type eapBuffer struct {
	mu      sync.Mutex
	frame   []byte
	retries int
	timer   *time.Timer
}

// DeliverFrame passes a received frame to the RecvEth handler. The frame
// starts at buf[offset:]. buf is not retained. It is called by the bus while
// handling an interrupt.
func (d *Device) DeliverFrame(idx int, buf []byte, offset int, status PktStatus) {
	v, err := d.Interface(idx)
	if err != nil {
		d.logerr("rx:unregistered-interface", slog.Int("vif", idx))
		return
	}
	if offset < 0 || offset >= len(buf) {
		d.logerr("rx:empty-frame", slog.String("iface", v.name), slog.Int("len", len(buf)), slog.Int("off", offset))
		v.stats.rxDropped.Add(1)
		return
	}
	frame := buf[offset:]
	if status == PktStatusNew && isEAPOL(frame) && v.awaitingPeer() {
		d.debug("rx:eapol-buffered", slog.String("iface", v.name))
		v.bufferEAP(frame)
		return
	}
	d.deliver(v, frame)
}

func (d *Device) deliver(v *Interface, frame []byte) {
	if d.rcvEth == nil {
		v.stats.rxDropped.Add(1)
		return
	}
	v.stats.rxPackets.Add(1)
	v.stats.rxBytes.Add(uint64(len(frame)))
	if err := d.rcvEth(v.idx, frame); err != nil {
		d.debug("rx:handler", slog.String("iface", v.name), slog.String("err", err.Error()))
	}
}

func isEAPOL(frame []byte) bool {
	if len(frame) < ethHeaderLen {
		return false
	}
	return eth.DecodeEthernetHeader(frame).AssertType() == eth.EtherTypeIEEE802_1X
}

// bufferEAP replaces the buffered EAPOL frame with frame and arms the retry timer.
func (v *Interface) bufferEAP(frame []byte) {
	b := &v.eap
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame = append(b.frame[:0], frame...)
	b.retries = eapRetries
	if b.timer == nil {
		b.timer = time.AfterFunc(v.d.timing.eapRetry, v.eapTimeout)
	} else {
		b.timer.Reset(v.d.timing.eapRetry)
	}
}

// eapTimeout delivers the buffered frame once the peer is recorded or the
// retries run out.
func (v *Interface) eapTimeout() {
	b := &v.eap
	b.mu.Lock()
	if b.frame == nil {
		b.mu.Unlock()
		return
	}
	if v.awaitingPeer() && b.retries > 0 {
		b.retries--
		b.timer.Reset(v.d.timing.eapRetry)
		b.mu.Unlock()
		return
	}
	frame := b.frame
	b.frame = nil
	b.mu.Unlock()
	v.d.DeliverFrame(v.idx, frame, 0, PktStatusBuffered)
}

// dropEAP discards the buffered frame and stops the retry timer.
func (v *Interface) dropEAP() {
	b := &v.eap
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.frame = nil
}
