package wilc

import (
	"errors"
	"log/slog"
	"time"
)

// SendEth queues an Ethernet frame for transmission on interface idx.
// The Device owns pkt until done is called with the outcome. done is called
// exactly once and may be nil. SendEth does not block on the bus. Frames sent
// while the firmware is not running are dropped.
func (d *Device) SendEth(idx int, pkt []byte, done func(TxStatus)) error {
	v, err := d.Interface(idx)
	if err != nil {
		d.logerr("tx:bad-interface", slog.Int("vif", idx))
		if done != nil {
			done(TxDropped)
		}
		return err
	}
	e := &txEntry{vif: idx, pkt: pkt, done: done}
	depth, ok := d.txq.push(e)
	if !ok {
		d.debug("tx:not-running", slog.String("iface", v.name))
		e.complete(TxDropped)
		return nil
	}
	v.stats.txPackets.Add(1)
	v.stats.txBytes.Add(uint64(len(pkt)))
	// Pause before waking the worker so its low-water resume follows the pause.
	if depth > FlowCtrlHigh {
		d.pauseQueues()
	}
	d.wakeTx()
	return nil
}

// wakeTx signals the transmit worker. The signal is kept until consumed.
func (d *Device) wakeTx() {
	select {
	case d.txWake <- struct{}{}:
	default:
	}
}

func (d *Device) startTxWorker() {
	d.txDone = make(chan struct{})
	go d.txWorker(d.txDone)
}

// stopTxWorker joins the worker. closing must be set beforehand.
func (d *Device) stopTxWorker() {
	if d.txDone == nil {
		return
	}
	d.wakeTx()
	<-d.txDone
	d.txDone = nil
}

func (d *Device) txWorker(done chan<- struct{}) {
	defer close(done)
	d.backoff = txBackoff{}
	d.debug("txworker:start")
	for range d.txWake {
		if d.closing.Load() {
			break
		}
		for !d.closing.Load() {
			err := d.drainTx()
			if !errors.Is(err, ErrNoBuffers) {
				d.backoff.decay()
				break
			}
			delay := d.backoff.delay(d.timing.txBackoff)
			d.trace("txworker:backoff", slog.Duration("delay", delay))
			d.sleepTx(delay)
			d.backoff.increase()
		}
		if d.closing.Load() {
			break
		}
	}
	d.debug("txworker:exit", slog.Int("pending", d.txq.len()))
}

// sleepTx sleeps for delay or until the worker is signalled.
func (d *Device) sleepTx(delay time.Duration) {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-d.txWake:
	}
}

// drainTx hands queued packets to the bus and resumes paused interfaces once
// the queue depth falls below the low threshold.
func (d *Device) drainTx() error {
	remaining, err := d.handleTxq()
	if remaining < FlowCtrlLow {
		d.resumeQueues()
	}
	return err
}

// handleTxq hands queued packets to the bus until the queue is empty, the bus
// runs out of buffers or the device is closing. It returns the queue depth.
func (d *Device) handleTxq() (int, error) {
	for !d.closing.Load() {
		e := d.txq.pop()
		if e == nil {
			break
		}
		d.hifMu.Lock()
		err := d.bus.Tx(e.vif, e.pkt)
		d.hifMu.Unlock()
		switch {
		case errors.Is(err, ErrNoBuffers):
			d.txq.pushFront(e)
			return d.txq.len(), err
		case err != nil:
			d.logerr("tx:bus", slog.Int("vif", e.vif), slog.String("err", err.Error()))
			e.complete(TxFailed)
		default:
			e.complete(TxSent)
		}
	}
	return d.txq.len(), nil
}

// flushTx drops every queued packet.
func (d *Device) flushTx() {
	entries := d.txq.take()
	if len(entries) > 0 {
		d.debug("tx:flush", slog.Int("n", len(entries)))
	}
	for _, e := range entries {
		e.complete(TxDropped)
	}
}
