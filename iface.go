package wilc

import (
	"bytes"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/soypat/wilc/wid"
)

// Mode is the operating mode of an interface. Values match the firmware
// operation mode encoding.
type Mode uint8

const (
	ModeStation Mode = Mode(wid.OpModeStation)
	ModeAP      Mode = Mode(wid.OpModeAP)
	ModeGO      Mode = Mode(wid.OpModeGO)
	ModeClient  Mode = Mode(wid.OpModeClient)
	ModeMonitor Mode = Mode(wid.OpModeMonitor)
)

func (m Mode) String() string {
	switch m {
	case ModeStation:
		return "station"
	case ModeAP:
		return "ap"
	case ModeGO:
		return "p2p-go"
	case ModeClient:
		return "p2p-client"
	case ModeMonitor:
		return "monitor"
	}
	return "unknown"
}

// LinkState is the association state reported by the protocol layer.
type LinkState uint8

const (
	LinkIdle LinkState = iota
	LinkConnecting
	LinkConnected
)

// DisconnectEvent describes a disconnection the host did not request.
type DisconnectEvent struct {
	BSSID  [6]byte
	ReqIEs []byte
}

// Stats holds interface packet counters.
type Stats struct {
	RxPackets uint64
	RxBytes   uint64
	RxDropped uint64
	TxPackets uint64
	TxBytes   uint64
}

type ifaceStats struct {
	rxPackets, rxBytes, rxDropped atomic.Uint64
	txPackets, txBytes            atomic.Uint64
}

// Interface is a logical network interface of a Device.
type Interface struct {
	d    *Device
	idx  int
	name string

	mu     sync.Mutex
	mode   Mode
	mac    [6]byte
	bssid  [6]byte
	link   LinkState
	reqIEs []byte

	opened  atomic.Bool
	stopped atomic.Bool
	stats   ifaceStats
	gate    ipGate
	eap     eapBuffer
}

func (v *Interface) Index() int   { return v.idx }
func (v *Interface) Name() string { return v.name }

// Opened reports whether the interface is up.
func (v *Interface) Opened() bool { return v.opened.Load() }

// Stopped reports whether the transmit path is paused by flow control.
func (v *Interface) Stopped() bool { return v.stopped.Load() }

func (v *Interface) Mode() Mode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

func (v *Interface) HardwareAddr() net.HardwareAddr {
	v.mu.Lock()
	defer v.mu.Unlock()
	return bytes.Clone(v.mac[:])
}

func (v *Interface) Stats() Stats {
	return Stats{
		RxPackets: v.stats.rxPackets.Load(),
		RxBytes:   v.stats.rxBytes.Load(),
		RxDropped: v.stats.rxDropped.Load(),
		TxPackets: v.stats.txPackets.Load(),
		TxBytes:   v.stats.txBytes.Load(),
	}
}

// SetBSSID records the peer the interface is attached to and its operating
// mode. A zero bssid clears the peer.
func (v *Interface) SetBSSID(bssid [6]byte, mode Mode) {
	v.mu.Lock()
	v.bssid = bssid
	v.mode = mode
	v.mu.Unlock()
	v.d.debug("iface:set-bssid", slog.String("iface", v.name), slog.String("bssid", net.HardwareAddr(bssid[:]).String()), slog.String("mode", mode.String()))
}

// Associate is called by the protocol layer when the interface completes
// association with bssid. reqIEs is the association request IE blob.
func (v *Interface) Associate(bssid [6]byte, reqIEs []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bssid = bssid
	v.link = LinkConnected
	v.reqIEs = append(v.reqIEs[:0], reqIEs...)
}

// SetLinkState records the protocol layer link state.
func (v *Interface) SetLinkState(state LinkState) {
	v.mu.Lock()
	v.link = state
	v.mu.Unlock()
}

func (v *Interface) LinkState() LinkState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.link
}

// Disassociate clears the peer and returns the link to idle.
func (v *Interface) Disassociate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resetLinkLocked()
}

func (v *Interface) resetLinkLocked() {
	v.bssid = [6]byte{}
	v.reqIEs = nil
	v.link = LinkIdle
}

func (v *Interface) hasPeer() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bssid != [6]byte{}
}

// awaitingPeer reports whether the interface is a station that has not yet
// recorded its peer address.
func (v *Interface) awaitingPeer() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return (v.mode == ModeStation || v.mode == ModeClient) && v.bssid == [6]byte{}
}

// SetHardwareAddr programs the interface MAC address. The address must be a
// valid unicast address not used by another interface of the device.
func (v *Interface) SetHardwareAddr(mac [6]byte) error {
	if !validHardwareAddr(mac) {
		return ErrInvalidHardwareAddr
	}
	d := v.d
	if !d.initialized.Load() {
		return ErrNotInitialized
	}
	for i := range d.vif {
		if i == v.idx {
			continue
		}
		o := &d.vif[i]
		o.mu.Lock()
		dup := o.mac == mac
		o.mu.Unlock()
		if dup {
			d.logerr("iface:set-mac", slog.String("iface", v.name), slog.String("err", errDuplicateHW.Error()))
			return errDuplicateHW
		}
	}
	if err := d.setAttrBytes(v.idx, wid.MACAddr, mac[:]); err != nil {
		return err
	}
	v.mu.Lock()
	v.mac = mac
	v.mu.Unlock()
	return nil
}

// SetMulticastList programs the firmware group address filter. Filtering is
// disabled when allmulti is set or addrs exceeds the filter capacity. An
// empty list restricts reception to directed frames.
func (v *Interface) SetMulticastList(addrs [][6]byte, allmulti bool) error {
	d := v.d
	if !d.initialized.Load() {
		return ErrNotInitialized
	}
	if allmulti || len(addrs) > wid.MaxMulticastFilter {
		d.debug("iface:mcast-disable", slog.String("iface", v.name), slog.Int("n", len(addrs)))
		return d.setAttrBytes(v.idx, wid.SetupMulticastFilter, wid.AppendMulticastFilter(nil, false, nil))
	}
	return d.setAttrBytes(v.idx, wid.SetupMulticastFilter, wid.AppendMulticastFilter(nil, true, addrs))
}

func validHardwareAddr(mac [6]byte) bool {
	return mac != [6]byte{} && mac[0]&1 == 0
}
