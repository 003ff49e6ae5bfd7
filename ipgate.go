package wilc

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/soypat/wilc/wid"
)

// IPState is the address acquisition progress of an interface as reported
// by the network stack.
type IPState uint8

const (
	IPDefault IPState = iota
	// IPObtaining means the interface is requesting an address, i.e. DHCP.
	IPObtaining
	IPObtained
	// IPAssigning means a peer is being assigned an address by this interface.
	IPAssigning
)

func (s IPState) String() string {
	switch s {
	case IPDefault:
		return "default"
	case IPObtaining:
		return "obtaining"
	case IPObtained:
		return "obtained"
	case IPAssigning:
		return "assigning"
	}
	return "unknown"
}

// ipGate keeps power save off while an address is being acquired.
type ipGate struct {
	mu        sync.Mutex
	obtaining bool
	// powerSave is the recorded user preference.
	powerSave bool
	timer     *time.Timer
	// gen invalidates deadlines that fire after being disarmed.
	gen uint64
}

func (g *ipGate) arm(v *Interface, timeout time.Duration) {
	g.disarm()
	gen := g.gen
	g.timer = time.AfterFunc(timeout, func() { v.ipTimeout(gen) })
}

func (g *ipGate) disarm() {
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func (g *ipGate) cancel() {
	g.mu.Lock()
	g.obtaining = false
	g.disarm()
	g.mu.Unlock()
}

// HandleIPState updates the address acquisition state of the interface.
// Power save is forced off while an address is obtained and the recorded
// preference is restored once acquisition ends, or when the deadline expires.
func (v *Interface) HandleIPState(state IPState) {
	d := v.d
	g := &v.gate
	d.debug("ip:state", slog.String("iface", v.name), slog.String("state", state.String()))
	g.mu.Lock()
	switch state {
	case IPObtaining:
		g.obtaining = true
		d.psIgnore.Store(true)
		g.arm(v, d.timing.ipObtain)
		g.mu.Unlock()
		d.applyPowerSave(v, false)
		return
	case IPObtained:
		g.obtaining = false
		g.disarm()
		saved := g.powerSave
		g.mu.Unlock()
		d.applyPowerSave(v, saved)
		return
	case IPAssigning:
		g.obtaining = true
		g.arm(v, d.timing.ipAssign)
	default:
		cleared := g.obtaining
		g.obtaining = false
		g.disarm()
		saved := g.powerSave
		g.mu.Unlock()
		if cleared {
			d.applyPowerSave(v, saved)
		}
		return
	}
	g.mu.Unlock()
}

func (v *Interface) ipTimeout(gen uint64) {
	d := v.d
	g := &v.gate
	g.mu.Lock()
	if gen != g.gen || !g.obtaining {
		g.mu.Unlock()
		return
	}
	g.obtaining = false
	g.timer = nil
	saved := g.powerSave
	g.mu.Unlock()
	d.logerr("ip:unable-to-obtain", slog.String("iface", v.name))
	d.applyPowerSave(v, saved)
}

// ObtainingIP reports whether the interface is acquiring an address.
func (v *Interface) ObtainingIP() bool {
	v.gate.mu.Lock()
	defer v.gate.mu.Unlock()
	return v.gate.obtaining
}

// PowerSave returns the recorded power save preference.
func (v *Interface) PowerSave() bool {
	v.gate.mu.Lock()
	defer v.gate.mu.Unlock()
	return v.gate.powerSave
}

// SetPowerSave records the power save preference and applies it. While an
// address is being acquired the preference is recorded but applied later.
// The first change after acquisition starts is not recorded since it
// reflects the acquisition override.
func (v *Interface) SetPowerSave(enabled bool) error {
	d := v.d
	g := &v.gate
	g.mu.Lock()
	if d.psIgnore.CompareAndSwap(true, false) {
		d.debug("ps:record-suppressed", slog.String("iface", v.name), slog.Bool("enabled", enabled))
	} else {
		g.powerSave = enabled
	}
	obtaining := g.obtaining
	g.mu.Unlock()
	if obtaining {
		d.debug("ps:deferred", slog.String("iface", v.name))
		return nil
	}
	return d.setPowerManagement(v, enabled)
}

// applyPowerSave writes the power save mode, logging failures.
func (d *Device) applyPowerSave(v *Interface, enabled bool) {
	err := d.setPowerManagement(v, enabled)
	if errors.Is(err, ErrNotInitialized) {
		d.debug("ps:apply-skipped", slog.String("iface", v.name))
	} else if err != nil {
		d.logerr("ps:apply", slog.String("iface", v.name), slog.Bool("enabled", enabled), slog.String("err", err.Error()))
	}
}

func (d *Device) setPowerManagement(v *Interface, enabled bool) error {
	if !d.initialized.Load() {
		return ErrNotInitialized
	}
	mode := wid.NoPowerSave
	if enabled {
		mode = wid.MinFastPS
	}
	return d.setAttr(v.idx, wid.Attr{ID: wid.PowerManagement, Value: mode})
}
