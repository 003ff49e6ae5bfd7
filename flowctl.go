package wilc

import "log/slog"

// Transmit queue depth thresholds. Interfaces are paused when the depth
// exceeds FlowCtrlHigh and resumed once it falls below FlowCtrlLow.
const (
	FlowCtrlHigh = 500
	FlowCtrlLow  = 200
)

// pauseQueues stops the transmit path of every opened interface.
func (d *Device) pauseQueues() {
	for i := range d.vif {
		if d.vif[i].opened.Load() {
			d.stopQueue(&d.vif[i])
		}
	}
}

// resumeQueues restarts the transmit path of every opened paused interface.
func (d *Device) resumeQueues() {
	for i := range d.vif {
		if d.vif[i].opened.Load() {
			d.resumeQueue(&d.vif[i])
		}
	}
}

func (d *Device) stopQueue(v *Interface) {
	if v.stopped.CompareAndSwap(false, true) {
		d.notifyQueue(v, true)
	}
}

func (d *Device) resumeQueue(v *Interface) {
	if v.stopped.CompareAndSwap(true, false) {
		d.notifyQueue(v, false)
	}
}

func (d *Device) notifyQueue(v *Interface, stopped bool) {
	d.debug("flowctl", slog.String("iface", v.name), slog.Bool("stopped", stopped), slog.Int("depth", d.txq.len()))
	if d.onQueue != nil {
		d.onQueue(v.idx, stopped)
	}
}
