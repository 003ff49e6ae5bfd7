package wilc

import (
	"context"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// WatchdogConfig tunes stall detection and recovery.
type WatchdogConfig struct {
	// Interval is the stall counter polling period.
	Interval time.Duration
	// Threshold is the number of timed out commands that triggers recovery.
	Threshold int
	// ReopenAttempts bounds the attempts to reopen each interface.
	ReopenAttempts int
	// ReopenDelay is the wait between reopen attempts.
	ReopenDelay time.Duration
	Logger      *slog.Logger
}

func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		Interval:       6 * time.Second,
		Threshold:      5,
		ReopenAttempts: 10,
		ReopenDelay:    100 * time.Millisecond,
	}
}

// Watchdog supervises Devices for stalled firmware commands. When the number
// of timed out commands reaches the threshold it closes every opened
// interface of each supervised device and reopens them.
//
// The polling goroutine runs while at least one device is initialized. A
// recovery cycle in progress always completes before the goroutine stops.
type Watchdog struct {
	logger
	cfg    WatchdogConfig
	stalls atomic.Int32

	mu         sync.Mutex
	devices    []*Device
	running    bool
	recovering bool
	stop       chan struct{}
	done       chan struct{}
}

var (
	defaultWatchdog     *Watchdog
	defaultWatchdogOnce sync.Once
)

// DefaultWatchdog returns the process wide Watchdog with default configuration.
func DefaultWatchdog() *Watchdog {
	defaultWatchdogOnce.Do(func() {
		defaultWatchdog = NewWatchdog(DefaultWatchdogConfig())
	})
	return defaultWatchdog
}

func NewWatchdog(cfg WatchdogConfig) *Watchdog {
	def := DefaultWatchdogConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ReopenAttempts <= 0 {
		cfg.ReopenAttempts = def.ReopenAttempts
	}
	if cfg.ReopenDelay < 0 {
		cfg.ReopenDelay = 0
	}
	return &Watchdog{logger: logger{log: cfg.Logger}, cfg: cfg}
}

// CommandTimedOut records a command whose response did not arrive in time.
// It is called by the command channel.
func (w *Watchdog) CommandTimedOut() {
	n := w.stalls.Add(1)
	w.debug("wd:stall", slog.Int("stalls", int(n)))
}

// Stalls returns the number of timed out commands since the last recovery.
func (w *Watchdog) Stalls() int { return int(w.stalls.Load()) }

// Recovering reports whether a recovery cycle is running.
func (w *Watchdog) Recovering() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.recovering
}

// Running reports whether the polling goroutine is running.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// attach adds d to the supervised devices and starts polling if needed.
func (w *Watchdog) attach(d *Device) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !slices.Contains(w.devices, d) {
		w.devices = append(w.devices, d)
	}
	if w.running {
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.run(w.stop, w.done)
	w.info("wd:start", slog.Duration("interval", w.cfg.Interval))
}

// release removes d from the supervised devices. It stops and joins the
// polling goroutine when no devices remain, unless a recovery cycle is
// running. It reports whether the goroutine is no longer running.
func (w *Watchdog) release(d *Device) bool {
	w.mu.Lock()
	w.devices = slices.DeleteFunc(w.devices, func(dev *Device) bool { return dev == d })
	if w.recovering || !w.running || len(w.devices) > 0 {
		stopped := !w.running
		w.mu.Unlock()
		return stopped
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()
	<-done
	w.info("wd:stop")
	return true
}

func (w *Watchdog) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll runs a recovery cycle if the stall threshold is reached.
func (w *Watchdog) poll() {
	stalls := int(w.stalls.Load())
	if stalls < w.cfg.Threshold {
		return
	}
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.recovering = true
	devices := slices.Clone(w.devices)
	w.mu.Unlock()

	w.stalls.Store(0)
	w.warn("wd:recover", slog.Int("stalls", stalls), slog.Int("devices", len(devices)))
	for _, d := range devices {
		if d.initialized.Load() {
			w.recover(d)
		}
	}

	w.mu.Lock()
	w.recovering = false
	if w.running && len(w.devices) == 0 {
		// Devices released during the cycle left polling running.
		w.running = false
		close(w.stop)
	}
	w.mu.Unlock()
}

// recover closes every opened interface of d in ascending order and reopens
// them in descending order.
func (w *Watchdog) recover(d *Device) {
	d.disconnectForRecovery()
	var reopen []int
	for i := range d.vif {
		if !d.vif[i].opened.Load() {
			continue
		}
		if err := d.CloseInterface(i); err != nil {
			w.logerr("wd:close", slog.Int("vif", i), slog.String("err", err.Error()))
		}
		reopen = append(reopen, i)
	}
	for i := len(reopen) - 1; i >= 0; i-- {
		idx := reopen[i]
		attempts := 0
		_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
			attempts++
			return struct{}{}, d.OpenInterface(idx)
		},
			backoff.WithBackOff(backoff.NewConstantBackOff(w.cfg.ReopenDelay)),
			backoff.WithMaxTries(uint(w.cfg.ReopenAttempts)),
		)
		if err != nil {
			w.logerr("wd:reopen-failed", slog.Int("vif", idx), slog.Int("attempts", attempts), slog.String("err", err.Error()))
			continue
		}
		w.info("wd:reopened", slog.Int("vif", idx), slog.Int("attempts", attempts))
	}
}

// disconnectForRecovery reports a disconnection for every connected
// interface of d and returns their links to idle.
func (d *Device) disconnectForRecovery() {
	for i := range d.vif {
		v := &d.vif[i]
		v.mu.Lock()
		if v.link != LinkConnected {
			v.mu.Unlock()
			continue
		}
		ev := DisconnectEvent{BSSID: v.bssid, ReqIEs: v.reqIEs}
		v.resetLinkLocked()
		v.mu.Unlock()
		v.gate.cancel()
		d.warn("wd:disconnect", slog.String("iface", v.name), slog.String("bssid", net.HardwareAddr(ev.BSSID[:]).String()))
		if d.onDisconn == nil {
			d.logerr("wd:no-disconnect-handler", slog.String("iface", v.name))
			continue
		}
		d.onDisconn(i, ev)
	}
}
