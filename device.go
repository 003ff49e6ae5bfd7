package wilc

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// NumInterfaces is the number of logical interfaces a Device exposes.
const NumInterfaces = 2

// Interface indices by role.
const (
	IfaceWLAN = 0
	IfaceP2P  = 1
)

// MTU is the largest Ethernet payload the chip accepts.
const MTU = 1500

// MACStatus is the firmware link status reported through MACIndicate.
type MACStatus int32

const (
	MACStatusInit      MACStatus = -1
	MACStatusReady     MACStatus = 0
	MACStatusConnected MACStatus = 1
)

type timings struct {
	startTimeout time.Duration
	powerSettle  time.Duration
	txBackoff    time.Duration
	eapRetry     time.Duration
	ipObtain     time.Duration
	ipAssign     time.Duration
}

var defaultTimings = timings{
	startTimeout: 500 * time.Millisecond,
	powerSettle:  5 * time.Millisecond,
	txBackoff:    time.Millisecond,
	eapRetry:     10 * time.Millisecond,
	ipObtain:     20 * time.Second,
	ipAssign:     15 * time.Second,
}

// Config holds the collaborators and handlers of a Device.
type Config struct {
	Bus Bus
	// IRQ is the interrupt GPIO line. Required for BusSPI and BusSDIOGPIOIRQ.
	IRQ      IRQLine
	Attrs    AttrStore
	Firmware FirmwareFunc
	// ChipEnable and Reset drive the chip power and reset lines.
	ChipEnable OutputPin
	Reset      OutputPin
	// Watchdog supervises the device for stalled commands. If nil the
	// process wide DefaultWatchdog is used.
	Watchdog *Watchdog
	Names    [NumInterfaces]string
	Modes    [NumInterfaces]Mode
	Logger   *slog.Logger

	// HostInit and HostDeinit set up and release host side per-interface
	// state. They are not called while a recovery cycle runs.
	HostInit   func(vif int) error
	HostDeinit func(vif int)
	// RecvEth receives Ethernet frames. pkt is only valid during the call.
	RecvEth func(vif int, pkt []byte) error
	// QueueState is called when the transmit path of an interface is paused
	// or resumed.
	QueueState func(vif int, stopped bool)
	// Disconnect receives disconnection events synthesized during recovery.
	Disconnect func(vif int, ev DisconnectEvent)
}

func DefaultConfig() Config {
	return Config{
		Names: [NumInterfaces]string{"wlan0", "p2p0"},
		Modes: [NumInterfaces]Mode{ModeStation, ModeStation},
	}
}

// Device is a WILC1000/WILC3000 wireless chip.
type Device struct {
	logger
	// mu serializes interface open and close.
	mu sync.Mutex
	// hifMu guards the command channel to the chip.
	hifMu sync.Mutex
	// cfgMu guards the attribute channel.
	cfgMu      sync.Mutex
	bus        Bus
	irqLine    IRQLine
	attrs      AttrStore
	fwFunc     FirmwareFunc
	chipEn     OutputPin
	reset      OutputPin
	irq        irqStrategy
	wd         *Watchdog
	timing     timings
	hostInit   func(int) error
	hostDeinit func(int)
	rcvEth     func(int, []byte) error
	onQueue    func(int, bool)
	onDisconn  func(int, DisconnectEvent)

	initialized atomic.Bool
	closing     atomic.Bool
	macStatus   atomic.Int32
	ready       chan struct{}
	// fw is held from fetch until the firmware has started.
	fw        []byte
	openCount int
	vif       [NumInterfaces]Interface

	txq     txQueue
	txWake  chan struct{}
	txDone  chan struct{}
	backoff txBackoff
	// psIgnore suppresses recording of the next power save preference
	// change, which is the one caused by the IP acquisition override.
	psIgnore atomic.Bool
}

// New attaches a Device to its collaborators. The chip is left powered off.
func New(cfg Config) (*Device, error) {
	switch {
	case cfg.Bus == nil:
		return nil, errNilBus
	case cfg.Attrs == nil:
		return nil, errNilAttrs
	case cfg.Firmware == nil:
		return nil, errNilFirmware
	case cfg.Bus.Kind().deferredIRQ() && cfg.IRQ == nil:
		return nil, errNilIRQLine
	}
	wd := cfg.Watchdog
	if wd == nil {
		wd = DefaultWatchdog()
	}
	d := &Device{
		logger:     logger{log: cfg.Logger},
		bus:        cfg.Bus,
		irqLine:    cfg.IRQ,
		attrs:      cfg.Attrs,
		fwFunc:     cfg.Firmware,
		chipEn:     cfg.ChipEnable,
		reset:      cfg.Reset,
		irq:        newIRQStrategy(cfg.Bus.Kind()),
		wd:         wd,
		timing:     defaultTimings,
		hostInit:   cfg.HostInit,
		hostDeinit: cfg.HostDeinit,
		rcvEth:     cfg.RecvEth,
		onQueue:    cfg.QueueState,
		onDisconn:  cfg.Disconnect,
		ready:      make(chan struct{}, 1),
		txWake:     make(chan struct{}, 1),
	}
	d.macStatus.Store(int32(MACStatusInit))
	for i := range d.vif {
		v := &d.vif[i]
		v.d = d
		v.idx = i
		v.name = cfg.Names[i]
		if v.name == "" {
			v.name = DefaultConfig().Names[i]
		}
		v.mode = cfg.Modes[i]
		if v.mode == 0 {
			v.mode = ModeStation
		}
		// Upper layer queues start paused until the interface opens.
		v.stopped.Store(true)
	}
	d.info("attach", slog.String("bus", cfg.Bus.Kind().String()), slog.Bool("deferred-irq", cfg.Bus.Kind().deferredIRQ()))
	return d, nil
}

// Interface returns the interface at idx.
func (d *Device) Interface(idx int) (*Interface, error) {
	if idx < 0 || idx >= NumInterfaces {
		return nil, ErrInvalidInterface
	}
	return &d.vif[idx], nil
}

// Initialized reports whether the chip is running firmware.
func (d *Device) Initialized() bool { return d.initialized.Load() }

// OpenCount returns the number of opened interfaces.
func (d *Device) OpenCount() int {
	d.lock()
	defer d.unlock()
	return d.openCount
}

// MACIndicate records the firmware link status. The first indication after
// firmware start completes bring-up.
func (d *Device) MACIndicate(status MACStatus) {
	if d.macStatus.CompareAndSwap(int32(MACStatusInit), int32(status)) {
		select {
		case d.ready <- struct{}{}:
		default:
		}
		return
	}
	d.macStatus.Store(int32(status))
}

// ConnectedInterfaces returns the number of interfaces associated to a peer.
func (d *Device) ConnectedInterfaces() (n int) {
	for i := range d.vif {
		if d.vif[i].hasPeer() {
			n++
		}
	}
	return n
}

// Close closes every opened interface, powering the chip off.
func (d *Device) Close() error {
	var errs []error
	for i := range d.vif {
		if d.vif[i].opened.Load() {
			errs = append(errs, d.CloseInterface(i))
		}
	}
	return errjoin(errs...)
}

func (d *Device) lock()   { d.mu.Lock() }
func (d *Device) unlock() { d.mu.Unlock() }
