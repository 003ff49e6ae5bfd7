package wilc

import "log/slog"

// irqStrategy is how interrupts reach the Device. It is chosen once at
// attach time from the bus kind.
type irqStrategy interface {
	register(d *Device) error
	// enable enables interrupt generation on the chip for buses that need it
	// and returns the function that undoes it.
	enable(d *Device) (undo func(), err error)
	disable(d *Device, wait bool)
	unregister(d *Device)
}

func newIRQStrategy(kind BusKind) irqStrategy {
	if kind.deferredIRQ() {
		return &deferredIRQ{}
	}
	return directIRQ{}
}

// deferredIRQ splits a GPIO interrupt in two stages. The immediate stage runs
// in the restricted handler context and only posts a request. The deferred
// stage runs on its own goroutine and may block on the command channel.
type deferredIRQ struct {
	// pending holds at most one request and is never closed.
	pending chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

func (s *deferredIRQ) register(d *Device) error {
	pending := make(chan struct{}, 1)
	err := d.irqLine.Request(func() IRQReturn {
		if d.closing.Load() {
			d.logerr("irq:closing")
			return IRQHandled
		}
		select {
		case pending <- struct{}{}:
		default:
		}
		return IRQWakeThread
	})
	if err != nil {
		return err
	}
	s.pending = pending
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(d, s.quit, s.done)
	return nil
}

func (s *deferredIRQ) run(d *Device, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case <-s.pending:
			d.trace("irq:deferred")
			d.ProcessInterrupt()
		}
	}
}

func (s *deferredIRQ) enable(d *Device) (func(), error) { return func() {}, nil }

func (s *deferredIRQ) disable(d *Device, wait bool) { d.irqLine.Disable(wait) }

func (s *deferredIRQ) unregister(d *Device) {
	if s.quit == nil {
		return
	}
	d.irqLine.Free()
	close(s.quit)
	<-s.done
	s.quit = nil
}

// directIRQ serves buses with in-band interrupts. An optional host wake line
// is only acknowledged.
type directIRQ struct{}

func (directIRQ) register(d *Device) error {
	if d.irqLine == nil {
		return nil
	}
	return d.irqLine.Request(func() IRQReturn { return IRQHandled })
}

func (directIRQ) enable(d *Device) (func(), error) {
	d.hifMu.Lock()
	err := d.bus.EnableInterrupt()
	d.hifMu.Unlock()
	if err != nil {
		return nil, err
	}
	return func() { directIRQ{}.disable(d, true) }, nil
}

func (directIRQ) disable(d *Device, _ bool) {
	d.hifMu.Lock()
	d.bus.DisableInterrupt()
	d.hifMu.Unlock()
	d.debug("irq:disabled", slog.String("bus", d.bus.Kind().String()))
}

func (directIRQ) unregister(d *Device) {
	if d.irqLine != nil {
		d.irqLine.Free()
	}
}
