package wilc

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soypat/wilc/wid"
)

var errFake = errors.New("fake failure")

type fakeBus struct {
	kind BusKind
	d    *Device

	mu       sync.Mutex
	allow    int // transmissions accepted before reporting no buffers, -1 for unlimited.
	attempts int
	sent     [][]byte
	handled  int
	noReady  bool
	failInit bool
}

func (f *fakeBus) Kind() BusKind            { return f.kind }
func (f *fakeBus) Chip() Chip               { return ChipWILC1000 }
func (f *fakeBus) Cleanup()                 {}
func (f *fakeBus) EnableInterrupt() error   { return nil }
func (f *fakeBus) DisableInterrupt()        {}
func (f *fakeBus) Download(fw []byte) error { return nil }
func (f *fakeBus) Stop() error              { return nil }

func (f *fakeBus) Init() error {
	if f.failInit {
		return errFake
	}
	return nil
}

func (f *fakeBus) HandleInterrupt() {
	f.mu.Lock()
	f.handled++
	f.mu.Unlock()
}

func (f *fakeBus) Start() error {
	if !f.noReady {
		go f.d.MACIndicate(MACStatusReady)
	}
	return nil
}

func (f *fakeBus) Tx(vif int, pkt []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.allow == 0 {
		return ErrNoBuffers
	} else if f.allow > 0 {
		f.allow--
	}
	f.sent = append(f.sent, pkt)
	return nil
}

func (f *fakeBus) HardwareAddr(vif int) ([6]byte, error) {
	return [6]byte{0x02, 0, 0, 0, 0, byte(vif + 1)}, nil
}

func (f *fakeBus) setAllow(n int) {
	f.mu.Lock()
	f.allow = n
	f.mu.Unlock()
}

func (f *fakeBus) interrupts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handled
}

type fakeIRQ struct {
	mu      sync.Mutex
	handler func() IRQReturn
}

func (f *fakeIRQ) Request(h func() IRQReturn) error {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
	return nil
}

func (f *fakeIRQ) Disable(wait bool) {}

func (f *fakeIRQ) Free() {
	f.mu.Lock()
	f.handler = nil
	f.mu.Unlock()
}

func (f *fakeIRQ) fire() IRQReturn {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return IRQNone
	}
	return h()
}

type attrWrite struct {
	vif int
	id  wid.ID
	val []byte
}

type fakeAttrs struct {
	mu     sync.Mutex
	writes []attrWrite
	reject wid.ID
}

func (f *fakeAttrs) SetAttr(vif int, id wid.ID, val []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject != 0 && id == f.reject {
		return errFake
	}
	f.writes = append(f.writes, attrWrite{vif: vif, id: id, val: append([]byte(nil), val...)})
	return nil
}

func (f *fakeAttrs) GetAttr(vif int, id wid.ID, dst []byte) (int, error) {
	return copy(dst, "fake-fw"), nil
}

// values returns the decoded values written to id.
func (f *fakeAttrs) values(id wid.ID) []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var vals []uint32
	for _, w := range f.writes {
		if w.id == id {
			v, _ := wid.Decode(id, w.val)
			vals = append(vals, v)
		}
	}
	return vals
}

type testDevice struct {
	*Device
	bus   *fakeBus
	irq   *fakeIRQ
	attrs *fakeAttrs
	wd    *Watchdog
}

func newTestDevice(t *testing.T, kind BusKind, modify func(*Config)) *testDevice {
	t.Helper()
	td := &testDevice{
		bus:   &fakeBus{kind: kind, allow: -1},
		irq:   &fakeIRQ{},
		attrs: &fakeAttrs{},
		wd:    NewWatchdog(WatchdogConfig{Interval: 50 * time.Millisecond}),
	}
	cfg := DefaultConfig()
	cfg.Bus = td.bus
	cfg.IRQ = td.irq
	cfg.Attrs = td.attrs
	cfg.Watchdog = td.wd
	cfg.Firmware = func(name string) ([]byte, error) { return []byte("firmware image"), nil }
	if modify != nil {
		modify(&cfg)
	}
	d, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	td.Device = d
	td.bus.d = d
	t.Cleanup(func() { d.Close() })
	return td
}

func (f *fakeBus) txAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// waitFor polls cond until it holds or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}
