package wilc

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/soypat/wilc/wid"
)

func assertDown(t *testing.T, td *testDevice) {
	t.Helper()
	if td.Initialized() {
		t.Error("device initialized")
	}
	if td.fw != nil {
		t.Error("firmware buffer held")
	}
	if td.txDone != nil {
		t.Error("transmit worker running")
	}
	if td.irq.handler != nil {
		t.Error("interrupt handler registered")
	}
	if td.wd.Running() {
		t.Error("watchdog running")
	}
	if n := td.OpenCount(); n != 0 {
		t.Errorf("open count %d", n)
	}
}

func TestOpenClose(t *testing.T) {
	var pins []string
	td := newTestDevice(t, BusSPI, func(cfg *Config) {
		cfg.ChipEnable = func(b bool) { pins = append(pins, "en:"+bit(b)) }
		cfg.Reset = func(b bool) { pins = append(pins, "rst:"+bit(b)) }
	})
	td.timing.powerSettle = 0
	if err := td.OpenInterface(IfaceWLAN); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(pins, " "); got != "rst:0 en:0 en:1 rst:1" {
		t.Errorf("power on sequence %q", got)
	}
	if !td.Initialized() || !td.wd.Running() || td.txDone == nil {
		t.Fatal("device not up after open")
	}
	if td.fw != nil {
		t.Error("firmware buffer held after start")
	}
	if err := td.OpenInterface(IfaceP2P); err != nil {
		t.Fatal(err)
	}
	if td.OpenCount() != 2 {
		t.Fatalf("open count %d", td.OpenCount())
	}
	if mac := td.vif[1].HardwareAddr(); mac[5] != 2 {
		t.Errorf("p2p mac %v", mac)
	}
	pins = pins[:0]
	td.CloseInterface(IfaceWLAN)
	if !td.Initialized() || len(pins) != 0 {
		t.Fatal("first close tore down device")
	}
	td.CloseInterface(IfaceP2P)
	if got := strings.Join(pins, " "); got != "rst:0 en:0" {
		t.Errorf("power off sequence %q", got)
	}
	assertDown(t, td)
}

func bit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func TestCloseNotOpen(t *testing.T) {
	td := newTestDevice(t, BusSPI, nil)
	if err := td.CloseInterface(IfaceWLAN); err != nil {
		t.Error(err)
	}
	if err := td.CloseInterface(7); !errors.Is(err, ErrInvalidInterface) {
		t.Error(err)
	}
	if err := td.OpenInterface(-1); !errors.Is(err, ErrInvalidInterface) {
		t.Error(err)
	}
	assertDown(t, td)
}

func TestConfigOrder(t *testing.T) {
	td := newTestDevice(t, BusSPI, nil)
	if err := td.OpenInterface(IfaceWLAN); err != nil {
		t.Fatal(err)
	}
	w := td.attrs.writes
	if len(w) != len(defaultAttrs)+1 {
		t.Fatalf("got %d attribute writes", len(w))
	}
	if w[0].id != wid.SetOperationMode || len(w[0].val) != 4 || w[0].val[0] != byte(ModeStation) {
		t.Errorf("first write %+v", w[0])
	}
	for i, a := range defaultAttrs {
		got := w[i+1]
		v, err := wid.Decode(got.id, got.val)
		if got.id != a.ID || err != nil || v != a.Value {
			t.Errorf("write %d: got %s=%d want %s=%d", i+1, got.id, v, a.ID, a.Value)
		}
	}
}

func TestBringUpFailureUnwinds(t *testing.T) {
	fetchErr := errors.New("no such file")
	for _, tc := range []struct {
		name   string
		kind   BusKind
		cfg    func(cfg *Config)
		dev    func(td *testDevice)
		target error
	}{
		{
			name:   "bus init",
			dev:    func(td *testDevice) { td.bus.failInit = true },
			target: errFake,
		},
		{
			name:   "irq request",
			cfg:    func(cfg *Config) { cfg.IRQ = failingIRQ{} },
			target: ErrIRQ,
		},
		{
			name: "firmware fetch",
			cfg: func(cfg *Config) {
				cfg.Firmware = func(string) ([]byte, error) { return nil, fetchErr }
			},
			target: ErrFirmwareUnavailable,
		},
		{
			name: "empty firmware",
			cfg: func(cfg *Config) {
				cfg.Firmware = func(string) ([]byte, error) { return nil, nil }
			},
			target: ErrFirmwareUnavailable,
		},
		{
			name:   "start timeout",
			dev:    func(td *testDevice) { td.bus.noReady = true },
			target: ErrStartTimeout,
		},
		{
			name:   "config rejected",
			dev:    func(td *testDevice) { td.attrs.reject = wid.QoSEnable },
			target: ErrConfigRejected,
		},
		{
			name:   "sdio config rejected",
			kind:   BusSDIO,
			dev:    func(td *testDevice) { td.attrs.reject = wid.SetOperationMode },
			target: ErrConfigRejected,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var hostInit, hostDeinit int
			td := newTestDevice(t, tc.kind, func(cfg *Config) {
				cfg.HostInit = func(int) error { hostInit++; return nil }
				cfg.HostDeinit = func(int) { hostDeinit++ }
				if tc.cfg != nil {
					tc.cfg(cfg)
				}
			})
			if tc.dev != nil {
				tc.dev(td)
			}
			td.timing.startTimeout = 20 * time.Millisecond
			err := td.OpenInterface(IfaceWLAN)
			if !errors.Is(err, tc.target) {
				t.Fatalf("got %v, want %v", err, tc.target)
			}
			assertDown(t, td)
			if hostInit != 1 || hostDeinit != 1 {
				t.Errorf("host init=%d deinit=%d", hostInit, hostDeinit)
			}
			if td.vif[0].Opened() {
				t.Error("interface opened")
			}
			// The device comes up once the fault is gone.
			td.bus.failInit, td.bus.noReady, td.attrs.reject = false, false, 0
			if tc.cfg == nil {
				if err := td.OpenInterface(IfaceWLAN); err != nil {
					t.Fatalf("reopen: %v", err)
				}
			}
		})
	}
}

type failingIRQ struct{}

func (failingIRQ) Request(func() IRQReturn) error { return errFake }
func (failingIRQ) Disable(bool)                   {}
func (failingIRQ) Free()                          {}

func TestTeardownIdempotent(t *testing.T) {
	td := newTestDevice(t, BusSPI, nil)
	td.tearDown(true)
	if err := td.OpenInterface(IfaceWLAN); err != nil {
		t.Fatal(err)
	}
	td.tearDown(true)
	td.tearDown(false)
	if td.Initialized() || td.txDone != nil {
		t.Error("device still up")
	}
	// Interface bookkeeping is left to CloseInterface.
	td.CloseInterface(IfaceWLAN)
	assertDown(t, td)
}
