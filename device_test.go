package wilc_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soypat/wilc"
	"github.com/soypat/wilc/internal/simbus"
	"github.com/soypat/wilc/wid"
)

func TestBringUpFaultInjection(t *testing.T) {
	for _, tc := range []struct {
		kind   wilc.BusKind
		step   simbus.Step
		target error
	}{
		{wilc.BusSPI, simbus.StepInit, simbus.ErrInjected},
		{wilc.BusSPI, simbus.StepIRQ, wilc.ErrIRQ},
		{wilc.BusSDIOGPIOIRQ, simbus.StepIRQ, wilc.ErrIRQ},
		{wilc.BusSDIO, simbus.StepEnableIRQ, wilc.ErrIRQ},
		{wilc.BusSPI, simbus.StepDownload, simbus.ErrInjected},
		{wilc.BusSPI, simbus.StepStart, simbus.ErrInjected},
		{wilc.BusSDIO, simbus.StepReady, wilc.ErrStartTimeout},
		{wilc.BusSPI, simbus.StepReady, wilc.ErrStartTimeout},
		{wilc.BusSPI, simbus.StepMAC, wilc.ErrInvalidHardwareAddr},
	} {
		t.Run(tc.kind.String(), func(t *testing.T) {
			h := newHarness(t, tc.kind)
			h.chip.Fail(tc.step, simbus.ErrInjected)
			err := h.dev.OpenInterface(wilc.IfaceWLAN)
			if !errors.Is(err, tc.target) {
				t.Fatalf("step %d: got %v want %v", tc.step, err, tc.target)
			}
			assertClean(t, h)
			h.chip.Fail(tc.step, nil)
			if err := h.dev.OpenInterface(wilc.IfaceWLAN); err != nil {
				t.Fatalf("open after clearing step %d: %v", tc.step, err)
			}
		})
	}
}

func TestBringUpConfigRejected(t *testing.T) {
	h := newHarness(t, wilc.BusSPI)
	h.chip.Reject(wid.RekeyPeriod, true)
	err := h.dev.OpenInterface(wilc.IfaceWLAN)
	if !errors.Is(err, wilc.ErrConfigRejected) {
		t.Fatal(err)
	}
	assertClean(t, h)
	if h.chip.Counters().Stops != 1 {
		t.Error("firmware not stopped")
	}
}

func TestBringUpUnknownChip(t *testing.T) {
	h := newHarness(t, wilc.BusSPI)
	h.chip = simbus.New(wilc.BusSPI, wilc.ChipUnknown)
	cfg := wilc.DefaultConfig()
	cfg.Bus, cfg.IRQ, cfg.Attrs = h.chip, h.chip, h.chip
	cfg.Watchdog = h.wd
	cfg.Firmware = func(string) ([]byte, error) { return []byte{1}, nil }
	dev, err := wilc.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	h.chip.Attach(dev)
	h.dev = dev
	if err := dev.OpenInterface(0); !errors.Is(err, wilc.ErrFirmwareUnavailable) {
		t.Fatal(err)
	}
	assertClean(t, h)
}

func assertClean(t *testing.T, h *harness) {
	t.Helper()
	switch {
	case h.dev.Initialized():
		t.Error("device initialized")
	case h.chip.IRQRegistered():
		t.Error("interrupt registered")
	case h.dev.TxWorkerRunning():
		t.Error("transmit worker running")
	case h.dev.FirmwareHeld():
		t.Error("firmware buffer held")
	case h.wd.Running():
		t.Error("watchdog running")
	case h.chip.Running():
		t.Error("firmware running")
	case h.dev.OpenCount() != 0:
		t.Error("interface counted open")
	}
	c := h.chip.Counters()
	if c.Inits != c.Cleanups {
		t.Errorf("bus init %d cleanup %d", c.Inits, c.Cleanups)
	}
}

func TestTransmitAndFlush(t *testing.T) {
	h := newHarness(t, wilc.BusSPI)
	if err := h.dev.OpenInterface(wilc.IfaceWLAN); err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	status := make(map[int][]wilc.TxStatus)
	var wg sync.WaitGroup
	send := func(i int) {
		wg.Add(1)
		h.dev.SendEth(wilc.IfaceWLAN, []byte{byte(i)}, func(s wilc.TxStatus) {
			mu.Lock()
			status[i] = append(status[i], s)
			mu.Unlock()
			wg.Done()
		})
	}
	for i := 0; i < 10; i++ {
		send(i)
	}
	wg.Wait()
	if n := len(h.chip.Sent()); n != 10 {
		t.Fatalf("chip got %d frames", n)
	}

	// Frames stuck behind an exhausted chip are dropped on close.
	h.chip.ExhaustBuffers(1 << 30)
	for i := 10; i < 110; i++ {
		send(i)
	}
	if err := h.dev.CloseInterface(wilc.IfaceWLAN); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	if len(status) != 110 {
		t.Fatalf("completed %d of 110", len(status))
	}
	for i, s := range status {
		if len(s) != 1 {
			t.Fatalf("packet %d completed %v", i, s)
		}
		if i >= 10 && s[0] != wilc.TxDropped {
			t.Errorf("packet %d status %s", i, s[0])
		}
	}
	if h.dev.TxQueueLen() != 0 {
		t.Error("queue not empty")
	}
	wlan, _ := h.dev.Interface(wilc.IfaceWLAN)
	if st := wlan.Stats(); st.TxPackets != 110 {
		t.Errorf("stats %+v", st)
	}
}

func TestReceiveThroughInterrupt(t *testing.T) {
	for _, kind := range []wilc.BusKind{wilc.BusSPI, wilc.BusSDIO, wilc.BusSDIOGPIOIRQ} {
		t.Run(kind.String(), func(t *testing.T) {
			got := make(chan []byte, 4)
			h := newHarness(t, kind)
			// Rebuild the device with a receive handler.
			cfg := wilc.DefaultConfig()
			cfg.Bus, cfg.Attrs, cfg.Watchdog = h.chip, h.chip, h.wd
			if kind != wilc.BusSDIO {
				cfg.IRQ = h.chip
			}
			cfg.Firmware = func(string) ([]byte, error) { return []byte{1, 2, 3}, nil }
			cfg.RecvEth = func(vif int, pkt []byte) error {
				got <- append([]byte(nil), pkt...)
				return nil
			}
			dev, err := wilc.New(cfg)
			if err != nil {
				t.Fatal(err)
			}
			h.chip.Attach(dev)
			h.dev = dev
			if err := dev.OpenInterface(wilc.IfaceWLAN); err != nil {
				t.Fatal(err)
			}
			defer dev.Close()
			mac := [6]byte{0xf8, 0xf0, 0x05, 0, 0, 1}
			src := [6]byte{0x02, 1, 2, 3, 4, 5}
			h.chip.InjectRx(wilc.IfaceWLAN, simbus.IPv4Frame(mac, src, []byte("payload")))
			select {
			case pkt := <-got:
				if string(pkt[14:]) != "payload" {
					t.Errorf("got % x", pkt)
				}
			case <-time.After(time.Second):
				t.Fatal("frame not received")
			}

			// EAPOL before association is held until the peer is known.
			h.chip.InjectRx(wilc.IfaceWLAN, simbus.EAPOLFrame(mac, src, []byte{1, 0, 0, 0}))
			select {
			case <-got:
				t.Fatal("EAPOL delivered before association")
			case <-time.After(2 * time.Millisecond):
			}
			wlan, _ := dev.Interface(wilc.IfaceWLAN)
			wlan.SetBSSID(src, wilc.ModeStation)
			select {
			case <-got:
			case <-time.After(time.Second):
				t.Fatal("EAPOL frame not released")
			}
		})
	}
}

func TestSetHardwareAddr(t *testing.T) {
	h := newHarness(t, wilc.BusSPI)
	wlan, _ := h.dev.Interface(wilc.IfaceWLAN)
	if err := wlan.SetHardwareAddr([6]byte{2, 0, 0, 0, 0, 9}); !errors.Is(err, wilc.ErrNotInitialized) {
		t.Fatal(err)
	}
	for i := 0; i < wilc.NumInterfaces; i++ {
		if err := h.dev.OpenInterface(i); err != nil {
			t.Fatal(err)
		}
	}
	p2p, _ := h.dev.Interface(wilc.IfaceP2P)
	if err := wlan.SetHardwareAddr([6]byte{1, 0, 0, 0, 0, 9}); !errors.Is(err, wilc.ErrInvalidHardwareAddr) {
		t.Errorf("multicast address accepted: %v", err)
	}
	if err := wlan.SetHardwareAddr([6]byte(p2p.HardwareAddr())); err == nil {
		t.Error("duplicate address accepted")
	}
	mac := [6]byte{2, 0, 0, 0, 0, 9}
	if err := wlan.SetHardwareAddr(mac); err != nil {
		t.Fatal(err)
	}
	if v, _ := h.chip.Attr(wilc.IfaceWLAN, wid.MACAddr); string(v) != string(mac[:]) {
		t.Errorf("chip mac % x", v)
	}
}

func TestMulticastFilter(t *testing.T) {
	h := newHarness(t, wilc.BusSPI)
	if err := h.dev.OpenInterface(wilc.IfaceWLAN); err != nil {
		t.Fatal(err)
	}
	wlan, _ := h.dev.Interface(wilc.IfaceWLAN)
	for _, tc := range []struct {
		n        int
		allmulti bool
		enabled  byte
	}{
		{n: 0, enabled: 1},
		{n: 3, enabled: 1},
		{n: wid.MaxMulticastFilter + 1, enabled: 0},
		{n: 1, allmulti: true, enabled: 0},
	} {
		addrs := make([][6]byte, tc.n)
		if err := wlan.SetMulticastList(addrs, tc.allmulti); err != nil {
			t.Fatal(err)
		}
		v, _ := h.chip.Attr(wilc.IfaceWLAN, wid.SetupMulticastFilter)
		if v[0] != tc.enabled {
			t.Errorf("n=%d allmulti=%v: filter enable=%d", tc.n, tc.allmulti, v[0])
		}
	}
}
