// Command wilcsim runs the WILC control core against a simulated chip. It
// pushes traffic through the transmit path, injects stalled firmware
// commands and reports how the device recovers.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soypat/wilc"
	"github.com/soypat/wilc/internal/simbus"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "wilcsim - exercise the WILC driver core against a simulated chip.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	flagBus := flag.String("bus", "spi", "Bus kind: spi, sdio or sdio-gpio.")
	flagChip := flag.Int("chip", 1000, "Chip variant: 1000 or 3000.")
	flagPackets := flag.Int("packets", 1000, "Packets to transmit.")
	flagNoBufs := flag.Int("nobufs", 20, "Transmissions refused by the chip for lack of buffers.")
	flagStalls := flag.Int("stalls", 5, "Firmware commands to stall.")
	flagInterval := flag.Duration("interval", 200*time.Millisecond, "Watchdog polling interval.")
	flagMQTT := flag.String("mqtt", "", "MQTT broker host:port to publish events to.")
	flagTopic := flag.String("topic", "wilcsim", "MQTT topic.")
	flagVerbose := flag.Bool("v", false, "Log debug messages.")
	flag.Parse()

	level := slog.LevelInfo
	if *flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	sim := simulation{
		packets: *flagPackets,
		nobufs:  *flagNoBufs,
		stalls:  *flagStalls,
		logger:  logger,
	}
	var err error
	sim.kind, err = parseBus(*flagBus)
	if err != nil {
		log.Fatal(err)
	}
	sim.chip, err = parseChip(*flagChip)
	if err != nil {
		log.Fatal(err)
	}
	if *flagMQTT != "" {
		sim.pub, err = dialPublisher(*flagMQTT, "wilcsim", *flagTopic, logger)
		if err != nil {
			log.Fatal("mqtt: ", err)
		}
		defer sim.pub.Close()
	}
	wdcfg := wilc.DefaultWatchdogConfig()
	wdcfg.Interval = *flagInterval
	wdcfg.Logger = logger
	sim.wd = wilc.NewWatchdog(wdcfg)

	start := time.Now()
	if err := sim.run(); err != nil {
		log.Fatal(err)
	}
	log.Println("finished in", time.Since(start))
}

func parseBus(s string) (wilc.BusKind, error) {
	switch s {
	case "spi":
		return wilc.BusSPI, nil
	case "sdio":
		return wilc.BusSDIO, nil
	case "sdio-gpio":
		return wilc.BusSDIOGPIOIRQ, nil
	}
	return 0, fmt.Errorf("invalid bus %q", s)
}

func parseChip(n int) (wilc.Chip, error) {
	switch n {
	case 1000:
		return wilc.ChipWILC1000, nil
	case 3000:
		return wilc.ChipWILC3000, nil
	}
	return 0, fmt.Errorf("invalid chip %d", n)
}

type simulation struct {
	kind    wilc.BusKind
	chip    wilc.Chip
	packets int
	nobufs  int
	stalls  int
	wd      *wilc.Watchdog
	pub     *publisher
	logger  *slog.Logger

	rx     atomic.Int64
	pauses atomic.Int64
}

func (sim *simulation) event(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	sim.logger.Info("event", slog.String("msg", msg))
	sim.pub.publish(msg)
}

func (sim *simulation) run() error {
	chip := simbus.New(sim.kind, sim.chip)
	chip.SetWatchdog(sim.wd)
	cfg := wilc.DefaultConfig()
	cfg.Bus = chip
	cfg.Attrs = chip
	if sim.kind != wilc.BusSDIO {
		cfg.IRQ = chip
	}
	cfg.Watchdog = sim.wd
	cfg.Logger = sim.logger
	cfg.Firmware = func(name string) ([]byte, error) {
		sim.logger.Debug("firmware:request", slog.String("name", name))
		return make([]byte, 128*1024), nil
	}
	cfg.QueueState = func(vif int, stopped bool) {
		if stopped {
			sim.pauses.Add(1)
		}
		sim.event("queue vif=%d stopped=%v", vif, stopped)
	}
	cfg.Disconnect = func(vif int, ev wilc.DisconnectEvent) {
		sim.event("disconnect vif=%d bssid=% x", vif, ev.BSSID)
	}
	cfg.RecvEth = func(vif int, pkt []byte) error {
		sim.rx.Add(1)
		return nil
	}
	dev, err := wilc.New(cfg)
	if err != nil {
		return err
	}
	chip.Attach(dev)
	for i := 0; i < wilc.NumInterfaces; i++ {
		if err := dev.OpenInterface(i); err != nil {
			return err
		}
		sim.event("open vif=%d", i)
	}
	defer func() {
		dev.Close()
		sim.event("closed")
	}()
	wlan, _ := dev.Interface(wilc.IfaceWLAN)
	bssid := [6]byte{0x02, 0xde, 0xad, 0xbe, 0xef, 0x01}
	wlan.Associate(bssid, nil)
	wlan.SetBSSID(bssid, wilc.ModeStation)

	// Traffic.
	var wg sync.WaitGroup
	var sent, dropped atomic.Int64
	chip.ExhaustBuffers(sim.nobufs)
	mac := [6]byte(wlan.HardwareAddr())
	for i := 0; i < sim.packets; i++ {
		wg.Add(1)
		pkt := simbus.IPv4Frame(bssid, mac, []byte(fmt.Sprintf("packet %d", i)))
		dev.SendEth(wilc.IfaceWLAN, pkt, func(s wilc.TxStatus) {
			if s == wilc.TxSent {
				sent.Add(1)
			} else {
				dropped.Add(1)
			}
			wg.Done()
		})
		if i%100 == 0 {
			chip.InjectRx(wilc.IfaceWLAN, simbus.IPv4Frame(mac, bssid, []byte("reply")))
		}
	}
	wg.Wait()
	sim.event("traffic sent=%d dropped=%d pauses=%d rx=%d", sent.Load(), dropped.Load(), sim.pauses.Load(), sim.rx.Load())

	// Stalls.
	if threshold := wilc.DefaultWatchdogConfig().Threshold; sim.stalls < threshold {
		sim.event("stalls=%d below recovery threshold %d", sim.stalls, threshold)
		return nil
	}
	startsBefore := chip.Counters().Starts
	chip.Stall(sim.stalls)
	for i := 0; i < sim.stalls; i++ {
		if err := wlan.SetMulticastList(nil, false); err != nil {
			sim.logger.Warn("command", slog.String("err", err.Error()))
		}
	}
	deadline := time.Now().Add(10*time.Second + 2*wilc.DefaultWatchdogConfig().Interval)
	for chip.Counters().Starts == startsBefore || sim.wd.Recovering() {
		if time.Now().After(deadline) {
			return fmt.Errorf("no recovery after %d stalled commands", sim.stalls)
		}
		time.Sleep(10 * time.Millisecond)
	}
	c := chip.Counters()
	sim.event("recovered starts=%d stops=%d open=%d link=%d", c.Starts, c.Stops, dev.OpenCount(), wlan.LinkState())
	return nil
}
