package wilc

import (
	"log/slog"
	"time"
)

// unwinder releases acquired resources in reverse order of acquisition.
type unwinder struct {
	release []func()
}

func (u *unwinder) push(fn func()) { u.release = append(u.release, fn) }

func (u *unwinder) unwind() {
	for i := len(u.release) - 1; i >= 0; i-- {
		u.release[i]()
	}
	u.release = u.release[:0]
}

// OpenInterface brings the interface up. The first interface opened powers
// the chip and starts its firmware.
func (d *Device) OpenInterface(idx int) error {
	v, err := d.Interface(idx)
	if err != nil {
		d.logerr("open", slog.Int("vif", idx), slog.String("err", err.Error()))
		return err
	}
	d.lock()
	defer d.unlock()
	if v.opened.Load() {
		d.warn("open:already-open", slog.String("iface", v.name))
		return nil
	}
	recovering := d.wd.Recovering()
	d.info("open", slog.String("iface", v.name), slog.Int("count", d.openCount), slog.Bool("recovering", recovering))
	if d.openCount == 0 {
		d.powerOn()
	}
	if !recovering && d.hostInit != nil {
		if err = d.hostInit(idx); err != nil {
			d.openFailed(v, false)
			return err
		}
	}
	if err = d.bringUp(v); err != nil {
		d.openFailed(v, !recovering)
		return err
	}
	mac, err := d.readHardwareAddr(idx)
	if err != nil {
		if d.openCount == 0 {
			d.tearDown(true)
		}
		d.openFailed(v, !recovering)
		return err
	}
	v.mu.Lock()
	v.mac = mac
	v.mu.Unlock()
	d.openCount++
	v.opened.Store(true)
	d.resumeQueue(v)
	return nil
}

func (d *Device) openFailed(v *Interface, deinitHost bool) {
	if deinitHost && d.hostDeinit != nil {
		d.hostDeinit(v.idx)
	}
	if d.openCount == 0 {
		d.powerOff()
	}
}

func (d *Device) readHardwareAddr(idx int) ([6]byte, error) {
	d.hifMu.Lock()
	mac, err := d.bus.HardwareAddr(idx)
	d.hifMu.Unlock()
	if err != nil {
		return mac, err
	}
	if !validHardwareAddr(mac) {
		d.logerr("open:invalid-mac", slog.Int("vif", idx), slog.Any("mac", mac))
		return mac, ErrInvalidHardwareAddr
	}
	return mac, nil
}

// CloseInterface brings the interface down. Closing the last opened
// interface stops the firmware and powers the chip off.
func (d *Device) CloseInterface(idx int) error {
	v, err := d.Interface(idx)
	if err != nil {
		d.logerr("close", slog.Int("vif", idx), slog.String("err", err.Error()))
		return err
	}
	d.lock()
	defer d.unlock()
	if d.openCount == 0 {
		d.logerr("close:no-opened-interfaces", slog.String("iface", v.name))
		return nil
	} else if !v.opened.Load() {
		d.logerr("close:not-open", slog.String("iface", v.name))
		return nil
	}
	recovering := d.wd.Recovering()
	d.info("close", slog.String("iface", v.name), slog.Int("count", d.openCount), slog.Bool("recovering", recovering))
	d.openCount--
	d.stopQueue(v)
	v.gate.cancel()
	v.dropEAP()
	if !recovering && d.hostDeinit != nil {
		d.hostDeinit(idx)
	}
	if d.openCount == 0 {
		d.tearDown(true)
		d.powerOff()
	}
	v.opened.Store(false)
	return nil
}

// bringUp starts the firmware. It is a no-op if the device is initialized.
// On failure every acquired resource is released before returning.
func (d *Device) bringUp(v *Interface) (err error) {
	if d.initialized.Load() {
		d.debug("bringup:already-initialized")
		return nil
	}
	start := time.Now()
	d.info("bringup:start", slog.String("iface", v.name), slog.String("bus", d.bus.Kind().String()))
	d.closing.Store(false)
	d.macStatus.Store(int32(MACStatusInit))
	select {
	case <-d.ready:
	default:
	}
	var u unwinder
	defer func() {
		if err != nil {
			u.unwind()
			d.logerr("bringup:failed", slog.String("err", err.Error()))
		}
	}()

	d.hifMu.Lock()
	err = d.bus.Init()
	d.hifMu.Unlock()
	if err != nil {
		return errjoin(errBusInit, err)
	}
	d.flushTx()
	u.push(d.cleanupBus)

	if err = d.irq.register(d); err != nil {
		return errjoin(ErrIRQ, err)
	}
	u.push(func() { d.irq.unregister(d) })

	d.startTxWorker()
	d.wd.attach(d)
	u.push(d.stopThreads)

	undo, err := d.irq.enable(d)
	if err != nil {
		return errjoin(ErrIRQ, err)
	}
	u.push(undo)

	if err = d.loadFirmware(); err != nil {
		return err
	}
	u.push(d.releaseFirmware)
	if err = d.downloadFirmware(); err != nil {
		return err
	}
	u.push(d.stopFirmware)
	if err = d.startFirmware(); err != nil {
		return err
	}
	d.releaseFirmware()

	d.logFirmwareVersion(v.idx)
	if err = d.initFirmwareConfig(v); err != nil {
		return err
	}
	d.initialized.Store(true)
	d.txq.open()
	d.info("bringup:done", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// tearDown stops the firmware and releases everything bringUp acquired.
// wait selects a synchronous interrupt disable. It is a no-op if the device
// is not initialized.
func (d *Device) tearDown(wait bool) {
	if !d.initialized.CompareAndSwap(true, false) {
		d.debug("teardown:not-initialized")
		return
	}
	d.info("teardown:start")
	d.closing.Store(true)
	d.irq.disable(d, wait)
	d.stopTxWorker()
	if !d.wd.release(d) {
		d.debug("teardown:watchdog-recovering")
	}
	d.irq.unregister(d)
	d.stopFirmware()
	d.cleanupBus()
	d.releaseFirmware()
	d.info("teardown:done")
}

// stopThreads stops the transmit worker and detaches from the watchdog.
func (d *Device) stopThreads() {
	d.closing.Store(true)
	d.stopTxWorker()
	d.wd.release(d)
}

func (d *Device) cleanupBus() {
	d.hifMu.Lock()
	d.bus.Cleanup()
	d.hifMu.Unlock()
	d.flushTx()
}

// ProcessInterrupt services a chip interrupt. Buses signalling interrupts
// in-band call it from their own interrupt context.
func (d *Device) ProcessInterrupt() {
	if d.closing.Load() {
		d.logerr("irq:closing")
		return
	}
	d.hifMu.Lock()
	d.bus.HandleInterrupt()
	d.hifMu.Unlock()
}
