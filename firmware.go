package wilc

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/soypat/wilc/wid"
)

// Firmware image names by chip variant.
const (
	FirmwareWILC1000 = "atmel/wilc1000_wifi_firmware.bin"
	FirmwareWILC3000 = "atmel/wilc3000_wifi_firmware.bin"
)

// FirmwareName returns the firmware image name for chip.
func FirmwareName(chip Chip) (string, bool) {
	switch chip {
	case ChipWILC1000:
		return FirmwareWILC1000, true
	case ChipWILC3000:
		return FirmwareWILC3000, true
	}
	return "", false
}

func (d *Device) loadFirmware() error {
	chip := d.bus.Chip()
	name, ok := FirmwareName(chip)
	if !ok {
		return fmt.Errorf("%w: no image for chip %s", ErrFirmwareUnavailable, chip)
	}
	d.debug("fw:load", slog.String("name", name))
	fw, err := d.fwFunc(name)
	if err != nil {
		return errjoin(ErrFirmwareUnavailable, err)
	} else if len(fw) == 0 {
		return fmt.Errorf("%w: empty image %q", ErrFirmwareUnavailable, name)
	}
	d.fw = fw
	return nil
}

func (d *Device) releaseFirmware() {
	d.fw = nil
}

func (d *Device) downloadFirmware() error {
	d.hifMu.Lock()
	defer d.hifMu.Unlock()
	d.debug("fw:download", slog.Int("len", len(d.fw)))
	return d.bus.Download(d.fw)
}

// startFirmware commands firmware execution and waits for the chip to
// indicate it is ready. The command lock is not held while waiting since the
// indication arrives through the interrupt path.
func (d *Device) startFirmware() error {
	d.hifMu.Lock()
	err := d.bus.Start()
	d.hifMu.Unlock()
	if err != nil {
		return err
	}
	timer := time.NewTimer(d.timing.startTimeout)
	defer timer.Stop()
	select {
	case <-d.ready:
		d.debug("fw:ready", slog.Int("status", int(d.macStatus.Load())))
		return nil
	case <-timer.C:
		return ErrStartTimeout
	}
}

func (d *Device) stopFirmware() {
	d.hifMu.Lock()
	err := d.bus.Stop()
	d.hifMu.Unlock()
	if err != nil {
		d.warn("fw:stop", slog.String("err", err.Error()))
	}
}

func (d *Device) logFirmwareVersion(vif int) {
	var buf [64]byte
	n, err := d.getAttr(vif, wid.FirmwareVersion, buf[:])
	if err != nil {
		d.warn("fw:version", slog.String("err", err.Error()))
		return
	}
	d.info("fw:version", slog.String("version", string(buf[:min(n, len(buf))])))
}
