package wilc

import "time"

// power drives the chip enable and reset lines. Powering on raises chip
// enable before releasing reset. Powering off asserts reset first.
func (d *Device) power(on bool) {
	if on {
		d.chipEn.set(true)
		time.Sleep(d.timing.powerSettle)
		d.reset.set(true)
		return
	}
	d.reset.set(false)
	d.chipEn.set(false)
}

func (d *Device) powerOn() {
	d.debug("power:on")
	d.power(false)
	time.Sleep(d.timing.powerSettle)
	d.power(true)
}

func (d *Device) powerOff() {
	d.debug("power:off")
	d.power(false)
}
