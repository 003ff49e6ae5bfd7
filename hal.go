package wilc

import "github.com/soypat/wilc/wid"

// BusKind identifies the host transport a WILC is attached through.
type BusKind uint8

const (
	// BusSPI is a SPI attached chip with a dedicated interrupt GPIO.
	BusSPI BusKind = iota
	// BusSDIO is an SDIO attached chip signalling interrupts in-band.
	BusSDIO
	// BusSDIOGPIOIRQ is an SDIO attached chip with an out-of-band interrupt GPIO.
	BusSDIOGPIOIRQ
)

func (k BusKind) String() string {
	switch k {
	case BusSPI:
		return "SPI"
	case BusSDIO:
		return "SDIO"
	case BusSDIOGPIOIRQ:
		return "SDIO+GPIO"
	}
	return "unknown"
}

// deferredIRQ reports whether interrupts arrive on a GPIO line that must be
// processed outside of the interrupt context.
func (k BusKind) deferredIRQ() bool { return k == BusSPI || k == BusSDIOGPIOIRQ }

// Chip is the WILC silicon variant.
type Chip uint8

const (
	ChipUnknown Chip = iota
	ChipWILC1000
	ChipWILC3000
)

func (c Chip) String() string {
	switch c {
	case ChipWILC1000:
		return "WILC1000"
	case ChipWILC3000:
		return "WILC3000"
	}
	return "unknown"
}

// Bus is the host interface layer of the chip: register access, firmware
// transfer and the packet framing path. Calls are serialized by the Device.
type Bus interface {
	Kind() BusKind
	// Chip returns the detected silicon variant. Valid after Init.
	Chip() Chip
	// Init resets transport state and probes the chip.
	Init() error
	// Cleanup discards transport state acquired since Init.
	Cleanup()
	EnableInterrupt() error
	DisableInterrupt()
	// HandleInterrupt reads interrupt status and data from the chip. It may
	// call back into the Device through DeliverFrame and MACIndicate.
	HandleInterrupt()
	Download(firmware []byte) error
	// Start commands firmware execution. The chip signals readiness through
	// an interrupt that ends in a call to Device.MACIndicate.
	Start() error
	Stop() error
	// Tx frames and hands a packet to the chip. It returns ErrNoBuffers when
	// the chip has no free transmit buffers.
	Tx(vif int, pkt []byte) error
	HardwareAddr(vif int) ([6]byte, error)
}

// IRQReturn is the result of the immediate stage of an interrupt handler.
type IRQReturn uint8

const (
	IRQNone IRQReturn = iota
	IRQHandled
	IRQWakeThread
)

// IRQLine is the host interrupt line the chip raises.
type IRQLine interface {
	// Request installs handler as the immediate interrupt handler and
	// enables the line. handler must not block.
	Request(handler func() IRQReturn) error
	// Disable masks the line. If wait is set Disable returns after any
	// running handler has completed.
	Disable(wait bool)
	// Free releases the line. No handler runs after Free returns.
	Free()
}

// AttrStore is the firmware configuration attribute channel.
type AttrStore interface {
	SetAttr(vif int, id wid.ID, val []byte) error
	// GetAttr reads attribute id into dst and returns the value length.
	GetAttr(vif int, id wid.ID, dst []byte) (int, error)
}

// FirmwareFunc returns the firmware image with the given name. It may block.
type FirmwareFunc func(name string) ([]byte, error)

// OutputPin drives a GPIO line. A nil OutputPin is ignored.
type OutputPin func(bool)

func (p OutputPin) set(level bool) {
	if p != nil {
		p(level)
	}
}
