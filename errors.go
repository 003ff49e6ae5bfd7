package wilc

import "errors"

var (
	ErrFirmwareUnavailable = errors.New("wilc: firmware unavailable")
	ErrStartTimeout        = errors.New("wilc: timeout waiting for firmware start")
	ErrConfigRejected      = errors.New("wilc: configuration attribute rejected")
	ErrIRQ                 = errors.New("wilc: interrupt registration failed")
	// ErrNoBuffers is returned by Bus.Tx when the device has no free
	// transmit buffers. The transmit worker retries after a backoff.
	ErrNoBuffers           = errors.New("wilc: device transmit buffers exhausted")
	ErrInvalidHardwareAddr = errors.New("wilc: invalid hardware address")
	ErrInvalidInterface    = errors.New("wilc: invalid interface index")
	ErrNotInitialized      = errors.New("wilc: device not initialized")

	errBusInit     = errors.New("wilc: bus init failed")
	errNilBus      = errors.New("wilc: nil Bus")
	errNilAttrs    = errors.New("wilc: nil AttrStore")
	errNilFirmware = errors.New("wilc: nil firmware accessor")
	errNilIRQLine  = errors.New("wilc: bus needs an IRQLine")
	errDuplicateHW = errors.New("wilc: hardware address in use by another interface")
)

// errjoin returns an error that wraps the given errors, discarding nil values.
func errjoin(errs ...error) error {
	return errors.Join(errs...)
}
