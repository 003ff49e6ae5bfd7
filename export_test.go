package wilc

// Test hooks for the external test package.

func (d *Device) FirmwareHeld() bool { return d.fw != nil }

func (d *Device) TxWorkerRunning() bool { return d.txDone != nil }

func (d *Device) TxQueueLen() int { return d.txq.len() }
