// Package simbus implements an in-memory WILC chip. It serves as the Bus,
// IRQLine and AttrStore of a wilc.Device for tests and simulation, with
// fault injection for every bring-up step.
package simbus

import (
	"bytes"
	"errors"
	"sync"

	"github.com/soypat/seqs/eth"
	"github.com/soypat/wilc"
	"github.com/soypat/wilc/wid"
	"golang.org/x/exp/constraints"
)

// Step identifies a chip operation that can be made to fail.
type Step uint8

const (
	StepInit Step = iota + 1
	StepIRQ
	StepEnableIRQ
	StepDownload
	StepStart
	// StepReady keeps the chip from indicating readiness after start.
	StepReady
	// StepMAC makes the chip report an all zero hardware address.
	StepMAC
	StepStop
)

// blockSize is the firmware download transfer unit.
const blockSize = 256

var (
	ErrInjected       = errors.New("simbus: injected failure")
	ErrRejected       = errors.New("simbus: attribute rejected")
	ErrCommandTimeout = errors.New("simbus: command response timeout")
	errNotStarted     = errors.New("simbus: firmware not running")
)

// Counters tallies chip operations.
type Counters struct {
	Inits, Cleanups       int
	IRQRequests, IRQFrees int
	Downloads, Blocks     int
	Starts, Stops         int
	Interrupts            int
	TxFrames, TxNoBufs    int
	Stalls                int
}

// Frame is a packet handed to the chip for transmission.
type Frame struct {
	Vif  int
	Data []byte
}

type rxEvent struct {
	vif   int
	frame []byte
	ready bool
}

// Chip is a simulated WILC chip.
type Chip struct {
	kind wilc.BusKind
	chip wilc.Chip

	mu        sync.Mutex
	host      *wilc.Device
	wd        *wilc.Watchdog
	fail      map[Step]error
	reject    map[wid.ID]bool
	attrs     map[attrKey][]byte
	attrLog   []wid.ID
	mac       [wilc.NumInterfaces][6]byte
	fwVersion string
	noBufs    int
	stall     int
	inited    bool
	running   bool
	chipIRQ   bool
	handler   func() wilc.IRQReturn
	lineOn    bool
	pending   []rxEvent
	sent      []Frame
	irqWG     sync.WaitGroup
	cnt       Counters
}

type attrKey struct {
	vif int
	id  wid.ID
}

var (
	_ wilc.Bus       = (*Chip)(nil)
	_ wilc.IRQLine   = (*Chip)(nil)
	_ wilc.AttrStore = (*Chip)(nil)
)

// New returns a powered chip of the given variant attached through kind.
func New(kind wilc.BusKind, chip wilc.Chip) *Chip {
	c := &Chip{
		kind:      kind,
		chip:      chip,
		fail:      make(map[Step]error),
		reject:    make(map[wid.ID]bool),
		attrs:     make(map[attrKey][]byte),
		fwVersion: "WILC_WIFI_FW_REL_16_1_2",
	}
	for i := range c.mac {
		c.mac[i] = [6]byte{0xf8, 0xf0, 0x05, 0x00, 0x00, byte(i + 1)}
	}
	return c
}

// Attach sets the Device the chip raises events to.
func (c *Chip) Attach(d *wilc.Device) {
	c.mu.Lock()
	c.host = d
	c.mu.Unlock()
}

// SetWatchdog sets the Watchdog notified of command timeouts.
func (c *Chip) SetWatchdog(w *wilc.Watchdog) {
	c.mu.Lock()
	c.wd = w
	c.mu.Unlock()
}

// Fail makes step fail with err. A nil err clears the fault.
func (c *Chip) Fail(step Step, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fail, step)
		return
	}
	c.fail[step] = err
}

// Reject makes the firmware reject writes to attribute id.
func (c *Chip) Reject(id wid.ID, reject bool) {
	c.mu.Lock()
	c.reject[id] = reject
	c.mu.Unlock()
}

// ExhaustBuffers makes the next n transmissions report no free buffers.
func (c *Chip) ExhaustBuffers(n int) {
	c.mu.Lock()
	c.noBufs = n
	c.mu.Unlock()
}

// Stall makes the next n attribute commands time out. Each timeout is
// reported to the Watchdog.
func (c *Chip) Stall(n int) {
	c.mu.Lock()
	c.stall = n
	c.mu.Unlock()
}

func (c *Chip) SetHardwareAddr(vif int, mac [6]byte) {
	c.mu.Lock()
	c.mac[vif] = mac
	c.mu.Unlock()
}

func (c *Chip) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cnt
}

// Sent returns the frames transmitted so far.
func (c *Chip) Sent() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.sent...)
}

// Attr returns the last value written to attribute id of interface vif.
func (c *Chip) Attr(vif int, id wid.ID) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.attrs[attrKey{vif, id}]
	return bytes.Clone(v), ok
}

// AttrLog returns the attribute ids written in order.
func (c *Chip) AttrLog() []wid.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wid.ID(nil), c.attrLog...)
}

// IRQRegistered reports whether an interrupt handler is installed.
func (c *Chip) IRQRegistered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

// Running reports whether the firmware is executing.
func (c *Chip) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// InjectRx queues a received frame on interface vif and raises an interrupt.
func (c *Chip) InjectRx(vif int, frame []byte) {
	c.mu.Lock()
	c.pending = append(c.pending, rxEvent{vif: vif, frame: bytes.Clone(frame)})
	c.mu.Unlock()
	c.raise()
}

// WaitIRQ waits for raised interrupts to be dispatched to the host.
func (c *Chip) WaitIRQ() { c.irqWG.Wait() }

// Bus implementation.

func (c *Chip) Kind() wilc.BusKind { return c.kind }

func (c *Chip) Chip() wilc.Chip { return c.chip }

func (c *Chip) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[StepInit]; err != nil {
		return err
	}
	c.cnt.Inits++
	c.inited = true
	c.pending = c.pending[:0]
	return nil
}

func (c *Chip) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cnt.Cleanups++
	c.inited = false
	c.running = false
}

func (c *Chip) EnableInterrupt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[StepEnableIRQ]; err != nil {
		return err
	}
	c.chipIRQ = true
	return nil
}

func (c *Chip) DisableInterrupt() {
	c.mu.Lock()
	c.chipIRQ = false
	c.mu.Unlock()
}

func (c *Chip) HandleInterrupt() {
	c.mu.Lock()
	c.cnt.Interrupts++
	events := c.pending
	c.pending = nil
	host := c.host
	c.mu.Unlock()
	if host == nil {
		return
	}
	for _, ev := range events {
		if ev.ready {
			host.MACIndicate(wilc.MACStatusReady)
			continue
		}
		host.DeliverFrame(ev.vif, ev.frame, 0, wilc.PktStatusNew)
	}
}

func (c *Chip) Download(firmware []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[StepDownload]; err != nil {
		return err
	}
	c.cnt.Downloads++
	c.cnt.Blocks += alignup(len(firmware), blockSize) / blockSize
	return nil
}

func (c *Chip) Start() error {
	c.mu.Lock()
	if err := c.fail[StepStart]; err != nil {
		c.mu.Unlock()
		return err
	}
	c.cnt.Starts++
	c.running = true
	signal := c.fail[StepReady] == nil
	if signal {
		c.pending = append(c.pending, rxEvent{ready: true})
	}
	c.mu.Unlock()
	if signal {
		c.raise()
	}
	return nil
}

func (c *Chip) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cnt.Stops++
	c.running = false
	return c.fail[StepStop]
}

func (c *Chip) Tx(vif int, pkt []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return errNotStarted
	}
	if c.noBufs > 0 {
		c.noBufs--
		c.cnt.TxNoBufs++
		return wilc.ErrNoBuffers
	}
	c.cnt.TxFrames++
	c.sent = append(c.sent, Frame{Vif: vif, Data: bytes.Clone(pkt)})
	return nil
}

func (c *Chip) HardwareAddr(vif int) ([6]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail[StepMAC] != nil {
		return [6]byte{}, nil
	}
	return c.mac[vif], nil
}

// IRQLine implementation.

func (c *Chip) Request(handler func() wilc.IRQReturn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[StepIRQ]; err != nil {
		return err
	}
	c.cnt.IRQRequests++
	c.handler = handler
	c.lineOn = true
	return nil
}

func (c *Chip) Disable(wait bool) {
	c.mu.Lock()
	c.lineOn = false
	c.mu.Unlock()
	if wait {
		c.irqWG.Wait()
	}
}

func (c *Chip) Free() {
	c.mu.Lock()
	if c.handler != nil {
		c.cnt.IRQFrees++
	}
	c.handler = nil
	c.lineOn = false
	c.mu.Unlock()
	c.irqWG.Wait()
}

// raise signals an interrupt from a separate goroutine, as the hardware would.
func (c *Chip) raise() {
	c.irqWG.Add(1)
	go func() {
		defer c.irqWG.Done()
		c.mu.Lock()
		handler, on := c.handler, c.lineOn
		host, chipIRQ := c.host, c.chipIRQ
		c.mu.Unlock()
		if c.kind == wilc.BusSDIO {
			if chipIRQ && host != nil {
				host.ProcessInterrupt()
			}
			return
		}
		if on && handler != nil {
			handler()
		}
	}()
}

// AttrStore implementation.

func (c *Chip) SetAttr(vif int, id wid.ID, val []byte) error {
	if err := c.command(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reject[id] {
		return ErrRejected
	}
	c.attrs[attrKey{vif, id}] = bytes.Clone(val)
	c.attrLog = append(c.attrLog, id)
	return nil
}

func (c *Chip) GetAttr(vif int, id wid.ID, dst []byte) (int, error) {
	if err := c.command(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == wid.FirmwareVersion {
		return copy(dst, c.fwVersion), nil
	}
	v, ok := c.attrs[attrKey{vif, id}]
	if !ok {
		return 0, ErrRejected
	}
	return copy(dst, v), nil
}

// command checks the firmware can answer a command. Stalled commands are
// reported to the watchdog.
func (c *Chip) command() error {
	c.mu.Lock()
	running, stalled, wd := c.running, c.stall > 0, c.wd
	if running && stalled {
		c.stall--
		c.cnt.Stalls++
	}
	c.mu.Unlock()
	switch {
	case !running:
		return errNotStarted
	case stalled:
		if wd != nil {
			wd.CommandTimedOut()
		}
		return ErrCommandTimeout
	}
	return nil
}

// EAPOLFrame returns an 802.1X frame from src to dst with the given body.
func EAPOLFrame(dst, src [6]byte, body []byte) []byte {
	hdr := eth.EthernetHeader{
		Destination:     dst,
		Source:          src,
		SizeOrEtherType: uint16(eth.EtherTypeIEEE802_1X),
	}
	buf := make([]byte, 14+len(body))
	hdr.Put(buf)
	copy(buf[14:], body)
	return buf
}

// IPv4Frame returns an Ethernet frame carrying an IPv4 payload.
func IPv4Frame(dst, src [6]byte, payload []byte) []byte {
	hdr := eth.EthernetHeader{
		Destination:     dst,
		Source:          src,
		SizeOrEtherType: uint16(eth.EtherTypeIPv4),
	}
	buf := make([]byte, 14+len(payload))
	hdr.Put(buf)
	copy(buf[14:], payload)
	return buf
}

func alignup[T constraints.Integer](v, align T) T {
	return (v + align - 1) / align * align
}
