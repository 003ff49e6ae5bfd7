package wilc

import "sync"

// TxStatus is the outcome of a transmit request.
type TxStatus uint8

const (
	// TxSent means the packet was handed to the chip.
	TxSent TxStatus = iota
	// TxFailed means the bus rejected the packet.
	TxFailed
	// TxDropped means the packet was discarded without reaching the bus.
	TxDropped
)

func (s TxStatus) String() string {
	switch s {
	case TxSent:
		return "sent"
	case TxFailed:
		return "failed"
	case TxDropped:
		return "dropped"
	}
	return "unknown"
}

type txEntry struct {
	vif  int
	pkt  []byte
	done func(TxStatus)
}

// complete releases the entry. The packet is not referenced afterwards.
func (e *txEntry) complete(status TxStatus) {
	done := e.done
	e.pkt = nil
	e.done = nil
	if done != nil {
		done(status)
	}
}

// txQueue is the transmit queue shared by all interfaces of a Device.
// Enqueue and the worker serialize through mu. headMu serializes head
// insertions of entries the bus could not accept.
//
// The queue rejects entries until open is called and again after take, so no
// entry is left behind by a teardown flush.
type txQueue struct {
	headMu    sync.Mutex
	mu        sync.Mutex
	accepting bool
	entries   []*txEntry
}

// push appends e and returns the resulting queue depth. It returns false if
// the queue is not accepting entries.
func (q *txQueue) push(e *txEntry) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.accepting {
		return len(q.entries), false
	}
	q.entries = append(q.entries, e)
	return len(q.entries), true
}

func (q *txQueue) open() {
	q.mu.Lock()
	q.accepting = true
	q.mu.Unlock()
}

func (q *txQueue) pushFront(e *txEntry) {
	q.headMu.Lock()
	defer q.headMu.Unlock()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, nil)
	copy(q.entries[1:], q.entries)
	q.entries[0] = e
}

// pop removes the head entry. It returns nil if the queue is empty.
func (q *txQueue) pop() *txEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	e := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	if len(q.entries) == 0 {
		q.entries = q.entries[:0:0]
	}
	return e
}

func (q *txQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// take empties the queue, stops accepting entries and returns the entries.
func (q *txQueue) take() []*txEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.accepting = false
	entries := q.entries
	q.entries = nil
	return entries
}
