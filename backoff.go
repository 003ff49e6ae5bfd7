package wilc

import (
	"time"

	"golang.org/x/exp/constraints"
)

// Transmit backoff weight bounds. The worker sleeps unit<<weight after
// the chip runs out of transmit buffers.
const (
	txBackoffMin = 0
	txBackoffMax = 6
)

// txBackoff is the adaptive delay of the transmit worker. Only the worker
// goroutine touches it.
type txBackoff struct {
	weight int
}

func (b *txBackoff) delay(unit time.Duration) time.Duration { return unit << b.weight }

func (b *txBackoff) increase() { b.weight = clamp(b.weight+1, txBackoffMin, txBackoffMax) }

func (b *txBackoff) decay() { b.weight = clamp(b.weight-1, txBackoffMin, txBackoffMax) }

func clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	} else if v > hi {
		return hi
	}
	return v
}
