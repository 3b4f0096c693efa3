// Package signal persists emitted buy signals.
package signal

import (
	"context"
	"time"

	"github.com/newthinker/pitval/internal/core"
)

// Sink receives signals in emission order. Writes are append-only.
type Sink interface {
	Write(ctx context.Context, signal core.Signal) error
	Close() error
}

// ListFilter selects signals by symbol, strategy and as-of range. Zero
// fields match everything.
type ListFilter struct {
	Symbol   string
	Strategy string
	From     time.Time // inclusive, on AsOf
	To       time.Time // inclusive, on AsOf
}

func (f ListFilter) matches(sig core.Signal) bool {
	if f.Symbol != "" && sig.Symbol != f.Symbol {
		return false
	}
	if f.Strategy != "" && sig.Strategy != f.Strategy {
		return false
	}
	if !f.From.IsZero() && sig.AsOf.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && sig.AsOf.After(f.To) {
		return false
	}
	return true
}

// Filter returns the signals matching f in their original order
func Filter(signals []core.Signal, f ListFilter) []core.Signal {
	var out []core.Signal
	for _, sig := range signals {
		if !f.matches(sig) {
			continue
		}
		out = append(out, sig)
	}
	return out
}
