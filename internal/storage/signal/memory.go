package signal

import (
	"context"
	"fmt"
	"sync"

	"github.com/newthinker/pitval/internal/core"
)

// MemorySink keeps signals in memory, assigning sequential IDs.
type MemorySink struct {
	mu      sync.RWMutex
	signals []core.Signal
	counter int64
}

// NewMemorySink creates an empty sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends a signal, assigning an ID when it has none.
func (m *MemorySink) Write(ctx context.Context, signal core.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	if signal.ID == "" {
		signal.ID = fmt.Sprintf("sig_%d", m.counter)
	}
	m.signals = append(m.signals, signal)
	return nil
}

// Signals returns a copy of the signals in write order.
func (m *MemorySink) Signals() []core.Signal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.Signal(nil), m.signals...)
}

func (m *MemorySink) Close() error { return nil }
