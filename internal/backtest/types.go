package backtest

import (
	"fmt"
	"time"

	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/strategy"
)

// EventKind distinguishes queued events
type EventKind int

const (
	EventMarket EventKind = iota
	EventSignal
)

func (k EventKind) String() string {
	switch k {
	case EventMarket:
		return "market"
	case EventSignal:
		return "signal"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one entry of the engine's FIFO queue. Observation is set for
// market events and Signal for signal events.
type Event struct {
	Kind        EventKind
	Observation core.MarketObservation
	Signal      core.Signal
}

// Summary holds the outcome of a run
type Summary struct {
	RunID        string
	Strategy     string
	StartedAt    time.Time
	FinishedAt   time.Time
	Observations int
	Signals      int
	Rejected     map[strategy.Rejection]int
	Symbols      int
}

// Duration is the wall time of the run
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// RejectedTotal sums rejections over all reasons
func (s Summary) RejectedTotal() int {
	var n int
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// SignalRate is the percentage of observations that produced a signal
func (s Summary) SignalRate() float64 {
	if s.Observations == 0 {
		return 0
	}
	return float64(s.Signals) / float64(s.Observations) * 100
}

// ObservationError ties a fatal run error to the observation that raised it
type ObservationError struct {
	Observation core.MarketObservation
	Err         error
}

func (e *ObservationError) Error() string {
	return fmt.Sprintf("%s period %s: %v", e.Observation.Symbol,
		e.Observation.Period().Format(core.DateLayout), e.Err)
}

func (e *ObservationError) Unwrap() error {
	return e.Err
}
