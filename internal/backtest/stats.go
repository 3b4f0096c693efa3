package backtest

import (
	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/strategy"
)

// tally accumulates run counters as events are processed
type tally struct {
	observations int
	signals      int
	rejected     map[strategy.Rejection]int
	symbols      map[string]struct{}
}

func newTally() *tally {
	return &tally{
		rejected: make(map[strategy.Rejection]int),
		symbols:  make(map[string]struct{}),
	}
}

func (t *tally) observe(obs core.MarketObservation) {
	t.observations++
	t.symbols[obs.Symbol] = struct{}{}
}

func (t *tally) reject(r strategy.Rejection) {
	t.rejected[r]++
}

func (t *tally) signal() {
	t.signals++
}

// fill copies the counters into s
func (t *tally) fill(s *Summary) {
	s.Observations = t.observations
	s.Signals = t.signals
	s.Symbols = len(t.symbols)
	s.Rejected = make(map[strategy.Rejection]int, len(t.rejected))
	for r, n := range t.rejected {
		s.Rejected[r] = n
	}
}
