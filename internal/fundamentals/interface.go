// Package fundamentals provides point-in-time access to quarterly
// statements and the ordered stream of reporting periods.
package fundamentals

import (
	"context"
	"io"
	"time"

	"github.com/newthinker/pitval/internal/core"
)

// IncomeQuarter is one income-statement row. Nil fields were NULL.
type IncomeQuarter struct {
	PeriodEnd       time.Time
	OperatingIncome *float64
	NetIncome       *float64
	SharesDiluted   *float64
}

// BalanceQuarter is one balance-sheet row. Nil fields were NULL.
type BalanceQuarter struct {
	PeriodEnd          time.Time
	NetOperatingAssets *float64
	TotalEquity        *float64
}

// Store answers as-of queries. Every returned row must have
// PeriodEnd <= asOf; rows are ordered newest first.
type Store interface {
	// IncomeQuarters returns at most limit income quarters.
	IncomeQuarters(ctx context.Context, symbol string, asOf time.Time, limit int) ([]IncomeQuarter, error)

	// BalanceQuarters returns all balance-sheet quarters.
	BalanceQuarters(ctx context.Context, symbol string, asOf time.Time) ([]BalanceQuarter, error)
}

// StreamFilter restricts the period stream
type StreamFilter struct {
	Symbols []string
	From    time.Time
}

// Stream yields observations ordered by period then symbol. Next returns
// io.EOF once exhausted.
type Stream interface {
	Next(ctx context.Context) (core.MarketObservation, error)
	Close() error
}

// StreamSource opens period streams
type StreamSource interface {
	Open(ctx context.Context, filter StreamFilter) (Stream, error)
}

// SliceStream replays a fixed list of observations in the given order
type SliceStream struct {
	obs []core.MarketObservation
	pos int
}

// NewSliceStream creates a stream over obs without reordering them
func NewSliceStream(obs []core.MarketObservation) *SliceStream {
	return &SliceStream{obs: obs}
}

func (s *SliceStream) Next(ctx context.Context) (core.MarketObservation, error) {
	if err := ctx.Err(); err != nil {
		return core.MarketObservation{}, err
	}
	if s.pos >= len(s.obs) {
		return core.MarketObservation{}, io.EOF
	}
	o := s.obs[s.pos]
	s.pos++
	return o, nil
}

func (s *SliceStream) Close() error { return nil }
