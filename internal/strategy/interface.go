// Package strategy defines the per-observation decision contract and the
// valuation strategies built on it.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/storage/timeseries"
)

// Rejection says why an observation produced no signal
type Rejection string

const (
	RejectNoPrice          Rejection = "no_price"
	RejectBelowMinPrice    Rejection = "below_min_price"
	RejectNotComputable    Rejection = "not_computable"
	RejectNonPositiveValue Rejection = "non_positive_value"
	RejectBelowThreshold   Rejection = "below_threshold"
	RejectMissingData      Rejection = "missing_statements"
	RejectConditionNotMet  Rejection = "condition_not_met"
)

// Decision is the outcome of one observation: a signal, or the reason
// there is none.
type Decision struct {
	Signal    *core.Signal
	Rejection Rejection
}

// Buy wraps a signal
func Buy(sig core.Signal) Decision {
	return Decision{Signal: &sig}
}

// Reject returns a no-signal decision
func Reject(r Rejection) Decision {
	return Decision{Rejection: r}
}

// Strategy decides on one observation at a time. Implementations must not
// read data dated after the as-of date they derive for the observation.
// A returned error aborts the run.
type Strategy interface {
	Name() string
	OnMarket(ctx context.Context, obs core.MarketObservation) (Decision, error)
}

// PriceLookup answers month-bounded price queries
type PriceLookup interface {
	LastCloseInMonth(ctx context.Context, symbol string, monthStart time.Time) (core.PricePoint, bool, error)
}

// Recorder receives one valuation record per evaluated observation
type Recorder interface {
	Append(ctx context.Context, rec timeseries.Record) error
}

// asOfPrice derives the as-of trading date for obs: the last priced day
// of its bucket month. ok is false when the month has no price.
func asOfPrice(ctx context.Context, prices PriceLookup, obs core.MarketObservation) (core.PricePoint, bool, error) {
	p, ok, err := prices.LastCloseInMonth(ctx, obs.Symbol, obs.PeriodBucket)
	if err != nil || !ok {
		return core.PricePoint{}, false, err
	}
	if !obs.Contains(p.Date) {
		return core.PricePoint{}, false, core.WrapError(core.ErrAsOfOutOfRange,
			fmt.Errorf("%s: as-of %s outside bucket %s", obs.Symbol,
				p.Date.Format(core.DateLayout), obs.PeriodBucket.Format(core.DateLayout)))
	}
	return p, true, nil
}
