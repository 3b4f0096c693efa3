package valuation

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/fundamentals"
	"go.uber.org/zap"
)

// Engine loads point-in-time snapshots from a fundamentals store and
// values them.
type Engine struct {
	store  fundamentals.Store
	params Params
	logger *zap.Logger
}

// NewEngine creates a valuation engine
func NewEngine(store fundamentals.Store, params Params, logger *zap.Logger) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, params: params, logger: logger}, nil
}

// Params returns the engine's valuation parameters
func (e *Engine) Params() Params {
	return e.params
}

// Snapshot loads the statement rows visible on asOf. A row dated after
// asOf is an ErrLookAhead violation.
func (e *Engine) Snapshot(ctx context.Context, symbol string, asOf time.Time) (Snapshot, error) {
	income, err := e.store.IncomeQuarters(ctx, symbol, asOf, incomeQuarters)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading income quarters for %s: %w", symbol, err)
	}
	balance, err := e.store.BalanceQuarters(ctx, symbol, asOf)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading balance quarters for %s: %w", symbol, err)
	}

	for _, q := range income {
		if q.PeriodEnd.After(asOf) {
			return Snapshot{}, lookAhead(symbol, "income", q.PeriodEnd, asOf)
		}
	}
	for _, q := range balance {
		if q.PeriodEnd.After(asOf) {
			return Snapshot{}, lookAhead(symbol, "balance", q.PeriodEnd, asOf)
		}
	}

	return Snapshot{AsOf: asOf, Income: income, Balance: balance}, nil
}

// Value loads the snapshot for symbol on asOf and computes it. Data gaps
// produce a not-computable valuation, never an error.
func (e *Engine) Value(ctx context.Context, symbol string, asOf time.Time) (Valuation, error) {
	s, err := e.Snapshot(ctx, symbol, asOf)
	if err != nil {
		return Valuation{}, err
	}

	v := Compute(s, e.params)
	if _, ok := v.Result(); !ok {
		e.logger.Debug("valuation not computable",
			zap.String("symbol", symbol),
			zap.Time("asof", asOf),
			zap.String("reason", string(v.Reason())),
		)
	}
	return v, nil
}

func lookAhead(symbol, table string, periodEnd, asOf time.Time) error {
	return core.WrapError(core.ErrLookAhead, fmt.Errorf("%s row for %s dated %s after as-of %s",
		table, symbol, periodEnd.Format(core.DateLayout), asOf.Format(core.DateLayout)))
}
