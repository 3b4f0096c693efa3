package strategy

import (
	"context"
	"fmt"

	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/fundamentals"
)

// SimpleFundamentalName is the registry name of SimpleFundamental
const SimpleFundamentalName = "simple_fundamental"

// SimpleFundamental signals when the latest statements as of the derived
// trading date show positive net income and positive equity.
type SimpleFundamental struct {
	prices   PriceLookup
	store    fundamentals.Store
	minPrice float64
}

// NewSimpleFundamental creates the strategy
func NewSimpleFundamental(prices PriceLookup, store fundamentals.Store, minPrice float64) *SimpleFundamental {
	return &SimpleFundamental{prices: prices, store: store, minPrice: minPrice}
}

func (s *SimpleFundamental) Name() string {
	return SimpleFundamentalName
}

func (s *SimpleFundamental) OnMarket(ctx context.Context, obs core.MarketObservation) (Decision, error) {
	px, ok, err := asOfPrice(ctx, s.prices, obs)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Reject(RejectNoPrice), nil
	}
	if px.Close < s.minPrice {
		return Reject(RejectBelowMinPrice), nil
	}

	income, err := s.store.IncomeQuarters(ctx, obs.Symbol, px.Date, 1)
	if err != nil {
		return Decision{}, err
	}
	balance, err := s.store.BalanceQuarters(ctx, obs.Symbol, px.Date)
	if err != nil {
		return Decision{}, err
	}
	if len(income) == 0 || len(balance) == 0 {
		return Reject(RejectMissingData), nil
	}
	is, bs := income[0], balance[0]
	if is.PeriodEnd.After(px.Date) || bs.PeriodEnd.After(px.Date) {
		return Decision{}, core.WrapError(core.ErrLookAhead,
			fmt.Errorf("%s: statement dated after as-of %s", obs.Symbol, px.Date.Format(core.DateLayout)))
	}
	if is.NetIncome == nil || bs.TotalEquity == nil {
		return Reject(RejectMissingData), nil
	}
	if *is.NetIncome <= 0 || *bs.TotalEquity <= 0 {
		return Reject(RejectConditionNotMet), nil
	}

	sig := core.Signal{
		Symbol:       obs.Symbol,
		Action:       core.ActionBuy,
		Strategy:     SimpleFundamentalName,
		PeriodBucket: obs.PeriodBucket,
		AsOf:         px.Date,
		Price:        px.Close,
		AdjPrice:     px.AdjClose,
		Reason: fmt.Sprintf("net_income=%.2f>0 and equity=%.2f>0 as-of %s",
			*is.NetIncome, *bs.TotalEquity, px.Date.Format(core.DateLayout)),
	}
	if is.SharesDiluted != nil && *is.SharesDiluted > 0 {
		sig.Shares = core.Float(*is.SharesDiluted)
		sig.BookPerShare = core.Float(*bs.TotalEquity / *is.SharesDiluted)
	}
	return Buy(sig), nil
}
