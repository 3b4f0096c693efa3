package strategy

import (
	"context"
	"fmt"

	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/metrics"
	"github.com/newthinker/pitval/internal/storage/timeseries"
	"github.com/newthinker/pitval/internal/valuation"
	"go.uber.org/zap"
)

// PenmanTTMName is the registry name of the Penman TTM strategy
const PenmanTTMName = "penman_ttm"

// PenmanConfig holds the signal thresholds. Valuation inputs live in the
// valuation engine.
type PenmanConfig struct {
	MarginOfSafety float64 // buy when value >= close*(1+MarginOfSafety)
	MinPrice       float64 // closes below this are rejected outright
}

// PenmanTTM values each observation as of the last priced day of its
// bucket month and signals when the per-share value clears the margin of
// safety.
type PenmanTTM struct {
	cfg     PenmanConfig
	prices  PriceLookup
	engine  *valuation.Engine
	records Recorder
	runID   string
	metrics *metrics.Registry
	logger  *zap.Logger
}

// NewPenmanTTM creates the strategy. records may be nil.
func NewPenmanTTM(cfg PenmanConfig, prices PriceLookup, engine *valuation.Engine, records Recorder, logger *zap.Logger) *PenmanTTM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PenmanTTM{
		cfg:     cfg,
		prices:  prices,
		engine:  engine,
		records: records,
		logger:  logger,
	}
}

// SetRun tags time-series records with a run ID and wires metrics
func (p *PenmanTTM) SetRun(runID string, m *metrics.Registry) {
	p.runID = runID
	p.metrics = m
}

func (p *PenmanTTM) Name() string {
	return PenmanTTMName
}

func (p *PenmanTTM) OnMarket(ctx context.Context, obs core.MarketObservation) (Decision, error) {
	px, ok, err := asOfPrice(ctx, p.prices, obs)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Reject(RejectNoPrice), nil
	}
	if px.Close < p.cfg.MinPrice {
		return Reject(RejectBelowMinPrice), nil
	}

	v, err := p.engine.Value(ctx, obs.Symbol, px.Date)
	if err != nil {
		return Decision{}, err
	}

	rec := timeseries.Record{
		RunID:        p.runID,
		Strategy:     PenmanTTMName,
		Symbol:       obs.Symbol,
		AsOf:         px.Date,
		PeriodBucket: obs.PeriodBucket,
		Close:        px.Close,
		AdjClose:     px.AdjClose,
		Params:       p.engine.Params(),
	}

	d := p.decide(obs, px, v)
	if r, ok := v.Result(); ok {
		rec.Result = &r
	} else {
		rec.Reason = string(v.Reason())
		p.metrics.RecordNotComputable(string(v.Reason()))
	}
	rec.Signal = d.Signal != nil

	if p.records != nil {
		if err := p.records.Append(ctx, rec); err != nil {
			return Decision{}, fmt.Errorf("recording valuation for %s: %w", obs.Symbol, err)
		}
	}
	return d, nil
}

func (p *PenmanTTM) decide(obs core.MarketObservation, px core.PricePoint, v valuation.Valuation) Decision {
	r, ok := v.Result()
	if !ok {
		return Reject(RejectNotComputable)
	}
	value := r.EquityValuePerShare
	if value <= 0 {
		return Reject(RejectNonPositiveValue)
	}

	threshold := px.Close * (1 + p.cfg.MarginOfSafety)
	if value < threshold {
		return Reject(RejectBelowThreshold)
	}

	p.logger.Debug("penman signal",
		zap.String("symbol", obs.Symbol),
		zap.Time("asof", px.Date),
		zap.Float64("value", value),
		zap.Float64("threshold", threshold),
	)
	return Buy(core.Signal{
		Symbol:         obs.Symbol,
		Action:         core.ActionBuy,
		Strategy:       PenmanTTMName,
		PeriodBucket:   obs.PeriodBucket,
		AsOf:           px.Date,
		Price:          px.Close,
		AdjPrice:       px.AdjClose,
		IntrinsicValue: core.Float(value),
		BookPerShare:   core.Float(r.BookPerShare()),
		RNOA:           r.RNOA,
		MarginOfSafety: core.Float(p.cfg.MarginOfSafety),
		Shares:         core.Float(r.SharesDiluted),
		Reason: fmt.Sprintf("Penman TTM as-of %s: value=%.2f >= close=%.2f * (1+MOS %.0f%%)",
			px.Date.Format(core.DateLayout), value, px.Close, p.cfg.MarginOfSafety*100),
	})
}
