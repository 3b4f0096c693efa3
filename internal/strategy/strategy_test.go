package strategy

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/fundamentals"
	"github.com/newthinker/pitval/internal/storage/timeseries"
	"github.com/newthinker/pitval/internal/valuation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(core.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// staticPrices serves fixed series without fetching
type staticPrices map[string]core.PriceSeries

func (s staticPrices) LastCloseInMonth(ctx context.Context, symbol string, monthStart time.Time) (core.PricePoint, bool, error) {
	p, ok := s[symbol].LastInMonth(monthStart)
	return p, ok, nil
}

// badPrices returns a point outside the requested month
type badPrices struct{}

func (badPrices) LastCloseInMonth(ctx context.Context, symbol string, monthStart time.Time) (core.PricePoint, bool, error) {
	return core.PricePoint{Date: monthStart.AddDate(0, 1, 3), Close: 10}, true, nil
}

// countingStore counts fundamentals lookups
type countingStore struct {
	fundamentals.Store
	calls atomic.Int64
}

func (c *countingStore) IncomeQuarters(ctx context.Context, symbol string, asOf time.Time, limit int) ([]fundamentals.IncomeQuarter, error) {
	c.calls.Add(1)
	return c.Store.IncomeQuarters(ctx, symbol, asOf, limit)
}

func (c *countingStore) BalanceQuarters(ctx context.Context, symbol string, asOf time.Time) ([]fundamentals.BalanceQuarter, error) {
	c.calls.Add(1)
	return c.Store.BalanceQuarters(ctx, symbol, asOf)
}

// memoryRecorder collects time-series records
type memoryRecorder struct {
	records []timeseries.Record
}

func (m *memoryRecorder) Append(ctx context.Context, rec timeseries.Record) error {
	m.records = append(m.records, rec)
	return nil
}

// seed stores the worked example: total equity value 2300 divided over
// shares, with statements dated up to 2023-12-31.
func seed(m *fundamentals.MemoryStore, symbol string, shares, b0 float64) {
	for i, end := range []string{"2023-12-31", "2023-09-30", "2023-06-30", "2023-03-31"} {
		q := fundamentals.IncomeQuarter{
			PeriodEnd:       date(end),
			OperatingIncome: core.Float(100),
			NetIncome:       core.Float(70),
		}
		if i == 0 {
			q.SharesDiluted = core.Float(shares)
		}
		m.AddIncome(symbol, q)
	}
	ends := []string{
		"2023-12-31", "2023-09-30", "2023-06-30", "2023-03-31",
		"2022-12-31", "2022-09-30", "2022-06-30", "2022-03-31",
	}
	for i, end := range ends {
		noa := 99999.0
		switch i + 1 {
		case 4:
			noa = 1500
		case 8:
			noa = 2500
		}
		m.AddBalance(symbol, fundamentals.BalanceQuarter{
			PeriodEnd:          date(end),
			NetOperatingAssets: core.Float(noa),
			TotalEquity:        core.Float(b0),
		})
	}
}

func priceAt(d string, closePx float64) core.PriceSeries {
	return core.NewPriceSeries([]core.PricePoint{
		{Date: date(d).AddDate(0, 0, -1), Close: closePx * 2, AdjClose: closePx * 2},
		{Date: date(d), Close: closePx, AdjClose: closePx * 0.9},
		{Date: date(d).AddDate(0, 0, 3), Close: closePx * 3, AdjClose: closePx * 3},
	})
}

type fixture struct {
	store    *countingStore
	records  *memoryRecorder
	strategy *PenmanTTM
}

func newPenman(t *testing.T, prices PriceLookup, seedFn func(*fundamentals.MemoryStore)) fixture {
	t.Helper()
	m := fundamentals.NewMemoryStore()
	if seedFn != nil {
		seedFn(m)
	}
	store := &countingStore{Store: m}
	engine, err := valuation.NewEngine(store, valuation.Params{WACC: 0.10, TaxRate: 0.30}, nil)
	require.NoError(t, err)
	rec := &memoryRecorder{}
	s := NewPenmanTTM(PenmanConfig{MarginOfSafety: 0.5, MinPrice: 0.01}, prices, engine, rec, nil)
	s.SetRun("run-1", nil)
	return fixture{store: store, records: rec, strategy: s}
}

var janObs = core.MarketObservation{Symbol: "ACME:US", PeriodBucket: date("2024-01-01")}

func TestPenman_SignalFiresAboveThreshold(t *testing.T) {
	// 2300 / 143.75 = 16.00 per share against a 15.00 threshold
	f := newPenman(t, staticPrices{"ACME:US": priceAt("2024-01-31", 10)},
		func(m *fundamentals.MemoryStore) { seed(m, "ACME:US", 143.75, 1500) })

	d, err := f.strategy.OnMarket(context.Background(), janObs)
	require.NoError(t, err)
	require.NotNil(t, d.Signal, string(d.Rejection))

	sig := d.Signal
	assert.Equal(t, "ACME:US", sig.Symbol)
	assert.Equal(t, core.ActionBuy, sig.Action)
	assert.Equal(t, date("2024-01-31"), sig.AsOf)
	assert.Equal(t, date("2024-01-01"), sig.PeriodBucket)
	assert.Equal(t, 10.0, sig.Price)
	assert.Equal(t, 9.0, sig.AdjPrice)
	assert.InDelta(t, 16.0, *sig.IntrinsicValue, 1e-9)
	assert.InDelta(t, 1500/143.75, *sig.BookPerShare, 1e-9)
	assert.Equal(t, 0.5, *sig.MarginOfSafety)
	assert.Equal(t, 143.75, *sig.Shares)
	require.NotNil(t, sig.RNOA)
	assert.Equal(t, "Penman TTM as-of 2024-01-31: value=16.00 >= close=10.00 * (1+MOS 50%)", sig.Reason)

	require.Len(t, f.records.records, 1)
	rec := f.records.records[0]
	assert.True(t, rec.Signal)
	assert.Equal(t, "run-1", rec.RunID)
	require.NotNil(t, rec.Result)
	assert.InDelta(t, 2300.0, rec.Result.EquityValueTotal, 1e-6)
	assert.Equal(t, valuation.Params{WACC: 0.10, TaxRate: 0.30}, rec.Params)
}

func TestPenman_NoSignalBelowThreshold(t *testing.T) {
	// 2300 / (2300/14) = 14.00 per share against a 15.00 threshold
	f := newPenman(t, staticPrices{"ACME:US": priceAt("2024-01-31", 10)},
		func(m *fundamentals.MemoryStore) { seed(m, "ACME:US", 2300.0/14, 1500) })

	d, err := f.strategy.OnMarket(context.Background(), janObs)
	require.NoError(t, err)
	assert.Nil(t, d.Signal)
	assert.Equal(t, RejectBelowThreshold, d.Rejection)

	// the evaluated observation is still recorded
	require.Len(t, f.records.records, 1)
	assert.False(t, f.records.records[0].Signal)
	assert.NotNil(t, f.records.records[0].Result)
}

func TestPenman_PennyFilterSkipsFundamentals(t *testing.T) {
	f := newPenman(t, staticPrices{"ACME:US": priceAt("2024-01-31", 0.005)},
		func(m *fundamentals.MemoryStore) { seed(m, "ACME:US", 1, 1500) })

	d, err := f.strategy.OnMarket(context.Background(), janObs)
	require.NoError(t, err)
	assert.Equal(t, RejectBelowMinPrice, d.Rejection)
	assert.Zero(t, f.store.calls.Load())
	assert.Empty(t, f.records.records)
}

func TestPenman_NoPriceSkipsFundamentals(t *testing.T) {
	f := newPenman(t, staticPrices{}, nil)

	d, err := f.strategy.OnMarket(context.Background(), janObs)
	require.NoError(t, err)
	assert.Equal(t, RejectNoPrice, d.Rejection)
	assert.Zero(t, f.store.calls.Load())
}

func TestPenman_AsOfOutsideBucketIsFatal(t *testing.T) {
	f := newPenman(t, badPrices{}, nil)

	_, err := f.strategy.OnMarket(context.Background(), janObs)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAsOfOutOfRange)
	assert.True(t, core.IsInvariantViolation(err))
	assert.Zero(t, f.store.calls.Load())
}

func TestPenman_NotComputableIsRecorded(t *testing.T) {
	f := newPenman(t, staticPrices{"ACME:US": priceAt("2024-01-31", 10)}, nil)

	d, err := f.strategy.OnMarket(context.Background(), janObs)
	require.NoError(t, err)
	assert.Equal(t, RejectNotComputable, d.Rejection)
	require.Len(t, f.records.records, 1)
	assert.Nil(t, f.records.records[0].Result)
	assert.Equal(t, string(valuation.ReasonIrregularCadence), f.records.records[0].Reason)
}

func TestPenman_NonPositiveValue(t *testing.T) {
	f := newPenman(t, staticPrices{"ACME:US": priceAt("2024-01-31", 10)},
		func(m *fundamentals.MemoryStore) { seed(m, "ACME:US", 100, -5000) })

	d, err := f.strategy.OnMarket(context.Background(), janObs)
	require.NoError(t, err)
	assert.Equal(t, RejectNonPositiveValue, d.Rejection)
}

func TestPenman_UsesOnlyDataBeforeAsOf(t *testing.T) {
	// a later quarter exists but the as-of date is January 2024
	f := newPenman(t, staticPrices{"ACME:US": priceAt("2024-01-31", 10)},
		func(m *fundamentals.MemoryStore) {
			seed(m, "ACME:US", 143.75, 1500)
			m.AddIncome("ACME:US", fundamentals.IncomeQuarter{
				PeriodEnd:       date("2024-03-31"),
				OperatingIncome: core.Float(-1e9),
				SharesDiluted:   core.Float(1),
			})
		})

	d, err := f.strategy.OnMarket(context.Background(), janObs)
	require.NoError(t, err)
	require.NotNil(t, d.Signal)
	assert.InDelta(t, 16.0, *d.Signal.IntrinsicValue, 1e-9)
}

func TestSimpleFundamental(t *testing.T) {
	m := fundamentals.NewMemoryStore()
	seed(m, "GOOD:US", 100, 1500)
	seed(m, "BAD:US", 100, -1)
	prices := staticPrices{
		"GOOD:US":  priceAt("2024-01-31", 10),
		"BAD:US":   priceAt("2024-01-31", 10),
		"EMPTY:US": priceAt("2024-01-31", 10),
		"PENNY:US": priceAt("2024-01-31", 0.001),
	}
	s := NewSimpleFundamental(prices, m, 0.01)
	assert.Equal(t, SimpleFundamentalName, s.Name())
	ctx := context.Background()
	bucket := date("2024-01-01")

	d, err := s.OnMarket(ctx, core.MarketObservation{Symbol: "GOOD:US", PeriodBucket: bucket})
	require.NoError(t, err)
	require.NotNil(t, d.Signal)
	assert.Equal(t, "net_income=70.00>0 and equity=1500.00>0 as-of 2024-01-31", d.Signal.Reason)
	assert.Equal(t, 15.0, *d.Signal.BookPerShare)

	d, err = s.OnMarket(ctx, core.MarketObservation{Symbol: "BAD:US", PeriodBucket: bucket})
	require.NoError(t, err)
	assert.Equal(t, RejectConditionNotMet, d.Rejection)

	d, err = s.OnMarket(ctx, core.MarketObservation{Symbol: "EMPTY:US", PeriodBucket: bucket})
	require.NoError(t, err)
	assert.Equal(t, RejectMissingData, d.Rejection)

	d, err = s.OnMarket(ctx, core.MarketObservation{Symbol: "PENNY:US", PeriodBucket: bucket})
	require.NoError(t, err)
	assert.Equal(t, RejectBelowMinPrice, d.Rejection)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(NewSimpleFundamental(staticPrices{}, fundamentals.NewMemoryStore(), 0))
	f := newPenman(t, staticPrices{}, nil)
	r.Register(f.strategy)

	assert.Equal(t, []string{PenmanTTMName, SimpleFundamentalName}, r.Names())

	s, err := r.Select(PenmanTTMName)
	require.NoError(t, err)
	assert.Equal(t, PenmanTTMName, s.Name())

	_, err = r.Select("pe_band")
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}
