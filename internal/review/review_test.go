package review

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newthinker/pitval/internal/core"
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

func series(points ...core.PricePoint) core.PriceSeries {
	return core.NewPriceSeries(points)
}

func pt(d string, adj float64) core.PricePoint {
	return core.PricePoint{Date: date(d), Close: adj, AdjClose: adj}
}

type fakeSource struct {
	series map[string]core.PriceSeries
	errs   map[string]error
}

func (f fakeSource) GetOrFetch(ctx context.Context, symbol string) (core.PriceSeries, error) {
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	return f.series[symbol], nil
}

func TestEarliestSignals(t *testing.T) {
	got := EarliestSignals([]core.Signal{
		{Symbol: "BBB:US", AsOf: date("2021-05-31")},
		{Symbol: "AAA:US", AsOf: date("2022-01-31")},
		{Symbol: "BBB:US", AsOf: date("2020-02-28")},
		{Symbol: "AAA:US", AsOf: date("2021-07-30")},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "AAA:US", got[0].Symbol)
	assert.Equal(t, date("2021-07-30"), got[0].AsOf)
	assert.Equal(t, "BBB:US", got[1].Symbol)
	assert.Equal(t, date("2020-02-28"), got[1].AsOf)
}

func TestEvaluate(t *testing.T) {
	sig := core.Signal{Symbol: "AAA:US", AsOf: date("2020-01-31"), Price: 12, AdjPrice: 10}
	s := series(
		pt("2020-01-31", 99), // the signal day itself is excluded
		pt("2020-02-10", 15),
		pt("2020-03-01", 21),
		pt("2020-04-01", 25),
		pt("2020-05-01", 25),
		pt("2020-06-01", 18),
	)

	row := Evaluate(sig, s)
	assert.Equal(t, StatusOK, row.Status)
	assert.Equal(t, 10.0, row.EntryPrice)
	require.NotNil(t, row.MaxAdjClose)
	assert.Equal(t, 25.0, *row.MaxAdjClose)
	assert.Equal(t, date("2020-04-01"), *row.MaxDate)
	assert.InDelta(t, 1.5, *row.MaxReturn, 1e-12)
	assert.Equal(t, 61, *row.DaysToMax)
	require.NotNil(t, row.DoubleDate)
	assert.Equal(t, date("2020-03-01"), *row.DoubleDate)
	assert.Equal(t, 30, *row.DaysToDouble)
}

func TestEvaluate_NeverDoubles(t *testing.T) {
	sig := core.Signal{Symbol: "AAA:US", AsOf: date("2020-01-31"), Price: 10}
	row := Evaluate(sig, series(pt("2020-02-03", 11), pt("2020-02-04", 19.99)))

	assert.Equal(t, 10.0, row.EntryPrice)
	assert.Equal(t, 19.99, *row.MaxAdjClose)
	assert.Nil(t, row.DoubleDate)
	assert.Nil(t, row.DaysToDouble)
}

func TestEvaluate_NoLaterPrices(t *testing.T) {
	sig := core.Signal{Symbol: "AAA:US", AsOf: date("2020-01-31"), AdjPrice: 10}
	row := Evaluate(sig, series(pt("2020-01-02", 11)))

	assert.Equal(t, StatusNoData, row.Status)
	assert.Nil(t, row.MaxAdjClose)
	assert.Nil(t, row.MaxReturn)
	assert.Nil(t, row.DaysToMax)
}

func TestReviewer_Review(t *testing.T) {
	src := fakeSource{
		series: map[string]core.PriceSeries{"AAA:US": series(pt("2020-02-03", 30))},
		errs:   map[string]error{"BAD:US": errors.New("listings lookup failed")},
	}
	rows, err := New(src, nil).Review(context.Background(), []core.Signal{
		{Symbol: "BAD:US", AsOf: date("2020-01-31"), AdjPrice: 5},
		{Symbol: "AAA:US", AsOf: date("2020-01-31"), AdjPrice: 10},
		{Symbol: "AAA:US", AsOf: date("2020-06-30"), AdjPrice: 20},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "AAA:US", rows[0].Symbol)
	assert.Equal(t, StatusOK, rows[0].Status)
	assert.Equal(t, 2.0, *rows[0].MaxReturn)

	assert.Equal(t, "BAD:US", rows[1].Symbol)
	assert.Equal(t, StatusError, rows[1].Status)
	assert.Equal(t, "listings lookup failed", rows[1].Error)
}

func TestReviewer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(fakeSource{}, nil).Review(ctx, []core.Signal{{Symbol: "AAA:US"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteCSV(t *testing.T) {
	rows := []Row{
		Evaluate(core.Signal{Symbol: "AAA:US", Strategy: "penman_ttm", AsOf: date("2020-01-31"), AdjPrice: 10},
			series(pt("2020-03-01", 20))),
		{Symbol: "BBB:US", SignalDate: date("2020-01-31"), EntryPrice: 1, Status: StatusNoData},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, Header, recs[0])
	assert.Equal(t, []string{
		"AAA:US", "penman_ttm", "2020-01-31", "10",
		"20", "2020-03-01", "1", "30",
		"2020-03-01", "30", "ok", "",
	}, recs[1])
	assert.Equal(t, []string{
		"BBB:US", "", "2020-01-31", "1",
		"", "", "", "",
		"", "", "no_data", "",
	}, recs[2])
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "review.csv")
	require.NoError(t, WriteFile(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "symbol,strategy,asof_date,entry_price,max_adj_close,max_date,max_return,days_to_max,double_date,days_to_double,status,error\n", string(data))
}
