package price

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/storage/missing"
	"github.com/newthinker/pitval/internal/symbol"
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

// fakeFetcher serves fixed series and fails a candidate a set number of
// times before succeeding.
type fakeFetcher struct {
	mu       sync.Mutex
	series   map[string]core.PriceSeries
	failures map[string]int
	calls    map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		series:   make(map[string]core.PriceSeries),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) FetchDaily(ctx context.Context, external string) (core.PriceSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[external]++
	if f.failures[external] > 0 {
		f.failures[external]--
		return nil, errors.New("connection reset")
	}
	return f.series[external], nil
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func series() core.PriceSeries {
	return core.NewPriceSeries([]core.PricePoint{
		{Date: date("2023-02-27"), Close: 9, AdjClose: 8.5},
		{Date: date("2023-03-30"), Close: 10, AdjClose: 9.5},
		{Date: date("2023-03-31"), Close: 11, AdjClose: 10.5},
		{Date: date("2023-04-03"), Close: 12, AdjClose: 11.5},
	})
}

func newCache(f *fakeFetcher, retry RetryPolicy) (*Cache, *[]time.Duration) {
	c := NewCache(symbol.NewResolver(symbol.Stooq, nil, nil), f, retry, nil)
	var waits []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

func TestCache_FirstNonEmptyCandidateWins(t *testing.T) {
	f := newFakeFetcher()
	// AAPL:US resolves to [AAPL, AAPL.US]; the bare ticker has no data
	f.series["AAPL.US"] = series()
	c, _ := newCache(f, RetryPolicy{MaxAttempts: 3})

	s, err := c.GetOrFetch(context.Background(), "AAPL:US")
	require.NoError(t, err)
	assert.Len(t, s, 4)
	assert.Equal(t, 1, f.calls["AAPL"])
	assert.Equal(t, 1, f.calls["AAPL.US"])
}

func TestCache_FetchesAtMostOncePerSymbol(t *testing.T) {
	f := newFakeFetcher()
	f.series["AAPL"] = series()
	c, _ := newCache(f, RetryPolicy{MaxAttempts: 3})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrFetch(ctx, "AAPL:US")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		_, _, err := c.LastCloseInMonth(ctx, "AAPL:US", date("2023-03-01"))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.total())
}

func TestCache_RetriesWithLinearBackoff(t *testing.T) {
	f := newFakeFetcher()
	f.series["MULT.DE"] = series()
	f.failures["MULT.DE"] = 2
	c, waits := newCache(f, RetryPolicy{MaxAttempts: 3, Backoff: time.Second})

	s, err := c.GetOrFetch(context.Background(), "MULT.DE")
	require.NoError(t, err)
	assert.NotEmpty(t, s)
	assert.Equal(t, 3, f.calls["MULT.DE"])
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestCache_ExhaustedRetriesMoveToNextCandidate(t *testing.T) {
	f := newFakeFetcher()
	f.failures["AAPL"] = 10
	f.series["AAPL.US"] = series()
	c, waits := newCache(f, RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond})

	s, err := c.GetOrFetch(context.Background(), "AAPL:US")
	require.NoError(t, err)
	assert.NotEmpty(t, s)
	assert.Equal(t, 2, f.calls["AAPL"])
	assert.Len(t, *waits, 1)
}

func TestCache_AllCandidatesFailCachesEmpty(t *testing.T) {
	f := newFakeFetcher()
	f.failures["AAPL"] = 10
	c, _ := newCache(f, RetryPolicy{MaxAttempts: 2})
	log := &missing.MemoryLog{}
	c.SetMissingLog(log)
	ctx := context.Background()

	s, err := c.GetOrFetch(ctx, "AAPL:US")
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Empty(t, s)
	calls := f.total()

	// terminal negative result: no further network access
	_, ok, err := c.LastCloseInMonth(ctx, "AAPL:US", date("2023-03-01"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, calls, f.total())

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, missing.Entry{
		Symbol:     "AAPL:US",
		Key:        ":US",
		Source:     "fake",
		Candidates: []string{"AAPL", "AAPL.US"},
	}, entries[0])
}

func TestCache_UnresolvableSymbolIsMissing(t *testing.T) {
	f := newFakeFetcher()
	c, _ := newCache(f, RetryPolicy{MaxAttempts: 3})
	log := &missing.MemoryLog{}
	c.SetMissingLog(log)

	s, err := c.GetOrFetch(context.Background(), "XYZ:QQ")
	require.NoError(t, err)
	assert.Empty(t, s)
	assert.Equal(t, 0, f.total())
	require.Len(t, log.Entries(), 1)
	assert.Empty(t, log.Entries()[0].Candidates)
}

func TestCache_LastCloseInMonth(t *testing.T) {
	f := newFakeFetcher()
	f.series["AAPL"] = series()
	c, _ := newCache(f, RetryPolicy{MaxAttempts: 1})
	ctx := context.Background()

	p, ok, err := c.LastCloseInMonth(ctx, "AAPL:US", date("2023-03-01"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, date("2023-03-31"), p.Date)
	assert.Equal(t, 11.0, p.Close)

	again, ok2, err := c.LastCloseInMonth(ctx, "AAPL:US", date("2023-03-01"))
	require.NoError(t, err)
	assert.Equal(t, ok, ok2)
	assert.Equal(t, p, again)

	_, ok, err = c.LastCloseInMonth(ctx, "AAPL:US", date("2023-01-01"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_CancelledContextIsNotCached(t *testing.T) {
	f := newFakeFetcher()
	f.failures["AAPL"] = 1
	f.series["AAPL"] = series()
	c := NewCache(symbol.NewResolver(symbol.Stooq, nil, nil), f, RetryPolicy{MaxAttempts: 3, Backoff: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	_, err := c.GetOrFetch(ctx, "AAPL:US")
	assert.ErrorIs(t, err, context.Canceled)

	c.sleep = func(context.Context, time.Duration) error { return nil }
	s, err := c.GetOrFetch(context.Background(), "AAPL:US")
	require.NoError(t, err)
	assert.NotEmpty(t, s)
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepCtx(context.Background(), 0))
}
