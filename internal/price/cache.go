// Package price memoizes daily price series per internal symbol and
// answers point-in-time price queries against them.
package price

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/metrics"
	"github.com/newthinker/pitval/internal/storage/missing"
	"github.com/newthinker/pitval/internal/symbol"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Fetcher downloads the full daily history of one external symbol
type Fetcher interface {
	Name() string
	FetchDaily(ctx context.Context, external string) (core.PriceSeries, error)
}

// Resolver maps an internal symbol to external candidates
type Resolver interface {
	Resolve(ctx context.Context, raw string) (symbol.Resolution, error)
}

// RetryPolicy bounds fetch attempts per candidate. The wait before
// attempt n+1 is n*Backoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Cache holds at most one series per internal symbol for the lifetime of
// the process. An empty series is cached when every candidate failed and
// is never re-fetched.
type Cache struct {
	resolver Resolver
	fetcher  Fetcher
	retry    RetryPolicy
	logger   *zap.Logger
	missing  missing.Log
	metrics  *metrics.Registry
	sleep    func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	series map[string]core.PriceSeries
	group  singleflight.Group
}

// NewCache creates an empty cache
func NewCache(resolver Resolver, fetcher Fetcher, retry RetryPolicy, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		resolver: resolver,
		fetcher:  fetcher,
		retry:    retry,
		logger:   logger,
		sleep:    sleepCtx,
		series:   make(map[string]core.PriceSeries),
	}
}

// SetMissingLog sets where fully failed resolutions are recorded
func (c *Cache) SetMissingLog(l missing.Log) {
	c.missing = l
}

// SetMetrics sets the metrics registry
func (c *Cache) SetMetrics(m *metrics.Registry) {
	c.metrics = m
}

// Source returns the fetcher's name
func (c *Cache) Source() string {
	return c.fetcher.Name()
}

func (c *Cache) lookup(sym string) (core.PriceSeries, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.series[sym]
	return s, ok
}

// GetOrFetch returns the cached series for sym, fetching it on first use.
// Concurrent callers for the same symbol share one fetch. An error is
// returned only for failures outside the per-candidate retry loop, such as
// a failed listings lookup or a cancelled context; those are not cached.
func (c *Cache) GetOrFetch(ctx context.Context, sym string) (core.PriceSeries, error) {
	if s, ok := c.lookup(sym); ok {
		return s, nil
	}

	v, err, _ := c.group.Do(sym, func() (any, error) {
		if s, ok := c.lookup(sym); ok {
			return s, nil
		}
		s, err := c.fetch(ctx, sym)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.series[sym] = s
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(core.PriceSeries), nil
}

func (c *Cache) fetch(ctx context.Context, sym string) (core.PriceSeries, error) {
	res, err := c.resolver.Resolve(ctx, sym)
	if err != nil {
		return nil, err
	}

	for _, cand := range res.Candidates {
		s, ok, err := c.fetchCandidate(ctx, cand)
		if err != nil {
			return nil, err
		}
		if ok {
			c.logger.Debug("price series loaded",
				zap.String("symbol", sym),
				zap.String("candidate", cand),
				zap.Int("points", len(s)),
			)
			return s, nil
		}
	}

	c.logger.Warn("no price data for symbol",
		zap.String("symbol", sym),
		zap.String("key", res.Key),
		zap.Strings("candidates", res.Candidates),
	)
	c.metrics.RecordMissingSymbol()
	if c.missing != nil {
		entry := missing.Entry{
			Symbol:     sym,
			Key:        res.Key,
			Source:     c.fetcher.Name(),
			Candidates: res.Candidates,
		}
		if err := c.missing.Record(ctx, entry); err != nil {
			return nil, fmt.Errorf("recording missing symbol %s: %w", sym, err)
		}
	}
	return core.PriceSeries{}, nil
}

// fetchCandidate tries one external symbol with bounded retries. A false
// result means the candidate failed or had no data; the returned error is
// reserved for context cancellation.
func (c *Cache) fetchCandidate(ctx context.Context, cand string) (core.PriceSeries, bool, error) {
	source := c.fetcher.Name()
	n := c.retry.attempts()

	for attempt := 1; attempt <= n; attempt++ {
		s, err := c.fetcher.FetchDaily(ctx, cand)
		if err == nil {
			if len(s) == 0 {
				c.metrics.RecordFetchAttempt(source, "empty")
				return nil, false, nil
			}
			c.metrics.RecordFetchAttempt(source, "ok")
			return s, true, nil
		}

		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		c.metrics.RecordFetchAttempt(source, "error")
		c.logger.Debug("price fetch failed",
			zap.String("candidate", cand),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", n),
			zap.Error(err),
		)

		if attempt == n {
			break
		}
		if err := c.sleep(ctx, c.retry.Backoff*time.Duration(attempt)); err != nil {
			return nil, false, err
		}
	}
	return nil, false, nil
}

// LastCloseInMonth returns the latest point of sym's series dated inside
// monthStart's calendar month. ok is false when the series has no point
// in that month.
func (c *Cache) LastCloseInMonth(ctx context.Context, sym string, monthStart time.Time) (core.PricePoint, bool, error) {
	s, err := c.GetOrFetch(ctx, sym)
	if err != nil {
		return core.PricePoint{}, false, err
	}
	p, ok := s.LastInMonth(monthStart)
	return p, ok, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
