package fundamentals

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/pitval/internal/core"
)

// MemoryStore keeps statements in memory. It implements Store and
// StreamSource; the stream is derived from balance-sheet periods the same
// way the Postgres source does it.
type MemoryStore struct {
	mu      sync.RWMutex
	income  map[string][]IncomeQuarter
	balance map[string][]BalanceQuarter
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		income:  make(map[string][]IncomeQuarter),
		balance: make(map[string][]BalanceQuarter),
	}
}

// AddIncome adds income quarters for symbol
func (m *MemoryStore) AddIncome(symbol string, rows ...IncomeQuarter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.income[symbol] = append(m.income[symbol], rows...)
}

// AddBalance adds balance-sheet quarters for symbol
func (m *MemoryStore) AddBalance(symbol string, rows ...BalanceQuarter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance[symbol] = append(m.balance[symbol], rows...)
}

func (m *MemoryStore) IncomeQuarters(ctx context.Context, symbol string, asOf time.Time, limit int) ([]IncomeQuarter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []IncomeQuarter
	for _, r := range m.income[symbol] {
		if !r.PeriodEnd.After(asOf) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PeriodEnd.After(out[j].PeriodEnd) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) BalanceQuarters(ctx context.Context, symbol string, asOf time.Time) ([]BalanceQuarter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []BalanceQuarter
	for _, r := range m.balance[symbol] {
		if !r.PeriodEnd.After(asOf) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PeriodEnd.After(out[j].PeriodEnd) })
	return out, nil
}

// Open streams balance-sheet periods ascending by date then symbol
func (m *MemoryStore) Open(ctx context.Context, filter StreamFilter) (Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type row struct {
		symbol string
		period time.Time
	}
	var rows []row
	for sym, qs := range m.balance {
		if len(filter.Symbols) > 0 && !slices.Contains(filter.Symbols, sym) {
			continue
		}
		for _, q := range qs {
			if !filter.From.IsZero() && q.PeriodEnd.Before(filter.From) {
				continue
			}
			rows = append(rows, row{symbol: sym, period: q.PeriodEnd})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].period.Equal(rows[j].period) {
			return rows[i].period.Before(rows[j].period)
		}
		return rows[i].symbol < rows[j].symbol
	})

	obs := make([]core.MarketObservation, len(rows))
	for i, r := range rows {
		obs[i] = core.NewMarketObservation(r.symbol, r.period)
	}
	return NewSliceStream(obs), nil
}
