// Package timeseries keeps one valuation record per evaluated observation,
// partitioned by symbol, for later auditing.
package timeseries

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/storage/archive"
	"github.com/newthinker/pitval/internal/valuation"
)

// Record is one evaluated observation. Result is nil when the valuation
// was not computable, in which case Reason says why.
type Record struct {
	RunID        string            `json:"run_id"`
	Strategy     string            `json:"strategy"`
	Symbol       string            `json:"symbol"`
	AsOf         time.Time         `json:"asof_date"`
	PeriodBucket time.Time         `json:"period_bucket"`
	Close        float64           `json:"close"`
	AdjClose     float64           `json:"adj_close"`
	Params       valuation.Params  `json:"params"`
	Result       *valuation.Result `json:"result,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Signal       bool              `json:"signal"`
}

// Store appends records as individual JSON part files under
// <dataset>/symbol=<symbol>/.
type Store struct {
	storage archive.Storage
	dataset string
	now     func() time.Time
}

// NewStore creates a store writing into dataset
func NewStore(storage archive.Storage, dataset string) (*Store, error) {
	if dataset == "" || strings.Contains(dataset, "/") {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("invalid dataset name %q", dataset))
	}
	return &Store{storage: storage, dataset: dataset, now: time.Now}, nil
}

// Dataset returns the dataset name
func (s *Store) Dataset() string {
	return s.dataset
}

func (s *Store) partition(symbol string) string {
	return path.Join(s.dataset, "symbol="+url.PathEscape(symbol))
}

// Append writes rec as a new part file. Existing parts are never touched.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if rec.Symbol == "" {
		return fmt.Errorf("record has no symbol")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	key := path.Join(s.partition(rec.Symbol),
		fmt.Sprintf("part-%d-%s.json", s.now().UnixNano(), uuid.NewString()))
	if err := s.storage.Write(ctx, key, data); err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}
	return nil
}

// Read returns all records for symbol ordered by as-of date, oldest first
func (s *Store) Read(ctx context.Context, symbol string) ([]Record, error) {
	keys, err := s.storage.List(ctx, s.partition(symbol)+"/")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", symbol, err)
	}

	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		if path.Ext(key) != ".json" {
			continue
		}
		data, err := s.storage.Read(ctx, key)
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", key, err)
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].AsOf.Before(out[j].AsOf) })
	return out, nil
}

// Symbols lists the symbols that have at least one record
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	keys, err := s.storage.List(ctx, s.dataset+"/")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	for _, key := range keys {
		parts := strings.Split(key, "/")
		if len(parts) < 3 || !strings.HasPrefix(parts[1], "symbol=") {
			continue
		}
		sym, err := url.PathUnescape(strings.TrimPrefix(parts[1], "symbol="))
		if err != nil || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}
