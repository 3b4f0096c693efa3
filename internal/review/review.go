// Package review measures how emitted signals performed after the fact.
package review

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/newthinker/pitval/internal/core"
	"go.uber.org/zap"
)

// Status values of a reviewed row
const (
	StatusOK     = "ok"
	StatusNoData = "no_data"
	StatusError  = "error"
)

// SeriesSource supplies full daily histories by internal symbol
type SeriesSource interface {
	GetOrFetch(ctx context.Context, symbol string) (core.PriceSeries, error)
}

// Row is the forward performance of one signal. Optional fields are nil
// when no price followed the signal or the price never doubled.
type Row struct {
	Symbol       string
	Strategy     string
	SignalDate   time.Time
	EntryPrice   float64
	MaxAdjClose  *float64
	MaxDate      *time.Time
	MaxReturn    *float64
	DaysToMax    *int
	DoubleDate   *time.Time
	DaysToDouble *int
	Status       string
	Error        string
}

// EarliestSignals keeps the first signal per symbol by as-of date,
// ordered by symbol.
func EarliestSignals(signals []core.Signal) []core.Signal {
	first := make(map[string]core.Signal)
	for _, sig := range signals {
		cur, ok := first[sig.Symbol]
		if !ok || sig.AsOf.Before(cur.AsOf) {
			first[sig.Symbol] = sig
		}
	}

	out := make([]core.Signal, 0, len(first))
	for _, sig := range first {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// entryPrice is the adjusted close at the signal, or the raw close when
// the sink had no adjusted price.
func entryPrice(sig core.Signal) float64 {
	if sig.AdjPrice > 0 {
		return sig.AdjPrice
	}
	return sig.Price
}

// Evaluate computes forward metrics for sig over the rows of series dated
// strictly after the signal.
func Evaluate(sig core.Signal, series core.PriceSeries) Row {
	row := Row{
		Symbol:     sig.Symbol,
		Strategy:   sig.Strategy,
		SignalDate: core.Date(sig.AsOf),
		EntryPrice: entryPrice(sig),
		Status:     StatusOK,
	}

	after := series.After(sig.AsOf)
	if len(after) == 0 {
		row.Status = StatusNoData
		return row
	}

	// ties keep the earliest date
	best := after[0]
	for _, p := range after[1:] {
		if p.AdjClose > best.AdjClose {
			best = p
		}
	}
	row.MaxAdjClose = core.Float(best.AdjClose)
	row.MaxDate = &best.Date
	row.DaysToMax = days(row.SignalDate, best.Date)
	if row.EntryPrice > 0 {
		row.MaxReturn = core.Float((best.AdjClose - row.EntryPrice) / row.EntryPrice)

		target := 2 * row.EntryPrice
		for _, p := range after {
			if p.AdjClose >= target {
				d := p.Date
				row.DoubleDate = &d
				row.DaysToDouble = days(row.SignalDate, d)
				break
			}
		}
	}
	return row
}

func days(from, to time.Time) *int {
	n := int(to.Sub(from).Hours() / 24)
	return &n
}

// Reviewer evaluates signals against histories from a price source
type Reviewer struct {
	prices SeriesSource
	logger *zap.Logger
}

// New creates a reviewer
func New(prices SeriesSource, logger *zap.Logger) *Reviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{prices: prices, logger: logger}
}

// Review evaluates the earliest signal of every symbol. A failed fetch
// marks the row and moves on; only a cancelled context stops the review.
func (r *Reviewer) Review(ctx context.Context, signals []core.Signal) ([]Row, error) {
	earliest := EarliestSignals(signals)
	rows := make([]Row, 0, len(earliest))
	for _, sig := range earliest {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		series, err := r.prices.GetOrFetch(ctx, sig.Symbol)
		if err != nil {
			if ctx.Err() != nil {
				return rows, ctx.Err()
			}
			r.logger.Warn("review fetch failed", zap.String("symbol", sig.Symbol), zap.Error(err))
			rows = append(rows, Row{
				Symbol:     sig.Symbol,
				Strategy:   sig.Strategy,
				SignalDate: core.Date(sig.AsOf),
				EntryPrice: entryPrice(sig),
				Status:     StatusError,
				Error:      err.Error(),
			})
			continue
		}
		rows = append(rows, Evaluate(sig, series))
	}
	return rows, nil
}

// Header is the column layout written by WriteCSV
var Header = []string{
	"symbol", "strategy", "asof_date", "entry_price",
	"max_adj_close", "max_date", "max_return", "days_to_max",
	"double_date", "days_to_double", "status", "error",
}

// WriteCSV writes rows with a header
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(encode(row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes rows to path, replacing any existing file
func WriteFile(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating review file: %w", err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("writing review file: %w", err)
	}
	return f.Close()
}

func encode(r Row) []string {
	return []string{
		r.Symbol,
		r.Strategy,
		r.SignalDate.Format(core.DateLayout),
		strconv.FormatFloat(r.EntryPrice, 'f', -1, 64),
		optFloat(r.MaxAdjClose),
		optDate(r.MaxDate),
		optFloat(r.MaxReturn),
		optInt(r.DaysToMax),
		optDate(r.DoubleDate),
		optInt(r.DaysToDouble),
		r.Status,
		r.Error,
	}
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optDate(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.Format(core.DateLayout)
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
