package signal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/newthinker/pitval/internal/core"
)

// Header is the column layout of the buy signal CSV
var Header = []string{
	"symbol", "asof_date", "period_bucket", "strategy", "price", "adj_price",
	"intrinsic_value", "book_per_share", "rnoa", "margin_of_safety", "shares", "reason",
}

// CSVSink appends one row per signal to a CSV file. The header is written
// only when the file is new or empty, so repeated runs append to it.
type CSVSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	path string
}

// NewCSVSink opens path for appending, creating parent directories
func NewCSVSink(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	s := &CSVSink{f: f, w: csv.NewWriter(f), path: path}
	if info.Size() == 0 {
		if err := s.w.Write(Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing header: %w", err)
		}
		s.w.Flush()
	}
	return s, nil
}

// Write appends and flushes one row
func (s *CSVSink) Write(ctx context.Context, sig core.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Write(encode(sig)); err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return errors.Join(s.w.Error(), s.f.Close())
}

func encode(sig core.Signal) []string {
	return []string{
		sig.Symbol,
		sig.AsOf.Format(core.DateLayout),
		sig.PeriodBucket.Format(core.DateLayout),
		sig.Strategy,
		formatFloat(sig.Price),
		formatFloat(sig.AdjPrice),
		formatOptional(sig.IntrinsicValue),
		formatOptional(sig.BookPerShare),
		formatOptional(sig.RNOA),
		formatOptional(sig.MarginOfSafety),
		formatOptional(sig.Shares),
		sig.Reason,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// ReadCSV loads every signal from a file written by CSVSink
func ReadCSV(path string) ([]core.Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeAll(f)
}

func decodeAll(r io.Reader) ([]core.Signal, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var out []core.Signal
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		sig, err := decode(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, sig)
	}
}

func decode(rec []string) (core.Signal, error) {
	var (
		sig = core.Signal{Symbol: rec[0], Strategy: rec[3], Action: core.ActionBuy, Reason: rec[11]}
		err error
	)
	if sig.AsOf, err = time.Parse(core.DateLayout, rec[1]); err != nil {
		return sig, fmt.Errorf("asof_date: %w", err)
	}
	if sig.PeriodBucket, err = time.Parse(core.DateLayout, rec[2]); err != nil {
		return sig, fmt.Errorf("period_bucket: %w", err)
	}
	if sig.Price, err = strconv.ParseFloat(rec[4], 64); err != nil {
		return sig, fmt.Errorf("price: %w", err)
	}
	if sig.AdjPrice, err = strconv.ParseFloat(rec[5], 64); err != nil {
		return sig, fmt.Errorf("adj_price: %w", err)
	}

	optional := []struct {
		dst  **float64
		col  int
		name string
	}{
		{&sig.IntrinsicValue, 6, "intrinsic_value"},
		{&sig.BookPerShare, 7, "book_per_share"},
		{&sig.RNOA, 8, "rnoa"},
		{&sig.MarginOfSafety, 9, "margin_of_safety"},
		{&sig.Shares, 10, "shares"},
	}
	for _, o := range optional {
		if rec[o.col] == "" {
			continue
		}
		v, err := strconv.ParseFloat(rec[o.col], 64)
		if err != nil {
			return sig, fmt.Errorf("%s: %w", o.name, err)
		}
		*o.dst = &v
	}
	return sig, nil
}
