// Package stooq fetches daily price history from stooq.com, either over
// HTTP or from the bulk download archive.
package stooq

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/newthinker/pitval/internal/config"
	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/pricesource"
)

const defaultBaseURL = "https://stooq.com"

var columns = pricesource.Columns{Date: "Date", Close: "Close"}

// Stooq downloads daily CSV history. Stooq has no adjusted close, so
// AdjClose equals Close.
type Stooq struct {
	client  *pricesource.Client
	baseURL string
	start   time.Time
}

// New creates a Stooq source
func New(cfg config.PricesConfig, start time.Time) *Stooq {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Stooq{
		client:  pricesource.NewClient(cfg),
		baseURL: strings.TrimSuffix(base, "/"),
		start:   start,
	}
}

func (s *Stooq) Name() string {
	return "stooq"
}

// FetchDaily returns the full daily series for an external symbol such as
// AAPL.US. An unknown symbol yields an empty series.
func (s *Stooq) FetchDaily(ctx context.Context, external string) (core.PriceSeries, error) {
	q := url.Values{}
	q.Set("s", strings.ToLower(external))
	q.Set("i", "d")
	if !s.start.IsZero() {
		q.Set("d1", s.start.Format("20060102"))
		q.Set("d2", time.Now().UTC().Format("20060102"))
	}

	body, err := s.client.Get(ctx, fmt.Sprintf("%s/q/d/l/?%s", s.baseURL, q.Encode()))
	if err != nil {
		return nil, err
	}
	series, err := pricesource.ParseCSV(bytes.NewReader(body), columns)
	if err != nil {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("decoding %s: %w", external, err))
	}
	return series, nil
}
