// Package eodhd fetches end-of-day history from eodhd.com.
package eodhd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/newthinker/pitval/internal/config"
	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/pricesource"
)

const defaultBaseURL = "https://eodhd.com"

var columns = pricesource.Columns{Date: "Date", Close: "Close", AdjClose: "Adjusted_close"}

// EODHD implements a daily price source with split and dividend adjusted
// closes.
type EODHD struct {
	client  *pricesource.Client
	baseURL string
	apiKey  string
	start   time.Time
}

// New creates an EODHD source. cfg.APIKey is required.
func New(cfg config.PricesConfig, start time.Time) (*EODHD, error) {
	if cfg.APIKey == "" {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("eodhd api key not set"))
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &EODHD{
		client:  pricesource.NewClient(cfg),
		baseURL: strings.TrimSuffix(base, "/"),
		apiKey:  cfg.APIKey,
		start:   start,
	}, nil
}

func (e *EODHD) Name() string {
	return "eodhd"
}

// FetchDaily returns the daily series for an exchange-qualified symbol
// such as VOD.LSE. Unknown symbols (404) yield an empty series.
func (e *EODHD) FetchDaily(ctx context.Context, external string) (core.PriceSeries, error) {
	q := url.Values{}
	q.Set("api_token", e.apiKey)
	q.Set("fmt", "csv")
	q.Set("period", "d")
	if !e.start.IsZero() {
		q.Set("from", e.start.Format(core.DateLayout))
	}

	body, err := e.client.Get(ctx, fmt.Sprintf("%s/api/eod/%s?%s", e.baseURL, url.PathEscape(external), q.Encode()))
	if err != nil {
		var se *pricesource.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return core.PriceSeries{}, nil
		}
		return nil, err
	}
	series, err := pricesource.ParseCSV(bytes.NewReader(body), columns)
	if err != nil {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("decoding %s: %w", external, err))
	}
	return series, nil
}
