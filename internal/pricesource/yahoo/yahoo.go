// Package yahoo fetches daily history from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/newthinker/pitval/internal/config"
	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/pricesource"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// validSymbol matches symbols like AAPL, BRK-B, 600519.SS, 0700.HK, VOD.L
var validSymbol = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-]{0,11}(\.[A-Za-z]{1,4})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Yahoo implements a daily price source over the chart API
type Yahoo struct {
	client  *pricesource.Client
	baseURL string
	start   time.Time
}

// New creates a Yahoo source
func New(cfg config.PricesConfig, start time.Time) *Yahoo {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Yahoo{
		client:  pricesource.NewClient(cfg),
		baseURL: strings.TrimSuffix(base, "/"),
		start:   start,
	}
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

// FetchDaily fetches the daily series from start to now. Malformed and
// unknown symbols yield an empty series.
func (y *Yahoo) FetchDaily(ctx context.Context, external string) (core.PriceSeries, error) {
	sym := external
	if err := validateSymbol(sym); err != nil {
		return core.PriceSeries{}, nil
	}

	period1 := y.start
	if period1.IsZero() {
		period1 = time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC)
	}
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", fmt.Sprint(period1.Unix()))
	q.Set("period2", fmt.Sprint(time.Now().Unix()))
	q.Set("events", "div,splits")

	body, err := y.client.Get(ctx, fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(sym), q.Encode()))
	if err != nil {
		var se *pricesource.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return core.PriceSeries{}, nil
		}
		return nil, err
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("decoding response: %w", err))
	}
	if result.Chart.Error != nil {
		if result.Chart.Error.Code == "Not Found" {
			return core.PriceSeries{}, nil
		}
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("yahoo error: %s", result.Chart.Error.Description))
	}
	if len(result.Chart.Result) == 0 {
		return core.PriceSeries{}, nil
	}

	return toSeries(result.Chart.Result[0]), nil
}

func toSeries(r chartResult) core.PriceSeries {
	if len(r.Indicators.Quote) == 0 {
		return core.PriceSeries{}
	}
	closes := r.Indicators.Quote[0].Close
	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}

	loc := r.Meta.location()
	points := make([]core.PricePoint, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // Skip missing data
		}
		p := core.PricePoint{
			Date:     time.Unix(ts, 0).In(loc),
			Close:    *closes[i],
			AdjClose: *closes[i],
		}
		if i < len(adj) && adj[i] != nil {
			p.AdjClose = *adj[i]
		}
		points = append(points, p)
	}
	return core.NewPriceSeries(points)
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta  `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type chartMeta struct {
	ExchangeTimezoneName string `json:"exchangeTimezoneName"`
	GMTOffset            int    `json:"gmtoffset"`
}

// location is the exchange's time zone. Bar timestamps mark the session
// open, which falls on the previous UTC day for markets east of UTC+10.
func (m chartMeta) location() *time.Location {
	if m.ExchangeTimezoneName != "" {
		if loc, err := time.LoadLocation(m.ExchangeTimezoneName); err == nil {
			return loc
		}
	}
	return time.FixedZone("", m.GMTOffset)
}

type indicators struct {
	Quote    []quoteIndicator `json:"quote"`
	AdjClose []adjIndicator   `json:"adjclose"`
}

type quoteIndicator struct {
	Close []*float64 `json:"close"`
}

type adjIndicator struct {
	AdjClose []*float64 `json:"adjclose"`
}
