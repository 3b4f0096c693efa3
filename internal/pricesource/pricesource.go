// Package pricesource holds the plumbing shared by the daily price
// sources: a rate-limited HTTP client and a tolerant CSV decoder.
package pricesource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/pitval/internal/config"
	"github.com/newthinker/pitval/internal/core"
	"golang.org/x/time/rate"
)

// maxBody caps a single response; a full daily history is well below it
const maxBody = 32 << 20

// ErrUnexpectedBody is returned for a body that is neither a price CSV nor
// a known no-data reply, such as a quota page.
var ErrUnexpectedBody = errors.New("unexpected response body")

// noDataBodies are the replies sources send for symbols they do not carry
var noDataBodies = map[string]bool{
	"no data": true,
}

// Client performs rate-limited GET requests
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a client from the price settings. A non-positive
// RequestsPerSecond disables limiting.
func NewClient(cfg config.PricesConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// StatusError is returned for non-200 responses
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Get waits for the limiter and returns the body of a 200 response
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "pitval/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, core.WrapError(core.ErrFetchFailed, &StatusError{Code: resp.StatusCode, URL: req.URL.Redacted()})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("reading body: %w", err))
	}
	return body, nil
}

// Columns names the CSV columns a source uses. AdjClose may be empty, in
// which case the close is used.
type Columns struct {
	Date       string
	Close      string
	AdjClose   string
	DateLayout string
}

// ParseCSV decodes a daily series with a header row. Rows with an
// unparseable date or close are skipped. An empty body or a known no-data
// reply is an empty series; any other body without the expected header
// is ErrUnexpectedBody.
func ParseCSV(r io.Reader, cols Columns) (core.PriceSeries, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return core.PriceSeries{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.Trim(h, "<> \uFEFF"))] = i
	}
	dateCol, ok1 := idx[strings.ToLower(cols.Date)]
	closeCol, ok2 := idx[strings.ToLower(cols.Close)]
	if !ok1 || !ok2 {
		first := strings.TrimSpace(strings.Trim(strings.Join(header, ","), "\ufeff"))
		if noDataBodies[strings.ToLower(first)] {
			return core.PriceSeries{}, nil
		}
		if len(first) > 80 {
			first = first[:80]
		}
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedBody, first)
	}
	adjCol, hasAdj := idx[strings.ToLower(cols.AdjClose)]
	if cols.AdjClose == "" {
		hasAdj = false
	}
	layout := cols.DateLayout
	if layout == "" {
		layout = core.DateLayout
	}

	var points []core.PricePoint
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return nil, err
		}
		if dateCol >= len(rec) || closeCol >= len(rec) {
			continue
		}

		d, err := time.Parse(layout, rec[dateCol])
		if err != nil {
			continue
		}
		closePx, err := strconv.ParseFloat(rec[closeCol], 64)
		if err != nil {
			continue
		}
		adj := closePx
		if hasAdj && adjCol < len(rec) {
			if v, err := strconv.ParseFloat(rec[adjCol], 64); err == nil {
				adj = v
			}
		}
		points = append(points, core.PricePoint{Date: d, Close: closePx, AdjClose: adj})
	}
	return core.NewPriceSeries(points), nil
}

// Since filters s to points on or after start. A zero start keeps all.
func Since(s core.PriceSeries, start time.Time) core.PriceSeries {
	if start.IsZero() {
		return s
	}
	return s.After(start.AddDate(0, 0, -1))
}
