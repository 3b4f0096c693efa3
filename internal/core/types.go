package core

import (
	"sort"
	"time"
)

// DateLayout is the calendar date format used in files and logs
const DateLayout = "2006-01-02"

// MonthStart returns the first day of t's month at midnight UTC
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last calendar day of t's month at midnight UTC
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, -1)
}

// Date truncates t to a calendar date in UTC
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MarketObservation is one (symbol, period) pair from the period stream.
// PeriodBucket is the first day of the month in which a new report is
// believed available; it is an anchor, not a tradable date. PeriodEnd
// keeps the raw statement date the stream is ordered by.
type MarketObservation struct {
	Symbol       string
	PeriodBucket time.Time
	PeriodEnd    time.Time
}

// NewMarketObservation normalises periodEnd to its month bucket
func NewMarketObservation(symbol string, periodEnd time.Time) MarketObservation {
	return MarketObservation{Symbol: symbol, PeriodBucket: MonthStart(periodEnd), PeriodEnd: Date(periodEnd)}
}

// Period returns the raw period end, or the bucket when it is unknown
func (o MarketObservation) Period() time.Time {
	if o.PeriodEnd.IsZero() {
		return o.PeriodBucket
	}
	return o.PeriodEnd
}

// Contains reports whether d falls inside the observation's month
func (o MarketObservation) Contains(d time.Time) bool {
	d = Date(d)
	return !d.Before(o.PeriodBucket) && !d.After(MonthEnd(o.PeriodBucket))
}

// PricePoint is one daily bar of a price series
type PricePoint struct {
	Date     time.Time
	Close    float64
	AdjClose float64
}

// PriceSeries is an ascending daily series. An empty series is a valid
// value meaning the source had no data for the symbol.
type PriceSeries []PricePoint

// NewPriceSeries copies, sorts and de-duplicates points by date. When two
// points share a date the later one wins.
func NewPriceSeries(points []PricePoint) PriceSeries {
	out := make(PriceSeries, 0, len(points))
	for _, p := range points {
		p.Date = Date(p.Date)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	deduped := out[:0]
	for _, p := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Date.Equal(p.Date) {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped
}

// LastInMonth returns the latest point dated within monthStart's calendar month
func (s PriceSeries) LastInMonth(monthStart time.Time) (PricePoint, bool) {
	from := MonthStart(monthStart)
	to := MonthEnd(from)

	// first index strictly after the month end
	i := sort.Search(len(s), func(i int) bool { return s[i].Date.After(to) })
	if i == 0 {
		return PricePoint{}, false
	}
	last := s[i-1]
	if last.Date.Before(from) {
		return PricePoint{}, false
	}
	return last, true
}

// After returns the points dated strictly after d
func (s PriceSeries) After(d time.Time) PriceSeries {
	d = Date(d)
	i := sort.Search(len(s), func(i int) bool { return s[i].Date.After(d) })
	return s[i:]
}

// Action represents a trading signal action
type Action string

const (
	ActionBuy Action = "buy"
)

// Signal is a terminal buy decision for one observation. Optional
// quantities are nil when a strategy does not compute them.
type Signal struct {
	ID             string
	Symbol         string
	Action         Action
	Strategy       string
	PeriodBucket   time.Time
	AsOf           time.Time
	Price          float64
	AdjPrice       float64
	IntrinsicValue *float64
	BookPerShare   *float64
	RNOA           *float64
	MarginOfSafety *float64
	Shares         *float64
	Reason         string
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
