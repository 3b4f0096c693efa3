// Package valuation computes the trailing-twelve-month Penman residual
// income valuation of a company as of a given trading date.
package valuation

import (
	"fmt"
	"time"

	"github.com/newthinker/pitval/internal/fundamentals"
)

const (
	// incomeQuarters is the number of income quarters summed into TTM EBIT
	incomeQuarters = 4

	// NOA is averaged over the balance-sheet rows at these ranks (1 = latest)
	noaRankNear = 4
	noaRankFar  = 8
)

// Params are the valuation inputs that do not come from statements
type Params struct {
	WACC    float64 `json:"wacc"`
	TaxRate float64 `json:"tax_rate"`
}

// Validate checks that params can produce a finite valuation
func (p Params) Validate() error {
	if p.WACC <= 0 {
		return fmt.Errorf("wacc must be positive, got %v", p.WACC)
	}
	if p.TaxRate < 0 || p.TaxRate >= 1 {
		return fmt.Errorf("tax rate must be in [0,1), got %v", p.TaxRate)
	}
	return nil
}

// Snapshot holds the statement rows used for one valuation. Income and
// Balance are ordered newest first and must all be dated <= AsOf.
type Snapshot struct {
	AsOf    time.Time
	Income  []fundamentals.IncomeQuarter
	Balance []fundamentals.BalanceQuarter
}

// Result is a fully computed valuation. RNOA is nil when the average NOA
// is not positive.
type Result struct {
	EquityValuePerShare float64  `json:"equity_value_per_share"`
	EquityValueTotal    float64  `json:"equity_value_total"`
	SharesDiluted       float64  `json:"shares_diluted"`
	ResidualEarnings    float64  `json:"residual_earnings"`
	NetOperatingProfit  float64  `json:"net_operating_profit"`
	RNOA                *float64 `json:"rnoa"`
	AvgNOA              float64  `json:"avg_noa"`
	BookEquity          float64  `json:"book_equity"`
}

// BookPerShare returns book equity divided by diluted shares
func (r Result) BookPerShare() float64 {
	return r.BookEquity / r.SharesDiluted
}

// Reason explains why a valuation could not be computed
type Reason string

const (
	ReasonIrregularCadence Reason = "irregular_cadence"
	ReasonMissingEBIT      Reason = "missing_operating_income"
	ReasonMissingNOA       Reason = "missing_noa"
	ReasonMissingEquity    Reason = "missing_book_equity"
	ReasonMissingShares    Reason = "missing_shares"
)

// Valuation is either a computed Result or a not-computable outcome.
// The zero value is not computable.
type Valuation struct {
	result *Result
	reason Reason
}

// Computed wraps a result
func Computed(r Result) Valuation {
	return Valuation{result: &r}
}

// NotComputable records why no valuation exists
func NotComputable(reason Reason) Valuation {
	return Valuation{reason: reason}
}

// Result returns the computed result and true, or false when the
// valuation was not computable.
func (v Valuation) Result() (Result, bool) {
	if v.result == nil {
		return Result{}, false
	}
	return *v.result, true
}

// Reason is empty for computed valuations
func (v Valuation) Reason() Reason {
	if v.result != nil {
		return ""
	}
	return v.reason
}

func (v Valuation) String() string {
	if r, ok := v.Result(); ok {
		return fmt.Sprintf("computed(%.4f/share)", r.EquityValuePerShare)
	}
	return fmt.Sprintf("not_computable(%s)", v.Reason())
}

// ValidCadence reports whether income holds exactly four quarters whose
// newest and oldest fall at most one calendar year apart. Issuers that
// file yearly into the quarterly table fail this check.
func ValidCadence(income []fundamentals.IncomeQuarter) bool {
	if len(income) != incomeQuarters {
		return false
	}
	newest := income[0].PeriodEnd
	oldest := income[len(income)-1].PeriodEnd
	return newest.Year()-oldest.Year() <= 1
}

// Compute values a snapshot. It has no side effects and returns the same
// valuation for the same inputs.
func Compute(s Snapshot, p Params) Valuation {
	if !ValidCadence(s.Income) {
		return NotComputable(ReasonIrregularCadence)
	}

	var ebit float64
	for _, q := range s.Income {
		if q.OperatingIncome == nil {
			return NotComputable(ReasonMissingEBIT)
		}
		ebit += *q.OperatingIncome
	}

	avgNOA, ok := averageNOA(s.Balance)
	if !ok {
		return NotComputable(ReasonMissingNOA)
	}

	if len(s.Balance) == 0 || s.Balance[0].TotalEquity == nil {
		return NotComputable(ReasonMissingEquity)
	}
	b0 := *s.Balance[0].TotalEquity

	shares := s.Income[0].SharesDiluted
	if shares == nil || *shares <= 0 {
		return NotComputable(ReasonMissingShares)
	}

	nopat := ebit * (1 - p.TaxRate)
	re := nopat - p.WACC*avgNOA
	total := b0 + re/(1+p.WACC) + re/((1+p.WACC)*p.WACC)

	r := Result{
		EquityValuePerShare: total / *shares,
		EquityValueTotal:    total,
		SharesDiluted:       *shares,
		ResidualEarnings:    re,
		NetOperatingProfit:  nopat,
		AvgNOA:              avgNOA,
		BookEquity:          b0,
	}
	if avgNOA > 0 {
		rnoa := nopat / avgNOA
		r.RNOA = &rnoa
	}
	return Computed(r)
}

// averageNOA averages NOA over the rows ranked 4 and 8, skipping ranks
// that are absent or NULL. It fails when neither contributes.
func averageNOA(balance []fundamentals.BalanceQuarter) (float64, bool) {
	var (
		sum float64
		n   int
	)
	for _, rank := range []int{noaRankNear, noaRankFar} {
		if rank > len(balance) {
			continue
		}
		if v := balance[rank-1].NetOperatingAssets; v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
