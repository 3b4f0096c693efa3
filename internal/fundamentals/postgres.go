package fundamentals

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/newthinker/pitval/internal/config"
	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/symbol"
)

const (
	incomeTable    = "quickfs_dj_incomestatementquarter"
	balanceTable   = "quickfs_dj_balancesheetquarter"
	companiesTable = "quickfs_dj_tradedcompanies"
)

// Postgres reads QuickFS-style quarterly tables. It implements Store,
// StreamSource and symbol.ListingLookup.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens and pings a connection pool
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) IncomeQuarters(ctx context.Context, sym string, asOf time.Time, limit int) ([]IncomeQuarter, error) {
	query := `
		SELECT period_end_date, operating_income, net_income, shares_diluted
		FROM ` + incomeTable + `
		WHERE qfs_symbol_id = $1 AND period_end_date <= $2
		ORDER BY period_end_date DESC
		LIMIT $3
	`
	rows, err := p.pool.Query(ctx, query, sym, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("querying income quarters for %s: %w", sym, err)
	}
	defer rows.Close()

	var out []IncomeQuarter
	for rows.Next() {
		var q IncomeQuarter
		if err := rows.Scan(&q.PeriodEnd, &q.OperatingIncome, &q.NetIncome, &q.SharesDiluted); err != nil {
			return nil, fmt.Errorf("scanning income quarter for %s: %w", sym, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (p *Postgres) BalanceQuarters(ctx context.Context, sym string, asOf time.Time) ([]BalanceQuarter, error) {
	query := `
		SELECT period_end_date, net_operating_assets, total_equity
		FROM ` + balanceTable + `
		WHERE qfs_symbol_id = $1 AND period_end_date <= $2
		ORDER BY period_end_date DESC
	`
	rows, err := p.pool.Query(ctx, query, sym, asOf)
	if err != nil {
		return nil, fmt.Errorf("querying balance quarters for %s: %w", sym, err)
	}
	defer rows.Close()

	var out []BalanceQuarter
	for rows.Next() {
		var q BalanceQuarter
		if err := rows.Scan(&q.PeriodEnd, &q.NetOperatingAssets, &q.TotalEquity); err != nil {
			return nil, fmt.Errorf("scanning balance quarter for %s: %w", sym, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// streamQuery builds the period stream query for filter
func streamQuery(filter StreamFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if len(filter.Symbols) > 0 {
		args = append(args, filter.Symbols)
		where = append(where, fmt.Sprintf("qfs_symbol_id = ANY($%d)", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("period_end_date >= $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT qfs_symbol_id, period_end_date FROM ")
	b.WriteString(balanceTable)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY period_end_date ASC, qfs_symbol_id ASC")
	return b.String(), args
}

// Open streams balance-sheet periods
func (p *Postgres) Open(ctx context.Context, filter StreamFilter) (Stream, error) {
	query, args := streamQuery(filter)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("opening period stream: %w", err)
	}
	return &rowStream{rows: rows}, nil
}

type rowStream struct {
	rows pgx.Rows
}

func (s *rowStream) Next(ctx context.Context) (core.MarketObservation, error) {
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return core.MarketObservation{}, fmt.Errorf("reading period stream: %w", err)
		}
		return core.MarketObservation{}, io.EOF
	}
	var (
		sym    string
		period time.Time
	)
	if err := s.rows.Scan(&sym, &period); err != nil {
		return core.MarketObservation{}, fmt.Errorf("scanning period row: %w", err)
	}
	return core.NewMarketObservation(sym, period), nil
}

func (s *rowStream) Close() error {
	s.rows.Close()
	return s.rows.Err()
}

// Listings returns traded companies whose ticker or internal symbol
// matches the identifier.
func (p *Postgres) Listings(ctx context.Context, id symbol.Identifier) ([]symbol.Listing, error) {
	query := `
		SELECT UPPER(ticker), qfs_symbol, COALESCE(exchange, '')
		FROM ` + companiesTable + `
		WHERE UPPER(ticker) = ANY($1) OR qfs_symbol = ANY($1)
	`
	variants := []string{id.Raw}
	if id.Ticker != id.Raw {
		variants = append(variants, id.Ticker)
	}

	rows, err := p.pool.Query(ctx, query, variants)
	if err != nil {
		return nil, fmt.Errorf("querying listings for %s: %w", id.Raw, err)
	}
	defer rows.Close()

	var out []symbol.Listing
	for rows.Next() {
		var l symbol.Listing
		if err := rows.Scan(&l.Ticker, &l.Symbol, &l.Exchange); err != nil {
			return nil, fmt.Errorf("scanning listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
