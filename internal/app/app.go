// Package app wires configuration into the components of a run.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/newthinker/pitval/internal/backtest"
	"github.com/newthinker/pitval/internal/config"
	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/fundamentals"
	"github.com/newthinker/pitval/internal/metrics"
	"github.com/newthinker/pitval/internal/price"
	"github.com/newthinker/pitval/internal/pricesource/eodhd"
	"github.com/newthinker/pitval/internal/pricesource/stooq"
	"github.com/newthinker/pitval/internal/pricesource/yahoo"
	"github.com/newthinker/pitval/internal/review"
	"github.com/newthinker/pitval/internal/storage/archive"
	"github.com/newthinker/pitval/internal/storage/missing"
	"github.com/newthinker/pitval/internal/storage/signal"
	"github.com/newthinker/pitval/internal/storage/timeseries"
	"github.com/newthinker/pitval/internal/strategy"
	"github.com/newthinker/pitval/internal/symbol"
	"github.com/newthinker/pitval/internal/valuation"
	"go.uber.org/zap"
)

// Deps are the external collaborators of an App
type Deps struct {
	Fundamentals fundamentals.Store
	Periods      fundamentals.StreamSource
	Listings     symbol.ListingLookup // optional
	Archive      archive.Storage
	Fetcher      price.Fetcher
}

// App is the main application orchestrator
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	deps   Deps

	resolver  *symbol.Resolver
	prices    *price.Cache
	series    *timeseries.Store
	valuation *valuation.Engine
	metrics   *metrics.Registry

	closers []func()

	mu      sync.Mutex
	running bool
}

// New connects to Postgres and the configured storage and builds an App
// over them. Close releases the connections.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg.Database.URL == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("database url is empty"))
	}

	pg, err := fundamentals.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	store, err := archive.New(ctx, cfg.Storage)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("creating storage: %w", err)
	}
	fetcher, err := NewFetcher(cfg, store)
	if err != nil {
		pg.Close()
		return nil, err
	}

	a, err := NewWithDeps(cfg, Deps{
		Fundamentals: pg,
		Periods:      pg,
		Listings:     pg,
		Archive:      store,
		Fetcher:      fetcher,
	}, logger)
	if err != nil {
		pg.Close()
		return nil, err
	}
	a.closers = append(a.closers, pg.Close)
	return a, nil
}

// NewFetcher builds the price source named by cfg.Prices.Source. The
// stooq_local source reads bulk files from storage.
func NewFetcher(cfg *config.Config, storage archive.Storage) (price.Fetcher, error) {
	start, err := cfg.HistoryStart()
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}

	switch cfg.Prices.Source {
	case "stooq":
		return stooq.New(cfg.Prices, start), nil
	case "stooq_local":
		return stooq.NewLocal(storage, cfg.Prices.LocalPath, start), nil
	case "eodhd":
		e, err := eodhd.New(cfg.Prices, start)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "yahoo":
		return yahoo.New(cfg.Prices, start), nil
	}
	return nil, core.WrapError(core.ErrConfigInvalid,
		fmt.Errorf("unknown price source %q", cfg.Prices.Source))
}

// NewWithDeps builds an App over the given collaborators
func NewWithDeps(cfg *config.Config, deps Deps, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	scheme, ok := symbol.SchemeByName(cfg.Prices.Source)
	if !ok {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("no symbol scheme for price source %q", cfg.Prices.Source))
	}
	resolver := symbol.NewResolver(scheme, deps.Listings, logger.Named("symbol"))

	prices := price.NewCache(resolver, deps.Fetcher, price.RetryPolicy{
		MaxAttempts: cfg.Prices.MaxAttempts,
		Backoff:     cfg.Prices.Backoff,
	}, logger.Named("price"))

	series, err := timeseries.NewStore(deps.Archive, cfg.Storage.Dataset)
	if err != nil {
		return nil, err
	}

	engine, err := valuation.NewEngine(deps.Fundamentals, valuation.Params{
		WACC:    cfg.Strategy.WACC,
		TaxRate: cfg.Strategy.TaxRate,
	}, logger.Named("valuation"))
	if err != nil {
		return nil, err
	}

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
	}
	prices.SetMetrics(reg)

	return &App{
		cfg:       cfg,
		logger:    logger,
		deps:      deps,
		resolver:  resolver,
		prices:    prices,
		series:    series,
		valuation: engine,
		metrics:   reg,
	}, nil
}

// Strategies returns a registry holding every strategy, with time-series
// records tagged by runID.
func (a *App) Strategies(runID string) *strategy.Registry {
	penman := strategy.NewPenmanTTM(strategy.PenmanConfig{
		MarginOfSafety: a.cfg.Strategy.MarginOfSafety,
		MinPrice:       a.cfg.Strategy.MinPrice,
	}, a.prices, a.valuation, a.series, a.logger.Named("strategy"))
	penman.SetRun(runID, a.metrics)

	reg := strategy.NewRegistry(a.logger)
	reg.Register(penman)
	reg.Register(strategy.NewSimpleFundamental(a.prices, a.deps.Fundamentals, a.cfg.Strategy.MinPrice))
	return reg
}

// Run replays the period stream through the configured strategy, appending
// signals to the signals CSV and symbols without prices to the missing
// CSV. Only one run may be active at a time.
func (a *App) Run(ctx context.Context) (backtest.Summary, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return backtest.Summary{}, fmt.Errorf("run already in progress")
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	start, err := a.cfg.StartDate()
	if err != nil {
		return backtest.Summary{}, core.WrapError(core.ErrConfigInvalid, err)
	}

	missingLog, err := missing.NewCSVLog(a.cfg.Run.MissingCSV)
	if err != nil {
		return backtest.Summary{}, fmt.Errorf("opening missing-symbol log: %w", err)
	}
	a.prices.SetMissingLog(missingLog)

	sink, err := signal.NewCSVSink(a.cfg.Run.SignalsCSV)
	if err != nil {
		return backtest.Summary{}, fmt.Errorf("opening signal sink: %w", err)
	}
	defer sink.Close()

	runID := uuid.NewString()
	strat, err := a.Strategies(runID).Select(a.cfg.Strategy.Name)
	if err != nil {
		return backtest.Summary{}, err
	}

	engine := backtest.NewEngine(a.deps.Periods, strat, sink, a.logger.Named("backtest"))
	engine.SetRunID(runID)
	engine.SetMetrics(a.metrics)

	summary, runErr := engine.Run(ctx, fundamentals.StreamFilter{
		Symbols: a.cfg.Run.Symbols,
		From:    start,
	})

	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("writing metrics textfile", zap.Error(err))
	}
	return summary, runErr
}

// Review evaluates the signals in the signals CSV that match filter and
// writes the review CSV
func (a *App) Review(ctx context.Context, filter signal.ListFilter) ([]review.Row, error) {
	all, err := signal.ReadCSV(a.cfg.Run.SignalsCSV)
	if err != nil {
		return nil, err
	}
	signals := signal.Filter(all, filter)
	a.logger.Info("reviewing signals",
		zap.String("input", a.cfg.Run.SignalsCSV),
		zap.Int("read", len(all)),
		zap.Int("selected", len(signals)),
	)
	rows, err := review.New(a.prices, a.logger.Named("review")).Review(ctx, signals)
	if err != nil {
		return rows, err
	}
	if err := review.WriteFile(a.cfg.Run.ReviewCSV, rows); err != nil {
		return rows, err
	}
	return rows, nil
}

// Resolve maps an internal symbol to price-source candidates
func (a *App) Resolve(ctx context.Context, raw string) (symbol.Resolution, error) {
	return a.resolver.Resolve(ctx, raw)
}

// Series reads the stored valuation records of symbol
func (a *App) Series(ctx context.Context, sym string) ([]timeseries.Record, error) {
	return a.series.Read(ctx, sym)
}

// Close releases connections opened by New
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
