// Package backtest replays the period stream through a strategy and routes
// the resulting signals to a sink.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/fundamentals"
	"github.com/newthinker/pitval/internal/metrics"
	"github.com/newthinker/pitval/internal/storage/signal"
	"github.com/newthinker/pitval/internal/strategy"
	"go.uber.org/zap"
)

// Engine drives a single-threaded event loop. Observations are processed
// strictly in stream order and any strategy error ends the run.
type Engine struct {
	source   fundamentals.StreamSource
	strategy strategy.Strategy
	sink     signal.Sink
	metrics  *metrics.Registry
	logger   *zap.Logger
	runID    string

	queue []Event
	now   func() time.Time
}

// NewEngine creates an engine with a fresh run ID
func NewEngine(source fundamentals.StreamSource, strat strategy.Strategy, sink signal.Sink, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		source:   source,
		strategy: strat,
		sink:     sink,
		logger:   logger,
		runID:    uuid.NewString(),
		now:      time.Now,
	}
}

// SetMetrics wires run counters
func (e *Engine) SetMetrics(m *metrics.Registry) {
	e.metrics = m
}

// SetRunID overrides the generated run ID
func (e *Engine) SetRunID(id string) {
	e.runID = id
}

// RunID returns the ID stamped on this engine's run
func (e *Engine) RunID() string {
	return e.runID
}

// Run drains the stream selected by filter. It returns when the stream is
// exhausted and the queue is empty, or on the first error. The summary is
// filled in either case.
func (e *Engine) Run(ctx context.Context, filter fundamentals.StreamFilter) (Summary, error) {
	summary := Summary{RunID: e.runID, Strategy: e.strategy.Name(), StartedAt: e.now()}
	t := newTally()

	e.logger.Info("run started",
		zap.String("run_id", e.runID),
		zap.String("strategy", e.strategy.Name()),
		zap.Int("symbols", len(filter.Symbols)),
		zap.Time("from", filter.From),
	)

	err := e.loop(ctx, filter, t)

	t.fill(&summary)
	summary.FinishedAt = e.now()

	status := "ok"
	if err != nil {
		status = "failed"
		e.logFailure(err)
	} else {
		e.logger.Info("run finished",
			zap.String("run_id", e.runID),
			zap.Int("observations", summary.Observations),
			zap.Int("signals", summary.Signals),
			zap.Int("rejected", summary.RejectedTotal()),
			zap.Duration("duration", summary.Duration()),
		)
	}
	e.metrics.RecordRun(status, summary.Duration().Seconds())
	return summary, err
}

func (e *Engine) loop(ctx context.Context, filter fundamentals.StreamFilter, t *tally) error {
	stream, err := e.source.Open(ctx, filter)
	if err != nil {
		return fmt.Errorf("opening period stream: %w", err)
	}
	defer stream.Close()

	e.queue = e.queue[:0]
	var (
		last    core.MarketObservation
		started bool
	)
	for {
		obs, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading period stream: %w", err)
		}
		if started && before(obs, last) {
			return &ObservationError{Observation: obs, Err: core.WrapError(core.ErrOutOfOrder,
				fmt.Errorf("follows %s period %s", last.Symbol, last.Period().Format(core.DateLayout)))}
		}
		last, started = obs, true

		e.queue = append(e.queue, Event{Kind: EventMarket, Observation: obs})
		if err := e.drain(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// before reports whether a sorts ahead of b by (period end, symbol), the
// order the stream is read in
func before(a, b core.MarketObservation) bool {
	if pa, pb := a.Period(), b.Period(); !pa.Equal(pb) {
		return pa.Before(pb)
	}
	return a.Symbol < b.Symbol
}

// drain processes queued events until the queue is empty
func (e *Engine) drain(ctx context.Context, t *tally) error {
	for len(e.queue) > 0 {
		ev := e.queue[0]
		e.queue = e.queue[1:]

		var err error
		switch ev.Kind {
		case EventMarket:
			err = e.onMarket(ctx, ev.Observation, t)
		case EventSignal:
			err = e.onSignal(ctx, ev.Signal, t)
		default:
			err = fmt.Errorf("unknown event kind %s", ev.Kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) onMarket(ctx context.Context, obs core.MarketObservation, t *tally) error {
	t.observe(obs)
	e.metrics.RecordObservation()

	d, err := e.strategy.OnMarket(ctx, obs)
	if err != nil {
		if !core.IsInvariantViolation(err) {
			err = core.WrapError(core.ErrStrategyFailed, err)
		}
		return &ObservationError{Observation: obs, Err: err}
	}

	if d.Signal == nil {
		t.reject(d.Rejection)
		e.metrics.RecordRejection(e.strategy.Name(), string(d.Rejection))
		return nil
	}
	e.queue = append(e.queue, Event{Kind: EventSignal, Observation: obs, Signal: *d.Signal})
	return nil
}

func (e *Engine) onSignal(ctx context.Context, sig core.Signal, t *tally) error {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if err := e.sink.Write(ctx, sig); err != nil {
		return &ObservationError{
			Observation: core.MarketObservation{Symbol: sig.Symbol, PeriodBucket: sig.PeriodBucket},
			Err:         core.WrapError(core.ErrSinkFailed, err),
		}
	}
	t.signal()
	e.metrics.RecordSignal(sig.Strategy)

	e.logger.Info("signal",
		zap.String("symbol", sig.Symbol),
		zap.String("asof", sig.AsOf.Format(core.DateLayout)),
		zap.Float64("price", sig.Price),
		zap.String("reason", sig.Reason),
	)
	return nil
}

func (e *Engine) logFailure(err error) {
	fields := []zap.Field{zap.String("run_id", e.runID), zap.Error(err)}
	var oe *ObservationError
	if errors.As(err, &oe) {
		fields = append(fields,
			zap.String("symbol", oe.Observation.Symbol),
			zap.String("period", oe.Observation.Period().Format(core.DateLayout)),
		)
	}
	if core.IsInvariantViolation(err) {
		e.logger.Error("invariant violation, run aborted", fields...)
		return
	}
	e.logger.Error("run aborted", fields...)
}
