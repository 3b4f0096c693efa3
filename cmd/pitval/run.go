package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/newthinker/pitval/internal/app"
	"github.com/newthinker/pitval/internal/backtest"
	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/strategy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runStrategy string
	runSymbols  []string
	runFrom     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the valuation backtest",
	Long: `Replay the period stream through the configured strategy. Signals are
appended to the signals CSV and every evaluated observation is written to
the valuation time series. The run stops on the first invariant violation.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "strategy name (overrides config)")
	runCmd.Flags().StringSliceVar(&runSymbols, "symbols", nil, "restrict the run to these symbols")
	runCmd.Flags().StringVar(&runFrom, "from", "", "first period date YYYY-MM-DD (overrides config)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runStrategy != "" {
		cfg.Strategy.Name = runStrategy
	}
	if len(runSymbols) > 0 {
		cfg.Run.Symbols = runSymbols
	}
	if runFrom != "" {
		cfg.Run.StartDate = runFrom
		if _, err := cfg.StartDate(); err != nil {
			return err
		}
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info("starting run",
		zap.String("strategy", cfg.Strategy.Name),
		zap.String("source", cfg.Prices.Source),
		zap.Strings("symbols", cfg.Run.Symbols),
	)

	summary, err := a.Run(ctx)
	printSummary(summary)
	if err != nil {
		var oe *backtest.ObservationError
		if errors.As(err, &oe) {
			kind := "error"
			if core.IsInvariantViolation(err) {
				kind = "invariant violation"
			}
			fmt.Fprintf(os.Stderr, "run aborted (%s) at symbol=%s period=%s\n", kind,
				oe.Observation.Symbol, oe.Observation.Period().Format(core.DateLayout))
		}
		return err
	}

	fmt.Printf("Signals written to %s\n", cfg.Run.SignalsCSV)
	return nil
}

func printSummary(s backtest.Summary) {
	fmt.Println("=== pitval run ===")
	fmt.Printf("Run ID:       %s\n", s.RunID)
	fmt.Printf("Strategy:     %s\n", s.Strategy)
	fmt.Printf("Observations: %d (%d symbols)\n", s.Observations, s.Symbols)
	fmt.Printf("Signals:      %d (%.1f%%)\n", s.Signals, s.SignalRate())
	fmt.Printf("Rejected:     %d\n", s.RejectedTotal())

	reasons := make([]strategy.Rejection, 0, len(s.Rejected))
	for r := range s.Rejected {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	for _, r := range reasons {
		fmt.Printf("  %-20s %d\n", r, s.Rejected[r])
	}
	fmt.Printf("Duration:     %s\n", s.Duration().Round(time.Millisecond))
}
