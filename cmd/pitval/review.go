package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/pitval/internal/app"
	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/review"
	storesignal "github.com/newthinker/pitval/internal/storage/signal"
	"github.com/spf13/cobra"
)

var (
	reviewInput    string
	reviewOutput   string
	reviewSymbol   string
	reviewStrategy string
	reviewFrom     string
	reviewTo       string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Measure how emitted signals performed afterwards",
	Long: `For the earliest signal of each symbol, load the full price history and
report the maximum adjusted close after the signal, the return to it and
how long the price took to double.`,
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().StringVar(&reviewInput, "input", "", "signals CSV (defaults to run.signals_csv)")
	reviewCmd.Flags().StringVar(&reviewOutput, "output", "", "review CSV (defaults to run.review_csv)")
	reviewCmd.Flags().StringVar(&reviewSymbol, "symbol", "", "only review signals for this symbol")
	reviewCmd.Flags().StringVar(&reviewStrategy, "strategy", "", "only review signals from this strategy")
	reviewCmd.Flags().StringVar(&reviewFrom, "from", "", "earliest signal as-of date (YYYY-MM-DD)")
	reviewCmd.Flags().StringVar(&reviewTo, "to", "", "latest signal as-of date (YYYY-MM-DD)")

	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if reviewInput != "" {
		cfg.Run.SignalsCSV = reviewInput
	}
	if reviewOutput != "" {
		cfg.Run.ReviewCSV = reviewOutput
	}
	filter := storesignal.ListFilter{Symbol: reviewSymbol, Strategy: reviewStrategy}
	if filter.From, err = parseDateFlag("from", reviewFrom); err != nil {
		return err
	}
	if filter.To, err = parseDateFlag("to", reviewTo); err != nil {
		return err
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

	rows, err := a.Review(ctx, filter)
	if err != nil {
		return err
	}

	var ok, noData, failed int
	for _, r := range rows {
		switch r.Status {
		case review.StatusOK:
			ok++
		case review.StatusNoData:
			noData++
		default:
			failed++
		}
	}
	fmt.Printf("Reviewed %d symbols: %d ok, %d without later prices, %d failed\n",
		len(rows), ok, noData, failed)
	fmt.Printf("Wrote %s\n", cfg.Run.ReviewCSV)
	return nil
}

func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(core.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q (expected YYYY-MM-DD)", name, value)
	}
	return t, nil
}
