package main

import (
	"context"
	"fmt"

	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/storage/archive"
	"github.com/newthinker/pitval/internal/storage/timeseries"
	"github.com/spf13/cobra"
)

var seriesCmd = &cobra.Command{
	Use:   "series [symbol]",
	Short: "Print the stored valuation time series of a symbol",
	Long:  "Print the valuation records of a symbol, or list the symbols in the dataset when none is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSeries,
}

func init() {
	rootCmd.AddCommand(seriesCmd)
}

func runSeries(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	storage, err := archive.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	store, err := timeseries.NewStore(storage, cfg.Storage.Dataset)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		symbols, err := store.Symbols(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d symbols in %s\n", len(symbols), store.Dataset())
		for _, s := range symbols {
			fmt.Println(s)
		}
		return nil
	}

	records, err := store.Read(ctx, args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("No records for %s in %s\n", args[0], store.Dataset())
		return nil
	}

	fmt.Printf("%-10s %-10s %10s %12s %10s  %-6s %s\n",
		"asof", "bucket", "close", "value/share", "rnoa", "signal", "note")
	for _, r := range records {
		value, rnoa, note := "-", "-", r.Reason
		if r.Result != nil {
			value = fmt.Sprintf("%.2f", r.Result.EquityValuePerShare)
			if r.Result.RNOA != nil {
				rnoa = fmt.Sprintf("%.4f", *r.Result.RNOA)
			}
		}
		fmt.Printf("%-10s %-10s %10.2f %12s %10s  %-6t %s\n",
			r.AsOf.Format(core.DateLayout), r.PeriodBucket.Format(core.DateLayout),
			r.Close, value, rnoa, r.Signal, note)
	}
	return nil
}
