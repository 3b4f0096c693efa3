package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/newthinker/pitval/internal/app"
	"github.com/newthinker/pitval/internal/config"
	"github.com/newthinker/pitval/internal/symbol"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resolveOffline bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <symbol>...",
	Short: "Show the price-source candidates for internal symbols",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveOffline, "offline", false, "skip the listings lookup and use the static tables only")

	rootCmd.AddCommand(resolveCmd)
}

type resolverFunc func(ctx context.Context, raw string) (symbol.Resolution, error)

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	resolve, closeFn, err := newResolveFunc(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	for _, raw := range args {
		res, err := resolve(ctx, raw)
		if err != nil {
			return err
		}
		printResolution(raw, res)
	}
	return nil
}

func newResolveFunc(ctx context.Context, cfg *config.Config, log *zap.Logger) (resolverFunc, func(), error) {
	if resolveOffline || cfg.Database.URL == "" {
		scheme, ok := symbol.SchemeByName(cfg.Prices.Source)
		if !ok {
			return nil, nil, fmt.Errorf("no symbol scheme for price source %q", cfg.Prices.Source)
		}
		return symbol.NewResolver(scheme, nil, log).Resolve, func() {}, nil
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a.Resolve, a.Close, nil
}

func printResolution(raw string, res symbol.Resolution) {
	fmt.Printf("%s\n", raw)
	fmt.Printf("  key:        %s\n", res.Key)
	if res.Exchange != "" {
		fmt.Printf("  exchange:   %s\n", res.Exchange)
	}
	if !res.Found() {
		fmt.Println("  candidates: (none)")
		return
	}
	fmt.Printf("  candidates: %s\n", strings.Join(res.Candidates, ", "))
	if res.Ambiguous {
		fmt.Printf("  ambiguous, also matched: %s\n", strings.Join(res.Alternatives, ", "))
	}
}
