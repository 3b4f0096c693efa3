package main

import (
	"fmt"
	"os"

	"github.com/newthinker/pitval/internal/config"
	"github.com/newthinker/pitval/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "pitval",
	Short: "pitval - point-in-time valuation backtests",
	Long: `pitval replays quarterly reporting periods in time order, values each
company as of the last trading day of the period month and records buy
signals where intrinsic value clears the margin of safety.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

// loadConfig reads the dotenv file, then the config file if one is given.
// Environment overrides apply with or without a file.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotenv(envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	return logger.New(cfg.Log.Development || debug, level)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
