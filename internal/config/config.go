package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/newthinker/pitval/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Prices   PricesConfig   `mapstructure:"prices"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Run      RunConfig      `mapstructure:"run"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DatabaseConfig points at the Postgres fundamentals database.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// PricesConfig selects and tunes the external price source.
type PricesConfig struct {
	Source            string        `mapstructure:"source"` // stooq, stooq_local, eodhd, yahoo
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	HistoryStart      string        `mapstructure:"history_start"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	Backoff           time.Duration `mapstructure:"backoff"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	LocalPath         string        `mapstructure:"local_path"`
}

type StrategyConfig struct {
	Name           string  `mapstructure:"name"`
	WACC           float64 `mapstructure:"wacc"`
	TaxRate        float64 `mapstructure:"tax_rate"`
	MarginOfSafety float64 `mapstructure:"margin_of_safety"`
	MinPrice       float64 `mapstructure:"min_price"`
}

type RunConfig struct {
	Symbols    []string `mapstructure:"symbols"`
	StartDate  string   `mapstructure:"start_date"`
	SignalsCSV string   `mapstructure:"signals_csv"`
	MissingCSV string   `mapstructure:"missing_csv"`
	ReviewCSV  string   `mapstructure:"review_csv"`
}

type StorageConfig struct {
	Type    string   `mapstructure:"type"` // "localfs" or "s3"
	Path    string   `mapstructure:"path"` // For localfs
	S3      S3Config `mapstructure:"s3"`   // For S3
	Dataset string   `mapstructure:"dataset"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration. Batch runs write a
// Prometheus textfile instead of serving /metrics.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

// LoadDotenv loads variables from the given .env files, ignoring files
// that do not exist. Variables already set in the environment win.
func LoadDotenv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from file on top of Defaults. An empty path
// skips the file; PITVAL_ environment variables apply either way.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.SetEnvPrefix("PITVAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key, so AutomaticEnv can override keys that
// have no default value.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.min_conns", d.Database.MinConns)
	v.SetDefault("database.max_conn_lifetime", d.Database.MaxConnLifetime)
	v.SetDefault("database.max_conn_idle_time", d.Database.MaxConnIdleTime)
	v.SetDefault("prices.source", d.Prices.Source)
	v.SetDefault("prices.base_url", d.Prices.BaseURL)
	v.SetDefault("prices.api_key", d.Prices.APIKey)
	v.SetDefault("prices.history_start", d.Prices.HistoryStart)
	v.SetDefault("prices.timeout", d.Prices.Timeout)
	v.SetDefault("prices.max_attempts", d.Prices.MaxAttempts)
	v.SetDefault("prices.backoff", d.Prices.Backoff)
	v.SetDefault("prices.requests_per_second", d.Prices.RequestsPerSecond)
	v.SetDefault("prices.local_path", d.Prices.LocalPath)
	v.SetDefault("strategy.name", d.Strategy.Name)
	v.SetDefault("strategy.wacc", d.Strategy.WACC)
	v.SetDefault("strategy.tax_rate", d.Strategy.TaxRate)
	v.SetDefault("strategy.margin_of_safety", d.Strategy.MarginOfSafety)
	v.SetDefault("strategy.min_price", d.Strategy.MinPrice)
	v.SetDefault("run.symbols", d.Run.Symbols)
	v.SetDefault("run.start_date", d.Run.StartDate)
	v.SetDefault("run.signals_csv", d.Run.SignalsCSV)
	v.SetDefault("run.missing_csv", d.Run.MissingCSV)
	v.SetDefault("run.review_csv", d.Run.ReviewCSV)
	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.dataset", d.Storage.Dataset)
	v.SetDefault("storage.s3.bucket", d.Storage.S3.Bucket)
	v.SetDefault("storage.s3.endpoint", d.Storage.S3.Endpoint)
	v.SetDefault("storage.s3.region", d.Storage.S3.Region)
	v.SetDefault("storage.s3.access_key", d.Storage.S3.AccessKey)
	v.SetDefault("storage.s3.secret_key", d.Storage.S3.SecretKey)
	v.SetDefault("storage.s3.prefix", d.Storage.S3.Prefix)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Database: DatabaseConfig{
			MaxConns:        4,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		Prices: PricesConfig{
			Source:            "stooq",
			HistoryStart:      "1990-01-01",
			Timeout:           30 * time.Second,
			MaxAttempts:       3,
			Backoff:           time.Second,
			RequestsPerSecond: 2,
		},
		Strategy: StrategyConfig{
			Name:           "penman_ttm",
			WACC:           0.10,
			TaxRate:        0.30,
			MarginOfSafety: 0.50,
			MinPrice:       0.01,
		},
		Run: RunConfig{
			SignalsCSV: "output/buys.csv",
			MissingCSV: "output/missing_symbols.csv",
			ReviewCSV:  "output/buys_reviewed.csv",
		},
		Storage: StorageConfig{
			Type:    "localfs",
			Path:    "data",
			Dataset: "valuations_penman_ttm",
		},
	}
}

// StartDate parses run.start_date; the zero time means no lower bound.
func (c *Config) StartDate() (time.Time, error) {
	return parseOptionalDate(c.Run.StartDate)
}

// HistoryStart parses prices.history_start.
func (c *Config) HistoryStart() (time.Time, error) {
	return parseOptionalDate(c.Prices.HistoryStart)
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(core.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	s := c.Strategy
	if s.WACC <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("wacc must be positive, got %f", s.WACC))
	}
	if s.TaxRate < 0 || s.TaxRate >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("tax_rate must be in [0, 1), got %f", s.TaxRate))
	}
	if s.MarginOfSafety < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("margin_of_safety cannot be negative, got %f", s.MarginOfSafety))
	}
	if s.MinPrice < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("min_price cannot be negative, got %f", s.MinPrice))
	}

	p := c.Prices
	if p.MaxAttempts < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts))
	}
	if p.Backoff < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("backoff cannot be negative, got %s", p.Backoff))
	}
	switch p.Source {
	case "stooq", "yahoo":
	case "eodhd":
		if p.APIKey == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("prices api_key required when source is eodhd"))
		}
	case "stooq_local":
		if p.LocalPath == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("prices local_path required when source is stooq_local"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown price source %q", p.Source))
	}
	if _, err := c.HistoryStart(); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}
	if _, err := c.StartDate(); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}

	switch c.Storage.Type {
	case "localfs":
		if c.Storage.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage path required for localfs"))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage s3 bucket required for s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	return nil
}
