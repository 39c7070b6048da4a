package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"limitboard/internal/domain"
)

// DefaultPath is used when LIMITBOARD_CONFIG is unset.
const DefaultPath = "config/limitboard.yaml"

// DefaultRateLimitPerMin applies when eastmoney.rate_limit_per_min is absent.
const DefaultRateLimitPerMin = 600

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for limitboard.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	EastMoney EastMoney `yaml:"eastmoney"`
	Calendar  Calendar  `yaml:"calendar"`
	LimitUp   LimitUp   `yaml:"limitup"`
}

// Storage holds paths of the optional input caches. Empty paths disable
// the corresponding cache.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration. GRPCPort 0 disables gRPC.
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	GRPCPort        int           `yaml:"grpc_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// EastMoney configures the market-data client.
type EastMoney struct {
	SnapshotURL     string        `yaml:"snapshot_url"`
	KlineURL        string        `yaml:"kline_url"`
	Timeout         time.Duration `yaml:"timeout"`
	PageSize        int           `yaml:"page_size"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"` // 0 disables pacing
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	HistoryBegin    string        `yaml:"history_begin"`
}

// Calendar configures the trading-calendar window and cache.
type Calendar struct {
	StartDate  string        `yaml:"start_date"`
	TTL        time.Duration `yaml:"ttl"`
	IndexSecID string        `yaml:"index_secid"`
}

// LimitUp holds the classification thresholds.
type LimitUp struct {
	ChangePctThreshold float64  `yaml:"change_pct_threshold"`
	LimitRatio         float64  `yaml:"limit_ratio"`
	ExcludeMarkers     []string `yaml:"exclude_markers"`
	Workers            int      `yaml:"workers"`
	StreakMode         string   `yaml:"streak_mode"`
}

// envOverrides lists the supported environment variables.
type envOverrides struct {
	DataDir         string `envconfig:"DATA_DIR"`
	SQLitePath      string `envconfig:"SQLITE_PATH"`
	LogLevel        string `envconfig:"LOG_LEVEL"`
	LogFormat       string `envconfig:"LOG_FORMAT"`
	HTTPPort        int    `envconfig:"HTTP_PORT"`
	GRPCPort        int    `envconfig:"GRPC_PORT"`
	Workers         int    `envconfig:"LIMITUP_WORKERS"`
	StreakMode      string `envconfig:"LIMITUP_STREAK_MODE"`
	CalendarStart   string `envconfig:"CALENDAR_START_DATE"`
	RateLimitPerMin *int   `envconfig:"EASTMONEY_RATE_LIMIT"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the config file path from LIMITBOARD_CONFIG or DefaultPath.
func Path() string {
	if p := os.Getenv("LIMITBOARD_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load loads .env (if present), reads the YAML file at path (a missing file
// yields defaults), applies defaults and then environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	// rate_limit_per_min: 0 disables pacing, so its default is seeded before
	// decoding rather than filled in for zero values.
	cfg := &Config{EastMoney: EastMoney{RateLimitPerMin: DefaultRateLimitPerMin}}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config yaml: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	applyDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8501
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.EastMoney.Timeout == 0 {
		cfg.EastMoney.Timeout = 10 * time.Second
	}
	if cfg.EastMoney.PageSize == 0 {
		cfg.EastMoney.PageSize = 100
	}
	if cfg.EastMoney.MaxAttempts == 0 {
		cfg.EastMoney.MaxAttempts = 1
	}
	if cfg.EastMoney.RetryDelay == 0 {
		cfg.EastMoney.RetryDelay = 500 * time.Millisecond
	}
	if cfg.EastMoney.HistoryBegin == "" {
		cfg.EastMoney.HistoryBegin = "0"
	}
	if cfg.Calendar.StartDate == "" {
		cfg.Calendar.StartDate = "2025-01-01"
	}
	if cfg.Calendar.TTL == 0 {
		cfg.Calendar.TTL = time.Hour
	}
	if cfg.Calendar.IndexSecID == "" {
		cfg.Calendar.IndexSecID = "1.000001"
	}
	if cfg.LimitUp.ChangePctThreshold == 0 {
		cfg.LimitUp.ChangePctThreshold = 9.9
	}
	if cfg.LimitUp.LimitRatio == 0 {
		cfg.LimitUp.LimitRatio = 0.099
	}
	if cfg.LimitUp.ExcludeMarkers == nil {
		cfg.LimitUp.ExcludeMarkers = []string{"ST"}
	}
	if cfg.LimitUp.Workers == 0 {
		cfg.LimitUp.Workers = 8
	}
	if cfg.LimitUp.StreakMode == "" {
		cfg.LimitUp.StreakMode = "cumulative"
	}
}

// applyEnvOverrides overrides configuration fields whose environment
// variables are set.
func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	if env.DataDir != "" {
		cfg.Storage.DataDir = env.DataDir
	}
	if env.SQLitePath != "" {
		cfg.Storage.SQLitePath = env.SQLitePath
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		cfg.Logging.Format = env.LogFormat
	}
	if env.HTTPPort != 0 {
		cfg.Server.Port = env.HTTPPort
	}
	if env.GRPCPort != 0 {
		cfg.Server.GRPCPort = env.GRPCPort
	}
	if env.Workers != 0 {
		cfg.LimitUp.Workers = env.Workers
	}
	if env.StreakMode != "" {
		cfg.LimitUp.StreakMode = env.StreakMode
	}
	if env.CalendarStart != "" {
		cfg.Calendar.StartDate = env.CalendarStart
	}
	if env.RateLimitPerMin != nil {
		cfg.EastMoney.RateLimitPerMin = *env.RateLimitPerMin
	}
	return nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := domain.ParseTradingDate(c.Calendar.StartDate); err != nil {
		return fmt.Errorf("calendar.start_date: %w", err)
	}
	switch c.LimitUp.StreakMode {
	case "cumulative", "trailing":
	default:
		return fmt.Errorf("limitup.streak_mode: unknown mode %q", c.LimitUp.StreakMode)
	}
	if c.EastMoney.PageSize < 1 || c.EastMoney.PageSize > 100 {
		return fmt.Errorf("eastmoney.page_size must be in [1, 100], got %d", c.EastMoney.PageSize)
	}
	if c.EastMoney.RateLimitPerMin < 0 {
		return fmt.Errorf("eastmoney.rate_limit_per_min must not be negative, got %d", c.EastMoney.RateLimitPerMin)
	}
	if c.LimitUp.Workers < 1 {
		return fmt.Errorf("limitup.workers must be at least 1, got %d", c.LimitUp.Workers)
	}
	if c.LimitUp.LimitRatio <= 0 || c.LimitUp.LimitRatio >= 1 {
		return fmt.Errorf("limitup.limit_ratio must be in (0, 1), got %v", c.LimitUp.LimitRatio)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GRPCAddr returns the gRPC listen address.
func (s Server) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort)
}
