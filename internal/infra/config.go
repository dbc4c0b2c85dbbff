package infra

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every application setting. Sensitive values can be overridden
// through environment variables after the file is parsed.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode              string   `yaml:"mode"` // "SIMULATED" or "BROKERED"
		MaxPositionSize   int64    `yaml:"max_position_size"`
		MaxOrderValue     string   `yaml:"max_order_value"` // decimal string, e.g. "250000.00"
		DailyTradeLimit   int      `yaml:"daily_trade_limit"`
		ExecutionDelayMS  int      `yaml:"execution_delay_ms"`
		LargeOrderQty     int64    `yaml:"large_order_qty"`
		RestrictedSymbols []string `yaml:"restricted_symbols"`
		InitialCash       string   `yaml:"initial_cash"` // brokered mode only
	} `yaml:"trading"`

	API struct {
		Finnhub struct {
			BaseURL    string `yaml:"base_url"`
			WSURL      string `yaml:"ws_url"`
			APIKey     string `yaml:"api_key"`
			TimeoutSec int    `yaml:"timeout_sec"`
		} `yaml:"finnhub"`
	} `yaml:"api"`

	Quotes struct {
		CacheTTLSec     int `yaml:"cache_ttl_sec"`
		CacheMaxEntries int `yaml:"cache_max_entries"`
		RetryAttempts   int `yaml:"retry_attempts"`

		Limiter struct {
			Capacity  int `yaml:"capacity"`
			WindowSec int `yaml:"window_sec"`
		} `yaml:"limiter"`

		Breaker struct {
			FailureThreshold   int `yaml:"failure_threshold"`
			RecoveryTimeoutSec int `yaml:"recovery_timeout_sec"`
		} `yaml:"breaker"`

		Redis struct {
			Addr     string `yaml:"addr"` // empty disables the distributed tier
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`

		Stream struct {
			Enabled bool     `yaml:"enabled"`
			Symbols []string `yaml:"symbols"`
		} `yaml:"stream"`
	} `yaml:"quotes"`

	Metrics struct {
		Addr string `yaml:"addr"` // debug/metrics listener, e.g. "localhost:8090"
	} `yaml:"metrics"`

	Storage struct {
		Path string `yaml:"path"` // SQLite trade log location
	} `yaml:"storage"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // "text" or "json"
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, then applies .env and
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	// Optional .env next to the binary; absence is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.Finnhub.BaseURL == "" {
		c.API.Finnhub.BaseURL = "https://finnhub.io/api/v1"
	}
	if c.API.Finnhub.WSURL == "" {
		c.API.Finnhub.WSURL = "wss://ws.finnhub.io"
	}
	if c.API.Finnhub.TimeoutSec <= 0 {
		c.API.Finnhub.TimeoutSec = 10
	}
	if c.Quotes.CacheTTLSec <= 0 {
		c.Quotes.CacheTTLSec = 300
	}
	if c.Quotes.CacheMaxEntries <= 0 {
		c.Quotes.CacheMaxEntries = 1000
	}
	if c.Quotes.RetryAttempts <= 0 {
		c.Quotes.RetryAttempts = 3
	}
	if c.Quotes.Limiter.Capacity <= 0 {
		c.Quotes.Limiter.Capacity = 60
	}
	if c.Quotes.Limiter.WindowSec <= 0 {
		c.Quotes.Limiter.WindowSec = 60
	}
	if c.Quotes.Breaker.FailureThreshold <= 0 {
		c.Quotes.Breaker.FailureThreshold = 5
	}
	if c.Quotes.Breaker.RecoveryTimeoutSec <= 0 {
		c.Quotes.Breaker.RecoveryTimeoutSec = 60
	}
	if c.Trading.Mode == "" {
		c.Trading.Mode = "SIMULATED"
	}
	if c.Trading.MaxPositionSize <= 0 {
		c.Trading.MaxPositionSize = 1_000_000
	}
	if c.Trading.MaxOrderValue == "" {
		c.Trading.MaxOrderValue = "1000000.00"
	}
	if c.Trading.DailyTradeLimit <= 0 {
		c.Trading.DailyTradeLimit = 250
	}
	if c.Trading.LargeOrderQty <= 0 {
		c.Trading.LargeOrderQty = 10_000
	}
	if c.Trading.InitialCash == "" {
		c.Trading.InitialCash = "1000000.00"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "trades.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.Finnhub.APIKey == "" {
		return fmt.Errorf("finnhub API key is required (set FINNHUB_API_KEY)")
	}
	switch c.Trading.Mode {
	case "SIMULATED", "BROKERED":
	default:
		return fmt.Errorf("unknown trading mode: %s", c.Trading.Mode)
	}
	if c.Quotes.Stream.Enabled && len(c.Quotes.Stream.Symbols) == 0 {
		return fmt.Errorf("stream enabled but no symbols configured")
	}
	return nil
}

// FinnhubTimeout returns the upstream HTTP timeout as a duration.
func (c *Config) FinnhubTimeout() time.Duration {
	return time.Duration(c.API.Finnhub.TimeoutSec) * time.Second
}

// overrideWithEnv applies environment variables over file values.
// Environment always wins for secrets.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("FINNHUB_API_KEY"); key != "" {
		cfg.API.Finnhub.APIKey = key
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Quotes.Redis.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Quotes.Redis.Password = pass
	}
	if mode := os.Getenv("TRADING_MODE"); mode != "" {
		cfg.Trading.Mode = mode
	}
}
