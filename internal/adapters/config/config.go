package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	HealthPort string `envconfig:"HEALTH_PORT" default:"8080"`

	Database  DatabaseConfig
	Redis     RedisConfig
	Provider  ProviderConfig
	Ingest    IngestConfig
	Backfill  BackfillConfig
	Returns   ReturnsConfig
	Risk      RiskConfig
	Index     IndexConfig
	Portfolio PortfolioConfig
	Logging   LoggingConfig
}

// DatabaseConfig represents database connection parameters
type DatabaseConfig struct {
	Host           string `envconfig:"DB_HOST" default:"localhost"`
	Port           int    `envconfig:"DB_PORT" default:"5432"`
	Name           string `envconfig:"DB_NAME" default:"cryptoindex"`
	User           string `envconfig:"DB_USER" required:"true"`
	Password       string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode        string `envconfig:"DB_SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"DB_MIGRATIONS_PATH" default:"migrations"`
}

// GetDSN returns postgres connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode)
}

// RedisConfig configures the optional cross-instance run lock. With no
// addresses set, runs are guarded only by the store's unique constraints.
type RedisConfig struct {
	Addrs   []string      `envconfig:"REDIS_ADDRS"`
	LockTTL time.Duration `envconfig:"REDIS_LOCK_TTL" default:"15m"`
}

// ProviderConfig represents the external market-data provider
type ProviderConfig struct {
	BaseURL   string        `envconfig:"PROVIDER_BASE_URL" default:"https://api.coingecko.com/api/v3"`
	APIKey    string        `envconfig:"PROVIDER_API_KEY" required:"false"`
	Timeout   time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"30s"`
	CallDelay time.Duration `envconfig:"PROVIDER_CALL_DELAY" default:"2s"`
	PageSize  int           `envconfig:"PROVIDER_PAGE_SIZE" default:"250"`
	Pages     int           `envconfig:"PROVIDER_PAGES" default:"4"`
}

// IngestConfig drives the market snapshot poller
type IngestConfig struct {
	Interval time.Duration `envconfig:"INGEST_INTERVAL" default:"1h"`
}

// BackfillConfig drives the gap detector and historical backfill
type BackfillConfig struct {
	RecoveryWindowDays int           `envconfig:"BACKFILL_RECOVERY_WINDOW_DAYS" default:"730"`
	BufferDays         int           `envconfig:"BACKFILL_BUFFER_DAYS" default:"5"`
	MinCallSpanDays    int           `envconfig:"BACKFILL_MIN_CALL_SPAN_DAYS" default:"2"`
	FineWindowDays     int           `envconfig:"BACKFILL_FINE_WINDOW_DAYS" default:"90"`
	FineMinPoints      int           `envconfig:"BACKFILL_FINE_MIN_POINTS" default:"500"`
	Interval           time.Duration `envconfig:"BACKFILL_INTERVAL" default:"6h"`
}

// ReturnsConfig drives the log-return and moving-average calculator
type ReturnsConfig struct {
	MinimumDataPoints int           `envconfig:"RETURNS_MINIMUM_DATA_POINTS" default:"30"`
	MinWindowDays     int           `envconfig:"RETURNS_MIN_WINDOW_DAYS" default:"7"`
	DefaultWindowDays int           `envconfig:"RETURNS_DEFAULT_WINDOW_DAYS" default:"90"`
	Interval          time.Duration `envconfig:"RETURNS_INTERVAL" default:"6h"`
}

// RiskConfig drives the VaR/distribution/beta/SML engines
type RiskConfig struct {
	MinimumDataPoints int           `envconfig:"RISK_MINIMUM_DATA_POINTS" default:"30"`
	MaxWindowDays     int           `envconfig:"RISK_MAX_WINDOW_DAYS" default:"365"`
	RiskFreeRate      float64       `envconfig:"RISK_FREE_RATE" default:"0.0"`
	SMLTolerance      float64       `envconfig:"RISK_SML_TOLERANCE" default:"0.005"`
	Interval          time.Duration `envconfig:"RISK_INTERVAL" default:"6h"`
}

// IndexConfig drives the market-cap-weighted index engine
type IndexConfig struct {
	Name            string        `envconfig:"INDEX_NAME" default:"TOP30"`
	BaseLevel       float64       `envconfig:"INDEX_BASE_LEVEL" default:"100"`
	MaxConstituents int           `envconfig:"INDEX_MAX_CONSTITUENTS" default:"30"`
	MinVolume24h    float64       `envconfig:"INDEX_MIN_VOLUME_24H" default:"10000000"`
	// Case-insensitive substrings matched against asset category tags.
	// Substring matching over-excludes on ambiguous names; treat this list
	// as policy, not fact.
	ExcludedCategories []string      `envconfig:"INDEX_EXCLUDED_CATEGORIES" default:"stablecoin,wrapped,staking"`
	Interval           time.Duration `envconfig:"INDEX_INTERVAL" default:"1h"`
}

// PortfolioConfig drives the covariance-based portfolio volatility engine
type PortfolioConfig struct {
	CandidatePoolSize     int           `envconfig:"PORTFOLIO_CANDIDATE_POOL_SIZE" default:"80"`
	MaxConstituents       int           `envconfig:"PORTFOLIO_MAX_CONSTITUENTS" default:"40"`
	MinConstituents       int           `envconfig:"PORTFOLIO_MIN_CONSTITUENTS" default:"10"`
	MinVolume24h          float64       `envconfig:"PORTFOLIO_MIN_VOLUME_24H" default:"50000000"`
	MinWindowDays         int           `envconfig:"PORTFOLIO_MIN_WINDOW_DAYS" default:"7"`
	DefaultWindowDays     int           `envconfig:"PORTFOLIO_DEFAULT_WINDOW_DAYS" default:"90"`
	TradingPeriodsPerYear float64       `envconfig:"PORTFOLIO_TRADING_PERIODS_PER_YEAR" default:"365"`
	Interval              time.Duration `envconfig:"PORTFOLIO_INTERVAL" default:"6h"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" required:"false"`
}

// Load reads configuration from environment
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration consistency. Configuration errors are the
// only fatal errors in the pipeline, so everything is checked up front.
func (c *Config) Validate() error {
	if c.Backfill.RecoveryWindowDays < c.Backfill.MinCallSpanDays {
		return fmt.Errorf("recovery window (%d) must be >= min call span (%d)",
			c.Backfill.RecoveryWindowDays, c.Backfill.MinCallSpanDays)
	}
	if c.Returns.MinWindowDays > c.Returns.DefaultWindowDays {
		return fmt.Errorf("min window (%d) must be <= default window (%d)",
			c.Returns.MinWindowDays, c.Returns.DefaultWindowDays)
	}
	if c.Portfolio.MinConstituents > c.Portfolio.MaxConstituents {
		return fmt.Errorf("portfolio min constituents (%d) must be <= max (%d)",
			c.Portfolio.MinConstituents, c.Portfolio.MaxConstituents)
	}
	if c.Portfolio.CandidatePoolSize < c.Portfolio.MaxConstituents {
		return fmt.Errorf("candidate pool (%d) must be >= max constituents (%d)",
			c.Portfolio.CandidatePoolSize, c.Portfolio.MaxConstituents)
	}
	if c.Index.BaseLevel <= 0 {
		return fmt.Errorf("index base level must be positive, got %v", c.Index.BaseLevel)
	}
	if c.Index.MaxConstituents <= 0 {
		return fmt.Errorf("index max constituents must be positive, got %d", c.Index.MaxConstituents)
	}
	return nil
}
