// Package config provides configuration management for the open interest server.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/open_interest/internal/calendar"
	"github.com/eddiefleurent/open_interest/internal/marketdata"
	"github.com/eddiefleurent/open_interest/internal/maxpain"
)

// Providers and calendars understood by the server.
const (
	ProviderAlphaVantage = "alphavantage"
	ProviderTradier      = "tradier"
	ProviderMock         = "mock"

	CalendarNYSE    = "nyse"
	CalendarTradier = "tradier"
)

const (
	defaultHost            = "127.0.0.1"
	defaultPort            = 8080
	defaultRequestTimeout  = "60s"
	defaultTimezone        = "America/New_York"
	defaultFetchTimeout    = "2m"
	defaultTradierWorkers  = 4
	defaultRetryAttempts   = 3
	defaultInitialBackoff  = "1s"
	defaultMaxBackoff      = "30s"
	defaultBreakerRequests = 3
	defaultBreakerInterval = "60s"
	defaultBreakerTimeout  = "30s"
	defaultBreakerMin      = 5
	defaultBreakerRatio    = 0.6
)

// Config represents the complete application configuration.
type Config struct {
	Environment    EnvironmentConfig    `yaml:"environment"`
	Server         ServerConfig         `yaml:"server"`
	DataSource     DataSourceConfig     `yaml:"data_source"`
	Calendar       CalendarConfig       `yaml:"calendar"`
	MaxPain        MaxPainConfig        `yaml:"maxpain"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Cache          CacheConfig          `yaml:"cache"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug | info | warn | error
	LogFormat string `yaml:"log_format"` // text | json
}

// ServerConfig defines the HTTP transport.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	AuthToken      string `yaml:"auth_token"`
	RequestTimeout string `yaml:"request_timeout"`
}

// DataSourceConfig selects and configures the upstream chain provider.
type DataSourceConfig struct {
	Provider     string             `yaml:"provider"` // alphavantage | tradier | mock
	Timeout      string             `yaml:"timeout"`
	AlphaVantage AlphaVantageConfig `yaml:"alphavantage"`
	Tradier      TradierConfig      `yaml:"tradier"`
}

// AlphaVantageConfig defines Alpha Vantage API settings.
type AlphaVantageConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	DataType string `yaml:"datatype"` // csv | json
}

// TradierConfig defines Tradier API settings.
type TradierConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Sandbox        bool   `yaml:"sandbox"`
	Concurrency    int    `yaml:"concurrency"`
	MaxExpirations int    `yaml:"max_expirations"`
}

// CalendarConfig selects the trading-day oracle.
type CalendarConfig struct {
	Provider string `yaml:"provider"` // nyse | tradier
	Timezone string `yaml:"timezone"` // e.g., "America/New_York"
}

// MaxPainConfig defines max pain computation defaults.
type MaxPainConfig struct {
	MinRecords int    `yaml:"min_records"`
	Malformed  string `yaml:"malformed"` // skip | fail
	TieBreak   string `yaml:"tie_break"` // lowest | highest
}

// RetryConfig defines retry behavior for upstream fetches.
type RetryConfig struct {
	MaxRetries     int    `yaml:"max_retries"`
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
}

// CircuitBreakerConfig defines the breaker wrapped around the provider.
type CircuitBreakerConfig struct {
	MaxRequests  uint32  `yaml:"max_requests"`
	Interval     string  `yaml:"interval"`
	Timeout      string  `yaml:"timeout"`
	MinRequests  uint32  `yaml:"min_requests"`
	FailureRatio float64 `yaml:"failure_ratio"`
}

// CacheConfig defines the snapshot cache. An empty path keeps it in memory.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Environment.LogFormat == "" {
		c.Environment.LogFormat = "text"
	}
	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.RequestTimeout == "" {
		c.Server.RequestTimeout = defaultRequestTimeout
	}
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = ProviderAlphaVantage
	}
	if c.DataSource.Timeout == "" {
		c.DataSource.Timeout = defaultFetchTimeout
	}
	if c.DataSource.AlphaVantage.BaseURL == "" {
		c.DataSource.AlphaVantage.BaseURL = marketdata.DefaultAlphaVantageURL
	}
	if c.DataSource.AlphaVantage.DataType == "" {
		c.DataSource.AlphaVantage.DataType = string(marketdata.DataTypeCSV)
	}
	if c.DataSource.Tradier.Concurrency == 0 {
		c.DataSource.Tradier.Concurrency = defaultTradierWorkers
	}
	if c.Calendar.Provider == "" {
		c.Calendar.Provider = CalendarNYSE
	}
	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = defaultTimezone
	}
	if c.MaxPain.MinRecords == 0 {
		c.MaxPain.MinRecords = maxpain.DefaultMinRecords
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = defaultRetryAttempts
	}
	if c.Retry.InitialBackoff == "" {
		c.Retry.InitialBackoff = defaultInitialBackoff
	}
	if c.Retry.MaxBackoff == "" {
		c.Retry.MaxBackoff = defaultMaxBackoff
	}
	cb := &c.CircuitBreaker
	if cb.MaxRequests == 0 {
		cb.MaxRequests = defaultBreakerRequests
	}
	if cb.Interval == "" {
		cb.Interval = defaultBreakerInterval
	}
	if cb.Timeout == "" {
		cb.Timeout = defaultBreakerTimeout
	}
	if cb.MinRequests == 0 {
		cb.MinRequests = defaultBreakerMin
	}
	if cb.FailureRatio == 0 {
		cb.FailureRatio = defaultBreakerRatio
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Environment validation
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}
	if c.Environment.LogFormat != "text" && c.Environment.LogFormat != "json" {
		return fmt.Errorf("environment.log_format must be 'text' or 'json'")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if err := positiveDuration("server.request_timeout", c.Server.RequestTimeout); err != nil {
		return err
	}

	// Data source validation
	switch c.DataSource.Provider {
	case ProviderAlphaVantage:
		if c.DataSource.AlphaVantage.APIKey == "" {
			return fmt.Errorf("data_source.alphavantage.api_key is required (set ALPHAVANTAGE_KEY)")
		}
		if _, err := marketdata.ParseDataType(c.DataSource.AlphaVantage.DataType); err != nil {
			return fmt.Errorf("data_source.alphavantage.datatype: %w", err)
		}
	case ProviderTradier:
		if c.DataSource.Tradier.APIKey == "" {
			return fmt.Errorf("data_source.tradier.api_key is required (set TRADIER_API_KEY)")
		}
	case ProviderMock:
	default:
		return fmt.Errorf("data_source.provider must be one of %s, %s, %s", ProviderAlphaVantage, ProviderTradier, ProviderMock)
	}
	if c.DataSource.Tradier.Concurrency < 0 {
		return fmt.Errorf("data_source.tradier.concurrency must be >= 0")
	}
	if c.DataSource.Tradier.MaxExpirations < 0 {
		return fmt.Errorf("data_source.tradier.max_expirations must be >= 0")
	}
	if err := positiveDuration("data_source.timeout", c.DataSource.Timeout); err != nil {
		return err
	}

	// Calendar validation
	switch c.Calendar.Provider {
	case CalendarNYSE:
	case CalendarTradier:
		if c.DataSource.Tradier.APIKey == "" {
			return fmt.Errorf("calendar.provider 'tradier' requires data_source.tradier.api_key")
		}
	default:
		return fmt.Errorf("calendar.provider must be '%s' or '%s'", CalendarNYSE, CalendarTradier)
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil && c.Calendar.Timezone != defaultTimezone {
		return fmt.Errorf("calendar.timezone invalid: %w", err)
	}

	// Max pain validation
	if c.MaxPain.MinRecords < 0 {
		return fmt.Errorf("maxpain.min_records must be >= 0")
	}
	if _, ok := maxpain.ParseMalformedPolicy(c.MaxPain.Malformed); !ok {
		return fmt.Errorf("maxpain.malformed must be 'skip' or 'fail'")
	}
	if _, ok := maxpain.ParseTieBreak(c.MaxPain.TieBreak); !ok {
		return fmt.Errorf("maxpain.tie_break must be 'lowest' or 'highest'")
	}

	// Retry validation
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if err := positiveDuration("retry.initial_backoff", c.Retry.InitialBackoff); err != nil {
		return err
	}
	if err := positiveDuration("retry.max_backoff", c.Retry.MaxBackoff); err != nil {
		return err
	}
	if c.GetInitialBackoff() > c.GetMaxBackoff() {
		return fmt.Errorf("retry.initial_backoff (%s) must be <= retry.max_backoff (%s)",
			c.Retry.InitialBackoff, c.Retry.MaxBackoff)
	}

	// Circuit breaker validation
	if err := positiveDuration("circuit_breaker.interval", c.CircuitBreaker.Interval); err != nil {
		return err
	}
	if err := positiveDuration("circuit_breaker.timeout", c.CircuitBreaker.Timeout); err != nil {
		return err
	}
	if c.CircuitBreaker.FailureRatio <= 0 || c.CircuitBreaker.FailureRatio > 1 {
		return fmt.Errorf("circuit_breaker.failure_ratio must be in (0,1]")
	}

	return nil
}

func positiveDuration(field, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s invalid: %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be > 0", field)
	}
	return nil
}

// parseDuration returns def when value does not parse.
func parseDuration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Location loads the configured timezone, falling back to New York.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Calendar.Timezone); err == nil {
		return loc
	}
	return calendar.NewYork()
}

// GetRequestTimeout returns the HTTP request timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Server.RequestTimeout, 60*time.Second)
}

// GetFetchTimeout returns the overall timeout of one upstream fetch.
func (c *Config) GetFetchTimeout() time.Duration {
	return parseDuration(c.DataSource.Timeout, 2*time.Minute)
}

// GetInitialBackoff returns the first retry delay.
func (c *Config) GetInitialBackoff() time.Duration {
	return parseDuration(c.Retry.InitialBackoff, time.Second)
}

// GetMaxBackoff returns the retry delay cap.
func (c *Config) GetMaxBackoff() time.Duration {
	return parseDuration(c.Retry.MaxBackoff, 30*time.Second)
}

// MaxPainOptions converts the maxpain section. Validate has already run.
func (c *Config) MaxPainOptions() maxpain.Options {
	malformed, _ := maxpain.ParseMalformedPolicy(c.MaxPain.Malformed)
	tieBreak, _ := maxpain.ParseTieBreak(c.MaxPain.TieBreak)
	return maxpain.Options{
		MinRecords: c.MaxPain.MinRecords,
		Malformed:  malformed,
		TieBreak:   tieBreak,
	}
}

// CircuitBreakerSettings converts the circuit_breaker section.
func (c *Config) CircuitBreakerSettings() marketdata.CircuitBreakerSettings {
	return marketdata.CircuitBreakerSettings{
		MaxRequests:  c.CircuitBreaker.MaxRequests,
		Interval:     parseDuration(c.CircuitBreaker.Interval, 60*time.Second),
		Timeout:      parseDuration(c.CircuitBreaker.Timeout, 30*time.Second),
		MinRequests:  c.CircuitBreaker.MinRequests,
		FailureRatio: c.CircuitBreaker.FailureRatio,
	}
}

// UsesTradier reports whether any component needs the Tradier client.
func (c *Config) UsesTradier() bool {
	return c.DataSource.Provider == ProviderTradier || c.Calendar.Provider == CalendarTradier
}
