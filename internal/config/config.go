// Package config provides configuration management for krx-quant.
package config

import (
	"fmt"
	"time"
	_ "time/tzdata" // schedule time zones on hosts without zoneinfo
)

// DateLayout is the layout of configured dates
const DateLayout = "2006-01-02"

// Config represents the complete application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"`
	MarketData MarketDataConfig `mapstructure:"market_data" validate:"required"`
	Signal     SignalConfig     `mapstructure:"signal" validate:"required"`
	Scanner    ScannerConfig    `mapstructure:"scanner" validate:"required"`
	Backtest   BacktestConfig   `mapstructure:"backtest" validate:"required"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
	LogFile     string `mapstructure:"log_file"`
}

// DatabaseConfig represents database connection configuration. An empty host
// means results are kept in memory only.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required_with=Host"`
	User               string `mapstructure:"user" validate:"required_with=Host"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"omitempty,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"omitempty,gt=0"`
}

// MarketDataConfig configures the KIS open API client
type MarketDataConfig struct {
	BaseURL           string      `mapstructure:"base_url" validate:"required,url"`
	AppKey            string      `mapstructure:"app_key"`
	AppSecret         string      `mapstructure:"app_secret"`
	RateLimit         float64     `mapstructure:"rate_limit" validate:"required,gt=0"`
	TimeoutSeconds    int         `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	MaxRetries        int         `mapstructure:"max_retries" validate:"gte=0"`
	CircuitBreakerMax int         `mapstructure:"circuit_breaker_max" validate:"gte=0"`
	BarsFile          string      `mapstructure:"bars_file"`
	Cache             CacheConfig `mapstructure:"cache"`
}

// CacheConfig configures bar caching
type CacheConfig struct {
	Backend       string `mapstructure:"backend" validate:"omitempty,oneof=none memory redis"`
	TTLSeconds    int    `mapstructure:"ttl_seconds" validate:"gte=0"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0"`
}

// SignalConfig selects the strategy and its parameters
type SignalConfig struct {
	Strategy         string  `mapstructure:"strategy" validate:"required,strategyname"`
	RSIPeriod        int     `mapstructure:"rsi_period" validate:"required,gt=1"`
	MACDFast         int     `mapstructure:"macd_fast" validate:"required,gt=0"`
	MACDSlow         int     `mapstructure:"macd_slow" validate:"required,gt=0"`
	MACDSignal       int     `mapstructure:"macd_signal" validate:"required,gt=0"`
	BollingerPeriod  int     `mapstructure:"bollinger_period" validate:"required,gt=1"`
	BollingerK       float64 `mapstructure:"bollinger_k" validate:"required,gt=0"`
	ShortMA          int     `mapstructure:"short_ma" validate:"required,gt=0"`
	LongMA           int     `mapstructure:"long_ma" validate:"required,gt=0"`
	MAType           string  `mapstructure:"ma_type" validate:"required,oneof=sma ema"`
	VolumeWindow     int     `mapstructure:"volume_window" validate:"required,gt=0"`
	VolumeMultiplier float64 `mapstructure:"volume_multiplier" validate:"required,gt=0"`
	Oversold         float64 `mapstructure:"oversold" validate:"gte=0,lte=100"`
	Overbought       float64 `mapstructure:"overbought" validate:"gte=0,lte=100"`
}

// ScannerConfig represents market scan configuration
type ScannerConfig struct {
	HistoryBars          int            `mapstructure:"history_bars" validate:"required,gt=0"`
	Concurrency          int            `mapstructure:"concurrency" validate:"required,gt=0,lte=64"`
	DefaultLimit         int            `mapstructure:"default_limit" validate:"required,gt=0"`
	DefaultMinConfidence float64        `mapstructure:"default_min_confidence" validate:"gte=0,lte=1"`
	Markets              []string       `mapstructure:"markets" validate:"required,min=1,markets"`
	Schedule             ScheduleConfig `mapstructure:"schedule"`
}

// ScheduleConfig represents the scheduled daily scan
type ScheduleConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Cron        string `mapstructure:"cron" validate:"required_if=Enabled true"`
	ScanType    string `mapstructure:"scan_type" validate:"omitempty,oneof=BUY SELL"`
	Timezone    string `mapstructure:"timezone"`
	// MaxAgeHours marks the scan stale for readiness; 0 disables the check
	MaxAgeHours int    `mapstructure:"max_age_hours" validate:"gte=0"`
}

// BacktestConfig represents backtesting defaults
type BacktestConfig struct {
	StartDate       string  `mapstructure:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate         string  `mapstructure:"end_date" validate:"omitempty,datetime=2006-01-02"`
	InitialCash     float64 `mapstructure:"initial_cash" validate:"required,gt=0"`
	CommissionRate  float64 `mapstructure:"commission_rate" validate:"gte=0,lte=0.1"`
	TaxRate         float64 `mapstructure:"tax_rate" validate:"gte=0,lte=0.1"`
	SizingRule      string  `mapstructure:"sizing_rule" validate:"required,sizingrule"`
	SizingAmount    float64 `mapstructure:"sizing_amount" validate:"gte=0"`
	SizingPercent   float64 `mapstructure:"sizing_percent" validate:"gte=0,lte=1"`
	WarmupDays      int     `mapstructure:"warmup_days" validate:"gte=0"`
	ForceCloseAtEnd bool    `mapstructure:"force_close_at_end"`
	AllowScaleIn    bool    `mapstructure:"allow_scale_in"`
	Concurrency     int     `mapstructure:"concurrency" validate:"required,gt=0,lte=64"`
	OutputPath      string  `mapstructure:"output_path"`
}

// MetricsConfig represents metrics and health endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Path    string `mapstructure:"path"`
}

// SecretsConfig points at an AWS Secrets Manager secret overlaid on load
type SecretsConfig struct {
	AWSRegion  string `mapstructure:"aws_region" validate:"required_with=SecretName"`
	SecretName string `mapstructure:"secret_name"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// HasDatabase reports whether a database is configured
func (c *Config) HasDatabase() bool {
	return c.Database.Host != ""
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Timeout returns the market data request timeout
func (c MarketDataConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TTL returns the cache entry lifetime
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Location resolves the schedule time zone, defaulting to Asia/Seoul
func (c ScheduleConfig) Location() (*time.Location, error) {
	name := c.Timezone
	if name == "" {
		name = "Asia/Seoul"
	}
	return time.LoadLocation(name)
}

// MaxAge is MaxAgeHours as a duration
func (c ScheduleConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// ParseDate parses a configured YYYY-MM-DD date; empty yields the zero time
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, s)
}
