// Package config provides configuration management for krx-quant.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. KRX_QUANT_APP_LOG_LEVEL
const EnvPrefix = "KRX_QUANT"

// DefaultConfigPath is used when no path is given
const DefaultConfigPath = "config/config.yaml"

// Load reads and parses the configuration from file and environment variables
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional fields.
// A missing file is not an error; defaults and environment variables still apply.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	v := newViper()
	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// ReloadFromEnv reloads the configuration from KRX_QUANT_CONFIG_PATH when it is set
func ReloadFromEnv(cfg *Config) error {
	if envPath := os.Getenv(EnvPrefix + "_CONFIG_PATH"); envPath != "" {
		newCfg, err := Load(envPath)
		if err != nil {
			return err
		}
		*cfg = *newCfg
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// setDefaults mirrors the indicator and strategy defaults so an empty file yields
// a runnable development configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "krx-quant")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_connections", 2)

	v.SetDefault("market_data.base_url", "https://openapi.koreainvestment.com:9443")
	v.SetDefault("market_data.rate_limit", 15.0)
	v.SetDefault("market_data.timeout_seconds", 10)
	v.SetDefault("market_data.max_retries", 3)
	v.SetDefault("market_data.circuit_breaker_max", 5)
	v.SetDefault("market_data.cache.backend", "memory")
	v.SetDefault("market_data.cache.ttl_seconds", 300)

	v.SetDefault("signal.strategy", "momentum_reversal")
	v.SetDefault("signal.rsi_period", 14)
	v.SetDefault("signal.macd_fast", 12)
	v.SetDefault("signal.macd_slow", 26)
	v.SetDefault("signal.macd_signal", 9)
	v.SetDefault("signal.bollinger_period", 20)
	v.SetDefault("signal.bollinger_k", 2.0)
	v.SetDefault("signal.short_ma", 5)
	v.SetDefault("signal.long_ma", 20)
	v.SetDefault("signal.ma_type", "sma")
	v.SetDefault("signal.volume_window", 20)
	v.SetDefault("signal.volume_multiplier", 2.0)
	v.SetDefault("signal.oversold", 30.0)
	v.SetDefault("signal.overbought", 70.0)

	v.SetDefault("scanner.history_bars", 60)
	v.SetDefault("scanner.concurrency", 8)
	v.SetDefault("scanner.default_limit", 20)
	v.SetDefault("scanner.default_min_confidence", 0.5)
	v.SetDefault("scanner.markets", []string{"KOSPI", "KOSDAQ"})
	v.SetDefault("scanner.schedule.enabled", false)
	v.SetDefault("scanner.schedule.cron", "40 15 * * 1-5")
	v.SetDefault("scanner.schedule.scan_type", "BUY")
	v.SetDefault("scanner.schedule.timezone", "Asia/Seoul")
	v.SetDefault("scanner.schedule.max_age_hours", 80)

	v.SetDefault("backtest.initial_cash", 10000000.0)
	v.SetDefault("backtest.commission_rate", 0.00015)
	v.SetDefault("backtest.tax_rate", 0.0018)
	v.SetDefault("backtest.sizing_rule", SizingAllIn)
	v.SetDefault("backtest.warmup_days", 60)
	v.SetDefault("backtest.concurrency", 4)
	v.SetDefault("backtest.output_path", "output/backtests")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
}
