package config

import (
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const (
	validConfigPath         = "testdata/valid_config.yaml"
	expansionConfigPath     = "testdata/expansion_config.yaml"
	nonexistentConfigPath   = "testdata/nonexistent_config.yaml"
	expectedNoErrorMsg      = "expected no error, got %v"
	expectedNonNilConfig    = "expected non-nil config"
	expectedValidationError = "expected validation error"
	appName                 = "krx-quant"
	developmentEnv          = "development"
	testAppName             = "test-app"
	testKISAppKey           = "TEST_KIS_APP_KEY"
	expandedSecretValue     = "expanded_secret_value"
)

func loadValid(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if cfg == nil {
		t.Fatal(expectedNonNilConfig)
	}
	return cfg
}

// TestLoadConfigSuccess tests loading a valid configuration file
func TestLoadConfigSuccess(t *testing.T) {
	cfg := loadValid(t)

	if cfg.App.Name != appName {
		t.Errorf("expected app name '%s', got '%s'", appName, cfg.App.Name)
	}
	if cfg.App.Environment != developmentEnv {
		t.Errorf("expected environment '%s', got '%s'", developmentEnv, cfg.App.Environment)
	}
	if cfg.Signal.Strategy != "momentum_reversal" {
		t.Errorf("expected strategy momentum_reversal, got '%s'", cfg.Signal.Strategy)
	}
	if cfg.Backtest.TaxRate != 0.0018 {
		t.Errorf("expected tax rate 0.0018, got %v", cfg.Backtest.TaxRate)
	}
	if len(cfg.Scanner.Markets) != 2 {
		t.Errorf("expected 2 markets, got %v", cfg.Scanner.Markets)
	}
	if !strings.HasPrefix(cfg.GetDatabaseDSN(), "postgres://krx:") {
		t.Errorf("unexpected DSN %s", cfg.GetDatabaseDSN())
	}
}

// TestLoadConfigFileNotFound tests handling of missing configuration file
func TestLoadConfigFileNotFound(t *testing.T) {
	if _, err := Load(nonexistentConfigPath); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

// TestLoadConfigEnvironmentVariables tests environment variable override
func TestLoadConfigEnvironmentVariables(t *testing.T) {
	t.Setenv("KRX_QUANT_APP_NAME", testAppName)

	cfg := loadValid(t)
	if cfg.App.Name != testAppName {
		t.Errorf("expected app name '%s' from environment, got '%s'", testAppName, cfg.App.Name)
	}
}

// TestLoadConfigExpansion tests ${VAR} expansion inside the YAML file
func TestLoadConfigExpansion(t *testing.T) {
	t.Setenv(testKISAppKey, expandedSecretValue)

	cfg, err := Load(expansionConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if cfg.MarketData.AppKey != expandedSecretValue {
		t.Errorf("expected expanded app key, got '%s'", cfg.MarketData.AppKey)
	}
}

// TestLoadWithDefaultsMissingFile tests that defaults alone validate
func TestLoadWithDefaultsMissingFile(t *testing.T) {
	cfg, err := LoadWithDefaults(nonexistentConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if cfg.Signal.RSIPeriod != 14 || cfg.Signal.LongMA != 20 {
		t.Errorf("expected indicator defaults, got %+v", cfg.Signal)
	}
	if cfg.Backtest.CommissionRate != 0.00015 {
		t.Errorf("expected default commission 0.00015, got %v", cfg.Backtest.CommissionRate)
	}
	if cfg.Backtest.WarmupDays != 60 {
		t.Errorf("expected default warmup 60 days, got %d", cfg.Backtest.WarmupDays)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

// TestLoadWithDefaultsFileOverrides tests that file values win over defaults
func TestLoadWithDefaultsFileOverrides(t *testing.T) {
	cfg, err := LoadWithDefaults(expansionConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if cfg.App.LogLevel != "debug" {
		t.Errorf("expected log level from file, got '%s'", cfg.App.LogLevel)
	}
	if cfg.Scanner.HistoryBars != 60 {
		t.Errorf("expected default history bars, got %d", cfg.Scanner.HistoryBars)
	}
}

// TestValidateSuccess tests validation of a valid configuration
func TestValidateSuccess(t *testing.T) {
	if err := Validate(loadValid(t)); err != nil {
		t.Fatalf("expected no validation error, got %v", err)
	}
}

// TestValidateFailures tests individual validation rules
func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid environment", func(c *Config) { c.App.Environment = "invalid" }, "Environment"},
		{"invalid log level", func(c *Config) { c.App.LogLevel = "verbose" }, "LogLevel"},
		{"unknown strategy", func(c *Config) { c.Signal.Strategy = "coin_flip" }, "Strategy"},
		{"invalid markets", func(c *Config) { c.Scanner.Markets = []string{"NYSE"} }, "Markets"},
		{"invalid sizing rule", func(c *Config) { c.Backtest.SizingRule = "martingale" }, "SizingRule"},
		{"commission too high", func(c *Config) { c.Backtest.CommissionRate = 0.5 }, "CommissionRate"},
		{"confidence out of range", func(c *Config) { c.Scanner.DefaultMinConfidence = 1.5 }, "DefaultMinConfidence"},
		{"invalid cache backend", func(c *Config) { c.MarketData.Cache.Backend = "memcached" }, "Backend"},
		{"redis without address", func(c *Config) { c.MarketData.Cache.Backend = "redis" }, "RedisAddr"},
		{"inverted dates", func(c *Config) { c.Backtest.StartDate, c.Backtest.EndDate = "2024-06-28", "2024-01-02" }, "start_date"},
		{"short ma not shorter", func(c *Config) { c.Signal.ShortMA = 20 }, "short_ma"},
		{"inverted thresholds", func(c *Config) { c.Signal.Oversold = 80 }, "oversold"},
		{"fixed amount without amount", func(c *Config) { c.Backtest.SizingRule = SizingFixedAmount }, "sizing_amount"},
		{"bad cron", func(c *Config) { c.Scanner.Schedule.Cron = "every day" }, "cron"},
		{"staging without credentials", func(c *Config) { c.App.Environment = "staging" }, "app_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadValid(t)
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal(expectedValidationError)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

// TestValidateProductionSSL tests that production requires database SSL
func TestValidateProductionSSL(t *testing.T) {
	cfg := loadValid(t)
	cfg.App.Environment = "production"
	cfg.MarketData.AppKey = "live-key"
	cfg.MarketData.AppSecret = "live-secret"

	if err := Validate(cfg); err == nil {
		t.Fatal(expectedValidationError)
	}

	cfg.Database.SSLMode = "require"
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected no validation error, got %v", err)
	}
}

// TestValidateEnvironmentTestCredentials tests test-credential detection
func TestValidateEnvironmentTestCredentials(t *testing.T) {
	cfg := loadValid(t)
	cfg.App.Environment = "production"
	cfg.Database.SSLMode = "require"
	cfg.MarketData.AppKey = "demo-app-key"

	if err := ValidateEnvironment(cfg); err == nil {
		t.Fatal("expected error for test credentials in production")
	}
}

// TestOverlaySecrets tests applying secrets parsed from AWS responses
func TestOverlaySecrets(t *testing.T) {
	cfg := loadValid(t)
	secrets, err := parseSecretData(&secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(`{"database_password":"pw","kis_app_key":"key","kis_app_secret":"secret"}`),
	})
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	overlaySecretsOnConfig(cfg, secrets)
	if cfg.Database.Password != "pw" || cfg.MarketData.AppKey != "key" || cfg.MarketData.AppSecret != "secret" {
		t.Errorf("secrets not applied: %+v", cfg.MarketData)
	}
	if cfg.MarketData.Cache.RedisPassword != "" {
		t.Error("empty secrets must not overwrite config")
	}
}

// TestParseSecretDataEmpty tests the empty secret response
func TestParseSecretDataEmpty(t *testing.T) {
	if _, err := parseSecretData(&secretsmanager.GetSecretValueOutput{}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

// TestReloadFromEnv tests reloading from KRX_QUANT_CONFIG_PATH
func TestReloadFromEnv(t *testing.T) {
	cfg := &Config{}
	t.Setenv("KRX_QUANT_CONFIG_PATH", validConfigPath)
	if err := ReloadFromEnv(cfg); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if cfg.App.Name != appName {
		t.Errorf("expected reloaded config, got '%s'", cfg.App.Name)
	}
}
