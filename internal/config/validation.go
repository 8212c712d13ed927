// Package config provides configuration management for krx-quant.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/yourusername/krx-quant/internal/models"
	"github.com/yourusername/krx-quant/internal/strategy"
)

// Sizing rules accepted by the backtest section
const (
	SizingAllIn       = "all_in"
	SizingFixedAmount = "fixed_amount"
	SizingPercent     = "percent"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	// Register custom validation functions
	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)
	_ = v.RegisterValidation("markets", validateMarkets)
	_ = v.RegisterValidation("strategyname", validateStrategyName)
	_ = v.RegisterValidation("sizingrule", validateSizingRule)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	cv := NewValidator()
	return cv.Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	err := cv.validator.Struct(cfg)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	// Additional cross-field validations
	if err := validateCrossField(cfg); err != nil {
		return err
	}

	return nil
}

// validateEnvironment validates the environment field
func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateLogLevel validates the log level field
func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// validateMarkets validates market configuration
func validateMarkets(fl validator.FieldLevel) bool {
	markets, ok := fl.Field().Interface().([]string)
	if !ok || len(markets) == 0 {
		return false
	}

	for _, market := range markets {
		switch models.Market(strings.ToUpper(market)) {
		case models.MarketKOSPI, models.MarketKOSDAQ:
		default:
			return false
		}
	}
	return true
}

// validateStrategyName checks the strategy against the registry
func validateStrategyName(fl validator.FieldLevel) bool {
	return strategy.IsRegistered(fl.Field().String())
}

// validateSizingRule validates the backtest position sizing rule
func validateSizingRule(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case SizingAllIn, SizingFixedAmount, SizingPercent:
		return true
	default:
		return false
	}
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	// Validate backtest date range
	startDate, err := ParseDate(cfg.Backtest.StartDate)
	if err != nil {
		return fmt.Errorf("invalid backtest start_date format: %w", err)
	}
	endDate, err := ParseDate(cfg.Backtest.EndDate)
	if err != nil {
		return fmt.Errorf("invalid backtest end_date format: %w", err)
	}
	if !startDate.IsZero() && !endDate.IsZero() && startDate.After(endDate) {
		return fmt.Errorf("backtest start_date must not be after end_date")
	}

	// Validate indicator windows
	if cfg.Signal.ShortMA >= cfg.Signal.LongMA {
		return fmt.Errorf("signal short_ma must be less than long_ma")
	}
	if cfg.Signal.MACDFast >= cfg.Signal.MACDSlow {
		return fmt.Errorf("signal macd_fast must be less than macd_slow")
	}
	if cfg.Signal.Oversold >= cfg.Signal.Overbought {
		return fmt.Errorf("signal oversold must be less than overbought")
	}

	// Validate sizing parameters for the chosen rule
	switch cfg.Backtest.SizingRule {
	case SizingFixedAmount:
		if cfg.Backtest.SizingAmount <= 0 {
			return fmt.Errorf("backtest sizing_amount must be positive for fixed_amount sizing")
		}
	case SizingPercent:
		if cfg.Backtest.SizingPercent <= 0 {
			return fmt.Errorf("backtest sizing_percent must be positive for percent sizing")
		}
	}

	if cfg.Scanner.Schedule.Enabled {
		if _, err := cron.ParseStandard(cfg.Scanner.Schedule.Cron); err != nil {
			return fmt.Errorf("invalid scanner schedule cron %q: %w", cfg.Scanner.Schedule.Cron, err)
		}
		if _, err := cfg.Scanner.Schedule.Location(); err != nil {
			return fmt.Errorf("invalid scanner schedule timezone: %w", err)
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		return fmt.Errorf("metrics port is required when metrics are enabled")
	}

	if cfg.MarketData.BarsFile == "" && !cfg.IsDevelopment() {
		if cfg.MarketData.AppKey == "" || cfg.MarketData.AppSecret == "" {
			return fmt.Errorf("market_data app_key and app_secret are required outside development")
		}
	}

	// Validate production environment requirements
	if cfg.IsProduction() && cfg.HasDatabase() && cfg.Database.SSLMode == "disable" {
		return fmt.Errorf("production environment requires SSL mode to be 'require' or 'verify-full'")
	}

	// Validate connection pool settings
	if cfg.Database.MaxIdleConnections > cfg.Database.MaxConnections {
		return fmt.Errorf("max_idle_connections cannot exceed max_connections")
	}

	return nil
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var errMsg string
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required", "required_if", "required_with":
			errMsg += fmt.Sprintf("- Field '%s' is required\n", field)
		case "url":
			errMsg += fmt.Sprintf("- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "min", "max":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "markets":
			errMsg += fmt.Sprintf("- Field '%s' must list KOSPI and/or KOSDAQ, got '%v'\n", field, value)
		case "strategyname":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: %s\n", field, strings.Join(strategy.Names(), ", "))
		case "sizingrule":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: all_in, fixed_amount, percent\n", field)
		case "oneof", "datetime":
			errMsg += fmt.Sprintf("- Field '%s' has invalid value '%v'\n", field, value)
		default:
			errMsg += fmt.Sprintf("- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("configuration validation failed:\n%s", errMsg)
}

// ValidateEnvironment validates environment-specific requirements
func ValidateEnvironment(cfg *Config) error {
	if cfg.IsProduction() {
		if cfg.HasDatabase() && cfg.Database.SSLMode == "disable" {
			return fmt.Errorf("production environment requires database SSL mode to be 'require' or 'verify-full'")
		}
		if isTestCredential(cfg.MarketData.AppKey) {
			return fmt.Errorf("production environment should not use test market data credentials")
		}
	}
	return nil
}

// isTestCredential checks if a credential looks like a test credential
func isTestCredential(credential string) bool {
	testPatterns := []string{
		"test", "demo", "example", "placeholder", "YOUR_",
	}

	for _, pattern := range testPatterns {
		if match, _ := regexp.MatchString("(?i)"+pattern, credential); match {
			return true
		}
	}

	return false
}
