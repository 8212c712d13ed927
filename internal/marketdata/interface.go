// Package marketdata fetches KRX daily bars and quotes for the signal pipeline.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/krx-quant/internal/models"
)

// Provider is the read contract the scanner and backtest engine depend on.
// Bar slices are always returned oldest-first.
type Provider interface {
	// GetDailyPrices returns the most recent count daily bars
	GetDailyPrices(ctx context.Context, stockCode string, count int) ([]models.PriceBar, error)

	// GetPriceHistory returns daily bars with start <= Date <= end
	GetPriceHistory(ctx context.Context, stockCode string, start, end time.Time) ([]models.PriceBar, error)

	// GetCurrentPrice returns the latest quote
	GetCurrentPrice(ctx context.Context, stockCode string) (*models.Quote, error)
}

// Checker is implemented by providers that can report whether they are reachable
type Checker interface {
	Check(ctx context.Context) error
}

// ProviderError represents errors from market data operations
type ProviderError struct {
	Source  string // Provider name
	Code    string // Error code (e.g., "rate_limit_exceeded")
	Message string // Error message
	Err     error  // Underlying error
}

func (e ProviderError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Code + ": " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Source + ": " + e.Code + ": " + e.Message
}

// Unwrap returns the sentinel matching the error code, or the underlying error
func (e ProviderError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := sentinels[e.Code]; ok {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Common error codes
const (
	ErrCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeNotFound             = "not_found"
	ErrCodeInvalidData          = "invalid_data"
	ErrCodeNetworkError         = "network_error"
	ErrCodeServerError          = "server_error"
	ErrCodeInvalidRequest       = "invalid_request"
)

// Sentinel errors matched by errors.Is against a ProviderError
var (
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotFound             = errors.New("data not found")
	ErrInvalidData          = errors.New("invalid data format")
	ErrNetworkError         = errors.New("network error")
	ErrServerError          = errors.New("server error")
	ErrInvalidRequest       = errors.New("invalid request")
)

var sentinels = map[string]error{
	ErrCodeRateLimitExceeded:    ErrRateLimitExceeded,
	ErrCodeAuthenticationFailed: ErrAuthenticationFailed,
	ErrCodeNotFound:             ErrNotFound,
	ErrCodeInvalidData:          ErrInvalidData,
	ErrCodeNetworkError:         ErrNetworkError,
	ErrCodeServerError:          ErrServerError,
	ErrCodeInvalidRequest:       ErrInvalidRequest,
}

// NewProviderError creates a new provider error
func NewProviderError(source, code, message string, err error) ProviderError {
	return ProviderError{
		Source:  source,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
