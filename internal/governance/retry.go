package governance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrMaxRetriesExceeded is returned when all retry attempts have been exhausted.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	// ErrNonRetryableStatus is returned when the upstream answered with a status that is not worth retrying.
	ErrNonRetryableStatus = errors.New("non-retryable upstream status")
)

// RetryConfig defines retry behavior for upstream calls.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int
	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration
	// BackoffMultiplier is the factor by which backoff increases.
	BackoffMultiplier float64
	// Jitter adds up to 25% randomness to each backoff.
	Jitter bool
	// RetryableStatusCodes defines which HTTP status codes should trigger retries.
	RetryableStatusCodes map[int]bool
}

// DefaultRetryConfig returns the defaults used for reasoning engine calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		RetryableStatusCodes: map[int]bool{
			http.StatusRequestTimeout:      true, // 408
			http.StatusTooManyRequests:     true, // 429
			http.StatusInternalServerError: true, // 500
			http.StatusBadGateway:          true, // 502
			http.StatusServiceUnavailable:  true, // 503
			http.StatusGatewayTimeout:      true, // 504
		},
	}
}

// RetryPolicy determines if and when a call should be attempted again.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy, filling unset fields with defaults.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	defaults := DefaultRetryConfig()
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if config.RetryableStatusCodes == nil {
		config.RetryableStatusCodes = defaults.RetryableStatusCodes
	}

	return &RetryPolicy{config: config}
}

// Config returns a copy of the current retry configuration.
func (rp *RetryPolicy) Config() RetryConfig {
	return rp.config
}

// ShouldRetry reports whether attempt (zero based) may be followed by another one.
func (rp *RetryPolicy) ShouldRetry(statusCode int, err error, attempt int) bool {
	if attempt >= rp.config.MaxRetries {
		return false
	}

	if err != nil {
		return IsRetryableError(err)
	}

	if statusCode > 0 {
		return rp.config.RetryableStatusCodes[statusCode]
	}

	return false
}

// CalculateBackoff returns the delay before the next retry attempt.
func (rp *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := time.Duration(float64(rp.config.InitialBackoff) * math.Pow(rp.config.BackoffMultiplier, float64(attempt)))

	if backoff > rp.config.MaxBackoff {
		backoff = rp.config.MaxBackoff
	}

	if rp.config.Jitter && backoff >= 4 {
		// #nosec G404 - Non-cryptographic random is acceptable for jitter
		jitter := time.Duration(rand.Int64N(int64(backoff / 4)))
		backoff += jitter
	}

	return backoff
}

// Execute runs fn until it succeeds, fails permanently, or retries are exhausted.
//
// fn reports the upstream status code and any transport error. A 2xx status with a nil
// error is success. The last status code is always returned alongside the error.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context, attempt int) (int, error)) (int, error) {
	var lastErr error
	var statusCode int

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return statusCode, err
		}

		statusCode, lastErr = fn(ctx, attempt)

		if lastErr == nil && statusCode >= 200 && statusCode < 300 {
			return statusCode, nil
		}

		if !rp.ShouldRetry(statusCode, lastErr, attempt) {
			switch {
			case lastErr != nil && attempt >= rp.config.MaxRetries && IsRetryableError(lastErr):
				return statusCode, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
			case lastErr != nil:
				return statusCode, lastErr
			case rp.config.RetryableStatusCodes[statusCode]:
				return statusCode, fmt.Errorf("%w: last status %d", ErrMaxRetriesExceeded, statusCode)
			default:
				return statusCode, fmt.Errorf("%w: %d", ErrNonRetryableStatus, statusCode)
			}
		}

		select {
		case <-ctx.Done():
			return statusCode, ctx.Err()
		case <-time.After(rp.CalculateBackoff(attempt)):
		}
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryableError determines if an error should trigger a retry.
// Cancellation by the caller is never retried; everything else at the transport
// level is treated as transient unless it is clearly permanent.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var permanent *permanentError
	if errors.As(err, &permanent) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	permanentPatterns := []string{
		"unsupported protocol scheme",
		"invalid url",
		"certificate",
	}
	for _, pattern := range permanentPatterns {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}

	return true
}
