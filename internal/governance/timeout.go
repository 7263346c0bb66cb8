package governance

import (
	"context"
	"errors"
	"time"
)

// ErrRequestTimeout is returned when a call exceeds its timeout.
var ErrRequestTimeout = errors.New("request timeout exceeded")

// DefaultRequestTimeout bounds a single reasoning engine call including retries.
const DefaultRequestTimeout = 30 * time.Second

// TimeoutConfig defines timeout behavior for outbound calls.
type TimeoutConfig struct {
	// RequestTimeout is the maximum duration for a complete call, retries included.
	RequestTimeout time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{RequestTimeout: DefaultRequestTimeout}
}

// TimeoutManager enforces timeout policies on outbound calls.
type TimeoutManager struct {
	config TimeoutConfig
}

// NewTimeoutManager creates a timeout manager with the given configuration.
func NewTimeoutManager(config TimeoutConfig) *TimeoutManager {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	return &TimeoutManager{config: config}
}

// Config returns a copy of the current timeout configuration.
func (tm *TimeoutManager) Config() TimeoutConfig {
	return tm.config
}

// WithRequestTimeout derives a context bounded by the request timeout.
func (tm *TimeoutManager) WithRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(ctx, tm.config.RequestTimeout, ErrRequestTimeout)
}

// TimedOut reports whether err was caused by the request timeout elapsing in ctx.
func TimedOut(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(context.Cause(ctx), ErrRequestTimeout) || errors.Is(err, context.DeadlineExceeded)
}
