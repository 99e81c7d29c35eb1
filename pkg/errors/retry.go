// Package errors provides retry mechanisms with exponential backoff and jitter
// for resilient operation handling across the coordination runtime.
package errors

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/agentfabric/coordinator/pkg/clock"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns a default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		InitialInterval:     time.Second,
		MaxInterval:         30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.1,
	}
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func() error

// ShouldRetryFunc determines if an error should trigger a retry.
type ShouldRetryFunc func(error) bool

// DefaultShouldRetry retries only errors explicitly marked recoverable.
func DefaultShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if fe, ok := err.(*FabricError); ok {
		return fe.IsRecoverable()
	}
	return false
}

// ExecutionShouldRetry retries errors not classified as structural
// (InvalidTransition, CircularDependency, CapExceeded, SafetyViolation,
// AlreadyExists), matching the propagation policy in spec.md §7.
func ExecutionShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	fe, ok := err.(*FabricError)
	if !ok {
		return true
	}
	switch fe.kind {
	case KindInvalidTransition, KindCircularDependency, KindCapExceeded, KindSafetyViolation, KindAlreadyExists:
		return false
	default:
		return true
	}
}

// Retry executes a function with retry logic using a real clock.
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc, shouldRetry ShouldRetryFunc) error {
	return RetryWithClock(ctx, clock.NewRealClock(), config, fn, shouldRetry)
}

// RetryWithClock executes a function with retry logic using a custom clock,
// so tests never sleep in wall-clock time.
func RetryWithClock(ctx context.Context, clk clock.Clock, config RetryConfig, fn RetryableFunc, shouldRetry ShouldRetryFunc) error {
	if shouldRetry == nil {
		shouldRetry = DefaultShouldRetry
	}

	var lastErr error
	interval := config.InitialInterval

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		nextInterval := time.Duration(float64(interval) * config.Multiplier)
		if nextInterval > config.MaxInterval {
			nextInterval = config.MaxInterval
		}

		maxJitter := int64(float64(nextInterval) * config.RandomizationFactor)
		if maxJitter > 0 {
			jitterValue, err := rand.Int(rand.Reader, big.NewInt(maxJitter*2))
			if err == nil {
				jitter := time.Duration(jitterValue.Int64() - maxJitter)
				nextInterval += jitter
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(interval):
		}

		interval = nextInterval
	}

	return NewError(KindExecutionFailed).
		WithMessage("operation failed after maximum retry attempts").
		WithCause(lastErr).
		WithSeverity(SeverityHigh).
		WithContext("max_attempts", config.MaxAttempts).
		WithSuggestion("check the underlying error cause").
		WithSuggestion("consider increasing retry limits if appropriate").
		Build()
}
