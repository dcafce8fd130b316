package introspect

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxRetries is the default number of attempts for a read
	DefaultMaxRetries = 3
	// DefaultBaseBackoff is the default base backoff duration
	DefaultBaseBackoff = 100 * time.Millisecond
)

// RetryConfig configures retry behavior for schema reads
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
	}
}

// withRetry runs fn until it succeeds, fails permanently, the context ends
// or MaxRetries attempts were made
func (i *Introspector) withRetry(ctx context.Context, kind, name string, fn func(ctx context.Context) error) error {
	maxRetries := i.retry.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt < maxRetries; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if isPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt == maxRetries-1 {
			break
		}

		// Exponential backoff: baseBackoff * 2^attempt
		backoff := i.retry.BaseBackoff * time.Duration(1<<uint(attempt))
		i.logger.Warn("schema read failed, retrying",
			zap.String("kind", kind),
			zap.String("name", name),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return &SchemaQueryError{Kind: kind, Name: name, Attempts: attempts, Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}

	return &SchemaQueryError{Kind: kind, Name: name, Attempts: attempts, Err: lastErr}
}
