package utils

import (
	"errors"
	"fmt"
	"time"
)

// Permanent wraps an error that must not be retried (e.g. an HTTP 4xx or a
// malformed URL). RetryWithBackoff unwraps it and returns the cause at once.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// RetryWithBackoff retries a function up to maxRetries times with exponential backoff.
// A Permanent error aborts immediately without further attempts.
func RetryWithBackoff(maxRetries int, fn func() error, logger *Logger) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			logger.Warn("Retrying (attempt %d/%d) after %v...", attempt+1, maxRetries, backoff)
			time.Sleep(backoff)
		}
		if err := fn(); err != nil {
			var perm *Permanent
			if errors.As(err, &perm) {
				logger.Error("Attempt %d failed permanently: %v", attempt+1, perm.Err)
				return perm.Err
			}
			lastErr = err
			logger.Error("Attempt %d failed: %v", attempt+1, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("all %d attempts failed, last error: %w", maxRetries, lastErr)
}
