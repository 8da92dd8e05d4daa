package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-mangadex-upload/internal/models"

	log "github.com/sirupsen/logrus"
)

// ErrRetriesExhausted wraps the last error once a RetryPolicy gives up.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryPolicy is the bounded retry loop shared by every step that talks to
// the platform. A 429 waits RateLimitCooldown, anything else waits Delay.
type RetryPolicy struct {
	Name              string
	MaxAttempts       int
	Delay             time.Duration
	RateLimitCooldown time.Duration
	Sleep             Sleeper
	// Retryable decides whether a failed attempt may be repeated. Nil retries
	// everything that is not Permanent or a context error.
	Retryable func(error) bool
	// OnAuthRejected runs after every 401/403, the final attempt included.
	OnAuthRejected func()
	// OnAuthError runs after a 401/403 before the next attempt.
	OnAuthError func(ctx context.Context) error
}

// NewRetryPolicy builds the policy from the uploader settings.
func NewRetryPolicy(cfg models.Config) RetryPolicy {
	ratelimit := time.Duration(cfg.RatelimitSeconds) * time.Second
	return RetryPolicy{
		MaxAttempts:       cfg.UploadRetry,
		Delay:             ratelimit,
		RateLimitCooldown: 4 * ratelimit,
		Sleep:             SleepContext,
	}
}

// Named returns a copy of p labelled for log lines.
func (p RetryPolicy) Named(name string) RetryPolicy {
	p.Name = name
	return p
}

// WithAuthHandler returns a copy of p that calls fn after auth failures.
func (p RetryPolicy) WithAuthHandler(fn func(ctx context.Context) error) RetryPolicy {
	p.OnAuthError = fn
	return p
}

// WithAuthRejected returns a copy of p that calls fn on every auth failure.
func (p RetryPolicy) WithAuthRejected(fn func()) RetryPolicy {
	p.OnAuthRejected = fn
	return p
}

// Backoff returns how long to wait after err.
func (p RetryPolicy) Backoff(err error) time.Duration {
	if IsRateLimited(err) {
		return p.RateLimitCooldown
	}
	return p.Delay
}

func (p RetryPolicy) retryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

// Do runs op until it succeeds, fails permanently, ctx is done or
// MaxAttempts is reached. attempt starts at 1.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	logger := log.WithField("step", p.Name)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if IsAuthError(lastErr) && p.OnAuthRejected != nil {
			p.OnAuthRejected()
		}
		if !p.retryable(lastErr) {
			var perm *permanentError
			if errors.As(lastErr, &perm) {
				return perm.err
			}
			return lastErr
		}
		if attempt == maxAttempts {
			// The platform still expects the cooldown before whatever request comes next.
			if IsRateLimited(lastErr) {
				logger.WithError(lastErr).Warnf("Rate limited on final attempt, cooling down for %s", p.RateLimitCooldown)
				if err := sleep(ctx, p.RateLimitCooldown); err != nil {
					return err
				}
			}
			break
		}

		if IsAuthError(lastErr) && p.OnAuthError != nil {
			logger.WithError(lastErr).Warn("Authorization rejected, re-authenticating before retry")
			if authErr := p.OnAuthError(ctx); authErr != nil {
				return fmt.Errorf("re-authentication failed: %w", authErr)
			}
		}

		wait := p.Backoff(lastErr)
		if IsRateLimited(lastErr) {
			logger.WithError(lastErr).Warnf("Rate limited. Retrying (%d/%d) after %s...", attempt, maxAttempts, wait)
		} else {
			logger.WithError(lastErr).Warnf("Retrying (%d/%d) after %s...", attempt, maxAttempts, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}
