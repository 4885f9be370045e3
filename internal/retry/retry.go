// Package retry implements the exponential-backoff-with-half-jitter retry
// executor (§4.4), wrapping a single call with bounded attempts and
// error-kind-based retriability.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
)

// Config mirrors RetryConfig: max attempts, the backoff curve's shape, and
// whether to jitter.
type Config struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool

	// RetriableKinds restricts retries to these error kinds. Empty means
	// "use each errs.Kind's own Retriable() classification".
	RetriableKinds []errs.Kind
}

// DefaultConfig mirrors RetryConfig's dataclass defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialDelay:    time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// delay computes d(attempt) = min(initial * base^attempt, max), applying a
// uniform [0.5, 1.0) half-jitter factor when enabled (§4.4 "Delay").
func (c Config) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.ExponentialBase, float64(attempt))
	if max := float64(c.MaxDelay); d > max {
		d = max
	}
	if c.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

func (c Config) retriable(err error) bool {
	kind, ok := errs.KindOf(err)
	if !ok {
		return false
	}
	if len(c.RetriableKinds) == 0 {
		return kind.Retriable()
	}
	for _, k := range c.RetriableKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Exhausted wraps the last error after every attempt has been spent.
type Exhausted struct {
	Attempts int
	Last     error
}

func (e *Exhausted) Error() string {
	return errs.Newf(errs.API, "retry exhausted after %d attempts", e.Attempts).Error()
}

func (e *Exhausted) Unwrap() error { return e.Last }

// Do runs fn, retrying on retriable errors per cfg until MaxAttempts is
// spent or ctx is cancelled. A RateLimit error's server-advised
// RetryAfterSeconds overrides the computed backoff for that attempt
// (§4.4 "Classification").
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var last error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		last = err

		if !cfg.retriable(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		wait := cfg.delay(attempt)
		var cerr *errs.Error
		if errors.As(err, &cerr) && cerr.Kind == errs.RateLimit && cerr.RetryAfterSeconds > 0 {
			wait = time.Duration(cerr.RetryAfterSeconds * float64(time.Second))
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}

	return zero, &Exhausted{Attempts: cfg.MaxAttempts, Last: last}
}
