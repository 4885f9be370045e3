// Package breaker implements the circuit breaker that guards each model
// stage's outbound API calls (§4.3): CLOSED/OPEN/HALF_OPEN with an optional
// adaptive threshold, and a lazily-populated per-service registry.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

// AdaptiveOptions tunes the optional error-rate-driven threshold adjustment.
// Bounds are the reconciled Open Question "adaptive breaker bounds
// unconstrained" — adopted from the reference implementation's constants.
type AdaptiveOptions struct {
	MinThreshold       int
	MaxThreshold       int
	Adjustment         int
	ErrorWindow        time.Duration
	ErrorRateThreshold float64 // errors/second within ErrorWindow that trips a lowering
	RaiseEvery         int     // the threshold is raised on every RaiseEvery-th cumulative success
}

// DefaultAdaptiveOptions mirrors AdaptiveCircuitBreaker's constants.
func DefaultAdaptiveOptions() AdaptiveOptions {
	return AdaptiveOptions{
		MinThreshold:       3,
		MaxThreshold:       20,
		Adjustment:         2,
		ErrorWindow:        300 * time.Second,
		ErrorRateThreshold: 0.5,
		RaiseEvery:         10,
	}
}

// Breaker is a single named circuit breaker.
type Breaker struct {
	name            string
	recoveryTimeout time.Duration

	adaptive *AdaptiveOptions

	mu              sync.Mutex
	state           model.BreakerState
	threshold       int
	failureCount    int
	openedAt        time.Time
	probeInFlight   bool
	callCount       int64
	successCount    int64
	errorTimestamps []time.Time
}

// New constructs a plain (non-adaptive) breaker.
func New(name string, threshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		name:            name,
		threshold:       threshold,
		recoveryTimeout: recoveryTimeout,
		state:           model.BreakerClosed,
	}
}

// NewAdaptive constructs a breaker whose trip threshold adjusts with the
// observed error rate, per §4.3's "Adaptive threshold" paragraph.
func NewAdaptive(name string, initialThreshold int, recoveryTimeout time.Duration, opt AdaptiveOptions) *Breaker {
	b := New(name, initialThreshold, recoveryTimeout)
	b.adaptive = &opt
	return b
}

// Name returns the breaker's service name.
func (b *Breaker) Name() string { return b.name }

// Snapshot reads the breaker's current counters.
func (b *Breaker) Snapshot() model.BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return model.BreakerSnapshot{
		Service:             b.name,
		State:               b.state,
		ConsecutiveFailures: b.failureCount,
		CallCount:           b.callCount,
		SuccessCount:        b.successCount,
		Threshold:           b.threshold,
	}
}

// Reset manually forces the breaker back to CLOSED.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = model.BreakerClosed
	b.failureCount = 0
	b.errorTimestamps = nil
}

// admit decides whether a call may proceed, transitioning OPEN->HALF_OPEN
// when the recovery timeout has elapsed. Returns a CircuitOpen error if the
// call must be rejected.
func (b *Breaker) admit(now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callCount++

	switch b.state {
	case model.BreakerOpen:
		if now.Sub(b.openedAt) < b.recoveryTimeout {
			return errs.Newf(errs.CircuitOpen, "%s is open", b.name).WithService(b.name)
		}
		if b.probeInFlight {
			return errs.Newf(errs.CircuitOpen, "%s is open (probe in flight)", b.name).WithService(b.name)
		}
		b.state = model.BreakerHalfOpen
		b.probeInFlight = true
		return nil
	case model.BreakerHalfOpen:
		// Only the call that flipped OPEN->HALF_OPEN owns probeInFlight;
		// any other concurrent caller arriving while HALF_OPEN is rejected.
		if b.probeInFlight {
			return errs.Newf(errs.CircuitOpen, "%s is open (probe in flight)", b.name).WithService(b.name)
		}
		return nil
	default:
		return nil
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successCount++
	b.failureCount = 0
	if b.state == model.BreakerHalfOpen {
		b.state = model.BreakerClosed
		b.probeInFlight = false
	}
	if b.adaptive != nil {
		b.errorTimestamps = nil
		if b.successCount%int64(b.adaptive.RaiseEvery) == 0 {
			if b.threshold < b.adaptive.MaxThreshold {
				b.threshold++
			}
		}
	}
}

func (b *Breaker) onFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.adaptive != nil {
		b.errorTimestamps = append(b.errorTimestamps, now)
		cutoff := now.Add(-b.adaptive.ErrorWindow)
		kept := b.errorTimestamps[:0]
		for _, ts := range b.errorTimestamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		b.errorTimestamps = kept

		if len(b.errorTimestamps) >= b.threshold {
			span := b.errorTimestamps[len(b.errorTimestamps)-1].Sub(b.errorTimestamps[0]).Seconds()
			if span > 0 {
				rate := float64(len(b.errorTimestamps)) / span
				if rate > b.adaptive.ErrorRateThreshold && b.threshold > b.adaptive.MinThreshold {
					b.threshold -= b.adaptive.Adjustment
					if b.threshold < b.adaptive.MinThreshold {
						b.threshold = b.adaptive.MinThreshold
					}
				}
			}
		}
	}

	b.failureCount++

	if b.state == model.BreakerHalfOpen {
		b.state = model.BreakerOpen
		b.openedAt = now
		b.probeInFlight = false
		return
	}
	if b.failureCount >= b.threshold {
		b.state = model.BreakerOpen
		b.openedAt = now
	}
}

// Call runs fn through the breaker: rejects immediately if OPEN (or if a
// HALF_OPEN probe is already in flight), otherwise executes fn and feeds its
// outcome back into the state machine.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	now := time.Now()
	if err := b.admit(now); err != nil {
		return zero, err
	}

	result, err := fn(ctx)
	if err != nil {
		b.onFailure(time.Now())
		return zero, err
	}
	b.onSuccess()
	return result, nil
}
