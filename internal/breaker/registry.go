package breaker

import (
	"sync"
	"time"
)

// Registry lazily constructs and caches one Breaker per service name
// (§4.3 "Multi-service"), matching MultiServiceCircuitBreaker's
// get-or-create semantics.
type Registry struct {
	threshold       int
	recoveryTimeout time.Duration
	adaptive        *AdaptiveOptions

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry constructs a registry whose lazily-created breakers share the
// given initial threshold and recovery timeout. If adaptive is non-nil,
// every created breaker is adaptive.
func NewRegistry(threshold int, recoveryTimeout time.Duration, adaptive *AdaptiveOptions) *Registry {
	return &Registry{
		threshold:       threshold,
		recoveryTimeout: recoveryTimeout,
		adaptive:        adaptive,
		breakers:        make(map[string]*Breaker),
	}
}

// Get returns the breaker for service, creating it on first use.
func (r *Registry) Get(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[service]; ok {
		return b
	}
	var b *Breaker
	if r.adaptive != nil {
		b = NewAdaptive(service, r.threshold, r.recoveryTimeout, *r.adaptive)
	} else {
		b = New(service, r.threshold, r.recoveryTimeout)
	}
	r.breakers[service] = b
	return b
}

// All returns a snapshot of every breaker currently registered, for metrics.
func (r *Registry) All() []*Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	return out
}

// ResetAll forces every registered breaker back to CLOSED.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}
