package ai

import (
	"sync"
	"time"
)

// circuitBreaker stops calling the model after repeated failed generations. While open every generation goes
// straight to the fallback plan. After the cooldown one generation is let through, success closes the circuit.
type circuitBreaker struct {
	mu        sync.Mutex
	failures  int
	openedAt  time.Time
	open      bool
	probing   bool
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func newCircuitBreaker(threshold int, cooldown time.Duration, now func() time.Time) *circuitBreaker {
	return &circuitBreaker{
		mu:        sync.Mutex{},
		failures:  0,
		openedAt:  time.Time{},
		open:      false,
		probing:   false,
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
	}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.open {
		return true
	}
	if cb.probing || cb.now().Sub(cb.openedAt) < cb.cooldown {
		return false
	}
	cb.probing = true
	return true
}

func (cb *circuitBreaker) success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.open = false
	cb.probing = false
}

func (cb *circuitBreaker) failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.probing || cb.failures >= cb.threshold {
		cb.open = true
		cb.openedAt = cb.now()
	}
	cb.probing = false
}

// release ends a probe without a verdict, used when the caller gave up.
func (cb *circuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
}
