package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type keyState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

// CircuitBreaker tracks consecutive failures per key and stops further
// attempts for a cooldown period once the threshold is reached. The
// notification job keys it by recipient mail domain so one dead mail
// server cannot burn the whole batch.
//
// A threshold of zero or less disables the breaker entirely.
type CircuitBreaker struct {
	mu        sync.Mutex
	states    map[string]*keyState
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

type Option func(*CircuitBreaker)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

func New(threshold int, cooldown time.Duration, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		states:    make(map[string]*keyState),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Allow reports whether an attempt against key may proceed. An open
// circuit lets one probe through after the cooldown elapses.
func (cb *CircuitBreaker) Allow(key string) error {
	if cb.threshold <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[key]
	if !ok {
		return nil
	}

	switch s.state {
	case stateClosed:
		return nil
	case stateOpen:
		if cb.now().Sub(s.openedAt) >= cb.cooldown {
			s.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		// A probe is already in flight.
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) RecordSuccess(key string) {
	if cb.threshold <= 0 {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[key]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

func (cb *CircuitBreaker) RecordFailure(key string) {
	if cb.threshold <= 0 {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[key]
	if !ok {
		s = &keyState{}
		cb.states[key] = s
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= cb.threshold {
		s.state = stateOpen
		s.openedAt = cb.now()
	}
}
