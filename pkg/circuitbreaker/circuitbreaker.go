package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

type state uint8

const (
	stateClosed state = iota + 1
	stateOpen
	stateHalfOpen
)

// ErrOpen is returned without invoking the wrapped call while the breaker
// is open.
var ErrOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to a flaky dependency. Closed passes calls
// through, open rejects them until the cooldown elapses, half-open lets
// calls through until one fails or enough succeed in a row to close again.
type CircuitBreaker interface {
	Call(fn func() error) error
	Reset()
}

type circuitBreaker struct {
	mu sync.Mutex

	state state

	// window is the ring buffer of recent call outcomes (true = failed).
	window []bool
	pos    int

	// failRate opens the breaker when the window's failure share reaches it.
	failRate float64

	// cooldown is how long the breaker stays open before probing.
	cooldown        time.Duration
	lastAttemptedAt time.Time

	// recoveryCalls is how many consecutive successes in half-open close
	// the breaker.
	recoveryCalls int
	successCount  int
}

func New(windowSize int, cooldown time.Duration, failRate float64, recoveryCalls int) CircuitBreaker {
	return &circuitBreaker{
		state:         stateClosed,
		window:        make([]bool, windowSize),
		failRate:      failRate,
		cooldown:      cooldown,
		recoveryCalls: recoveryCalls,
	}
}

func (cb *circuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == stateOpen {
		if time.Since(cb.lastAttemptedAt) > cb.cooldown {
			cb.state = stateHalfOpen
			cb.successCount = 0
		} else {
			cb.mu.Unlock()
			return ErrOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.window[cb.pos] = err != nil
	cb.pos = (cb.pos + 1) % len(cb.window)

	if cb.state == stateHalfOpen {
		if err != nil {
			cb.successCount = 0
			cb.state = stateOpen
			cb.lastAttemptedAt = time.Now()
		} else {
			cb.successCount++
			if cb.successCount > cb.recoveryCalls {
				cb.reset()
			}
		}
		return err
	}

	fails := 0
	for _, failed := range cb.window {
		if failed {
			fails++
		}
	}
	if float64(fails)/float64(len(cb.window)) >= cb.failRate {
		cb.state = stateOpen
		cb.successCount = 0
		cb.lastAttemptedAt = time.Now()
	}

	return err
}

func (cb *circuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.reset()
}

func (cb *circuitBreaker) reset() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.successCount = 0
	cb.pos = 0
	cb.state = stateClosed
}
