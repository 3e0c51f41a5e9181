package ai

import (
	"errors"
	"sync"
	"time"
)

var ErrBreakerOpen = errors.New("circuit breaker open")

const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// Breaker gates calls to a failing dependency. It opens after failThreshold
// consecutive failures and stays open for resetTimeout, after which a
// single trial call is let through (half-open). Errors matched by the
// exclude predicate pass through without touching the failure counter:
// they indicate misconfiguration, not transient unavailability.
type Breaker struct {
	name          string
	failThreshold int
	resetTimeout  time.Duration
	exclude       func(error) bool

	mu          sync.Mutex
	state       string
	failures    int
	lastFailure time.Time

	now func() time.Time
}

func NewBreaker(name string, failThreshold int, resetTimeout time.Duration, exclude func(error) bool) *Breaker {
	if exclude == nil {
		exclude = func(error) bool { return false }
	}
	return &Breaker{
		name:          name,
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		exclude:       exclude,
		state:         StateClosed,
		now:           time.Now,
	}
}

// Do runs fn under the breaker. When open and the reset timeout has not
// elapsed it returns ErrBreakerOpen without invoking fn.
func (b *Breaker) Do(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		if b.now().Sub(b.lastFailure) < b.resetTimeout {
			return ErrBreakerOpen
		}
		b.state = StateHalfOpen
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.state = StateClosed
		b.failures = 0
		return
	}
	if b.exclude(err) {
		return
	}
	b.failures++
	b.lastFailure = b.now()
	if b.state == StateHalfOpen || b.failures >= b.failThreshold {
		b.state = StateOpen
	}
}

func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
