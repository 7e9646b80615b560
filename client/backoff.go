package client

import "time"

const (
	// DefaultBackoffBase is the delay before the first reconnect attempt.
	DefaultBackoffBase = time.Second
	// DefaultBackoffCap bounds the doubling delay.
	DefaultBackoffCap = 30 * time.Second
	// DefaultMaxAttempts is the reconnect attempt budget.
	DefaultMaxAttempts = 5
)

// RetryPolicy tracks consecutive reconnect attempts with capped exponential
// backoff: the delay starts at Base and doubles per attempt up to Cap. It is
// driven by the client and holds no timers of its own, which keeps it
// trivially testable.
type RetryPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
	attempt     int
}

// NewRetryPolicy returns a policy with the default backoff parameters.
func NewRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:        DefaultBackoffBase,
		Cap:         DefaultBackoffCap,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// NextDelay consumes one attempt and returns the delay to wait before it.
// The second return is false when the attempt budget is exhausted.
func (p *RetryPolicy) NextDelay() (time.Duration, bool) {
	if p.attempt >= p.MaxAttempts {
		return 0, false
	}
	delay := p.Base << uint(p.attempt)
	if delay > p.Cap {
		delay = p.Cap
	}
	p.attempt++
	return delay, true
}

// Attempt returns the number of attempts consumed so far.
func (p *RetryPolicy) Attempt() int {
	return p.attempt
}

// Reset clears the attempt counter after a successful connection.
func (p *RetryPolicy) Reset() {
	p.attempt = 0
}
