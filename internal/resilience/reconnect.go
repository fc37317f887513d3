package resilience

import (
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

type stopper interface {
	Stop() bool
}

// Reconnector is the retry policy that sits outside the connection lifecycle.
// It is told when a link is lost and when one is established, and decides
// whether and when to ask for another connection attempt. Attempts are gated
// by a two-step circuit breaker because their outcome arrives asynchronously.
type Reconnector struct {
	backoff   BackoffConfig
	breaker   *gobreaker.TwoStepCircuitBreaker
	reconnect func()
	afterFunc func(time.Duration, func()) stopper

	mu      sync.Mutex
	attempt int
	ticket  func(success bool)
	timer   stopper
}

// NewReconnector creates a policy that calls reconnect after each backoff delay.
func NewReconnector(name string, backoff BackoffConfig, reconnect func()) *Reconnector {
	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("reconnect: breaker %s %s -> %s", name, from, to)
		},
	})

	return &Reconnector{
		backoff:   backoff,
		breaker:   cb,
		reconnect: reconnect,
		afterFunc: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
	}
}

// Lost records that the link failed or was suspended and schedules a retry if allowed.
func (r *Reconnector) Lost(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		// A retry is already waiting.
		return
	}
	if r.ticket != nil {
		r.ticket(false)
		r.ticket = nil
	}
	if r.attempt >= r.backoff.MaxRetries {
		log.Printf("reconnect: giving up after %d attempts (%s)", r.attempt, reason)
		return
	}

	ticket, err := r.breaker.Allow()
	if err != nil {
		log.Printf("reconnect: not retrying (%s): %v", reason, err)
		return
	}
	r.ticket = ticket

	delay := r.backoff.Delay(r.attempt)
	r.attempt++
	log.Printf("reconnect: attempt %d in %s after: %s", r.attempt, delay, reason)

	var t stopper
	t = r.afterFunc(delay, func() {
		r.mu.Lock()
		if r.timer != t {
			r.mu.Unlock()
			return
		}
		r.timer = nil
		r.mu.Unlock()

		r.reconnect()
	})
	r.timer = t
}

// Connected records a successful connection and resets the backoff.
func (r *Reconnector) Connected() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticket != nil {
		r.ticket(true)
		r.ticket = nil
	}
	r.attempt = 0
}

// Reset cancels any waiting retry, e.g. when the display is hidden.
func (r *Reconnector) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.ticket != nil {
		r.ticket(false)
		r.ticket = nil
	}
	r.attempt = 0
}

// Attempts returns the number of retries scheduled since the last success or reset.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

// State returns the breaker state.
func (r *Reconnector) State() gobreaker.State {
	return r.breaker.State()
}
