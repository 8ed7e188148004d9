// Package retry runs idempotent network operations with exponential backoff.
package retry

import (
	"math"
	"net/http"
	"time"
)

// Policy controls retry/backoff behavior for one call site. It is a value type;
// call sites (resolve, probe, chunk, asr, llm, comments) each carry their own.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// BackoffMultiplier scales the delay for each further retry.
	BackoffMultiplier float64
	// MaxDelay caps any single delay.
	MaxDelay time.Duration
	// RetryStatusCodes lists HTTP statuses treated as transient.
	RetryStatusCodes []int
	// RetryNetworkErrors retries transport errors (connection reset, EOF, timeouts).
	RetryNetworkErrors bool
	// OnRetry is called before sleeping with the 1-indexed retry number.
	// A panicking callback does not stop retry progression.
	OnRetry func(attempt int, delay time.Duration, reason string)
}

// DefaultPolicy returns the baseline policy: 3 retries, 1s initial delay,
// doubling, capped at 10s, retrying 429/502/503/504 and connection errors.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2,
		MaxDelay:          10 * time.Second,
		RetryStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
		RetryNetworkErrors: true,
	}
}

// WithOnRetry returns a copy of p using fn as the retry observer.
func (p Policy) WithOnRetry(fn func(attempt int, delay time.Duration, reason string)) Policy {
	p.OnRetry = fn
	return p
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = def.BackoffMultiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.RetryStatusCodes == nil {
		p.RetryStatusCodes = def.RetryStatusCodes
	}
	return p
}

// Delay returns the backoff before the given 1-indexed retry:
// min(InitialDelay * BackoffMultiplier^(attempt-1), MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if math.IsInf(d, 0) || d >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// WorstCase bounds the time spent by one call site: every attempt times out
// and every retry sleeps its full backoff.
func (p Policy) WorstCase(perAttemptTimeout time.Duration) time.Duration {
	p = p.normalized()
	total := time.Duration(p.MaxRetries+1) * perAttemptTimeout
	for i := 1; i <= p.MaxRetries; i++ {
		total += p.Delay(i)
	}
	return total
}

func (p Policy) retryableStatus(code int) bool {
	for _, c := range p.RetryStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}
