package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies how an Execute call ended.
type Kind int

const (
	// KindOK means the operation returned a 2xx response.
	KindOK Kind = iota
	// KindRejected means a non-retryable, non-2xx response came back.
	KindRejected
	// KindExhausted means retries ran out on a retryable bad status.
	KindExhausted
	// KindNetworkFailure means the final attempt failed without a response.
	KindNetworkFailure
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindRejected:
		return "rejected"
	case KindExhausted:
		return "exhausted"
	case KindNetworkFailure:
		return "network_failure"
	default:
		return "unknown"
	}
}

// Operation is one idempotent network call.
type Operation func(ctx context.Context) (*http.Response, error)

// Outcome is the result of Execute. Response is set for every kind except
// KindNetworkFailure, where Err is set instead. The caller owns Response.Body.
type Outcome struct {
	Kind     Kind
	Response *http.Response
	Err      error
	Attempts int
}

// StatusError reports a non-2xx response that ended a call.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Attempts   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed: status=%d attempts=%d", e.StatusCode, e.Attempts)
}

// AsError converts a failed outcome into an error and closes any response
// body. It returns nil for KindOK.
func (o Outcome) AsError() error {
	switch o.Kind {
	case KindOK:
		return nil
	case KindNetworkFailure:
		return o.Err
	default:
		if o.Response == nil {
			return &StatusError{Attempts: o.Attempts}
		}
		drain(o.Response)
		return &StatusError{
			StatusCode: o.Response.StatusCode,
			RetryAfter: ParseRetryAfter(o.Response.Header.Get("Retry-After")),
			Attempts:   o.Attempts,
		}
	}
}

// Executor runs operations under a Policy.
type Executor struct {
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor returns an executor that sleeps on real timers.
func NewExecutor() *Executor {
	return &Executor{sleep: waitBackoff}
}

var defaultExecutor = NewExecutor()

// Execute runs op under p with the package executor.
func Execute(ctx context.Context, p Policy, op Operation) Outcome {
	return defaultExecutor.Execute(ctx, p, op)
}

// Execute attempts op, retrying transient failures with exponential backoff.
// On exhaustion it returns the last bad response when the last failure was a
// status, or the last error when it was a transport failure.
func (e *Executor) Execute(ctx context.Context, p Policy, op Operation) Outcome {
	p = p.normalized()
	sleep := e.sleep
	if sleep == nil {
		sleep = waitBackoff
	}

	var prevDelay time.Duration
	for attempt := 0; ; attempt++ {
		resp, err := op(ctx)
		attempts := attempt + 1

		var reason string
		var retryAfter time.Duration
		switch {
		case err != nil:
			// a per-attempt deadline is transient; the caller's own is not
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return Outcome{Kind: KindNetworkFailure, Err: err, Attempts: attempts}
			}
			if !p.RetryNetworkErrors || attempt >= p.MaxRetries {
				return Outcome{Kind: KindNetworkFailure, Err: err, Attempts: attempts}
			}
			reason = "network: " + err.Error()
		case resp == nil:
			return Outcome{Kind: KindNetworkFailure, Err: errors.New("operation returned no response"), Attempts: attempts}
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return Outcome{Kind: KindOK, Response: resp, Attempts: attempts}
		case !p.retryableStatus(resp.StatusCode):
			return Outcome{Kind: KindRejected, Response: resp, Attempts: attempts}
		case attempt >= p.MaxRetries:
			return Outcome{Kind: KindExhausted, Response: resp, Attempts: attempts}
		default:
			reason = "status " + strconv.Itoa(resp.StatusCode)
			retryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"))
			drain(resp)
		}

		retry := attempt + 1
		delay := p.Delay(retry)
		if retryAfter > delay {
			delay = min(retryAfter, p.MaxDelay)
		}
		// delays never shrink, even after a Retry-After bump
		delay = max(delay, prevDelay)
		prevDelay = delay
		notify(p.OnRetry, retry, delay, reason)
		if err := sleep(ctx, delay); err != nil {
			return Outcome{Kind: KindNetworkFailure, Err: err, Attempts: attempts}
		}
	}
}

func notify(fn func(int, time.Duration, string), attempt int, delay time.Duration, reason string) {
	if fn == nil {
		return
	}
	defer func() { _ = recover() }()
	fn(attempt, delay, reason)
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func waitBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func ParseRetryAfter(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(raw); err == nil {
		d := time.Until(when)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}

// Wait sleeps for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	return waitBackoff(ctx, d)
}
