// Package httpretry provides the retrying fetch layer used for every report
// download. A fetch never returns an error; it resolves to a classified
// Result so callers can record the failure and continue with other work.
package httpretry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ignite/attribution-monitor/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// *http.Client satisfies it; tests substitute their own.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Policy parametrizes the retry loop.
type Policy struct {
	// MaxRetries is the total number of attempts (default 7).
	MaxRetries int
	// RetryDelay is the fixed pause between failed attempts and the fallback
	// when a 429 carries no usable Retry-After (default 30s).
	RetryDelay time.Duration
	// MaxRetryAfter caps a server-provided Retry-After. Zero means no cap.
	MaxRetryAfter time.Duration
	// Permanent classifies a response as a non-retryable limitation.
	// Defaults to PlatformLimitation.
	Permanent func(status int, body []byte) (string, bool)
}

// Sleeper pauses between attempts. It returns early with ctx.Err() when the
// context is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Retrier executes GET requests under a Policy.
type Retrier struct {
	client HTTPDoer
	policy Policy
	sleep  Sleeper
}

// NewRetrier wraps client. If client is nil, an http.Client with a 90s
// timeout is used.
func NewRetrier(client HTTPDoer, policy Policy) *Retrier {
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = 7
	}
	if policy.RetryDelay <= 0 {
		policy.RetryDelay = 30 * time.Second
	}
	if policy.Permanent == nil {
		policy.Permanent = PlatformLimitation
	}
	return &Retrier{client: client, policy: policy, sleep: sleepContext}
}

// SetSleeper replaces the pause function (tests use a recording no-op).
func (r *Retrier) SetSleeper(s Sleeper) {
	r.sleep = s
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do issues req until it succeeds, hits a terminal condition, or runs out of
// attempts. The 429 path shares the same attempt counter as other failures.
func (r *Retrier) Do(req *http.Request) Result {
	ctx := req.Context()
	target := req.URL.Host + req.URL.Path
	last := Result{Kind: KindTransient}

	for attempt := 1; attempt <= r.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			last.Err = err
			return last
		}

		resp, err := r.client.Do(req.Clone(ctx))
		if err != nil {
			if isTimeout(err) {
				logger.Warn("fetch timed out", "target", target, "attempt", attempt)
				return Result{Kind: KindTimeout, Attempts: attempt, Err: err}
			}
			last = Result{Kind: KindTransient, Attempts: attempt, Err: err}
			if ctx.Err() != nil {
				return last
			}
			logger.Warn("fetch failed", "target", target, "attempt", attempt, "error", err)
			if !r.pause(ctx, attempt, r.policy.RetryDelay) {
				return last
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			if isTimeout(readErr) {
				logger.Warn("fetch read timed out", "target", target, "attempt", attempt)
				return Result{Kind: KindTimeout, StatusCode: resp.StatusCode, Attempts: attempt, Err: readErr}
			}
			last = Result{Kind: KindTransient, StatusCode: resp.StatusCode, Attempts: attempt, Err: readErr}
			if !r.pause(ctx, attempt, r.policy.RetryDelay) {
				return last
			}
			continue
		}

		if reason, ok := r.policy.Permanent(resp.StatusCode, body); ok {
			logger.Warn("platform limitation, not retrying", "target", target, "status", resp.StatusCode, "reason", reason)
			return Result{Kind: KindLimited, StatusCode: resp.StatusCode, Body: body, Reason: reason, Attempts: attempt}
		}

		if resp.StatusCode == http.StatusOK {
			return Result{Kind: KindSuccess, StatusCode: resp.StatusCode, Body: body, Attempts: attempt}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := r.retryAfter(resp.Header.Get("Retry-After"))
			logger.Warn("rate limited", "target", target, "attempt", attempt, "retry_after", wait)
			last = Result{Kind: KindRateLimited, StatusCode: resp.StatusCode, Body: body, RetryAfter: wait, Attempts: attempt}
			if !r.pause(ctx, attempt, wait) {
				return last
			}
			continue
		}

		logger.Warn("fetch returned error status", "target", target, "attempt", attempt, "status", resp.StatusCode)
		last = Result{Kind: KindTransient, StatusCode: resp.StatusCode, Body: body, Attempts: attempt}
		if !r.pause(ctx, attempt, r.policy.RetryDelay) {
			return last
		}
	}

	return last
}

// pause sleeps before the next attempt. It returns false when there is no
// next attempt or the context ended during the sleep.
func (r *Retrier) pause(ctx context.Context, attempt int, d time.Duration) bool {
	if attempt >= r.policy.MaxRetries {
		return false
	}
	return r.sleep(ctx, d) == nil
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP
// date, falling back to the policy delay.
func (r *Retrier) retryAfter(header string) time.Duration {
	wait := r.policy.RetryDelay
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			wait = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(header); err == nil {
			if d := time.Until(at); d > 0 {
				wait = d
			}
		}
	}
	if r.policy.MaxRetryAfter > 0 && wait > r.policy.MaxRetryAfter {
		wait = r.policy.MaxRetryAfter
	}
	return wait
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
