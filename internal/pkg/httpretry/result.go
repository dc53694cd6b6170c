package httpretry

import (
	"fmt"
	"time"
)

// Kind classifies the outcome of a fetch.
type Kind int

const (
	KindSuccess Kind = iota
	// KindTimeout is a connection or read timeout. It is terminal for the
	// call; the caller moves on to its next endpoint.
	KindTimeout
	// KindRateLimited is a 429 that was still failing after the last attempt.
	KindRateLimited
	// KindLimited is a platform limitation (quota, subscription tier, download
	// cap). Never retried.
	KindLimited
	// KindTransient is any other failure after retries were exhausted.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindLimited:
		return "limited"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Result is the classified outcome of one fetch, including all retries.
type Result struct {
	Kind       Kind
	StatusCode int
	Body       []byte
	RetryAfter time.Duration
	Reason     string
	Attempts   int
	Err        error
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool { return r.Kind == KindSuccess }

// Describe renders the outcome for per-app error annotations.
func (r Result) Describe() string {
	switch r.Kind {
	case KindSuccess:
		return fmt.Sprintf("HTTP %d", r.StatusCode)
	case KindTimeout:
		return "request timed out"
	case KindRateLimited:
		return fmt.Sprintf("rate limited after %d attempts (retry after %s)", r.Attempts, r.RetryAfter)
	case KindLimited:
		return "platform limitation: " + r.Reason
	default:
		if r.StatusCode != 0 {
			return fmt.Sprintf("HTTP %d after %d attempts", r.StatusCode, r.Attempts)
		}
		if r.Err != nil {
			return fmt.Sprintf("request failed after %d attempts: %v", r.Attempts, r.Err)
		}
		return "request failed"
	}
}
