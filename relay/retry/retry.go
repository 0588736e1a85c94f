// Package retry classifies upstream failures into retry strategies and
// executes the resulting delays.
package retry

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Strategy kinds.
const (
	KindNoRetry = iota
	KindRetryAfter
	KindExponentialBackoff
	KindFixedDelay
)

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 8 * time.Second
	// delay before retrying on another account after an auth failure
	authRotateDelay = 200 * time.Millisecond
)

// signatureErrorMarkers identify 400 responses caused by a corrupted thought
// signature in the conversation history. These are retried once on the same
// account after stripping the poisoned signature (see SignatureRecovery).
var signatureErrorMarkers = []string{
	"Invalid `signature`",
	"thinking.signature",
	"Invalid signature",
	"Corrupted thought signature",
}

// Strategy is the outcome of classifying one upstream failure.
type Strategy struct {
	Kind  int
	Delay time.Duration
	// Rotate tells the caller to force a different account on the next attempt.
	Rotate bool
	// SignatureRecovery is set for 400s caused by corrupted thought
	// signatures; the caller mutates the request instead of rotating.
	SignatureRecovery bool
}

// Retryable reports whether another attempt should be made.
func (s Strategy) Retryable() bool {
	return s.Kind != KindNoRetry
}

// IsSignatureError reports whether an upstream error body indicates a
// corrupted thought signature.
func IsSignatureError(body string) bool {
	for _, marker := range signatureErrorMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

// ShouldRotate reports whether a status code warrants moving to a different
// account. Kept separate from Classify because signature-recovery retries
// reuse the same account despite a retryable status.
func ShouldRotate(status int) bool {
	switch status {
	case 401, 403, 429, 500, 503, 529:
		return true
	default:
		return false
	}
}

// Classify maps an upstream status code and error body to a retry strategy.
// retryAfter is the parsed Retry-After header when the upstream sent one.
func Classify(status int, body string, retryAfter time.Duration) Strategy {
	switch status {
	case 401, 403:
		return Strategy{Kind: KindFixedDelay, Delay: authRotateDelay, Rotate: true}
	case 429, 503:
		if retryAfter > 0 {
			return Strategy{Kind: KindRetryAfter, Delay: retryAfter, Rotate: true}
		}
		return Strategy{Kind: KindExponentialBackoff, Rotate: true}
	case 529, 500:
		return Strategy{Kind: KindExponentialBackoff, Rotate: true}
	case 400:
		if IsSignatureError(body) {
			return Strategy{Kind: KindFixedDelay, Delay: 0, SignatureRecovery: true}
		}
		return Strategy{Kind: KindNoRetry}
	default:
		return Strategy{Kind: KindNoRetry}
	}
}

// ClassifyTransport handles failures with no HTTP status (connect resets,
// truncated streams, peek timeouts). Always retryable with backoff on a
// different account.
func ClassifyTransport() Strategy {
	return Strategy{Kind: KindExponentialBackoff, Rotate: true}
}

// ParseRetryAfter parses a Retry-After header value. Only the delta-seconds
// form is honored; HTTP-date values yield zero.
func ParseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// BackoffDelay computes the exponential delay for a zero-based attempt
// index: base*2^attempt capped at backoffCap.
func BackoffDelay(attempt int) time.Duration {
	d := backoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	if d > backoffCap {
		return backoffCap
	}
	return d
}

// DelayFor resolves the concrete sleep duration for a strategy at the given
// zero-based attempt index.
func DelayFor(s Strategy, attempt int) time.Duration {
	switch s.Kind {
	case KindRetryAfter, KindFixedDelay:
		return s.Delay
	case KindExponentialBackoff:
		return BackoffDelay(attempt)
	default:
		return 0
	}
}

// Apply sleeps for the strategy's delay, returning early with the context's
// error if it is canceled first.
func Apply(ctx context.Context, s Strategy, attempt int) error {
	d := DelayFor(s, attempt)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
