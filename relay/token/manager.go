// Package token selects upstream accounts for relay attempts and tracks
// their rate-limit state.
package token

import (
	"context"
	"time"
)

// Ticket is a short-lived account grant. A fresh ticket is requested for
// every attempt.
type Ticket struct {
	AccessToken string
	ProjectID   string
	Email       string
}

// Manager hands out account tickets and records per-account outcomes.
type Manager interface {
	// GetToken returns an account for one upstream attempt. When forceRotate
	// is set the manager must avoid the account previously issued for the
	// same sessionID if another is available. When sessionID is set and
	// forceRotate is not, the manager should keep returning the same account
	// for that session.
	GetToken(ctx context.Context, requestType string, forceRotate bool, sessionID, mappedModel string) (Ticket, error)

	// MarkRateLimited cools the account down for the given model. Best
	// effort, must not block the request path.
	MarkRateLimited(email string, status int, retryAfter time.Duration, errorText, mappedModel string)

	// MarkSuccess resets the account's consecutive-failure counter.
	MarkSuccess(email string)

	// Len returns the current pool size.
	Len() int
}
