// Package controller orchestrates relay requests: it normalizes the inbound
// dialect, rotates accounts across retries, and translates the upstream
// stream back to the client's dialect.
package controller

import (
	"time"

	"github.com/agrelay/agrelay/common/config"
	"github.com/agrelay/agrelay/relay/adaptor/antigravity"
	"github.com/agrelay/agrelay/relay/modelmap"
	"github.com/agrelay/agrelay/relay/token"
)

// Relayer holds the shared dependencies of all relay handlers.
type Relayer struct {
	Tokens  token.Manager
	Models  *modelmap.Router
	Invoker antigravity.Invoker

	// PeekTimeout bounds the wait for each chunk while peeking at the head
	// of an upstream stream.
	PeekTimeout time.Duration
	// MaxAttempts caps the rotation loop; the effective budget also depends
	// on the pool size, see attemptBudget.
	MaxAttempts int
}

// NewRelayer wires a relayer with config defaults.
func NewRelayer(tokens token.Manager, models *modelmap.Router, invoker antigravity.Invoker) *Relayer {
	return &Relayer{
		Tokens:      tokens,
		Models:      models,
		Invoker:     invoker,
		PeekTimeout: config.StreamPeekTimeout,
		MaxAttempts: config.MaxRetryAttempts,
	}
}

// attemptBudget resolves the per-request attempt cap: at least two attempts
// so a single transient failure never surfaces, at most one attempt more
// than the pool has accounts.
func (r *Relayer) attemptBudget() int {
	budget := r.MaxAttempts
	if poolCap := r.Tokens.Len() + 1; budget > poolCap {
		budget = poolCap
	}
	if budget < 2 {
		budget = 2
	}
	return budget
}
