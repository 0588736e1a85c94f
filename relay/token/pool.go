package token

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"os"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	gocache "github.com/patrickmn/go-cache"
)

const (
	// how long a session keeps its sticky account without traffic
	sessionTTL = 30 * time.Minute
)

// Account is one pool entry from the accounts file.
type Account struct {
	Email       string `json:"email"`
	AccessToken string `json:"access_token"`
	ProjectID   string `json:"project_id"`
	// RequestTypes restricts the account to specific request types
	// (chat, code_assist, web_search, image_gen). Empty means all.
	RequestTypes []string `json:"request_types,omitempty"`
}

func (a Account) supports(requestType string) bool {
	if len(a.RequestTypes) == 0 {
		return true
	}
	for _, t := range a.RequestTypes {
		if t == requestType {
			return true
		}
	}
	return false
}

// Pool is an in-memory Manager over a fixed account list. Rate-limited
// accounts are cooled down per (email, model) with a TTL cache; sticky
// sessions map a fingerprint to the last account issued for it.
type Pool struct {
	mu       sync.Mutex
	accounts []Account
	cursor   int
	failures map[string]int

	cooldowns       *gocache.Cache
	sessions        *gocache.Cache
	defaultCooldown time.Duration
}

// NewPool builds a pool over the given accounts. defaultCooldown applies
// when the upstream rate-limits without a Retry-After hint.
func NewPool(accounts []Account, defaultCooldown time.Duration) *Pool {
	return &Pool{
		accounts:        accounts,
		failures:        map[string]int{},
		cooldowns:       gocache.New(defaultCooldown, time.Minute),
		sessions:        gocache.New(sessionTTL, 5*time.Minute),
		defaultCooldown: defaultCooldown,
	}
}

// LoadPool reads the accounts JSON file and builds a pool from it.
func LoadPool(path string, defaultCooldown time.Duration) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read accounts file %q", path)
	}

	var accounts []Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, errors.Wrapf(err, "parse accounts file %q", path)
	}
	for i, a := range accounts {
		if a.Email == "" || a.AccessToken == "" {
			return nil, errors.Errorf("account #%d missing email or access_token", i)
		}
	}
	return NewPool(accounts, defaultCooldown), nil
}

func cooldownKey(email, mappedModel string) string {
	return email + "|" + mappedModel
}

func (p *Pool) coolingDown(email, mappedModel string) bool {
	if _, ok := p.cooldowns.Get(cooldownKey(email, mappedModel)); ok {
		return true
	}
	// a cooldown recorded without a model applies to every model
	_, ok := p.cooldowns.Get(cooldownKey(email, ""))
	return ok
}

// GetToken implements Manager.
func (p *Pool) GetToken(ctx context.Context, requestType string, forceRotate bool, sessionID, mappedModel string) (Ticket, error) {
	if err := ctx.Err(); err != nil {
		return Ticket{}, errors.Wrap(err, "get token")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := make([]Account, 0, len(p.accounts))
	for _, a := range p.accounts {
		if a.supports(requestType) {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return Ticket{}, errors.Errorf("no accounts available for request type %q", requestType)
	}

	var prevEmail string
	if sessionID != "" {
		if v, ok := p.sessions.Get(sessionID); ok {
			prevEmail = v.(string)
		}
	}

	// sticky path: reuse the session's account while it is healthy
	if sessionID != "" && prevEmail != "" && !forceRotate {
		for _, a := range candidates {
			if a.Email == prevEmail && !p.coolingDown(a.Email, mappedModel) {
				return p.issue(a, sessionID), nil
			}
		}
	}

	start := p.cursor
	p.cursor = (p.cursor + 1) % len(candidates)
	if sessionID != "" {
		h := fnv.New32a()
		_, _ = h.Write([]byte(sessionID))
		start = int(h.Sum32()) % len(candidates)
	}

	var fallback *Account
	for i := 0; i < len(candidates); i++ {
		a := candidates[(start+i)%len(candidates)]
		if p.coolingDown(a.Email, mappedModel) {
			continue
		}
		if forceRotate && a.Email == prevEmail {
			cp := a
			fallback = &cp
			continue
		}
		return p.issue(a, sessionID), nil
	}

	// rotation requested but the previous account is the only healthy one
	if fallback != nil {
		return p.issue(*fallback, sessionID), nil
	}
	return Ticket{}, errors.Errorf("all %d accounts are cooling down", len(candidates))
}

func (p *Pool) issue(a Account, sessionID string) Ticket {
	if sessionID != "" {
		p.sessions.SetDefault(sessionID, a.Email)
	}
	return Ticket{AccessToken: a.AccessToken, ProjectID: a.ProjectID, Email: a.Email}
}

// MarkRateLimited implements Manager.
func (p *Pool) MarkRateLimited(email string, status int, retryAfter time.Duration, errorText, mappedModel string) {
	ttl := p.defaultCooldown
	if retryAfter > 0 {
		ttl = retryAfter
	}
	p.cooldowns.Set(cooldownKey(email, mappedModel), status, ttl)

	p.mu.Lock()
	p.failures[email]++
	p.mu.Unlock()
}

// MarkSuccess implements Manager.
func (p *Pool) MarkSuccess(email string) {
	p.mu.Lock()
	delete(p.failures, email)
	p.mu.Unlock()
}

// Len implements Manager.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.accounts)
}

// ConsecutiveFailures reports the failure streak for an account.
func (p *Pool) ConsecutiveFailures(email string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures[email]
}
