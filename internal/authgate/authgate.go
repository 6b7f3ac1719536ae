// Package authgate guards the client-facing API with an API-key allow-list
// and a per-key token-bucket rate limit.
package authgate

import (
	"crypto/subtle"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

var (
	// ErrUnauthorized means the presented key is absent or not on the
	// allow-list.
	ErrUnauthorized = errors.New("invalid or missing api key")
	// ErrRateLimited means the key is valid but has exhausted its request
	// budget.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Gate validates API keys and enforces a per-key request rate. Safe for
// concurrent use. A gate built with no keys is open: every request passes
// unauthenticated and unlimited, for deployments fronted by their own
// gateway.
type Gate struct {
	keys  []string
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds a gate over the given allow-list. rps and burst configure each
// key's token bucket; rps <= 0 disables rate limiting.
func New(keys []string, rps float64, burst int) *Gate {
	return &Gate{
		keys:     keys,
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Enabled reports whether the gate enforces authentication.
func (g *Gate) Enabled() bool {
	return len(g.keys) > 0
}

// Authorize checks a presented key against the allow-list and its rate
// budget. The allow-list comparison is constant-time per candidate so timing
// does not leak key prefixes.
func (g *Gate) Authorize(key string) error {
	if !g.Enabled() {
		return nil
	}
	if key == "" || !g.match(key) {
		return ErrUnauthorized
	}
	if g.rps > 0 && !g.limiter(key).Allow() {
		return ErrRateLimited
	}
	return nil
}

func (g *Gate) match(key string) bool {
	matched := false
	for _, k := range g.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			matched = true
		}
	}
	return matched
}

func (g *Gate) limiter(key string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[key]
	if !ok {
		l = rate.NewLimiter(g.rps, g.burst)
		g.limiters[key] = l
	}
	return l
}
