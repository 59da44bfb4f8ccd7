package github

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	gh "github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

const (
	// Upstream defaults: 5000/hour with a token, 60/hour without.
	limitAuthenticated   = 5000
	limitUnauthenticated = 60
)

// Credential is one upstream token plus its live quota view. The embedded
// API client is built once; quota fields are updated from every response
// (last write wins; each update reflects a strictly newer server view).
type Credential struct {
	name string // safe for logs, never the token itself
	gh   *gh.Client

	mu        sync.Mutex
	remaining int
	limit     int
	resetAt   time.Time
}

func newCredential(name, token string) (*Credential, error) {
	// The waiter transparently absorbs secondary-rate-limit sleeps up to a
	// minute; primary quota handling stays in Client where the
	// wait-or-skip policy lives.
	waiter, err := github_ratelimit.NewRateLimitWaiter(nil,
		github_ratelimit.WithSingleSleepLimit(time.Minute, nil))
	if err != nil {
		return nil, fmt.Errorf("rate limit waiter: %w", err)
	}

	cred := &Credential{name: name}
	if token == "" {
		cred.remaining = limitUnauthenticated
		cred.limit = limitUnauthenticated
		cred.gh = gh.NewClient(&http.Client{Transport: waiter})
		return cred, nil
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	cred.remaining = limitAuthenticated
	cred.limit = limitAuthenticated
	cred.gh = gh.NewClient(&http.Client{
		Transport: &oauth2.Transport{Base: waiter, Source: ts},
	})
	return cred, nil
}

func (c *Credential) Name() string { return c.name }

func (c *Credential) api() *gh.Client { return c.gh }

// usable reports whether the credential can serve a call right now.
func (c *Credential) usable(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining > 0 || !c.resetAt.After(now)
}

func (c *Credential) resetTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetAt
}

// record stores the quota view from a response.
func (c *Credential) record(rate gh.Rate) {
	if rate.Limit == 0 && rate.Reset.IsZero() {
		return // response carried no quota headers
	}
	c.mu.Lock()
	c.remaining = rate.Remaining
	if rate.Limit > 0 {
		c.limit = rate.Limit
	}
	if !rate.Reset.IsZero() {
		c.resetAt = rate.Reset.Time
	}
	c.mu.Unlock()
}

// Quota returns the current view for logging and /health style output.
func (c *Credential) Quota() (remaining, limit int, resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining, c.limit, c.resetAt
}

// Pool owns the credential set and the round-robin cursor. Selection is
// sticky: the cursor stays on a credential until it stops being usable.
type Pool struct {
	mu            sync.Mutex
	creds         []*Credential
	cursor        int
	authenticated bool
}

// NewPool builds a pool from the configured tokens. Zero tokens is legal:
// the pool degrades to a single unauthenticated credential with the fixed
// low quota and no rotation.
func NewPool(tokens []string) (*Pool, error) {
	var creds []*Credential
	for i, raw := range tokens {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}
		cred, err := newCredential(fmt.Sprintf("token#%d", i+1), token)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}

	if len(creds) == 0 {
		anon, err := newCredential("anonymous", "")
		if err != nil {
			return nil, err
		}
		return &Pool{creds: []*Credential{anon}}, nil
	}
	return &Pool{creds: creds, authenticated: true}, nil
}

func (p *Pool) Size() int           { return len(p.creds) }
func (p *Pool) Authenticated() bool { return p.authenticated }

// Select returns a credential and the wait until it becomes usable.
// Wait 0 means usable now. If nothing is usable, the credential with the
// earliest reset is returned best-effort so the caller can decide to skip
// rather than block.
func (p *Pool) Select() (*Credential, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	n := len(p.creds)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		if p.creds[idx].usable(now) {
			p.cursor = idx
			return p.creds[idx], 0
		}
	}

	best := 0
	for i := 1; i < n; i++ {
		if p.creds[i].resetTime().Before(p.creds[best].resetTime()) {
			best = i
		}
	}
	p.cursor = best
	wait := time.Until(p.creds[best].resetTime())
	if wait < 0 {
		wait = 0
	}
	return p.creds[best], wait
}

// Rotate advances the cursor one step and returns the new credential. Used
// when the current credential reports quota exhaustion mid-call.
func (p *Pool) Rotate() *Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = (p.cursor + 1) % len(p.creds)
	return p.creds[p.cursor]
}

// Record feeds a response's quota view back into the owning credential.
// Safe under concurrent in-flight calls; values are monotonically
// informative per call, so last-write-wins is acceptable.
func (p *Pool) Record(cred *Credential, resp *gh.Response) {
	if cred == nil || resp == nil {
		return
	}
	cred.record(resp.Rate)
}
