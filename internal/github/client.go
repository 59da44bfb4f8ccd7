package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gh "github.com/google/go-github/v62/github"

	"ghnotify/internal/eventbus"
	"ghnotify/pkg/logx"
)

// DefaultWaitThreshold is the longest quota-reset wait a call will sleep
// through before failing fast with a QuotaError.
const DefaultWaitThreshold = 300 * time.Second

type ClientConfig struct {
	// WaitThreshold defaults to DefaultWaitThreshold when zero.
	WaitThreshold time.Duration
}

// Client performs upstream calls through the pool's credentials.
// Safe for concurrent use from the poll loop and webhook handlers.
type Client struct {
	pool *Pool
	cfg  ClientConfig
	log  logx.Logger
	bus  eventbus.Bus

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(pool *Pool, cfg ClientConfig, log logx.Logger, bus eventbus.Bus) *Client {
	if cfg.WaitThreshold <= 0 {
		cfg.WaitThreshold = DefaultWaitThreshold
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{pool: pool, cfg: cfg, log: log, bus: bus, sleep: sleepCtx}
}

// WithToken returns a client over a dedicated single-credential pool, used
// for subscriptions carrying their own token. Alerting and the wait policy
// are shared with the parent.
func (c *Client) WithToken(token string) (*Client, error) {
	pool, err := NewPool([]string{token})
	if err != nil {
		return nil, err
	}
	return &Client{pool: pool, cfg: c.cfg, log: c.log, bus: c.bus, sleep: c.sleep}, nil
}

func (c *Client) Pool() *Pool { return c.pool }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) reportQuota(wait time.Duration) {
	c.log.Warn("quota exhausted, skipping call",
		logx.Duration("wait", wait),
		logx.Int("credentials", c.pool.Size()),
		logx.Bool("authenticated", c.pool.Authenticated()))
	if c.bus != nil {
		c.bus.Publish(eventbus.Event{
			Type: QuotaEventType,
			Data: QuotaEvent{
				Wait:        wait,
				ResetAt:     time.Now().Add(wait),
				Credentials: c.pool.Size(),
			},
		})
	}
}

// call runs one upstream operation under the shared policy:
//
//  1. Pick a credential. If none is usable and the wait exceeds the
//     threshold, fail fast with QuotaError; under the threshold, sleep
//     wait+1s and proceed.
//  2. At most two attempts: the original credential plus one switched
//     credential (explicitly bounded, no recursion).
//  3. Quota headers from every response are recorded regardless of status.
func call[T any](ctx context.Context, c *Client, op string, fn func(context.Context, *gh.Client) (T, *gh.Response, error)) (T, error) {
	var zero T

	cred, wait := c.pool.Select()
	if wait > 0 {
		if wait > c.cfg.WaitThreshold {
			c.reportQuota(wait)
			return zero, &QuotaError{Wait: wait}
		}
		c.log.Warn("quota exhausted, waiting for reset",
			logx.String("op", op), logx.Duration("wait", wait))
		if err := c.sleep(ctx, wait+time.Second); err != nil {
			return zero, err
		}
	}

	for attempt := 0; ; attempt++ {
		v, resp, err := fn(ctx, cred.api())
		c.pool.Record(cred, resp)
		if err == nil {
			return v, nil
		}

		var rateErr *gh.RateLimitError
		switch {
		case errors.As(err, &rateErr):
			reset := rateErr.Rate.Reset.Time
			wait := time.Until(reset)
			if wait < 0 {
				wait = 0
			}
			if attempt >= 1 {
				c.reportQuota(wait)
				return zero, &QuotaError{Wait: wait}
			}
			if c.pool.Size() > 1 {
				cred = c.pool.Rotate()
				c.log.Info("switching credential after quota exhaustion",
					logx.String("op", op), logx.String("credential", cred.Name()))
				continue
			}
			if wait > c.cfg.WaitThreshold {
				c.reportQuota(wait)
				return zero, &QuotaError{Wait: wait}
			}
			c.log.Warn("quota exhausted, waiting for reset",
				logx.String("op", op), logx.Duration("wait", wait))
			if serr := c.sleep(ctx, wait+time.Second); serr != nil {
				return zero, serr
			}
			continue

		case isNotFound(err):
			return zero, ErrNotFound

		case isForbidden(err):
			// 403 without quota semantics: the endpoint refuses this
			// repository. Neutral, not an error for callers.
			c.log.Debug("endpoint unavailable for repository",
				logx.String("op", op), logx.Err(err))
			return zero, ErrUnavailable

		default:
			return zero, fmt.Errorf("%s: %w", op, err)
		}
	}
}

func isNotFound(err error) bool {
	var ghErr *gh.ErrorResponse
	return errors.As(err, &ghErr) &&
		ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

func isForbidden(err error) bool {
	var ghErr *gh.ErrorResponse
	return errors.As(err, &ghErr) &&
		ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusForbidden
}

// neutral collapses the absence sentinels to a nil result.
func neutral(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable)
}

// ---- Typed fetchers ----

// Repository returns nil without error when the repository is absent or
// refused.
func (c *Client) Repository(ctx context.Context, owner, repo string) (*gh.Repository, error) {
	r, err := call(ctx, c, "get repository", func(ctx context.Context, api *gh.Client) (*gh.Repository, *gh.Response, error) {
		return api.Repositories.Get(ctx, owner, repo)
	})
	if neutral(err) {
		return nil, nil
	}
	return r, err
}

// ListCommits fetches the newest commits on a branch, newest first.
func (c *Client) ListCommits(ctx context.Context, owner, repo, branch string, perPage int) ([]*gh.RepositoryCommit, error) {
	if perPage <= 0 {
		perPage = 10
	}
	opts := &gh.CommitsListOptions{
		SHA:         branch,
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	commits, err := call(ctx, c, "list commits", func(ctx context.Context, api *gh.Client) ([]*gh.RepositoryCommit, *gh.Response, error) {
		return api.Repositories.ListCommits(ctx, owner, repo, opts)
	})
	if neutral(err) {
		return nil, nil
	}
	return commits, err
}

// LatestStargazer returns the first stargazer page entry for attribution.
// Best-effort: nil when the list is empty or unavailable.
func (c *Client) LatestStargazer(ctx context.Context, owner, repo string) (*gh.User, error) {
	opts := &gh.ListOptions{PerPage: 1}
	gazers, err := call(ctx, c, "list stargazers", func(ctx context.Context, api *gh.Client) ([]*gh.Stargazer, *gh.Response, error) {
		return api.Activity.ListStargazers(ctx, owner, repo, opts)
	})
	if neutral(err) {
		return nil, nil
	}
	if err != nil || len(gazers) == 0 {
		return nil, err
	}
	return gazers[0].User, nil
}

// Languages returns the language-byte histogram; empty when unavailable.
func (c *Client) Languages(ctx context.Context, owner, repo string) (map[string]int, error) {
	langs, err := call(ctx, c, "list languages", func(ctx context.Context, api *gh.Client) (map[string]int, *gh.Response, error) {
		return api.Repositories.ListLanguages(ctx, owner, repo)
	})
	if neutral(err) {
		return map[string]int{}, nil
	}
	return langs, err
}

// SearchIssueCount returns the exact count of issues or pull requests in a
// state, via the search API's total_count ("is" must be "issue" or "pr").
func (c *Client) SearchIssueCount(ctx context.Context, repoKey, is, state string) (int, error) {
	query := fmt.Sprintf("repo:%s is:%s state:%s", repoKey, is, state)
	opts := &gh.SearchOptions{ListOptions: gh.ListOptions{PerPage: 1}}
	result, err := call(ctx, c, "search count", func(ctx context.Context, api *gh.Client) (*gh.IssuesSearchResult, *gh.Response, error) {
		res, resp, err := api.Search.Issues(ctx, query, opts)
		return res, resp, err
	})
	if neutral(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return result.GetTotal(), nil
}
