package github

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	gh "github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghnotify/internal/eventbus"
	"ghnotify/pkg/logx"
)

func newTestClient(t *testing.T, tokens []string, bus eventbus.Bus) *Client {
	t.Helper()
	pool, err := NewPool(tokens)
	require.NoError(t, err)
	c := NewClient(pool, ClientConfig{WaitThreshold: 300 * time.Second}, logx.Nop(), bus)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func rateLimitErr(resetAt time.Time) error {
	return &gh.RateLimitError{
		Rate: gh.Rate{Remaining: 0, Limit: limitAuthenticated, Reset: gh.Timestamp{Time: resetAt}},
		Response: &http.Response{
			StatusCode: http.StatusForbidden,
			Request:    &http.Request{Method: http.MethodGet},
		},
	}
}

func errorResponse(status int) error {
	return &gh.ErrorResponse{Response: &http.Response{
		StatusCode: status,
		Request:    &http.Request{Method: http.MethodGet},
	}}
}

func TestCallFailsFastWhenResetBeyondThreshold(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(1)
	defer unsub()

	c := newTestClient(t, []string{"ghp_a"}, bus)
	exhaust(c.pool.creds[0], time.Now().Add(20*time.Minute))

	called := false
	_, err := call(context.Background(), c, "probe", func(context.Context, *gh.Client) (int, *gh.Response, error) {
		called = true
		return 0, nil, nil
	})

	var qe *QuotaError
	require.ErrorAs(t, err, &qe)
	assert.False(t, called, "no upstream call may be made past the wait threshold")
	assert.Greater(t, qe.Wait, 15*time.Minute)

	select {
	case e := <-events:
		assert.Equal(t, QuotaEventType, e.Type)
		data, ok := e.Data.(QuotaEvent)
		require.True(t, ok)
		assert.Equal(t, 1, data.Credentials)
	default:
		t.Fatal("quota exhaustion must be published on the bus")
	}
}

func TestCallWaitsForShortReset(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, []string{"ghp_a"}, nil)
	exhaust(c.pool.creds[0], time.Now().Add(10*time.Second))

	var slept time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	got, err := call(context.Background(), c, "probe", func(context.Context, *gh.Client) (string, *gh.Response, error) {
		return "ok", nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Greater(t, slept, 10*time.Second, "sleep must cover the reset plus a safety second")
}

func TestCallSwitchesCredentialOnQuotaError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, []string{"ghp_a", "ghp_b"}, nil)

	attempts := 0
	got, err := call(context.Background(), c, "probe", func(context.Context, *gh.Client) (string, *gh.Response, error) {
		attempts++
		if attempts == 1 {
			return "", nil, rateLimitErr(time.Now().Add(time.Hour))
		}
		return "ok", nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, attempts, "exactly one credential switch, no recursion")
}

func TestCallBoundsAttemptsAtTwo(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, []string{"ghp_a", "ghp_b", "ghp_c"}, nil)

	attempts := 0
	_, err := call(context.Background(), c, "probe", func(context.Context, *gh.Client) (int, *gh.Response, error) {
		attempts++
		return 0, nil, rateLimitErr(time.Now().Add(time.Hour))
	})

	var qe *QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 2, attempts)
}

func TestCallSingleCredentialWaitsInsteadOfSwitching(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, []string{"ghp_a"}, nil)

	slept := false
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = true
		return nil
	}

	attempts := 0
	got, err := call(context.Background(), c, "probe", func(context.Context, *gh.Client) (string, *gh.Response, error) {
		attempts++
		if attempts == 1 {
			return "", nil, rateLimitErr(time.Now().Add(5 * time.Second))
		}
		return "ok", nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.True(t, slept)
}

func TestCallClassifiesNotFoundAndForbidden(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, []string{"ghp_a"}, nil)

	_, err := call(context.Background(), c, "probe", func(context.Context, *gh.Client) (int, *gh.Response, error) {
		return 0, nil, errorResponse(http.StatusNotFound)
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = call(context.Background(), c, "probe", func(context.Context, *gh.Client) (int, *gh.Response, error) {
		return 0, nil, errorResponse(http.StatusForbidden)
	})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCallWrapsTransientErrors(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, []string{"ghp_a"}, nil)

	boom := errors.New("connection reset")
	_, err := call(context.Background(), c, "list commits", func(context.Context, *gh.Client) (int, *gh.Response, error) {
		return 0, nil, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "list commits")
}

func TestCallRecordsQuotaFromResponses(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, []string{"ghp_a"}, nil)

	resetAt := time.Now().Add(time.Hour).Truncate(time.Second)
	resp := &gh.Response{Rate: gh.Rate{Remaining: 123, Limit: limitAuthenticated, Reset: gh.Timestamp{Time: resetAt}}}
	_, err := call(context.Background(), c, "probe", func(context.Context, *gh.Client) (int, *gh.Response, error) {
		return 1, resp, nil
	})
	require.NoError(t, err)

	remaining, limit, gotReset := c.pool.creds[0].Quota()
	assert.Equal(t, 123, remaining)
	assert.Equal(t, limitAuthenticated, limit)
	assert.Equal(t, resetAt, gotReset)
}

func TestRepositoryMapsAbsenceToNil(t *testing.T) {
	t.Parallel()
	// Fetchers collapse the sentinels; exercised through the helper they
	// all share.
	assert.True(t, neutral(ErrNotFound))
	assert.True(t, neutral(ErrUnavailable))
	assert.False(t, neutral(errors.New("other")))
}

func TestWithTokenBuildsIsolatedPool(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, []string{"ghp_a", "ghp_b"}, nil)

	override, err := c.WithToken("ghp_private")
	require.NoError(t, err)
	assert.Equal(t, 1, override.Pool().Size())
	assert.True(t, override.Pool().Authenticated())
	assert.Equal(t, 2, c.Pool().Size(), "parent pool untouched")
}
