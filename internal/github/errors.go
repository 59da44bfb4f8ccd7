package github

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is neutral absence: the repository (or endpoint resource)
	// does not exist or is not visible to the credential.
	ErrNotFound = errors.New("github: not found")

	// ErrUnavailable is a non-quota 403: the endpoint refuses this
	// repository (too large, access blocked). Callers treat it as
	// "feature unavailable", never as a failed cycle.
	ErrUnavailable = errors.New("github: unavailable for repository")
)

// QuotaError reports that no credential has quota left and the wait until
// the earliest reset exceeds what the caller should sleep through. It means
// "skip this cycle", not "abort".
type QuotaError struct {
	Wait time.Duration
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("github: quota exhausted, resets in %s", e.Wait.Round(time.Second))
}

// QuotaEventType is published on the event bus when a call fails fast on
// quota exhaustion, so the alert worker can tell the operator without the
// HTTP layer knowing anything about notification sinks.
const QuotaEventType = "github.quota_exhausted"

type QuotaEvent struct {
	Wait        time.Duration `json:"wait"`
	ResetAt     time.Time     `json:"reset_at"`
	Credentials int           `json:"credentials"`
}
