package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ghnotify/internal/event"
)

// Subscription is one chat's tracking record for one repository. At most one
// exists per (RepoKey, ChatID) pair.
type Subscription struct {
	RepoKey  string `json:"repo_key"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`

	Events event.Preferences `json:"events"`

	// Last-seen markers, repository-scoped but stored per record so a chat's
	// view survives other chats unsubscribing. They only move forward except
	// for the documented silent star-baseline reset.
	LastCommitSHA string `json:"last_commit_sha,omitempty"`
	LastStarCount int    `json:"last_star_count"`

	// GitHubToken optionally overrides the shared credential pool for this
	// repository's poll checks.
	GitHubToken string `json:"github_token,omitempty"`

	AddedAt time.Time `json:"added_at"`
}

// Key is the storage key, "owner/name:chatID".
func (s *Subscription) Key() string {
	return storageKey(s.RepoKey, s.ChatID)
}

func storageKey(repoKey string, chatID int64) string {
	return repoKey + ":" + strconv.FormatInt(chatID, 10)
}

// RepositoryStatistics is aggregate repository state, keyed by repo only.
// It outlives subscriptions: unsubscribing keeps the numbers for history.
type RepositoryStatistics struct {
	Stars        int              `json:"stars"`
	Forks        int              `json:"forks"`
	Issues       CountByState     `json:"issues"`
	PullRequests CountByState     `json:"pull_requests"`
	Languages    map[string]int64 `json:"languages,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type CountByState struct {
	Open   int `json:"open"`
	Closed int `json:"closed"`
	Total  int `json:"total"`
}

// Snapshot is the full persisted state.
type Snapshot struct {
	Subscriptions map[string]*Subscription         `json:"repositories"`
	Statistics    map[string]*RepositoryStatistics `json:"statistics"`
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Subscriptions: map[string]*Subscription{},
		Statistics:    map[string]*RepositoryStatistics{},
	}
}

// SplitRepoKey splits "owner/name" into its parts.
func SplitRepoKey(repoKey string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repoKey, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid repository key %q", repoKey)
	}
	return owner, name, nil
}
