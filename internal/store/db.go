package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"ghnotify/internal/event"
	"ghnotify/pkg/logx"
)

// DB is the persistence facade. Every operation is a full load-mutate-save
// sequence under one mutex; the in-memory snapshot is authoritative between
// saves.
type DB struct {
	mu   sync.Mutex
	be   backend
	snap *Snapshot
	log  logx.Logger
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.be.close()
}

func (d *DB) persistLocked() error {
	if err := d.be.save(d.snap); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// Add creates a subscription. Returns false if the (repo, chat) pair already
// has one. A statistics record is created for the repository if missing.
func (d *DB) Add(sub Subscription) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := sub.Key()
	if _, exists := d.snap.Subscriptions[key]; exists {
		return false, nil
	}
	if sub.AddedAt.IsZero() {
		sub.AddedAt = time.Now().UTC()
	}
	d.snap.Subscriptions[key] = &sub
	if _, ok := d.snap.Statistics[sub.RepoKey]; !ok {
		d.snap.Statistics[sub.RepoKey] = &RepositoryStatistics{}
	}
	return true, d.persistLocked()
}

// Remove deletes a subscription. Statistics for the repository are kept.
func (d *DB) Remove(repoKey string, chatID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := storageKey(repoKey, chatID)
	if _, exists := d.snap.Subscriptions[key]; !exists {
		return false, nil
	}
	delete(d.snap.Subscriptions, key)
	return true, d.persistLocked()
}

// Get returns a copy of one subscription.
func (d *DB) Get(repoKey string, chatID int64) (Subscription, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sub, ok := d.snap.Subscriptions[storageKey(repoKey, chatID)]
	if !ok {
		return Subscription{}, false
	}
	return *sub, true
}

// ByRepo returns copies of every subscription for one repository, ordered by
// chat id for deterministic fan-out.
func (d *DB) ByRepo(repoKey string) []Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byRepoLocked(repoKey)
}

func (d *DB) byRepoLocked(repoKey string) []Subscription {
	var out []Subscription
	for _, sub := range d.snap.Subscriptions {
		if sub.RepoKey == repoKey {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

// ByChat returns copies of one chat's subscriptions, ordered by repo key.
func (d *DB) ByChat(chatID int64) []Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Subscription
	for _, sub := range d.snap.Subscriptions {
		if sub.ChatID == chatID {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RepoKey < out[j].RepoKey })
	return out
}

// Repos returns the distinct tracked repository keys, sorted.
func (d *DB) Repos() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := map[string]struct{}{}
	for _, sub := range d.snap.Subscriptions {
		seen[sub.RepoKey] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// UpdateEvents applies fn to one subscription's preference tree.
func (d *DB) UpdateEvents(repoKey string, chatID int64, fn func(*event.Preferences)) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sub, ok := d.snap.Subscriptions[storageKey(repoKey, chatID)]
	if !ok {
		return false, nil
	}
	fn(&sub.Events)
	return true, d.persistLocked()
}

// UpdateMarkers sets the last-seen markers for every subscription of a
// repository in one write. Nil arguments leave a marker untouched.
func (d *DB) UpdateMarkers(repoKey string, commitSHA *string, starCount *int) error {
	if commitSHA == nil && starCount == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	touched := false
	for _, sub := range d.snap.Subscriptions {
		if sub.RepoKey != repoKey {
			continue
		}
		if commitSHA != nil {
			sub.LastCommitSHA = *commitSHA
		}
		if starCount != nil {
			sub.LastStarCount = *starCount
		}
		touched = true
	}
	if !touched {
		return nil
	}
	return d.persistLocked()
}

// UpdateStatistics replaces the aggregate statistics for a repository.
func (d *DB) UpdateStatistics(repoKey string, stats RepositoryStatistics) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if stats.UpdatedAt.IsZero() {
		stats.UpdatedAt = time.Now().UTC()
	}
	d.snap.Statistics[repoKey] = &stats
	return d.persistLocked()
}

// Statistics returns a copy of one repository's statistics.
func (d *DB) Statistics(repoKey string) (RepositoryStatistics, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.snap.Statistics[repoKey]
	if !ok {
		return RepositoryStatistics{}, false
	}
	cp := *st
	if st.Languages != nil {
		cp.Languages = make(map[string]int64, len(st.Languages))
		for k, v := range st.Languages {
			cp.Languages[k] = v
		}
	}
	return cp, true
}

// Stats-free convenience for logging.
func (d *DB) Counts() (subs, repos int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := map[string]struct{}{}
	for _, sub := range d.snap.Subscriptions {
		seen[sub.RepoKey] = struct{}{}
	}
	return len(d.snap.Subscriptions), len(seen)
}
