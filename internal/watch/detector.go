// Package watch is the polling half of change detection: a schedule, a
// detector that diffs upstream state against persisted markers, and the
// poller loop driving it across every tracked repository.
package watch

import (
	"context"
	"fmt"
	"time"

	gh "github.com/google/go-github/v62/github"

	"ghnotify/internal/event"
	"ghnotify/internal/store"
	"ghnotify/pkg/logx"
)

// Fetcher is the upstream surface the detector needs. The production
// implementation is the pooled API client.
type Fetcher interface {
	Repository(ctx context.Context, owner, repo string) (*gh.Repository, error)
	ListCommits(ctx context.Context, owner, repo, branch string, perPage int) ([]*gh.RepositoryCommit, error)
	LatestStargazer(ctx context.Context, owner, repo string) (*gh.User, error)
	Languages(ctx context.Context, owner, repo string) (map[string]int, error)
	SearchIssueCount(ctx context.Context, repoKey, is, state string) (int, error)
}

type DetectorConfig struct {
	// CommitPage is how many commits one check may look back through.
	CommitPage int
	// Stats enables the per-cycle statistics refresh.
	Stats bool
}

type Detector struct {
	db    *store.DB
	fetch Fetcher
	// override builds a fetcher for a subscription-supplied token.
	override func(token string) (Fetcher, error)
	cfg      DetectorConfig
	log      logx.Logger
}

func NewDetector(db *store.DB, fetch Fetcher, cfg DetectorConfig, log logx.Logger) *Detector {
	if cfg.CommitPage <= 0 {
		cfg.CommitPage = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Detector{db: db, fetch: fetch, cfg: cfg, log: log}
}

// WithOverride installs the factory used when a subscription carries its own
// token.
func (d *Detector) WithOverride(f func(token string) (Fetcher, error)) *Detector {
	d.override = f
	return d
}

// Check diffs one repository against its persisted markers and returns the
// detected changes. First sight of a repository persists a baseline and
// emits nothing. A vanished or refused repository is a quiet no-op.
func (d *Detector) Check(ctx context.Context, repoKey string) ([]event.Descriptor, error) {
	subs := d.db.ByRepo(repoKey)
	if len(subs) == 0 {
		return nil, nil
	}
	owner, repo, err := store.SplitRepoKey(repoKey)
	if err != nil {
		return nil, err
	}

	fetch := d.fetch
	if token := subs[0].GitHubToken; token != "" && d.override != nil {
		f, err := d.override(token)
		if err != nil {
			d.log.Warn("subscription token rejected, using shared pool",
				logx.String("repo", repoKey), logx.Err(err))
		} else {
			fetch = f
		}
	}

	info, err := fetch.Repository(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	if info == nil {
		d.log.Debug("repository not reachable, skipping", logx.String("repo", repoKey))
		return nil, nil
	}

	var out []event.Descriptor

	star, err := d.checkStars(repoKey, subs[0], info, func() (*gh.User, error) {
		return fetch.LatestStargazer(ctx, owner, repo)
	})
	if err != nil {
		return nil, err
	}
	if star != nil {
		out = append(out, *star)
	}

	commit, err := d.checkCommits(ctx, fetch, repoKey, owner, repo, subs[0], info)
	if err != nil {
		return nil, err
	}
	if commit != nil {
		out = append(out, *commit)
	}

	if d.cfg.Stats {
		if err := d.refreshStatistics(ctx, fetch, repoKey, owner, repo, info); err != nil {
			// Statistics are decorative; a failed refresh must not hide
			// detected changes.
			d.log.Warn("statistics refresh failed", logx.String("repo", repoKey), logx.Err(err))
		}
	}
	return out, nil
}

// checkStars compares the live count against the marker. An increase emits a
// descriptor carrying the new count; a decrease resets the marker silently
// so the next increase is measured from the lower base.
func (d *Detector) checkStars(repoKey string, sub store.Subscription, info *gh.Repository, gazer func() (*gh.User, error)) (*event.Descriptor, error) {
	current := info.GetStargazersCount()
	last := sub.LastStarCount

	switch {
	case current > last:
		p := event.Payload{StarCount: current, NewStarCount: &current}
		if u, err := gazer(); err == nil && u != nil {
			p.Actor = u.GetLogin()
			p.ActorName = u.GetName()
		}
		return &event.Descriptor{RepoKey: repoKey, Kind: event.KindStar, Payload: p}, nil

	case current < last:
		d.log.Debug("star count decreased, resetting marker",
			logx.String("repo", repoKey), logx.Int("from", last), logx.Int("to", current))
		return nil, d.db.UpdateMarkers(repoKey, nil, &current)
	}
	return nil, nil
}

func (d *Detector) checkCommits(ctx context.Context, fetch Fetcher, repoKey, owner, repo string, sub store.Subscription, info *gh.Repository) (*event.Descriptor, error) {
	branch := info.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}

	commits, err := fetch.ListCommits(ctx, owner, repo, branch, d.cfg.CommitPage)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, nil
	}

	if sub.LastCommitSHA == "" {
		// Baseline: remember the tip, announce nothing.
		sha := commits[0].GetSHA()
		d.log.Info("commit baseline recorded", logx.String("repo", repoKey), logx.String("sha", sha))
		return nil, d.db.UpdateMarkers(repoKey, &sha, nil)
	}

	// Walk newest-first until the marker. A marker past the page horizon
	// makes the whole page count as new.
	var fresh []event.Commit
	for _, c := range commits {
		if c.GetSHA() == sub.LastCommitSHA {
			break
		}
		fresh = append(fresh, convertCommit(c))
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	return &event.Descriptor{
		RepoKey: repoKey,
		Kind:    event.KindCommit,
		Payload: event.Payload{
			Branch:       branch,
			Commits:      fresh,
			NewCommitSHA: fresh[0].SHA,
		},
	}, nil
}

func convertCommit(c *gh.RepositoryCommit) event.Commit {
	out := event.Commit{
		SHA: c.GetSHA(),
		URL: c.GetHTMLURL(),
	}
	if c.Author != nil {
		out.Author = c.Author.GetLogin()
	}
	if cm := c.GetCommit(); cm != nil {
		out.Message = cm.GetMessage()
		if cm.Author != nil {
			out.AuthorName = cm.Author.GetName()
		}
	}
	if st := c.GetStats(); st != nil {
		out.Additions = st.GetAdditions()
		out.Deletions = st.GetDeletions()
	}
	return out
}

func (d *Detector) refreshStatistics(ctx context.Context, fetch Fetcher, repoKey, owner, repo string, info *gh.Repository) error {
	st := store.RepositoryStatistics{
		Stars:     info.GetStargazersCount(),
		Forks:     info.GetForksCount(),
		UpdatedAt: time.Now().UTC(),
	}

	type probe struct {
		is, state string
		dst       *int
	}
	probes := []probe{
		{"issue", "open", &st.Issues.Open},
		{"issue", "closed", &st.Issues.Closed},
		{"pr", "open", &st.PullRequests.Open},
		{"pr", "closed", &st.PullRequests.Closed},
	}
	for _, p := range probes {
		n, err := fetch.SearchIssueCount(ctx, repoKey, p.is, p.state)
		if err != nil {
			return fmt.Errorf("count %s/%s: %w", p.is, p.state, err)
		}
		*p.dst = n
	}
	st.Issues.Total = st.Issues.Open + st.Issues.Closed
	st.PullRequests.Total = st.PullRequests.Open + st.PullRequests.Closed

	langs, err := fetch.Languages(ctx, owner, repo)
	if err != nil {
		return err
	}
	if len(langs) > 0 {
		st.Languages = make(map[string]int64, len(langs))
		for name, size := range langs {
			st.Languages[name] = int64(size)
		}
	}
	return d.db.UpdateStatistics(repoKey, st)
}
