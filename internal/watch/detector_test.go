package watch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	gh "github.com/google/go-github/v62/github"

	"ghnotify/internal/event"
	"ghnotify/internal/github"
	"ghnotify/internal/store"
	"ghnotify/pkg/logx"
)

type fakeFetcher struct {
	repo    *gh.Repository
	repoErr error

	commits    []*gh.RepositoryCommit
	commitsErr error

	gazer *gh.User
	langs map[string]int
	count int

	repoCalls int
}

func (f *fakeFetcher) Repository(context.Context, string, string) (*gh.Repository, error) {
	f.repoCalls++
	return f.repo, f.repoErr
}

func (f *fakeFetcher) ListCommits(context.Context, string, string, string, int) ([]*gh.RepositoryCommit, error) {
	return f.commits, f.commitsErr
}

func (f *fakeFetcher) LatestStargazer(context.Context, string, string) (*gh.User, error) {
	return f.gazer, nil
}

func (f *fakeFetcher) Languages(context.Context, string, string) (map[string]int, error) {
	return f.langs, nil
}

func (f *fakeFetcher) SearchIssueCount(context.Context, string, string, string) (int, error) {
	return f.count, nil
}

func repoInfo(stars int, branch string) *gh.Repository {
	return &gh.Repository{
		StargazersCount: gh.Int(stars),
		ForksCount:      gh.Int(1),
		DefaultBranch:   gh.String(branch),
	}
}

func ghCommit(sha, msg, login string) *gh.RepositoryCommit {
	return &gh.RepositoryCommit{
		SHA:     gh.String(sha),
		HTMLURL: gh.String("https://github.com/o/r/commit/" + sha),
		Author:  &gh.User{Login: gh.String(login)},
		Commit:  &gh.Commit{Message: gh.String(msg)},
	}
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "state.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func subscribe(t *testing.T, db *store.DB, sub store.Subscription) {
	t.Helper()
	if _, err := db.Add(sub); err != nil {
		t.Fatal(err)
	}
}

func TestCheckFirstRunRecordsBaseline(t *testing.T) {
	t.Parallel()
	db := testDB(t)
	subscribe(t, db, store.Subscription{RepoKey: "o/r", ChatID: 1})

	f := &fakeFetcher{
		repo:    repoInfo(0, "main"),
		commits: []*gh.RepositoryCommit{ghCommit("aaa", "first", "dev")},
	}
	det := NewDetector(db, f, DetectorConfig{}, logx.Nop())

	descs, err := det.Check(context.Background(), "o/r")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(descs) != 0 {
		t.Fatalf("baseline run must emit nothing, got %+v", descs)
	}
	sub, _ := db.Get("o/r", 1)
	if sub.LastCommitSHA != "aaa" {
		t.Fatalf("baseline marker not persisted: %+v", sub)
	}
}

func TestCheckDetectsNewCommits(t *testing.T) {
	t.Parallel()
	db := testDB(t)
	subscribe(t, db, store.Subscription{RepoKey: "o/r", ChatID: 1, LastCommitSHA: "abc"})

	f := &fakeFetcher{
		repo: repoInfo(0, "dev"),
		commits: []*gh.RepositoryCommit{
			ghCommit("x", "newest", "dev"),
			ghCommit("y", "newer", "dev"),
			ghCommit("abc", "known", "dev"),
			ghCommit("z", "old", "dev"),
		},
	}
	det := NewDetector(db, f, DetectorConfig{}, logx.Nop())

	descs, err := det.Check(context.Background(), "o/r")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(descs) != 1 || descs[0].Kind != event.KindCommit {
		t.Fatalf("expected one commit descriptor, got %+v", descs)
	}
	p := descs[0].Payload
	if len(p.Commits) != 2 || p.Commits[0].SHA != "x" || p.Commits[1].SHA != "y" {
		t.Fatalf("wrong commit batch: %+v", p.Commits)
	}
	if p.NewCommitSHA != "x" {
		t.Fatalf("marker must advance to the newest commit, got %q", p.NewCommitSHA)
	}
	if p.Branch != "dev" {
		t.Fatalf("branch = %q", p.Branch)
	}
}

func TestCheckMarkerBeyondPageTreatsPageAsNew(t *testing.T) {
	t.Parallel()
	db := testDB(t)
	subscribe(t, db, store.Subscription{RepoKey: "o/r", ChatID: 1, LastCommitSHA: "gone"})

	f := &fakeFetcher{
		repo: repoInfo(0, "main"),
		commits: []*gh.RepositoryCommit{
			ghCommit("a", "one", "dev"),
			ghCommit("b", "two", "dev"),
		},
	}
	det := NewDetector(db, f, DetectorConfig{}, logx.Nop())

	descs, err := det.Check(context.Background(), "o/r")
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 1 || len(descs[0].Payload.Commits) != 2 {
		t.Fatalf("whole page must count as new when the marker fell off: %+v", descs)
	}
}

func TestCheckNoNewCommits(t *testing.T) {
	t.Parallel()
	db := testDB(t)
	subscribe(t, db, store.Subscription{RepoKey: "o/r", ChatID: 1, LastCommitSHA: "tip"})

	f := &fakeFetcher{
		repo:    repoInfo(0, "main"),
		commits: []*gh.RepositoryCommit{ghCommit("tip", "same", "dev")},
	}
	det := NewDetector(db, f, DetectorConfig{}, logx.Nop())

	descs, err := det.Check(context.Background(), "o/r")
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 0 {
		t.Fatalf("unchanged tip must emit nothing: %+v", descs)
	}
}

func TestCheckStarIncrease(t *testing.T) {
	t.Parallel()
	db := testDB(t)
	sub := store.Subscription{RepoKey: "o/r", ChatID: 1, LastCommitSHA: "tip", LastStarCount: 3}
	subscribe(t, db, sub)

	f := &fakeFetcher{
		repo:    repoInfo(5, "main"),
		commits: []*gh.RepositoryCommit{ghCommit("tip", "same", "dev")},
		gazer:   &gh.User{Login: gh.String("fan"), Name: gh.String("Fan Person")},
	}
	det := NewDetector(db, f, DetectorConfig{}, logx.Nop())

	descs, err := det.Check(context.Background(), "o/r")
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 1 || descs[0].Kind != event.KindStar {
		t.Fatalf("expected a star descriptor, got %+v", descs)
	}
	p := descs[0].Payload
	if p.StarCount != 5 || p.Actor != "fan" || p.NewStarCount == nil || *p.NewStarCount != 5 {
		t.Fatalf("star payload wrong: %+v", p)
	}
}

func TestCheckStarDecreaseResetsSilently(t *testing.T) {
	t.Parallel()
	db := testDB(t)
	subscribe(t, db, store.Subscription{RepoKey: "o/r", ChatID: 1, LastCommitSHA: "tip", LastStarCount: 10})

	f := &fakeFetcher{
		repo:    repoInfo(7, "main"),
		commits: []*gh.RepositoryCommit{ghCommit("tip", "same", "dev")},
	}
	det := NewDetector(db, f, DetectorConfig{}, logx.Nop())

	descs, err := det.Check(context.Background(), "o/r")
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 0 {
		t.Fatalf("star decrease must not notify: %+v", descs)
	}
	got, _ := db.Get("o/r", 1)
	if got.LastStarCount != 7 {
		t.Fatalf("marker must reset to the lower count, got %d", got.LastStarCount)
	}
}

func TestCheckUnreachableRepositoryIsQuiet(t *testing.T) {
	t.Parallel()
	db := testDB(t)
	subscribe(t, db, store.Subscription{RepoKey: "o/r", ChatID: 1})

	det := NewDetector(db, &fakeFetcher{repo: nil}, DetectorConfig{}, logx.Nop())
	descs, err := det.Check(context.Background(), "o/r")
	if err != nil || len(descs) != 0 {
		t.Fatalf("vanished repository must be a no-op: descs=%v err=%v", descs, err)
	}
}

func TestCheckRefreshesStatistics(t *testing.T) {
	t.Parallel()
	db := testDB(t)
	subscribe(t, db, store.Subscription{RepoKey: "o/r", ChatID: 1, LastCommitSHA: "tip"})

	f := &fakeFetcher{
		repo:    repoInfo(9, "main"),
		commits: []*gh.RepositoryCommit{ghCommit("tip", "same", "dev")},
		langs:   map[string]int{"Go": 4096},
		count:   2,
	}
	det := NewDetector(db, f, DetectorConfig{Stats: true}, logx.Nop())
	if _, err := det.Check(context.Background(), "o/r"); err != nil {
		t.Fatal(err)
	}

	st, ok := db.Statistics("o/r")
	if !ok {
		t.Fatal("statistics not stored")
	}
	if st.Stars != 9 || st.Forks != 1 || st.Issues.Open != 2 || st.Issues.Total != 4 {
		t.Fatalf("statistics wrong: %+v", st)
	}
	if st.Languages["Go"] != 4096 {
		t.Fatalf("languages wrong: %+v", st.Languages)
	}
}

type recordingDispatcher struct {
	descs []event.Descriptor
}

func (r *recordingDispatcher) Dispatch(_ context.Context, d event.Descriptor) error {
	r.descs = append(r.descs, d)
	return nil
}

func TestPollerQuotaSkipsRemainderOfCycle(t *testing.T) {
	t.Parallel()
	db := testDB(t)
	subscribe(t, db, store.Subscription{RepoKey: "a/r", ChatID: 1})
	subscribe(t, db, store.Subscription{RepoKey: "b/r", ChatID: 1})

	f := &fakeFetcher{repoErr: &github.QuotaError{Wait: time.Hour}}
	det := NewDetector(db, f, DetectorConfig{}, logx.Nop())
	disp := &recordingDispatcher{}

	sched, _ := ParseSchedule("1h")
	p := NewPoller(db, det, disp, PollerConfig{Schedule: sched, RepoDelay: time.Millisecond}, logx.Nop())
	p.runCycle(context.Background())

	if f.repoCalls != 1 {
		t.Fatalf("quota exhaustion must stop the cycle after the first repo, got %d calls", f.repoCalls)
	}
	if len(disp.descs) != 0 {
		t.Fatalf("nothing may be dispatched: %+v", disp.descs)
	}
}

func TestPollerIsolatesRepositoryFailures(t *testing.T) {
	t.Parallel()
	db := testDB(t)
	subscribe(t, db, store.Subscription{RepoKey: "a/r", ChatID: 1})
	subscribe(t, db, store.Subscription{RepoKey: "b/r", ChatID: 1})

	f := &fakeFetcher{repoErr: context.DeadlineExceeded}
	det := NewDetector(db, f, DetectorConfig{}, logx.Nop())
	disp := &recordingDispatcher{}

	sched, _ := ParseSchedule("1h")
	p := NewPoller(db, det, disp, PollerConfig{Schedule: sched, RepoDelay: time.Millisecond}, logx.Nop())
	p.runCycle(context.Background())

	if f.repoCalls != 2 {
		t.Fatalf("a transient failure must not stop the cycle, got %d calls", f.repoCalls)
	}
}
