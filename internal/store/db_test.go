package store

import (
	"path/filepath"
	"testing"

	"ghnotify/internal/event"
	"ghnotify/pkg/logx"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAddIsUniquePerRepoAndChat(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	ok, err := db.Add(Subscription{RepoKey: "o/r", ChatID: 1})
	if err != nil || !ok {
		t.Fatalf("first add: ok=%v err=%v", ok, err)
	}
	ok, err = db.Add(Subscription{RepoKey: "o/r", ChatID: 1})
	if err != nil || ok {
		t.Fatalf("duplicate add must be rejected: ok=%v err=%v", ok, err)
	}
	if ok, err = db.Add(Subscription{RepoKey: "o/r", ChatID: 2}); err != nil || !ok {
		t.Fatalf("same repo, other chat: ok=%v err=%v", ok, err)
	}
	if subs := db.ByRepo("o/r"); len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subs))
	}
}

func TestRemoveKeepsStatistics(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	if _, err := db.Add(Subscription{RepoKey: "o/r", ChatID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateStatistics("o/r", RepositoryStatistics{Stars: 7}); err != nil {
		t.Fatal(err)
	}
	ok, err := db.Remove("o/r", 1)
	if err != nil || !ok {
		t.Fatalf("remove: ok=%v err=%v", ok, err)
	}
	if ok, _ = db.Remove("o/r", 1); ok {
		t.Fatal("second remove must report not found")
	}
	st, ok := db.Statistics("o/r")
	if !ok || st.Stars != 7 {
		t.Fatalf("statistics must survive unsubscribe: ok=%v stars=%d", ok, st.Stars)
	}
}

func TestUpdateMarkersTouchesAllSubscribers(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	for _, chat := range []int64{1, 2, 3} {
		if _, err := db.Add(Subscription{RepoKey: "o/r", ChatID: chat}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.Add(Subscription{RepoKey: "other/r", ChatID: 1}); err != nil {
		t.Fatal(err)
	}

	sha := "abc123"
	stars := 42
	if err := db.UpdateMarkers("o/r", &sha, &stars); err != nil {
		t.Fatalf("UpdateMarkers: %v", err)
	}
	for _, sub := range db.ByRepo("o/r") {
		if sub.LastCommitSHA != "abc123" || sub.LastStarCount != 42 {
			t.Fatalf("marker not applied: %+v", sub)
		}
	}
	other, _ := db.Get("other/r", 1)
	if other.LastCommitSHA != "" || other.LastStarCount != 0 {
		t.Fatalf("unrelated repo touched: %+v", other)
	}

	// Nil arguments leave markers alone.
	if err := db.UpdateMarkers("o/r", nil, nil); err != nil {
		t.Fatal(err)
	}
	if sub, _ := db.Get("o/r", 1); sub.LastCommitSHA != "abc123" {
		t.Fatalf("no-op update clobbered marker: %+v", sub)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")

	db, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	sub := Subscription{RepoKey: "o/r", ChatID: 5, ThreadID: 9, GitHubToken: "ghp_x"}
	sub.Events.Issues.Opened = true
	if _, err := db.Add(sub); err != nil {
		t.Fatal(err)
	}
	if _, err := db.UpdateEvents("o/r", 5, func(p *event.Preferences) { p.Commits = true }); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db2, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	got, ok := db2.Get("o/r", 5)
	if !ok {
		t.Fatal("subscription lost across restart")
	}
	if !got.Events.Issues.Opened || !got.Events.Commits || got.ThreadID != 9 || got.GitHubToken != "ghp_x" {
		t.Fatalf("round trip mangled record: %+v", got)
	}
}

func TestReposDistinctSorted(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	for _, s := range []Subscription{
		{RepoKey: "b/r", ChatID: 1},
		{RepoKey: "a/r", ChatID: 1},
		{RepoKey: "a/r", ChatID: 2},
	} {
		if _, err := db.Add(s); err != nil {
			t.Fatal(err)
		}
	}
	repos := db.Repos()
	if len(repos) != 2 || repos[0] != "a/r" || repos[1] != "b/r" {
		t.Fatalf("Repos() = %v", repos)
	}
}
