package format

import (
	"strings"
	"testing"
	"time"

	"ghnotify/internal/event"
	"ghnotify/internal/store"
)

func TestRenderCommits(t *testing.T) {
	t.Parallel()
	n := 42
	d := event.Descriptor{
		RepoKey: "octo/hello",
		Kind:    event.KindCommit,
		Payload: event.Payload{
			Branch:     "main",
			CompareURL: "https://github.com/octo/hello/compare/a...b",
			Commits: []event.Commit{
				{
					SHA:        "abcdef1234567890",
					Message:    "fix parser\n\ndetails below",
					Author:     "octo",
					AuthorName: "Octo Cat",
					URL:        "https://github.com/octo/hello/commit/abcdef1234567890",
					Additions:  3,
					Deletions:  1,
				},
			},
			NewStarCount: &n,
		},
	}
	got := Render(d)

	for _, want := range []string{
		"new commits!",
		"<b>1 commits pushed.</b>",
		"<code>#abcdef1</code>",
		`<a href="https://github.com/octo">Octo Cat</a>`,
		"<code>+ 3</code>",
		"<code>- 1</code>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "details below") {
		t.Error("only the first message line must be shown")
	}
}

func TestRenderStarWithAndWithoutActor(t *testing.T) {
	t.Parallel()
	d := event.Descriptor{
		RepoKey: "octo/hello",
		Kind:    event.KindStar,
		Payload: event.Payload{StarCount: 7, Actor: "fan"},
	}
	got := Render(d)
	if !strings.Contains(got, "<b>7</b>") || !strings.Contains(got, "<code>@fan</code>") {
		t.Errorf("unexpected star message:\n%s", got)
	}

	d.Payload.Actor = ""
	if got := Render(d); strings.Contains(got, "User:") {
		t.Errorf("actorless star must omit attribution:\n%s", got)
	}
}

func TestRenderEscapesUserContent(t *testing.T) {
	t.Parallel()
	d := event.Descriptor{
		RepoKey: "octo/hello",
		Kind:    event.KindIssueOpened,
		Payload: event.Payload{Issue: &event.Issue{
			Number: 3,
			Title:  "<script>alert(1)</script>",
			Body:   "a & b < c",
			Author: "mallory",
		}},
	}
	got := Render(d)
	if strings.Contains(got, "<script>") {
		t.Fatalf("unescaped markup leaked:\n%s", got)
	}
	if !strings.Contains(got, "&lt;script&gt;") || !strings.Contains(got, "a &amp; b &lt; c") {
		t.Errorf("expected escaped content:\n%s", got)
	}
}

func TestRenderTruncatesLongBodies(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 500)
	d := event.Descriptor{
		RepoKey: "octo/hello",
		Kind:    event.KindPROpened,
		Payload: event.Payload{PullRequest: &event.PullRequest{
			Number: 1, Title: "t", Body: long, Author: "dev",
		}},
	}
	got := Render(d)
	if !strings.Contains(got, strings.Repeat("x", bodyPreviewLen)+"...") {
		t.Errorf("body must be cut at %d runes:\n%s", bodyPreviewLen, got)
	}
	if strings.Contains(got, strings.Repeat("x", bodyPreviewLen+1)) {
		t.Error("body exceeds the preview limit")
	}
}

func TestRenderSynchronizeHidesTitle(t *testing.T) {
	t.Parallel()
	d := event.Descriptor{
		RepoKey: "octo/hello",
		Kind:    event.KindPRSynchronize,
		Payload: event.Payload{PullRequest: &event.PullRequest{Number: 9, Title: "secret", Author: "dev"}},
	}
	got := Render(d)
	if strings.Contains(got, "secret") {
		t.Errorf("synchronize message must not repeat the title:\n%s", got)
	}
	if !strings.Contains(got, "New changes pushed") {
		t.Errorf("unexpected synchronize message:\n%s", got)
	}
}

func TestRenderReleaseFallsBackToTag(t *testing.T) {
	t.Parallel()
	d := event.Descriptor{
		RepoKey: "octo/hello",
		Kind:    event.KindReleasePublished,
		Payload: event.Payload{Release: &event.Release{TagName: "v1.2.3", Author: "dev"}},
	}
	if got := Render(d); !strings.Contains(got, "<b>v1.2.3</b>") {
		t.Errorf("nameless release must show the tag:\n%s", got)
	}
}

func TestRenderMissingPayloadIsEmpty(t *testing.T) {
	t.Parallel()
	d := event.Descriptor{RepoKey: "octo/hello", Kind: event.KindIssueOpened}
	if got := Render(d); got != "" {
		t.Errorf("descriptor without issue payload must render empty, got:\n%s", got)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	stats := map[string]store.RepositoryStatistics{
		"octo/hello": {
			Stars: 10, Forks: 2,
			Issues:       store.CountByState{Open: 1, Closed: 4},
			PullRequests: store.CountByState{Open: 0, Closed: 3},
			Languages:    map[string]int64{"Go": 2048, "Makefile": 1024, "Shell": 512},
			UpdatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	got := Stats([]string{"octo/hello", "other/repo"}, stats)

	for _, want := range []string{
		"⭐ Stars: <b>10</b>",
		"📝 Issues: <b>1 open, 4 closed</b>",
		"Go (2KB), Makefile (1KB), Shell (0KB)",
		"2025-06-01",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "other/repo") {
		t.Error("repositories without collected statistics must be skipped")
	}
}

func TestStatsEmpty(t *testing.T) {
	t.Parallel()
	if got := Stats(nil, nil); !strings.Contains(got, "No statistics") {
		t.Errorf("unexpected empty-stats message: %s", got)
	}
}
