// Package format renders change descriptors and statistics into Telegram
// HTML messages. All user-supplied text goes through html.EscapeString; only
// the tags this package emits itself reach the wire.
package format

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"ghnotify/internal/event"
	"ghnotify/internal/store"
)

const (
	bodyPreviewLen        = 200
	releaseBodyPreviewLen = 300
)

func esc(s string) string { return html.EscapeString(s) }

func link(text, url string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, esc(url), esc(text))
}

func bold(s string) string   { return "<b>" + esc(s) + "</b>" }
func italic(s string) string { return "<i>" + esc(s) + "</i>" }
func code(s string) string   { return "<code>" + esc(s) + "</code>" }

func repoURL(repoKey string) string { return "https://github.com/" + repoKey }

func preview(body string, limit int) string {
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "..."
}

// Render produces the message for one descriptor. An empty string means the
// kind has no message shape and must not be sent.
func Render(d event.Descriptor) string {
	p := d.Payload
	switch d.Kind {
	case event.KindCommit:
		return renderCommits(d.RepoKey, p)
	case event.KindStar:
		return renderStar(d.RepoKey, p)
	case event.KindFork:
		return renderFork(d.RepoKey, p)
	case event.KindIssueOpened:
		return renderIssue(d.RepoKey, "opened", "📝", p.Issue)
	case event.KindIssueClosed:
		return renderIssue(d.RepoKey, "closed", "✅", p.Issue)
	case event.KindIssueCommentCreated:
		return renderIssueComment(d.RepoKey, "created", "💬", p)
	case event.KindIssueCommentDeleted:
		return renderIssueComment(d.RepoKey, "deleted", "🗑️", p)
	case event.KindPROpened:
		return renderPullRequest(d.RepoKey, "opened", "📦", p.PullRequest)
	case event.KindPRClosed:
		return renderPullRequest(d.RepoKey, "closed", "✅", p.PullRequest)
	case event.KindPRSynchronize:
		return renderPullRequest(d.RepoKey, "synchronize", "🔄", p.PullRequest)
	case event.KindPRCommentCreated:
		return renderPRComment(d.RepoKey, "created", "💬", p)
	case event.KindPRCommentDeleted:
		return renderPRComment(d.RepoKey, "deleted", "🗑️", p)
	case event.KindReleasePublished:
		return renderRelease(d.RepoKey, "published", p.Release)
	case event.KindReleaseReleased:
		return renderRelease(d.RepoKey, "released", p.Release)
	default:
		return ""
	}
}

func renderCommits(repoKey string, p event.Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔧 On %s:%s new commits!\n", link(repoKey, repoURL(repoKey)), code(p.Branch))
	fmt.Fprintf(&b, "%s\n", bold(fmt.Sprintf("%d commits pushed.", len(p.Commits))))
	if p.CompareURL != "" {
		fmt.Fprintf(&b, "Compare changes: %s\n", link("Compare changes", p.CompareURL))
	}
	b.WriteString("\n")

	for _, c := range p.Commits {
		sha := c.SHA
		if len(sha) > 7 {
			sha = sha[:7]
		}
		name := c.AuthorName
		if name == "" {
			name = c.Author
		}
		if c.Author != "" {
			fmt.Fprintf(&b, "┃ Commit %s by %s\n", code("#"+sha), link(name, "https://github.com/"+c.Author))
		} else {
			if name == "" {
				name = "Unknown"
			}
			fmt.Fprintf(&b, "┃ Commit %s by %s\n", code("#"+sha), bold(name))
		}
		title, _, _ := strings.Cut(c.Message, "\n")
		fmt.Fprintf(&b, "┃ %s\n", link(title, c.URL))
		if c.Additions > 0 || c.Deletions > 0 {
			fmt.Fprintf(&b, "┃ Diff: %s %s\n", code(fmt.Sprintf("+ %d", c.Additions)), code(fmt.Sprintf("- %d", c.Deletions)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderStar(repoKey string, p event.Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⭐ On %s added star!\n\n", code(repoKey))
	fmt.Fprintf(&b, "Total stars: %s\n", bold(fmt.Sprintf("%d", p.StarCount)))
	if p.Actor != "" {
		fmt.Fprintf(&b, "User: %s", code("@"+p.Actor))
	}
	return b.String()
}

func renderFork(repoKey string, p event.Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🍴 On %s new fork!\n\n", code(repoKey))
	fmt.Fprintf(&b, "Forked by: %s\n", code("@"+p.Actor))
	fmt.Fprintf(&b, "Fork: %s", link(p.ForkFullName, "https://github.com/"+p.ForkFullName))
	return b.String()
}

func renderIssue(repoKey, action, icon string, is *event.Issue) string {
	if is == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s On %s %s issue!\n\n", icon, code(repoKey), action)
	fmt.Fprintf(&b, "📄 %s\n", bold(is.Title))
	if is.Body != "" {
		fmt.Fprintf(&b, "%s\n\n", italic(preview(is.Body, bodyPreviewLen)))
	}
	fmt.Fprintf(&b, "User: %s\n", code("@"+orUnknown(is.Author)))
	fmt.Fprintf(&b, "#%d", is.Number)
	return b.String()
}

func renderIssueComment(repoKey, action, icon string, p event.Payload) string {
	if p.Comment == nil || p.Issue == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s On %s %s issue comment!\n\n", icon, code(repoKey), action)
	fmt.Fprintf(&b, "Issue #%d: %s\n\n", p.Issue.Number, bold(p.Issue.Title))
	if p.Comment.Body != "" {
		fmt.Fprintf(&b, "%s\n\n", italic(preview(p.Comment.Body, bodyPreviewLen)))
	}
	fmt.Fprintf(&b, "User: %s", code("@"+orUnknown(p.Comment.Author)))
	return b.String()
}

func renderPullRequest(repoKey, action, icon string, pr *event.PullRequest) string {
	if pr == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s On %s %s pull request!\n\n", icon, code(repoKey), action)
	if action == "synchronize" {
		fmt.Fprintf(&b, "🔄 %s\n", bold("New changes pushed"))
	} else {
		fmt.Fprintf(&b, "📄 %s\n", bold(pr.Title))
	}
	if pr.Body != "" {
		fmt.Fprintf(&b, "%s\n\n", italic(preview(pr.Body, bodyPreviewLen)))
	}
	if pr.Additions > 0 || pr.Deletions > 0 {
		fmt.Fprintf(&b, "Diff: %s %s\n\n", code(fmt.Sprintf("+ %d", pr.Additions)), code(fmt.Sprintf("- %d", pr.Deletions)))
	}
	fmt.Fprintf(&b, "User: %s\n", code("@"+orUnknown(pr.Author)))
	fmt.Fprintf(&b, "#%d", pr.Number)
	return b.String()
}

func renderPRComment(repoKey, action, icon string, p event.Payload) string {
	if p.Comment == nil || p.PullRequest == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s On %s %s pull request comment!\n\n", icon, code(repoKey), action)
	fmt.Fprintf(&b, "PR #%d: %s\n\n", p.PullRequest.Number, bold(p.PullRequest.Title))
	if p.Comment.Body != "" {
		fmt.Fprintf(&b, "%s\n\n", italic(preview(p.Comment.Body, bodyPreviewLen)))
	}
	fmt.Fprintf(&b, "User: %s", code("@"+orUnknown(p.Comment.Author)))
	return b.String()
}

func renderRelease(repoKey, action string, r *event.Release) string {
	if r == nil {
		return ""
	}
	name := r.Name
	if name == "" {
		name = r.TagName
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🚀 On %s %s release!\n\n", code(repoKey), action)
	fmt.Fprintf(&b, "🏷️ %s\n", bold(name))
	if r.Body != "" {
		fmt.Fprintf(&b, "%s\n\n", italic(preview(r.Body, releaseBodyPreviewLen)))
	}
	fmt.Fprintf(&b, "User: %s", code("@"+orUnknown(r.Author)))
	return b.String()
}

func orUnknown(login string) string {
	if login == "" {
		return "Unknown"
	}
	return login
}

// Stats renders the per-repository statistics overview for one chat's
// subscriptions.
func Stats(repoKeys []string, stats map[string]store.RepositoryStatistics) string {
	if len(stats) == 0 || len(repoKeys) == 0 {
		return "📊 No statistics collected yet."
	}

	var b strings.Builder
	b.WriteString("📊 Repository statistics:\n\n")
	for _, repoKey := range repoKeys {
		st, ok := stats[repoKey]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "🔗 %s\n", link(repoKey, repoURL(repoKey)))
		fmt.Fprintf(&b, "⭐ Stars: %s\n", bold(fmt.Sprintf("%d", st.Stars)))
		fmt.Fprintf(&b, "🍴 Forks: %s\n", bold(fmt.Sprintf("%d", st.Forks)))
		fmt.Fprintf(&b, "📝 Issues: %s\n", bold(fmt.Sprintf("%d open, %d closed", st.Issues.Open, st.Issues.Closed)))
		fmt.Fprintf(&b, "📦 Pull Requests: %s\n", bold(fmt.Sprintf("%d open, %d closed", st.PullRequests.Open, st.PullRequests.Closed)))
		if langs := topLanguages(st.Languages, 5); langs != "" {
			fmt.Fprintf(&b, "💻 Languages: %s\n", code(langs))
		}
		if !st.UpdatedAt.IsZero() {
			fmt.Fprintf(&b, "🕐 Last updated: %s\n", code(st.UpdatedAt.Format("2006-01-02")))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func topLanguages(langs map[string]int64, n int) string {
	if len(langs) == 0 {
		return ""
	}
	type entry struct {
		name  string
		bytes int64
	}
	list := make([]entry, 0, len(langs))
	for name, size := range langs {
		list = append(list, entry{name, size})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].bytes != list[j].bytes {
			return list[i].bytes > list[j].bytes
		}
		return list[i].name < list[j].name
	})
	if len(list) > n {
		list = list[:n]
	}
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = fmt.Sprintf("%s (%dKB)", e.name, e.bytes/1024)
	}
	return strings.Join(parts, ", ")
}
