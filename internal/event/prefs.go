package event

// Preferences is the per-subscription tree of notification toggles. The JSON
// shape is stable: it is what the store persists for every subscription.
//
// All toggles default to off; a fresh subscription notifies about nothing
// until the subscriber opts in.
type Preferences struct {
	Commits bool `json:"commits"`
	Forks   bool `json:"forks"`
	Watch   bool `json:"watch"`

	Issues              IssuePrefs   `json:"issues"`
	IssueComments       CommentPrefs `json:"issue_comments"`
	PullRequests        PullPrefs    `json:"pull_requests"`
	PullRequestComments CommentPrefs `json:"pull_request_comments"`
	Releases            ReleasePrefs `json:"releases"`
}

type IssuePrefs struct {
	Opened bool `json:"opened"`
	Closed bool `json:"closed"`
}

type CommentPrefs struct {
	Created bool `json:"created"`
	Deleted bool `json:"deleted"`
}

type PullPrefs struct {
	Opened      bool `json:"opened"`
	Closed      bool `json:"closed"`
	Synchronize bool `json:"synchronize"`
}

type ReleasePrefs struct {
	Published bool `json:"published"`
	Released  bool `json:"released"`
}

// Enabled resolves the toggle for a kind. The switch is exhaustive over all
// kinds so a new Kind without a preference leaf fails loudly in tests
// (see TestEnabledCoversAllKinds) instead of silently never matching.
func (p *Preferences) Enabled(k Kind) bool {
	switch k {
	case KindCommit:
		return p.Commits
	case KindStar:
		return p.Watch
	case KindFork:
		return p.Forks
	case KindIssueOpened:
		return p.Issues.Opened
	case KindIssueClosed:
		return p.Issues.Closed
	case KindIssueCommentCreated:
		return p.IssueComments.Created
	case KindIssueCommentDeleted:
		return p.IssueComments.Deleted
	case KindPROpened:
		return p.PullRequests.Opened
	case KindPRClosed:
		return p.PullRequests.Closed
	case KindPRSynchronize:
		return p.PullRequests.Synchronize
	case KindPRCommentCreated:
		return p.PullRequestComments.Created
	case KindPRCommentDeleted:
		return p.PullRequestComments.Deleted
	case KindReleasePublished:
		return p.Releases.Published
	case KindReleaseReleased:
		return p.Releases.Released
	default:
		return false
	}
}

// Toggle is one settable preference leaf, addressed by a stable key used in
// callback payloads ("issues.opened"). Keys resolve through the static table
// below, never through runtime string splitting.
type Toggle struct {
	Key   string
	Label string
	Get   func(*Preferences) bool
	Set   func(*Preferences, bool)
}

var toggles = []Toggle{
	{"commits", "Commits", func(p *Preferences) bool { return p.Commits }, func(p *Preferences, v bool) { p.Commits = v }},
	{"watch", "Stars", func(p *Preferences) bool { return p.Watch }, func(p *Preferences, v bool) { p.Watch = v }},
	{"forks", "Forks", func(p *Preferences) bool { return p.Forks }, func(p *Preferences, v bool) { p.Forks = v }},
	{"issues.opened", "Issue opened", func(p *Preferences) bool { return p.Issues.Opened }, func(p *Preferences, v bool) { p.Issues.Opened = v }},
	{"issues.closed", "Issue closed", func(p *Preferences) bool { return p.Issues.Closed }, func(p *Preferences, v bool) { p.Issues.Closed = v }},
	{"issue_comments.created", "Issue comment", func(p *Preferences) bool { return p.IssueComments.Created }, func(p *Preferences, v bool) { p.IssueComments.Created = v }},
	{"issue_comments.deleted", "Issue comment deleted", func(p *Preferences) bool { return p.IssueComments.Deleted }, func(p *Preferences, v bool) { p.IssueComments.Deleted = v }},
	{"pull_requests.opened", "PR opened", func(p *Preferences) bool { return p.PullRequests.Opened }, func(p *Preferences, v bool) { p.PullRequests.Opened = v }},
	{"pull_requests.closed", "PR closed", func(p *Preferences) bool { return p.PullRequests.Closed }, func(p *Preferences, v bool) { p.PullRequests.Closed = v }},
	{"pull_requests.synchronize", "PR synchronize", func(p *Preferences) bool { return p.PullRequests.Synchronize }, func(p *Preferences, v bool) { p.PullRequests.Synchronize = v }},
	{"pull_request_comments.created", "PR comment", func(p *Preferences) bool { return p.PullRequestComments.Created }, func(p *Preferences, v bool) { p.PullRequestComments.Created = v }},
	{"pull_request_comments.deleted", "PR comment deleted", func(p *Preferences) bool { return p.PullRequestComments.Deleted }, func(p *Preferences, v bool) { p.PullRequestComments.Deleted = v }},
	{"releases.published", "Release published", func(p *Preferences) bool { return p.Releases.Published }, func(p *Preferences, v bool) { p.Releases.Published = v }},
	{"releases.released", "Release released", func(p *Preferences) bool { return p.Releases.Released }, func(p *Preferences, v bool) { p.Releases.Released = v }},
}

// Toggles returns the settable leaves in display order.
func Toggles() []Toggle {
	return toggles
}

// ToggleByKey resolves a callback key to its leaf.
func ToggleByKey(key string) (Toggle, bool) {
	for _, t := range toggles {
		if t.Key == key {
			return t, true
		}
	}
	return Toggle{}, false
}
