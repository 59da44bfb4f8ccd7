package event

// Descriptor is one detected change, destined for dispatch. Descriptors are
// immutable and transient: produced, dispatched, discarded, never persisted.
type Descriptor struct {
	RepoKey string
	Kind    Kind
	Payload Payload
}

// Payload carries the kind-specific details the formatter needs, plus the
// optional "last seen" markers the dispatcher persists once per repository
// after fan-out.
type Payload struct {
	// Commit batch (KindCommit), newest first.
	Branch     string
	Commits    []Commit
	CompareURL string

	// Actor is the login of whoever triggered the change (stargazer,
	// issue author, commenter, ...).
	Actor     string
	ActorName string

	StarCount int

	ForkFullName string

	Issue       *Issue
	Comment     *Comment
	PullRequest *PullRequest
	Release     *Release

	// Markers: zero values mean "nothing to persist".
	NewCommitSHA string
	NewStarCount *int
}

type Commit struct {
	SHA     string
	Message string
	// Author is the login; AuthorName the display name when known.
	Author     string
	AuthorName string
	URL        string

	Additions int
	Deletions int
}

type Issue struct {
	Number int
	Title  string
	Body   string
	Author string
	URL    string
}

type PullRequest struct {
	Number    int
	Title     string
	Body      string
	Author    string
	URL       string
	Additions int
	Deletions int
}

type Comment struct {
	Author string
	Body   string
	URL    string
}

type Release struct {
	TagName string
	Name    string
	Body    string
	Author  string
	URL     string
}
