// Package event holds the transient change descriptors flowing from the two
// producers (webhook router, poll detector) into the dispatcher, and the
// per-subscription notification preferences they are filtered against.
package event

// Kind identifies one detectable repository change.
type Kind int

const (
	KindCommit Kind = iota
	KindStar
	KindFork
	KindIssueOpened
	KindIssueClosed
	KindIssueCommentCreated
	KindIssueCommentDeleted
	KindPROpened
	KindPRClosed
	KindPRSynchronize
	KindPRCommentCreated
	KindPRCommentDeleted
	KindReleasePublished
	KindReleaseReleased

	kindCount // keep last
)

var kindNames = [kindCount]string{
	KindCommit:              "commit",
	KindStar:                "star",
	KindFork:                "fork",
	KindIssueOpened:         "issue_opened",
	KindIssueClosed:         "issue_closed",
	KindIssueCommentCreated: "issue_comment_created",
	KindIssueCommentDeleted: "issue_comment_deleted",
	KindPROpened:            "pr_opened",
	KindPRClosed:            "pr_closed",
	KindPRSynchronize:       "pr_synchronize",
	KindPRCommentCreated:    "pr_comment_created",
	KindPRCommentDeleted:    "pr_comment_deleted",
	KindReleasePublished:    "release_published",
	KindReleaseReleased:     "release_released",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "unknown"
	}
	return kindNames[k]
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, kindCount)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}
