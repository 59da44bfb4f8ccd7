package webhook

// Delivery payload shapes, limited to the fields the mapping needs. Unknown
// fields are ignored on purpose: upstream adds new ones without notice.

type payload struct {
	Action     string       `json:"action"`
	Ref        string       `json:"ref"`
	Compare    string       `json:"compare"`
	Commits    []pushCommit `json:"commits"`
	HeadCommit *pushCommit  `json:"head_commit"`

	Repository struct {
		FullName        string `json:"full_name"`
		StargazersCount int    `json:"stargazers_count"`
	} `json:"repository"`

	Sender struct {
		Login string `json:"login"`
		Name  string `json:"name"`
	} `json:"sender"`

	Forkee struct {
		FullName string `json:"full_name"`
		Owner    struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"forkee"`

	Issue       *hookIssue   `json:"issue"`
	Comment     *hookComment `json:"comment"`
	PullRequest *hookPR      `json:"pull_request"`
	Release     *hookRelease `json:"release"`
}

type pushCommit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	URL     string `json:"url"`
	Author  struct {
		Username string `json:"username"`
		Name     string `json:"name"`
	} `json:"author"`
}

type hookIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	URL    string `json:"html_url"`
	User   struct {
		Login string `json:"login"`
	} `json:"user"`
}

type hookComment struct {
	Body string `json:"body"`
	URL  string `json:"html_url"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
}

type hookPR struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	URL       string `json:"html_url"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
}

type hookRelease struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	Body    string `json:"body"`
	URL     string `json:"html_url"`
	Author  struct {
		Login string `json:"login"`
	} `json:"author"`
}
