package bot

import (
	"fmt"
	"strings"
)

// ParseRepoRef extracts (owner, repo) from the forms subscribers actually
// paste: a full URL (with or without scheme, trailing path, or ".git"),
// "owner/repo", or "owner repo".
func ParseRepoRef(input string) (owner, repo string, err error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", "", fmt.Errorf("empty repository reference")
	}

	if idx := strings.Index(s, "github.com"); idx >= 0 {
		rest := strings.TrimPrefix(s[idx+len("github.com"):], ":") // git@ form
		rest = strings.TrimPrefix(rest, "/")
		parts := strings.Split(rest, "/")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("invalid repository URL %q", input)
		}
		owner = parts[0]
		repo = strings.TrimSuffix(parts[1], ".git")
		if i := strings.IndexAny(repo, "?#"); i >= 0 {
			repo = repo[:i]
		}
		if repo == "" {
			return "", "", fmt.Errorf("invalid repository URL %q", input)
		}
		return owner, repo, nil
	}

	if strings.ContainsAny(s, " \t") {
		parts := strings.Fields(s)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("invalid repository reference %q", input)
		}
		return parts[0], parts[1], nil
	}

	if parts := strings.Split(s, "/"); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
	}
	return "", "", fmt.Errorf("invalid repository reference %q (use owner/repo or a URL)", input)
}
