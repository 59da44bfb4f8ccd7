// Package webhook is the push half of change detection: an HTTP receiver
// that verifies delivery signatures, maps deliveries onto change kinds, and
// hands descriptors to the shared dispatcher.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ghnotify/internal/event"
	"ghnotify/internal/store"
	"ghnotify/pkg/logx"
)

const maxBodySize = 1 << 20 // deliveries are small; anything bigger is abuse

type Config struct {
	Addr   string
	Path   string
	Secret string
}

// Dispatcher matches the shared fan-out edge.
type Dispatcher interface {
	Dispatch(ctx context.Context, desc event.Descriptor) error
}

type Server struct {
	cfg  Config
	db   *store.DB
	disp Dispatcher
	log  logx.Logger

	srv *http.Server
}

func NewServer(cfg Config, db *store.DB, disp Dispatcher, log logx.Logger) *Server {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, db: db, disp: disp, log: log}
	if cfg.Secret == "" {
		s.log.Warn("webhook secret not configured, signature verification disabled")
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post(cfg.Path, s.handleDelivery)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("webhook server listening", logx.String("addr", s.cfg.Addr), logx.String("path", s.cfg.Path))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutCtx); err != nil {
		s.log.Warn("webhook shutdown forced", logx.Err(err))
	}
	return ctx.Err()
}

// handleDelivery is deliberately generous with 200s: once a delivery is
// authenticated and parsed, upstream must not retry it, whatever happens
// during dispatch.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	eventType := r.Header.Get("X-GitHub-Event")

	if !VerifySignature(body, signature, s.cfg.Secret) {
		s.log.Warn("delivery signature rejected", logx.String("event", eventType))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if p.Repository.FullName == "" {
		http.Error(w, "no repository found", http.StatusBadRequest)
		return
	}

	repoKey := p.Repository.FullName
	if len(s.db.ByRepo(repoKey)) == 0 {
		s.log.Debug("delivery for untracked repository", logx.String("repo", repoKey))
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "Repository not tracked")
		return
	}

	desc, ok := mapDelivery(eventType, p)
	if !ok {
		// Unknown or filtered (event, action) pairs are fine, not errors.
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "OK")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := s.disp.Dispatch(ctx, desc); err != nil {
		s.log.Error("delivery dispatch failed",
			logx.String("repo", repoKey),
			logx.String("kind", desc.Kind.String()),
			logx.Err(err))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

// mapDelivery turns an (event, action) pair into a descriptor. The table is
// fixed: pairs outside it are dropped here, per-chat preference filtering
// happens in the dispatcher.
func mapDelivery(eventType string, p payload) (event.Descriptor, bool) {
	repoKey := p.Repository.FullName

	switch eventType {
	case "push":
		return mapPush(repoKey, p)

	case "watch":
		count := p.Repository.StargazersCount
		return event.Descriptor{
			RepoKey: repoKey,
			Kind:    event.KindStar,
			Payload: event.Payload{
				Actor:        p.Sender.Login,
				ActorName:    p.Sender.Name,
				StarCount:    count,
				NewStarCount: &count,
			},
		}, true

	case "fork":
		return event.Descriptor{
			RepoKey: repoKey,
			Kind:    event.KindFork,
			Payload: event.Payload{
				Actor:        p.Forkee.Owner.Login,
				ForkFullName: p.Forkee.FullName,
			},
		}, true

	case "issues":
		if p.Issue == nil {
			return event.Descriptor{}, false
		}
		var kind event.Kind
		switch p.Action {
		case "opened":
			kind = event.KindIssueOpened
		case "closed":
			kind = event.KindIssueClosed
		default:
			return event.Descriptor{}, false
		}
		return event.Descriptor{
			RepoKey: repoKey,
			Kind:    kind,
			Payload: event.Payload{Issue: convertIssue(p.Issue)},
		}, true

	case "issue_comment":
		if p.Issue == nil || p.Comment == nil {
			return event.Descriptor{}, false
		}
		var kind event.Kind
		switch p.Action {
		case "created":
			kind = event.KindIssueCommentCreated
		case "deleted":
			kind = event.KindIssueCommentDeleted
		default:
			return event.Descriptor{}, false
		}
		return event.Descriptor{
			RepoKey: repoKey,
			Kind:    kind,
			Payload: event.Payload{
				Issue:   convertIssue(p.Issue),
				Comment: &event.Comment{Author: p.Comment.User.Login, Body: p.Comment.Body, URL: p.Comment.URL},
			},
		}, true

	case "pull_request":
		if p.PullRequest == nil {
			return event.Descriptor{}, false
		}
		var kind event.Kind
		switch p.Action {
		case "opened":
			kind = event.KindPROpened
		case "closed":
			kind = event.KindPRClosed
		case "synchronize":
			kind = event.KindPRSynchronize
		default:
			return event.Descriptor{}, false
		}
		return event.Descriptor{
			RepoKey: repoKey,
			Kind:    kind,
			Payload: event.Payload{PullRequest: convertPR(p.PullRequest)},
		}, true

	case "pull_request_review_comment":
		if p.PullRequest == nil || p.Comment == nil {
			return event.Descriptor{}, false
		}
		var kind event.Kind
		switch p.Action {
		case "created":
			kind = event.KindPRCommentCreated
		case "deleted":
			kind = event.KindPRCommentDeleted
		default:
			return event.Descriptor{}, false
		}
		return event.Descriptor{
			RepoKey: repoKey,
			Kind:    kind,
			Payload: event.Payload{
				PullRequest: convertPR(p.PullRequest),
				Comment:     &event.Comment{Author: p.Comment.User.Login, Body: p.Comment.Body, URL: p.Comment.URL},
			},
		}, true

	case "release":
		if p.Release == nil {
			return event.Descriptor{}, false
		}
		var kind event.Kind
		switch p.Action {
		case "published":
			kind = event.KindReleasePublished
		case "released":
			kind = event.KindReleaseReleased
		default:
			return event.Descriptor{}, false
		}
		return event.Descriptor{
			RepoKey: repoKey,
			Kind:    kind,
			Payload: event.Payload{Release: &event.Release{
				TagName: p.Release.TagName,
				Name:    p.Release.Name,
				Body:    p.Release.Body,
				Author:  p.Release.Author.Login,
				URL:     p.Release.URL,
			}},
		}, true
	}
	return event.Descriptor{}, false
}

// mapPush reorders the delivery's oldest-first commit list to newest-first
// so both producers feed the formatter the same shape. The head commit is
// the marker to persist.
func mapPush(repoKey string, p payload) (event.Descriptor, bool) {
	if len(p.Commits) == 0 {
		return event.Descriptor{}, false
	}

	branch := trimRefPrefix(p.Ref)
	commits := make([]event.Commit, 0, len(p.Commits))
	for i := len(p.Commits) - 1; i >= 0; i-- {
		c := p.Commits[i]
		commits = append(commits, event.Commit{
			SHA:        c.ID,
			Message:    c.Message,
			Author:     c.Author.Username,
			AuthorName: c.Author.Name,
			URL:        c.URL,
		})
	}

	marker := commits[0].SHA
	if p.HeadCommit != nil && p.HeadCommit.ID != "" {
		marker = p.HeadCommit.ID
	}

	return event.Descriptor{
		RepoKey: repoKey,
		Kind:    event.KindCommit,
		Payload: event.Payload{
			Branch:       branch,
			Commits:      commits,
			CompareURL:   p.Compare,
			NewCommitSHA: marker,
		},
	}, true
}

func trimRefPrefix(ref string) string {
	const prefix = "refs/heads/"
	if len(ref) > len(prefix) && ref[:len(prefix)] == prefix {
		return ref[len(prefix):]
	}
	return ref
}

func convertIssue(i *hookIssue) *event.Issue {
	return &event.Issue{
		Number: i.Number,
		Title:  i.Title,
		Body:   i.Body,
		Author: i.User.Login,
		URL:    i.URL,
	}
}

func convertPR(pr *hookPR) *event.PullRequest {
	return &event.PullRequest{
		Number:    pr.Number,
		Title:     pr.Title,
		Body:      pr.Body,
		Author:    pr.User.Login,
		URL:       pr.URL,
		Additions: pr.Additions,
		Deletions: pr.Deletions,
	}
}
