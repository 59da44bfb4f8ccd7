// Package dispatch fans detected changes out to subscribed chats.
//
// Both producers (webhook router and poll detector) hand descriptors to the
// same Dispatcher, so preference filtering, delivery isolation, and marker
// persistence exist exactly once.
package dispatch

import (
	"context"

	"ghnotify/internal/event"
	"ghnotify/internal/format"
	"ghnotify/internal/notify"
	"ghnotify/internal/store"
	"ghnotify/pkg/logx"
)

type Dispatcher struct {
	db   *store.DB
	sink notify.Sink
	log  logx.Logger
}

func New(db *store.DB, sink notify.Sink, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{db: db, sink: sink, log: log}
}

// Dispatch renders the descriptor once, delivers it to every subscriber whose
// preferences enable the kind, then persists the payload's markers in a
// single write. One failing chat never blocks the others; delivery errors are
// logged, counted, and swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, desc event.Descriptor) error {
	subs := d.db.ByRepo(desc.RepoKey)
	if len(subs) == 0 {
		return nil
	}

	text := format.Render(desc)
	if text == "" {
		d.log.Debug("descriptor has no message shape, skipping",
			logx.String("repo", desc.RepoKey), logx.String("kind", desc.Kind.String()))
		return d.persistMarkers(desc)
	}

	sent, failed := 0, 0
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !sub.Events.Enabled(desc.Kind) {
			continue
		}
		to := notify.Target{ChatID: sub.ChatID, ThreadID: sub.ThreadID}
		if err := d.sink.Send(ctx, to, text); err != nil {
			failed++
			d.log.Error("notification delivery failed",
				logx.String("repo", desc.RepoKey),
				logx.String("kind", desc.Kind.String()),
				logx.Int64("chat_id", sub.ChatID),
				logx.Err(err))
			continue
		}
		sent++
	}

	if sent > 0 || failed > 0 {
		d.log.Info("change dispatched",
			logx.String("repo", desc.RepoKey),
			logx.String("kind", desc.Kind.String()),
			logx.Int("sent", sent),
			logx.Int("failed", failed))
	}
	return d.persistMarkers(desc)
}

// persistMarkers advances the per-repo "last seen" state after fan-out, so a
// crash mid-delivery re-sends rather than loses changes.
func (d *Dispatcher) persistMarkers(desc event.Descriptor) error {
	var sha *string
	if desc.Payload.NewCommitSHA != "" {
		s := desc.Payload.NewCommitSHA
		sha = &s
	}
	stars := desc.Payload.NewStarCount
	if sha == nil && stars == nil {
		return nil
	}
	return d.db.UpdateMarkers(desc.RepoKey, sha, stars)
}
