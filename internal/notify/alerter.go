package notify

import (
	"context"
	"fmt"
	"time"

	"ghnotify/internal/eventbus"
	"ghnotify/internal/github"
	"ghnotify/pkg/logx"
)

// QuotaAlerter consumes quota-exhaustion events from the bus and tells the
// operator chat. Producers stay fire-and-forget; only this worker knows the
// admin target exists.
type QuotaAlerter struct {
	bus  eventbus.Bus
	sink Sink
	log  logx.Logger

	admin Target

	// suppressFor rate-limits repeat alerts while the quota stays dry.
	suppressFor time.Duration
	lastSent    time.Time
}

func NewQuotaAlerter(bus eventbus.Bus, sink Sink, adminChatID int64, log logx.Logger) *QuotaAlerter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &QuotaAlerter{
		bus:         bus,
		sink:        sink,
		log:         log,
		admin:       Target{ChatID: adminChatID},
		suppressFor: 10 * time.Minute,
	}
}

// Run blocks until ctx is cancelled. A zero admin chat makes the worker a
// log-only consumer.
func (a *QuotaAlerter) Run(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(16)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-events:
			if e.Type != github.QuotaEventType {
				continue
			}
			q, ok := e.Data.(github.QuotaEvent)
			if !ok {
				continue
			}
			a.handle(ctx, q)
		}
	}
}

func (a *QuotaAlerter) handle(ctx context.Context, q github.QuotaEvent) {
	a.log.Warn("api quota exhausted",
		logx.Duration("wait", q.Wait),
		logx.Time("reset_at", q.ResetAt),
		logx.Int("credentials", q.Credentials))

	if a.admin.ChatID == 0 {
		return
	}
	now := time.Now()
	if !a.lastSent.IsZero() && now.Sub(a.lastSent) < a.suppressFor {
		return
	}

	text := fmt.Sprintf(
		"⚠️ <b>API quota exhausted</b>\n\nAll %d credential(s) are out of requests.\nResets in <code>%s</code> (at %s UTC).\nChange checks are paused until then.",
		q.Credentials,
		q.Wait.Round(time.Second),
		q.ResetAt.UTC().Format("15:04:05"),
	)

	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.sink.Send(sctx, a.admin, text); err != nil {
		a.log.Error("quota alert delivery failed", logx.Err(err))
		return
	}
	a.lastSent = now
}
