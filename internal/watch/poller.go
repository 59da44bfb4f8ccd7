package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ghnotify/internal/event"
	"ghnotify/internal/github"
	"ghnotify/internal/store"
	"ghnotify/pkg/logx"
)

// Dispatcher is the fan-out edge the poller hands detected changes to.
type Dispatcher interface {
	Dispatch(ctx context.Context, desc event.Descriptor) error
}

type PollerConfig struct {
	Schedule Schedule
	// RepoDelay spaces out per-repository checks within one cycle.
	RepoDelay time.Duration
}

// Poller drives the detector across every tracked repository on a schedule.
// One broken repository never aborts the cycle; quota exhaustion skips the
// remainder of the cycle since every further check would hit the same wall.
type Poller struct {
	db   *store.DB
	det  *Detector
	disp Dispatcher
	cfg  PollerConfig
	log  logx.Logger
}

func NewPoller(db *store.DB, det *Detector, disp Dispatcher, cfg PollerConfig, log logx.Logger) *Poller {
	if cfg.RepoDelay <= 0 {
		cfg.RepoDelay = 2 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{db: db, det: det, disp: disp, cfg: cfg, log: log}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poll loop started", logx.String("schedule", p.cfg.Schedule.String()))
	timer := time.NewTimer(time.Until(p.cfg.Schedule.Next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poll loop stopped")
			return ctx.Err()
		case <-timer.C:
			p.runCycle(ctx)
			timer.Reset(time.Until(p.cfg.Schedule.Next(time.Now())))
		}
	}
}

func (p *Poller) runCycle(ctx context.Context) {
	repos := p.db.Repos()
	if len(repos) == 0 {
		return
	}
	started := time.Now()
	p.log.Debug("poll cycle started", logx.Int("repositories", len(repos)))

	for i, repoKey := range repos {
		if ctx.Err() != nil {
			return
		}

		descs, err := p.checkOne(ctx, repoKey)
		if err != nil {
			var qe *github.QuotaError
			if errors.As(err, &qe) {
				p.log.Warn("quota exhausted, skipping remainder of cycle",
					logx.String("repo", repoKey),
					logx.Duration("reset_in", qe.Wait),
					logx.Int("remaining_repos", len(repos)-i-1))
				return
			}
			p.log.Error("repository check failed", logx.String("repo", repoKey), logx.Err(err))
		}
		for _, desc := range descs {
			if err := p.disp.Dispatch(ctx, desc); err != nil {
				p.log.Error("dispatch failed",
					logx.String("repo", repoKey),
					logx.String("kind", desc.Kind.String()),
					logx.Err(err))
			}
		}

		if i < len(repos)-1 {
			if err := sleepCtx(ctx, p.cfg.RepoDelay); err != nil {
				return
			}
		}
	}
	p.log.Debug("poll cycle finished",
		logx.Int("repositories", len(repos)),
		logx.Duration("took", time.Since(started)))
}

// checkOne isolates panics so one repository cannot take the loop down.
func (p *Poller) checkOne(ctx context.Context, repoKey string) (descs []event.Descriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check panicked: %v", r)
		}
	}()
	return p.det.Check(ctx, repoKey)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
