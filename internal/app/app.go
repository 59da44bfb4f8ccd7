// Package app wires the service together: configuration, storage, the API
// client pool, both change producers, the dispatcher, and the bot surface.
// All dependencies are passed explicitly; nothing lives in package globals.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"ghnotify/internal/bot"
	"ghnotify/internal/config"
	"ghnotify/internal/dispatch"
	"ghnotify/internal/eventbus"
	"ghnotify/internal/github"
	"ghnotify/internal/notify"
	"ghnotify/internal/store"
	"ghnotify/internal/watch"
	"ghnotify/internal/webhook"
	"ghnotify/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logsvc *logx.Service
	log    logx.Logger

	db  *store.DB
	bus eventbus.Bus

	tbot    *tele.Bot
	botSvc  *bot.Service
	alerter *notify.QuotaAlerter
	hook    *webhook.Server // nil when disabled
	poller  *watch.Poller   // nil when disabled
}

func New(cfgPath string) (*App, error) {
	cfgMgr := config.NewManager(cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, err
	}

	logsvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	cfgMgr.SetLogger(log.With(logx.String("comp", "config")))

	db, err := store.Open(store.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logsvc.Close()
		return nil, err
	}

	a := &App{cfgMgr: cfgMgr, logsvc: logsvc, log: log, db: db, bus: eventbus.New()}
	if err := a.build(cfg); err != nil {
		_ = db.Close()
		_ = logsvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	pool, err := github.NewPool(cfg.GitHub.Tokens)
	if err != nil {
		return err
	}
	if pool.Authenticated() {
		a.log.Info("credential pool ready", logx.Int("tokens", pool.Size()))
	} else {
		a.log.Warn("no api tokens configured, falling back to the 60 requests/hour anonymous quota")
	}

	waitThreshold, err := config.ParseDurationOrDefault("github.wait_threshold", cfg.GitHub.WaitThreshold, github.DefaultWaitThreshold)
	if err != nil {
		return err
	}
	client := github.NewClient(pool, github.ClientConfig{WaitThreshold: waitThreshold},
		a.log.With(logx.String("comp", "github")), a.bus)

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	a.tbot, err = tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
	})
	if err != nil {
		return fmt.Errorf("telegram bot: %w", err)
	}

	sink := notify.NewTelegramSink(a.tbot, cfg.Telegram.SendRatePerSec)
	disp := dispatch.New(a.db, sink, a.log.With(logx.String("comp", "dispatch")))

	a.botSvc = bot.New(a.tbot, a.db, client, a.log.With(logx.String("comp", "bot")))
	a.alerter = notify.NewQuotaAlerter(a.bus, sink, cfg.Telegram.AdminChatID,
		a.log.With(logx.String("comp", "alerter")))

	if cfg.Webhook.Enabled {
		addr := cfg.Webhook.Addr
		if addr == "" {
			addr = ":8080"
		}
		a.hook = webhook.NewServer(webhook.Config{
			Addr:   addr,
			Path:   cfg.Webhook.Path,
			Secret: cfg.Webhook.Secret,
		}, a.db, disp, a.log.With(logx.String("comp", "webhook")))
	}

	if cfg.Poll.Enabled {
		scheduleRaw := cfg.Poll.Schedule
		if scheduleRaw == "" {
			scheduleRaw = "60s"
		}
		schedule, err := watch.ParseSchedule(scheduleRaw)
		if err != nil {
			return err
		}
		repoDelay, err := config.ParseDurationOrDefault("poll.repo_delay", cfg.Poll.RepoDelay, 2*time.Second)
		if err != nil {
			return err
		}

		det := watch.NewDetector(a.db, client, watch.DetectorConfig{
			CommitPage: cfg.GitHub.CommitPage,
			Stats:      cfg.Poll.Stats,
		}, a.log.With(logx.String("comp", "detector")))
		det.WithOverride(func(token string) (watch.Fetcher, error) {
			return client.WithToken(token)
		})

		a.poller = watch.NewPoller(a.db, det, disp, watch.PollerConfig{
			Schedule:  schedule,
			RepoDelay: repoDelay,
		}, a.log.With(logx.String("comp", "poller")))
	}
	return nil
}

// Run blocks until ctx is cancelled or a component fails fatally.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.botSvc.Run(ctx) })
	g.Go(func() error { return a.alerter.Run(ctx) })
	if a.hook != nil {
		g.Go(func() error { return a.hook.Run(ctx) })
	}
	if a.poller != nil {
		g.Go(func() error { return a.poller.Run(ctx) })
	}

	// Config hot reload: the watcher republishes on change, the loop applies
	// what can change at runtime (logging only; everything else needs a
	// restart and says so).
	g.Go(func() error { return a.cfgMgr.Watch(ctx) })
	g.Go(func() error {
		updates := a.cfgMgr.Subscribe(4)
		defer a.cfgMgr.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case cfg, ok := <-updates:
				if !ok {
					return nil
				}
				a.logsvc.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
				})
				a.log.Info("configuration reloaded, logging settings applied",
					logx.String("note", "transport and schedule changes need a restart"))
			}
		}
	})

	subs, repos := a.db.Counts()
	a.log.Info("service started",
		logx.Int("subscriptions", subs),
		logx.Int("repositories", repos),
		logx.Bool("webhook", a.hook != nil),
		logx.Bool("poll", a.poller != nil))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	err := g.Wait()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if cerr := a.db.Close(); cerr != nil {
		a.log.Error("storage close failed", logx.Err(cerr))
	}
	_ = a.logsvc.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
