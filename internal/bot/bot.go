// Package bot is the Telegram command surface: subscription management,
// per-repository preference menus, and statistics on demand.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"ghnotify/internal/event"
	"ghnotify/internal/format"
	"ghnotify/internal/github"
	"ghnotify/internal/store"
	"ghnotify/pkg/logx"
)

type Service struct {
	bot *tele.Bot
	db  *store.DB
	gh  *github.Client
	log logx.Logger
}

func New(b *tele.Bot, db *store.DB, gh *github.Client, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{bot: b, db: db, gh: gh, log: log}
	s.register()
	return s
}

// Run starts long polling and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.bot.Stop()
	}()
	if err := s.setCommands(); err != nil {
		s.log.Warn("command menu registration failed", logx.Err(err))
	}
	s.log.Info("bot polling started", logx.String("username", s.bot.Me.Username))
	s.bot.Start()
	s.log.Info("bot polling stopped")
	return ctx.Err()
}

func (s *Service) setCommands() error {
	return s.bot.SetCommands([]tele.Command{
		{Text: "start", Description: "Start the bot"},
		{Text: "add", Description: "Track a repository"},
		{Text: "remove", Description: "Stop tracking a repository"},
		{Text: "list", Description: "List tracked repositories"},
		{Text: "stats", Description: "Repository statistics"},
		{Text: "settings", Description: "Notification settings"},
	})
}

func (s *Service) register() {
	s.bot.Handle("/start", s.handleStart)
	s.bot.Handle("/add", s.handleAdd)
	s.bot.Handle("/remove", s.handleRemove)
	s.bot.Handle("/list", s.handleList)
	s.bot.Handle("/stats", s.handleStats)
	s.bot.Handle("/settings", s.handleSettings)
	s.bot.Handle(tele.OnText, s.handleText)
	s.bot.Handle(tele.OnCallback, s.handleCallback)
}

const htmlOpts = tele.ModeHTML

func reply(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: htmlOpts, DisableWebPagePreview: true}
	if m := c.Message(); m != nil {
		opts.ThreadID = m.ThreadID
	}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return c.Send(text, opts)
}

func (s *Service) handleStart(c tele.Context) error {
	name := "there"
	if sender := c.Sender(); sender != nil && sender.FirstName != "" {
		name = sender.FirstName
	}
	return reply(c, fmt.Sprintf(
		"Hi, <b>%s</b>! 👋\n\n"+
			"I watch repositories and report their activity here.\n\n"+
			"Commands:\n"+
			"• /add owner/repo — track a repository\n"+
			"• /remove owner/repo — stop tracking\n"+
			"• /list — tracked repositories\n"+
			"• /stats — repository statistics\n"+
			"• /settings — notification settings\n\n"+
			"You can also just paste a repository link.", name))
}

func (s *Service) handleAdd(c tele.Context) error {
	args := c.Args()
	var token string
	// "/add owner/repo ghp_xxx" attaches a dedicated token to the record.
	if len(args) > 1 && strings.HasPrefix(args[len(args)-1], "ghp_") {
		token = args[len(args)-1]
		args = args[:len(args)-1]
	}
	arg := strings.TrimSpace(strings.Join(args, " "))
	if arg == "" {
		return reply(c, "Usage: /add owner/repo\nExample: /add golang/go")
	}
	return s.addRepo(c, arg, token)
}

func (s *Service) addRepo(c tele.Context, ref, token string) error {
	owner, repo, err := ParseRepoRef(ref)
	if err != nil {
		return reply(c, "❌ Invalid format. Use owner/repo or a repository link.")
	}
	repoKey := owner + "/" + repo

	client := s.gh
	if token != "" {
		client, err = s.gh.WithToken(token)
		if err != nil {
			return reply(c, "❌ That token could not be used.")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	info, err := client.Repository(ctx, owner, repo)
	if err != nil {
		s.log.Warn("repository lookup failed", logx.String("repo", repoKey), logx.Err(err))
		return reply(c, "⚠️ Could not reach the API right now, try again later.")
	}
	if info == nil {
		return reply(c, fmt.Sprintf("❌ Repository <code>%s</code> not found or not accessible.", repoKey))
	}

	sub := store.Subscription{
		RepoKey:     repoKey,
		ChatID:      c.Chat().ID,
		AddedAt:     time.Now().UTC(),
		ThreadID:    messageThreadID(c),
		GitHubToken: token,
		// Baseline markers: tracking starts at the current state, no
		// notification burst for pre-existing activity.
		LastStarCount: info.GetStargazersCount(),
	}
	if commits, err := client.ListCommits(ctx, owner, repo, info.GetDefaultBranch(), 1); err == nil && len(commits) > 0 {
		sub.LastCommitSHA = commits[0].GetSHA()
	}
	added, err := s.db.Add(sub)
	if err != nil {
		s.log.Error("subscription add failed", logx.String("repo", repoKey), logx.Err(err))
		return reply(c, "❌ Could not save the subscription.")
	}
	if !added {
		return reply(c, fmt.Sprintf("⚠️ Repository <code>%s</code> is already tracked.", repoKey))
	}

	s.log.Info("repository tracked",
		logx.String("repo", repoKey), logx.Int64("chat_id", c.Chat().ID))
	return reply(c,
		fmt.Sprintf("✅ Repository <code>%s</code> added!\n\nPick the events to be notified about:", repoKey),
		settingsKeyboard(repoKey, sub.Events))
}

func (s *Service) handleRemove(c tele.Context) error {
	arg := strings.TrimSpace(strings.Join(c.Args(), " "))
	if arg == "" {
		return reply(c, "Usage: /remove owner/repo")
	}
	owner, repo, err := ParseRepoRef(arg)
	if err != nil {
		return reply(c, "❌ Invalid format. Use owner/repo or a repository link.")
	}
	repoKey := owner + "/" + repo

	if _, ok := s.db.Get(repoKey, c.Chat().ID); !ok {
		return reply(c, fmt.Sprintf("❌ Repository <code>%s</code> is not tracked here.", repoKey))
	}
	return reply(c,
		fmt.Sprintf("⚠️ Remove repository <code>%s</code>?", repoKey),
		confirmRemoveKeyboard(repoKey))
}

func (s *Service) handleList(c tele.Context) error {
	subs := s.db.ByChat(c.Chat().ID)
	if len(subs) == 0 {
		return reply(c, "📋 No tracked repositories yet. Add one with /add owner/repo.")
	}
	var b strings.Builder
	b.WriteString("📋 Tracked repositories:\n\n")
	for _, sub := range subs {
		fmt.Fprintf(&b, "• <a href=\"https://github.com/%s\">%s</a>\n", sub.RepoKey, sub.RepoKey)
	}
	return reply(c, b.String())
}

func (s *Service) handleStats(c tele.Context) error {
	subs := s.db.ByChat(c.Chat().ID)
	if len(subs) == 0 {
		return reply(c, "📊 No tracked repositories yet.")
	}
	keys := make([]string, 0, len(subs))
	stats := make(map[string]store.RepositoryStatistics, len(subs))
	for _, sub := range subs {
		keys = append(keys, sub.RepoKey)
		if st, ok := s.db.Statistics(sub.RepoKey); ok {
			stats[sub.RepoKey] = st
		}
	}
	return reply(c, format.Stats(keys, stats))
}

func (s *Service) handleSettings(c tele.Context) error {
	if arg := strings.TrimSpace(strings.Join(c.Args(), " ")); arg != "" {
		owner, repo, err := ParseRepoRef(arg)
		if err != nil {
			return reply(c, "❌ Invalid format. Use owner/repo or a repository link.")
		}
		repoKey := owner + "/" + repo
		sub, ok := s.db.Get(repoKey, c.Chat().ID)
		if !ok {
			return reply(c, fmt.Sprintf("❌ Repository <code>%s</code> is not tracked here.", repoKey))
		}
		return reply(c,
			fmt.Sprintf("⚙️ Settings for <code>%s</code>:", repoKey),
			settingsKeyboard(repoKey, sub.Events))
	}

	subs := s.db.ByChat(c.Chat().ID)
	if len(subs) == 0 {
		return reply(c, "📋 No tracked repositories yet. Add one with /add owner/repo.")
	}
	keys := make([]string, 0, len(subs))
	for _, sub := range subs {
		keys = append(keys, sub.RepoKey)
	}
	return reply(c, "⚙️ Pick a repository:", repoListKeyboard(keys))
}

// handleText lets subscribers paste a repository link without any command.
func (s *Service) handleText(c tele.Context) error {
	text := strings.TrimSpace(c.Text())
	if !strings.Contains(text, "github.com") {
		return nil
	}
	return s.addRepo(c, text, "")
}

// ---- Callbacks ----

func (s *Service) handleCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	// telebot prefixes unique-routed callbacks with \f; ours are raw data.
	data := strings.TrimPrefix(strings.TrimSpace(cb.Data), "\f")
	parts := strings.Split(data, ":")
	if len(parts) < 3 {
		return c.Respond()
	}

	switch parts[0] {
	case cbToggle:
		return s.callbackToggle(c, parts[1], strings.Join(parts[2:], ":"))
	case cbSettings:
		return s.callbackSettings(c, parts[1], parts[2])
	}
	return c.Respond()
}

// resolveRepo maps a callback hash back to this chat's subscription. Hashes
// are chat-scoped on purpose: a callback can only ever touch subscriptions
// of the chat it was pressed in.
func (s *Service) resolveRepo(chatID int64, hash string) (store.Subscription, bool) {
	for _, sub := range s.db.ByChat(chatID) {
		if repoHash(sub.RepoKey) == hash {
			return sub, true
		}
	}
	return store.Subscription{}, false
}

func (s *Service) callbackToggle(c tele.Context, hash, key string) error {
	sub, ok := s.resolveRepo(c.Chat().ID, hash)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Repository not found.", ShowAlert: true})
	}
	tg, ok := event.ToggleByKey(key)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Unknown setting.", ShowAlert: true})
	}

	var now bool
	_, err := s.db.UpdateEvents(sub.RepoKey, sub.ChatID, func(p *event.Preferences) {
		now = !tg.Get(p)
		tg.Set(p, now)
	})
	if err != nil {
		s.log.Error("preference update failed", logx.String("repo", sub.RepoKey), logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: "❌ Could not save.", ShowAlert: true})
	}

	updated, _ := s.db.Get(sub.RepoKey, sub.ChatID)
	var kb *tele.ReplyMarkup
	if group, _, found := strings.Cut(key, "."); found {
		kb = groupKeyboard(sub.RepoKey, group, updated.Events)
	} else {
		kb = settingsKeyboard(sub.RepoKey, updated.Events)
	}
	if err := c.Edit(settingsTitle(sub.RepoKey), kb, htmlOpts); err != nil {
		s.log.Debug("keyboard refresh failed", logx.Err(err))
	}
	state := "off"
	if now {
		state = "on"
	}
	return c.Respond(&tele.CallbackResponse{Text: tg.Label + ": " + state})
}

func settingsTitle(repoKey string) string {
	return fmt.Sprintf("⚙️ Settings for <code>%s</code>:", repoKey)
}

func (s *Service) callbackSettings(c tele.Context, action, hash string) error {
	sub, ok := s.resolveRepo(c.Chat().ID, hash)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Repository not found.", ShowAlert: true})
	}

	switch action {
	case "menu", "back":
		if err := c.Edit(settingsTitle(sub.RepoKey), settingsKeyboard(sub.RepoKey, sub.Events), htmlOpts); err != nil {
			s.log.Debug("menu edit failed", logx.Err(err))
		}
		return c.Respond()

	case "stats":
		st, ok := s.db.Statistics(sub.RepoKey)
		if !ok {
			return c.Respond(&tele.CallbackResponse{Text: "📊 No statistics collected yet.", ShowAlert: true})
		}
		text := format.Stats([]string{sub.RepoKey}, map[string]store.RepositoryStatistics{sub.RepoKey: st})
		if err := reply(c, text); err != nil {
			s.log.Error("stats send failed", logx.Err(err))
		}
		return c.Respond()

	case "remove":
		if err := c.Edit(
			fmt.Sprintf("⚠️ Remove repository <code>%s</code>?", sub.RepoKey),
			confirmRemoveKeyboard(sub.RepoKey), htmlOpts); err != nil {
			s.log.Debug("confirm edit failed", logx.Err(err))
		}
		return c.Respond()

	case "remove_confirm":
		if _, err := s.db.Remove(sub.RepoKey, sub.ChatID); err != nil {
			s.log.Error("subscription remove failed", logx.String("repo", sub.RepoKey), logx.Err(err))
			return c.Respond(&tele.CallbackResponse{Text: "❌ Could not remove.", ShowAlert: true})
		}
		s.log.Info("repository untracked",
			logx.String("repo", sub.RepoKey), logx.Int64("chat_id", sub.ChatID))
		if err := c.Edit(fmt.Sprintf("🗑️ Repository <code>%s</code> removed.", sub.RepoKey), htmlOpts); err != nil {
			s.log.Debug("remove edit failed", logx.Err(err))
		}
		return c.Respond()
	}

	if group, ok := groupByAction(action); ok {
		if err := c.Edit(settingsTitle(sub.RepoKey), groupKeyboard(sub.RepoKey, group, sub.Events), htmlOpts); err != nil {
			s.log.Debug("group edit failed", logx.Err(err))
		}
	}
	return c.Respond()
}

func messageThreadID(c tele.Context) int {
	if m := c.Message(); m != nil {
		return m.ThreadID
	}
	return 0
}
