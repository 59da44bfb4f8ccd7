package bot

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	tele "gopkg.in/telebot.v4"

	"ghnotify/internal/event"
)

// Callback data stays under Telegram's 64-byte limit by addressing
// repositories through a short hash instead of the full name:
//
//	set:<action>:<hash>       menu navigation and repo actions
//	evt:<hash>:<toggle key>   flip one preference leaf
const (
	cbSettings = "set"
	cbToggle   = "evt"
)

// menu groups, in display order. Simple toggles render directly on the main
// keyboard; grouped ones get a submenu each.
var simpleToggles = []string{"commits", "watch", "forks"}

var groups = []struct {
	action string
	title  string
}{
	{"issues", "📝 Issues"},
	{"issue_comments", "💬 Issue Comments"},
	{"pull_requests", "📦 Pull Requests"},
	{"pull_request_comments", "💬 PR Comments"},
	{"releases", "🚀 Releases"},
}

func repoHash(repoKey string) string {
	sum := md5.Sum([]byte(repoKey))
	return hex.EncodeToString(sum[:])[:8]
}

func statusIcon(on bool) string {
	if on {
		return "✅"
	}
	return "❌"
}

func btn(text, data string) tele.InlineButton {
	return tele.InlineButton{Text: text, Data: data}
}

func markup(rows ...[]tele.InlineButton) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

// settingsKeyboard is the main per-repository menu: direct toggles, one
// button per group, then statistics and removal.
func settingsKeyboard(repoKey string, prefs event.Preferences) *tele.ReplyMarkup {
	hash := repoHash(repoKey)

	var rows [][]tele.InlineButton
	var row []tele.InlineButton
	for _, key := range simpleToggles {
		tg, ok := event.ToggleByKey(key)
		if !ok {
			continue
		}
		row = append(row, btn(statusIcon(tg.Get(&prefs))+" "+tg.Label, cbToggle+":"+hash+":"+tg.Key))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	for _, g := range groups {
		rows = append(rows, []tele.InlineButton{btn(g.title, cbSettings+":"+g.action+":"+hash)})
	}
	rows = append(rows,
		[]tele.InlineButton{btn("📊 Statistics", cbSettings+":stats:"+hash)},
		[]tele.InlineButton{btn("🗑️ Remove Repository", cbSettings+":remove:"+hash)},
	)
	return markup(rows...)
}

// groupKeyboard renders the toggles of one group plus a back button.
func groupKeyboard(repoKey, group string, prefs event.Preferences) *tele.ReplyMarkup {
	hash := repoHash(repoKey)

	var rows [][]tele.InlineButton
	var row []tele.InlineButton
	for _, tg := range event.Toggles() {
		if !strings.HasPrefix(tg.Key, group+".") {
			continue
		}
		row = append(row, btn(statusIcon(tg.Get(&prefs))+" "+tg.Label, cbToggle+":"+hash+":"+tg.Key))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []tele.InlineButton{btn("🔙 Back", cbSettings+":back:"+hash)})
	return markup(rows...)
}

func confirmRemoveKeyboard(repoKey string) *tele.ReplyMarkup {
	hash := repoHash(repoKey)
	return markup([]tele.InlineButton{
		btn("🗑️ Yes, remove", cbSettings+":remove_confirm:"+hash),
		btn("Cancel", cbSettings+":back:"+hash),
	})
}

// repoListKeyboard offers one button per tracked repository, opening its
// settings menu.
func repoListKeyboard(repoKeys []string) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, len(repoKeys))
	for _, key := range repoKeys {
		rows = append(rows, []tele.InlineButton{btn(key, cbSettings+":menu:"+repoHash(key))})
	}
	return markup(rows...)
}

// groupByAction reports whether action names a toggle group.
func groupByAction(action string) (string, bool) {
	for _, g := range groups {
		if g.action == action {
			return g.action, true
		}
	}
	return "", false
}
