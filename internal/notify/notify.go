// Package notify is the outbound edge: a rate-limited Telegram sink and the
// worker that turns quota-exhaustion events into operator alerts.
package notify

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"
)

// Target addresses one chat, optionally a forum topic within it.
type Target struct {
	ChatID   int64
	ThreadID int
}

// Sink delivers one rendered HTML message. Implementations must be safe for
// concurrent use.
type Sink interface {
	Send(ctx context.Context, to Target, text string) error
}

// SinkFunc wraps a plain function as a Sink.
type SinkFunc func(ctx context.Context, to Target, text string) error

func (f SinkFunc) Send(ctx context.Context, to Target, text string) error { return f(ctx, to, text) }

// TelegramSink sends through the bot API under a shared token bucket, so
// webhook bursts and poll fan-out cannot trip Telegram's flood control.
type TelegramSink struct {
	bot     *tele.Bot
	limiter *rate.Limiter
}

func NewTelegramSink(bot *tele.Bot, ratePerSec int) *TelegramSink {
	if ratePerSec <= 0 {
		ratePerSec = 3
	}
	return &TelegramSink{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

func (s *TelegramSink) Send(ctx context.Context, to Target, text string) error {
	if text == "" {
		return nil
	}
	for _, chunk := range splitText(text, textLimit) {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		opts := &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
			ThreadID:              to.ThreadID,
		}
		if _, err := s.bot.Send(tele.ChatID(to.ChatID), chunk, opts); err != nil {
			return fmt.Errorf("telegram send to %d: %w", to.ChatID, err)
		}
	}
	return nil
}

const textLimit = 4000

// splitText cuts long messages into sendable chunks, preferring newline
// boundaries and keeping HTML tags intact best-effort.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
			// Don't cut inside a tag.
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
