package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"ghnotify/internal/eventbus"
	"ghnotify/internal/github"
	"ghnotify/pkg/logx"
)

func TestSplitTextShortPassesThrough(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %v", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("line one\n", 30)
	chunks := splitText(text, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, len([]rune(c)))
		}
		if !strings.HasSuffix(c, "one") {
			t.Fatalf("chunk %d not cut at a newline: %q", i, c)
		}
	}
}

func TestSplitTextKeepsTagsIntact(t *testing.T) {
	t.Parallel()
	// A tag opening right at the window edge must be pushed into the next
	// chunk rather than cut in half.
	text := strings.Repeat("x", 95) + "<b>bold</b>"
	for _, c := range splitText(text, 100) {
		open := strings.Count(c, "<")
		closeN := strings.Count(c, ">")
		if open != closeN {
			t.Fatalf("chunk split inside a tag: %q", c)
		}
	}
}

func TestQuotaAlerterSendsAndSuppresses(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	var sent []string
	sink := SinkFunc(func(_ context.Context, to Target, text string) error {
		if to.ChatID != 99 {
			t.Errorf("alert sent to %d, want admin chat 99", to.ChatID)
		}
		sent = append(sent, text)
		return nil
	})

	a := NewQuotaAlerter(bus, sink, 99, logx.Nop())
	q := github.QuotaEvent{Wait: 20 * time.Minute, ResetAt: time.Now().Add(20 * time.Minute), Credentials: 2}

	a.handle(context.Background(), q)
	a.handle(context.Background(), q) // inside the suppression window
	if len(sent) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(sent))
	}
	if !strings.Contains(sent[0], "quota exhausted") {
		t.Errorf("unexpected alert text: %s", sent[0])
	}

	a.lastSent = time.Now().Add(-time.Hour)
	a.handle(context.Background(), q)
	if len(sent) != 2 {
		t.Fatalf("alert after the window must go through, got %d", len(sent))
	}
}

func TestQuotaAlerterNoAdminChat(t *testing.T) {
	t.Parallel()
	called := false
	sink := SinkFunc(func(context.Context, Target, string) error {
		called = true
		return nil
	})
	a := NewQuotaAlerter(eventbus.New(), sink, 0, logx.Nop())
	a.handle(context.Background(), github.QuotaEvent{Wait: time.Minute})
	if called {
		t.Fatal("no admin chat configured, nothing may be sent")
	}
}

func TestQuotaAlerterRunConsumesBus(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	got := make(chan string, 1)
	sink := SinkFunc(func(_ context.Context, _ Target, text string) error {
		select {
		case got <- text:
		default:
		}
		return nil
	})

	a := NewQuotaAlerter(bus, sink, 7, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()

	// Give Run a moment to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	bus.Publish(eventbus.Event{
		Type: github.QuotaEventType,
		Data: github.QuotaEvent{Wait: time.Hour, ResetAt: time.Now().Add(time.Hour), Credentials: 1},
	})

	select {
	case text := <-got:
		if !strings.Contains(text, "quota") {
			t.Errorf("unexpected alert: %s", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert never delivered")
	}
	cancel()
	<-done
}
