package discord

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/intellifactory/internal/notify"
)

// --- Mock Discord session ---

type mockSession struct {
	mu      sync.Mutex
	sent    []sentEmbed
	errs    []error // returned in order, then nil
	callNum int
}

type sentEmbed struct {
	channelID string
	embed     *discordgo.MessageEmbed
}

func (m *mockSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callNum++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	m.sent = append(m.sent, sentEmbed{channelID: channelID, embed: embed})
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", m.callNum)}, nil
}

func rateLimited() error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
}

func testNotifier(t *testing.T, sess *mockSession) *Notifier {
	t.Helper()
	n, err := New(Opts{ChannelID: "chan-1", Session: sess})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.baseBackoff = time.Millisecond
	n.maxBackoff = 5 * time.Millisecond
	return n
}

func sampleEvent() notify.FormattedEvent {
	return notify.FormattedEvent{
		Title:    "2 machine(s) updated",
		Body:     "Machine 1: running at 100%",
		Severity: "info",
		Color:    notify.ColorInfo,
		Fields:   []notify.Field{{Name: "Agent", Value: "ProductionAgent", Short: true}},
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{BotToken: "tok"}); err == nil {
		t.Error("expected error without channel id")
	}
	if _, err := New(Opts{ChannelID: "c"}); err == nil {
		t.Error("expected error without bot token or session")
	}
}

func TestNew_WithBotToken(t *testing.T) {
	n, err := New(Opts{BotToken: "test-token", ChannelID: "c"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.sess == nil {
		t.Error("session should be created from bot token")
	}
	if n.Name() != "discord" {
		t.Errorf("Name() = %q, want discord", n.Name())
	}
}

func TestNotify_SendsEmbed(t *testing.T) {
	sess := &mockSession{}
	n := testNotifier(t, sess)

	if err := n.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sess.sent) != 1 {
		t.Fatalf("sent %d, want 1", len(sess.sent))
	}
	got := sess.sent[0]
	if got.channelID != "chan-1" {
		t.Errorf("channelID = %q, want chan-1", got.channelID)
	}
	if got.embed.Title != "2 machine(s) updated" {
		t.Errorf("Title = %q", got.embed.Title)
	}
	if got.embed.Color != 0x2196f3 {
		t.Errorf("Color = %#x, want %#x", got.embed.Color, 0x2196f3)
	}
	if len(got.embed.Fields) != 1 || !got.embed.Fields[0].Inline {
		t.Errorf("Fields = %+v", got.embed.Fields)
	}
}

func TestNotify_RetriesRateLimit(t *testing.T) {
	sess := &mockSession{errs: []error{rateLimited(), rateLimited()}}
	n := testNotifier(t, sess)

	if err := n.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sess.callNum != 3 {
		t.Errorf("calls = %d, want 3", sess.callNum)
	}
}

func TestNotify_GivesUpAfterMaxRetries(t *testing.T) {
	errs := make([]error, maxRetries+1)
	for i := range errs {
		errs[i] = rateLimited()
	}
	sess := &mockSession{errs: errs}
	n := testNotifier(t, sess)

	if err := n.Notify(context.Background(), sampleEvent()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if sess.callNum != maxRetries+1 {
		t.Errorf("calls = %d, want %d", sess.callNum, maxRetries+1)
	}
}

func TestNotify_OtherErrorNotRetried(t *testing.T) {
	sess := &mockSession{errs: []error{fmt.Errorf("missing access")}}
	n := testNotifier(t, sess)

	if err := n.Notify(context.Background(), sampleEvent()); err == nil {
		t.Fatal("expected error")
	}
	if sess.callNum != 1 {
		t.Errorf("calls = %d, want 1", sess.callNum)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"#36a64f", 0x36a64f},
		{"E53935", 0xe53935},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseHexColor(tt.in); got != tt.want {
			t.Errorf("parseHexColor(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}
