package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/TobyLinn/BetterForward/internal/dispatch"
	"github.com/TobyLinn/BetterForward/internal/services"
)

// captureTransport records Deliver calls so tests can assert that command
// replies flow through the shared transport.
type captureTransport struct {
	mu        sync.Mutex
	delivered []struct {
		target  services.Target
		content services.Content
	}
}

func (c *captureTransport) CreateThread(ctx context.Context, userID int64, title string) (int, error) {
	return 0, nil
}

func (c *captureTransport) Deliver(ctx context.Context, target services.Target, content services.Content) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered = append(c.delivered, struct {
		target  services.Target
		content services.Content
	}{target, content})
	return len(c.delivered), nil
}

func (c *captureTransport) EditDelivered(ctx context.Context, chatID int64, messageID int, text string) error {
	return nil
}

func (c *captureTransport) DeleteDelivered(ctx context.Context, chatID int64, messageID int) error {
	return nil
}

func TestReply_GoesThroughTransport(t *testing.T) {
	ct := &captureTransport{}
	b := &Bot{groupID: -100200300, transport: ct}

	ev := dispatch.Event{Kind: dispatch.KindCommand, Command: "help", ThreadID: 42}
	b.reply(context.Background(), ev, "hello staff")

	if len(ct.delivered) != 1 {
		t.Fatalf("expected one transport delivery, got %d", len(ct.delivered))
	}
	d := ct.delivered[0]
	if d.target.ChatID != b.groupID || d.target.ThreadID != 42 {
		t.Fatalf("reply misaddressed: %+v", d.target)
	}
	if d.content.Text != "hello staff" || d.content.MessageID != 0 {
		t.Fatalf("reply content mangled: %+v", d.content)
	}
}

func TestHandleCommand_HelpAndUnknown(t *testing.T) {
	ct := &captureTransport{}
	b := &Bot{groupID: -100200300, transport: ct}

	b.handleCommand(context.Background(), dispatch.Event{Kind: dispatch.KindCommand, Command: "help", ThreadID: 7})
	b.handleCommand(context.Background(), dispatch.Event{Kind: dispatch.KindCommand, Command: "frobnicate", ThreadID: 7})

	if len(ct.delivered) != 2 {
		t.Fatalf("expected two replies, got %d", len(ct.delivered))
	}
	if !strings.Contains(ct.delivered[0].content.Text, "/addspam") {
		t.Fatalf("help text missing commands: %q", ct.delivered[0].content.Text)
	}
	if !strings.Contains(ct.delivered[1].content.Text, "Unknown command") {
		t.Fatalf("unexpected unknown-command reply: %q", ct.delivered[1].content.Text)
	}
}

func TestParseUserID(t *testing.T) {
	cases := []struct {
		args   []string
		wantID int64
		wantOK bool
	}{
		{[]string{"1001"}, 1001, true},
		{[]string{"9223372036854775807"}, 9223372036854775807, true},
		{[]string{}, 0, false},
		{[]string{"1001", "extra"}, 0, false},
		{[]string{"alice"}, 0, false},
		{[]string{"-5"}, 0, false},
		{[]string{"0"}, 0, false},
	}
	for _, c := range cases {
		id, ok := parseUserID(c.args)
		if id != c.wantID || ok != c.wantOK {
			t.Errorf("parseUserID(%v) = (%d, %v), want (%d, %v)", c.args, id, ok, c.wantID, c.wantOK)
		}
	}
}
