package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/TobyLinn/BetterForward/internal/repo"
	"github.com/TobyLinn/BetterForward/internal/services"
)

const testGroupID int64 = -100200300

// recordingTransport is an in-memory services.Transport capturing all
// outbound traffic: topic creations, mirrored messages, and plain-text
// notices.
type recordingTransport struct {
	mu sync.Mutex

	nextThread  int
	nextMessage int

	copies  []recordedCopy
	notices []recordedNotice
}

type recordedCopy struct {
	target  services.Target
	content services.Content
}

type recordedNotice struct {
	chatID int64
	text   string
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{nextThread: 100, nextMessage: 1000}
}

func (r *recordingTransport) CreateThread(ctx context.Context, userID int64, title string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextThread++
	return r.nextThread, nil
}

func (r *recordingTransport) Deliver(ctx context.Context, target services.Target, content services.Content) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextMessage++
	if content.MessageID != 0 {
		r.copies = append(r.copies, recordedCopy{target: target, content: content})
	} else {
		r.notices = append(r.notices, recordedNotice{chatID: target.ChatID, text: content.Text})
	}
	return r.nextMessage, nil
}

func (r *recordingTransport) EditDelivered(ctx context.Context, chatID int64, messageID int, text string) error {
	return nil
}

func (r *recordingTransport) DeleteDelivered(ctx context.Context, chatID int64, messageID int) error {
	return nil
}

func (r *recordingTransport) copied() []recordedCopy {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedCopy, len(r.copies))
	copy(out, r.copies)
	return out
}

func (r *recordingTransport) noticed() []recordedNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedNotice, len(r.notices))
	copy(out, r.notices)
	return out
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *recordingTransport, *gorm.DB) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("dispatch_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rt := newRecordingTransport()
	spam, err := services.NewSpamFilter(context.Background(), db)
	if err != nil {
		t.Fatalf("spam filter: %v", err)
	}
	captcha := services.NewCaptchaEngine(db, 3, 10*time.Minute, 2*time.Minute, services.DifficultyEasy)
	router := services.NewTopicRouter(db, rt, testGroupID)

	d := NewDispatcher(router, captcha, spam, rt, 4, 5*time.Second)
	return d, rt, db
}

func privateMessage(userID int64, messageID int, text string) Event {
	return Event{
		Kind:      KindMessage,
		Origin:    OriginPrivateChat,
		UserID:    userID,
		UserTitle: "Test User",
		MessageID: messageID,
		Text:      text,
		Time:      time.Now(),
	}
}

// verify walks a user through the captcha so later messages forward.
func verify(t *testing.T, d *Dispatcher, db *gorm.DB, userID int64) {
	t.Helper()
	ctx := context.Background()

	d.Dispatch(privateMessage(userID, 1, "hello"))
	d.Wait()

	st, err := repo.GetCaptchaState(ctx, db, userID)
	if err != nil {
		t.Fatalf("challenge state: %v", err)
	}
	d.Dispatch(privateMessage(userID, 2, st.ExpectedAnswer))
	d.Wait()

	verified, err := d.Captcha.IsVerified(ctx, userID)
	if err != nil || !verified {
		t.Fatalf("verification walk failed: verified=%v err=%v", verified, err)
	}
}

func TestDispatch_FirstContactTriggersChallenge(t *testing.T) {
	d, rt, db := newTestDispatcher(t)

	d.Dispatch(privateMessage(1001, 1, "hello, I need help"))
	d.Wait()

	// Nothing forwarded; the user got a challenge prompt instead.
	if copies := rt.copied(); len(copies) != 0 {
		t.Fatalf("unverified message was forwarded: %+v", copies)
	}
	notices := rt.noticed()
	if len(notices) != 1 || notices[0].chatID != 1001 {
		t.Fatalf("expected one challenge notice to the user, got %+v", notices)
	}

	st, err := repo.GetCaptchaState(context.Background(), db, 1001)
	if err != nil {
		t.Fatalf("challenge state: %v", err)
	}
	if !strings.Contains(notices[0].text, st.Challenge) {
		t.Fatalf("notice %q does not carry the challenge %q", notices[0].text, st.Challenge)
	}
}

func TestDispatch_VerifiedMessageForwards(t *testing.T) {
	d, rt, db := newTestDispatcher(t)
	verify(t, d, db, 1001)

	d.Dispatch(privateMessage(1001, 3, "real question"))
	d.Wait()

	copies := rt.copied()
	if len(copies) != 1 {
		t.Fatalf("expected one forwarded message, got %d", len(copies))
	}
	if copies[0].target.ChatID != testGroupID || copies[0].content.MessageID != 3 {
		t.Fatalf("unexpected forward: %+v", copies[0])
	}
}

func TestDispatch_WrongAnswerCountsDown(t *testing.T) {
	d, rt, _ := newTestDispatcher(t)

	d.Dispatch(privateMessage(1001, 1, "hi"))
	d.Wait()
	d.Dispatch(privateMessage(1001, 2, "certainly wrong"))
	d.Wait()

	notices := rt.noticed()
	last := notices[len(notices)-1]
	if !strings.Contains(last.text, "2 attempts remaining") {
		t.Fatalf("expected countdown notice, got %q", last.text)
	}
}

func TestDispatch_SpamDroppedSilently(t *testing.T) {
	d, rt, db := newTestDispatcher(t)

	if _, err := d.Spam.Add(context.Background(), "casino"); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	d.Dispatch(privateMessage(1001, 1, "best CASINO in town"))
	d.Wait()

	if len(rt.copied()) != 0 || len(rt.noticed()) != 0 {
		t.Fatal("spam produced outbound traffic")
	}
	// Spam never reaches the captcha gate, so no state was created.
	if _, err := repo.GetCaptchaState(context.Background(), db, 1001); err == nil {
		t.Fatal("spam created captcha state")
	}
}

func TestDispatch_GroupReplyRoutesToUser(t *testing.T) {
	d, rt, db := newTestDispatcher(t)
	verify(t, d, db, 1001)

	// First forwarded message creates the topic.
	d.Dispatch(privateMessage(1001, 3, "question"))
	d.Wait()

	ut, err := repo.GetUserThread(context.Background(), db, 1001)
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}

	d.Dispatch(Event{
		Kind:      KindMessage,
		Origin:    OriginGroupThread,
		ThreadID:  ut.ThreadID,
		MessageID: 77,
		Text:      "staff answer",
		Time:      time.Now(),
	})
	d.Wait()

	copies := rt.copied()
	last := copies[len(copies)-1]
	if last.target.ChatID != 1001 || last.content.MessageID != 77 {
		t.Fatalf("reply not routed to the user: %+v", last)
	}
}

func TestDispatch_UnmappedTopicDropped(t *testing.T) {
	d, rt, _ := newTestDispatcher(t)

	d.Dispatch(Event{
		Kind:      KindMessage,
		Origin:    OriginGroupThread,
		ThreadID:  424242,
		MessageID: 77,
		Text:      "shouting into the void",
		Time:      time.Now(),
	})
	d.Wait()

	if len(rt.copied()) != 0 || len(rt.noticed()) != 0 {
		t.Fatal("unmapped topic produced outbound traffic")
	}
}

func TestDispatch_EditWithoutLinkIsNonEvent(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	d.Dispatch(Event{
		Kind:      KindEdit,
		Origin:    OriginPrivateChat,
		UserID:    1001,
		MessageID: 404,
		Text:      "edited before ever forwarded",
		Time:      time.Now(),
	})
	d.Wait()
	// Reaching here without a panic is the assertion.
}

func TestDispatch_PanicContained(t *testing.T) {
	d, rt, db := newTestDispatcher(t)
	verify(t, d, db, 1001)

	d.OnCommand = func(ctx context.Context, ev Event) {
		panic("command handler exploded")
	}
	d.Dispatch(Event{
		Kind:    KindCommand,
		Origin:  OriginGroupThread,
		Command: "boom",
		Time:    time.Now(),
	})
	d.Wait()

	// The pool survives and keeps processing.
	d.Dispatch(privateMessage(1001, 9, "still alive?"))
	d.Wait()

	copies := rt.copied()
	if len(copies) == 0 || copies[len(copies)-1].content.MessageID != 9 {
		t.Fatalf("dispatcher did not survive handler panic: %+v", copies)
	}
}

func TestDispatch_PerUserOrderPreserved(t *testing.T) {
	d, rt, db := newTestDispatcher(t)
	verify(t, d, db, 1001)
	verify(t, d, db, 2002)

	const perUser = 50
	for i := 0; i < perUser; i++ {
		d.Dispatch(privateMessage(1001, 100+i, "a"))
		d.Dispatch(privateMessage(2002, 10100+i, "b"))
	}
	d.Wait()

	var a, b []int
	for _, c := range rt.copied() {
		switch c.content.FromChatID {
		case 1001:
			a = append(a, c.content.MessageID)
		case 2002:
			b = append(b, c.content.MessageID)
		}
	}
	if len(a) != perUser || len(b) != perUser {
		t.Fatalf("lost messages: user a %d, user b %d", len(a), len(b))
	}
	for i := 1; i < perUser; i++ {
		if a[i] < a[i-1] {
			t.Fatalf("user a out of order at %d: %v", i, a[:i+1])
		}
		if b[i] < b[i-1] {
			t.Fatalf("user b out of order at %d: %v", i, b[:i+1])
		}
	}
}
