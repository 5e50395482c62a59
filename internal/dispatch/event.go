// Package dispatch is the concurrency core of the bot: it accepts inbound
// platform events, serializes them per user while running distinct users in
// parallel on a bounded worker pool, and drives the spam filter, captcha
// engine, and router. Downstream outcomes (expected rejects, transient
// failures, invariant violations) are converted here into a silent drop, a
// user notice, or an operator alert; the dispatch loop itself never
// crashes.
package dispatch

import "time"

// Kind classifies an inbound event.
type Kind string

const (
	// KindMessage is a new message to forward (or a captcha answer).
	KindMessage Kind = "message"
	// KindEdit is an edit of a previously seen message.
	KindEdit Kind = "edit"
	// KindDelete is a deletion of a previously seen message.
	KindDelete Kind = "delete"
	// KindCommand is an administrative command issued in the group.
	KindCommand Kind = "command"
)

// Origin tells which side of the relay produced the event.
type Origin string

const (
	// OriginPrivateChat: an end user's private chat with the bot.
	OriginPrivateChat Origin = "private_chat"
	// OriginGroupThread: a topic inside the staffed group.
	OriginGroupThread Origin = "group_thread"
)

// Event is the dispatcher's inbound boundary type, produced by the update
// source (internal/telegram) from raw platform updates.
type Event struct {
	Kind   Kind
	Origin Origin

	// UserID is set for private-chat events.
	UserID int64
	// UserTitle is the user's display name, used when a topic must be
	// created for them.
	UserTitle string

	// ThreadID is set for group-thread events.
	ThreadID int

	MessageID int
	Text      string

	// Command and Args are set for KindCommand.
	Command string
	Args    []string

	Time time.Time
}
