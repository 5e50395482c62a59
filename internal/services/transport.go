// Package services – transport boundary
//
// Transport is the contract the router consumes for everything that leaves
// the process: topic creation, message delivery, and edit/delete
// propagation. The concrete implementation (Telegram, internal/telegram)
// owns wire formats, rate limiting, and per-call timeouts; from the
// router's perspective every call is synchronous and either succeeds,
// fails transiently, or reports the destination topic as gone.
package services

import (
	"context"
	"errors"
)

// ErrThreadGone is returned by Transport implementations when delivery
// failed because the destination topic no longer exists on the platform.
// The router reacts by archiving the stale mapping so the next inbound
// message recreates the topic.
var ErrThreadGone = errors.New("destination thread no longer exists")

// Target addresses a delivery: a chat, optionally a topic within it.
// ThreadID 0 means the chat's default timeline (a user's private chat).
type Target struct {
	ChatID   int64
	ThreadID int
}

// Content is what gets delivered. When MessageID is set the transport
// mirrors that existing message (preserving media and formatting);
// otherwise it sends Text as a plain message.
type Content struct {
	FromChatID int64
	MessageID  int
	Text       string
}

// Transport is the outbound platform boundary consumed by the router and
// the dispatcher's notice path.
type Transport interface {
	// CreateThread creates a dedicated topic for userID in the staffed
	// group and returns its thread ID.
	CreateThread(ctx context.Context, userID int64, title string) (int, error)

	// Deliver places a copy of content at target and returns the new
	// message's ID. Returns ErrThreadGone (possibly wrapped) when the
	// target topic was removed.
	Deliver(ctx context.Context, target Target, content Content) (int, error)

	// EditDelivered replaces the text of a previously delivered message.
	EditDelivered(ctx context.Context, chatID int64, messageID int, text string) error

	// DeleteDelivered removes a previously delivered message. Absence of
	// the message is tolerated by callers, not retried.
	DeleteDelivered(ctx context.Context, chatID int64, messageID int) error
}
