// Package telegram adapts the Telegram Bot API (via telego) to the
// boundaries the core consumes: the outbound services.Transport and the
// inbound update stream feeding the dispatcher.
//
// This file implements the Transport. Every outbound call waits on a
// process-wide token bucket (Telegram throttles bots that burst) and is
// bounded by the configured per-call timeout; a call that exceeds it is a
// failure, not something to retry here.
package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/TobyLinn/BetterForward/internal/services"
)

// Transport is the telego-backed implementation of services.Transport.
type Transport struct {
	api     *telego.Bot
	groupID int64
	timeout time.Duration
	limiter *rate.Limiter
}

// NewTransport wraps a telego bot as the core's outbound transport.
func NewTransport(api *telego.Bot, groupID int64, timeout time.Duration, sendRate float64, sendBurst int) *Transport {
	return &Transport{
		api:     api,
		groupID: groupID,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(sendRate), sendBurst),
	}
}

// CreateThread creates a forum topic for userID in the staffed group.
func (t *Transport) CreateThread(ctx context.Context, userID int64, title string) (int, error) {
	if title == "" {
		title = "User"
	}
	topic, err := call(ctx, t, func() (*telego.ForumTopic, error) {
		return t.api.CreateForumTopic(&telego.CreateForumTopicParams{
			ChatID: tu.ID(t.groupID),
			Name:   title,
		})
	})
	if err != nil {
		return 0, err
	}
	return topic.MessageThreadID, nil
}

// Deliver places content at target. An existing message is mirrored with
// CopyMessage (preserving media and formatting); plain text is sent as a
// new message.
func (t *Transport) Deliver(ctx context.Context, target services.Target, content services.Content) (int, error) {
	if content.MessageID != 0 {
		id, err := call(ctx, t, func() (*telego.MessageID, error) {
			return t.api.CopyMessage(&telego.CopyMessageParams{
				ChatID:          tu.ID(target.ChatID),
				FromChatID:      tu.ID(content.FromChatID),
				MessageID:       content.MessageID,
				MessageThreadID: target.ThreadID,
			})
		})
		if err != nil {
			return 0, err
		}
		return id.MessageID, nil
	}

	msg, err := call(ctx, t, func() (*telego.Message, error) {
		return t.api.SendMessage(&telego.SendMessageParams{
			ChatID:          tu.ID(target.ChatID),
			Text:            content.Text,
			MessageThreadID: target.ThreadID,
		})
	})
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditDelivered replaces the text of a previously delivered message.
func (t *Transport) EditDelivered(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := call(ctx, t, func() (*telego.Message, error) {
		return t.api.EditMessageText(&telego.EditMessageTextParams{
			ChatID:    tu.ID(chatID),
			MessageID: messageID,
			Text:      text,
		})
	})
	return err
}

// DeleteDelivered removes a previously delivered message.
func (t *Transport) DeleteDelivered(ctx context.Context, chatID int64, messageID int) error {
	_, err := call(ctx, t, func() (struct{}, error) {
		return struct{}{}, t.api.DeleteMessage(&telego.DeleteMessageParams{
			ChatID:    tu.ID(chatID),
			MessageID: messageID,
		})
	})
	return err
}

// call runs one API invocation under the rate limiter and the per-call
// timeout, translating thread-gone failures into services.ErrThreadGone so
// the router can self-heal.
func call[T any](ctx context.Context, t *Transport, fn func() (T, error)) (T, error) {
	var zero T

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && isThreadGone(r.err) {
			return zero, &threadGoneError{cause: r.err}
		}
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// threadGoneError tags a Telegram "thread not found" failure so
// errors.Is(err, services.ErrThreadGone) holds while the original API
// error stays inspectable.
type threadGoneError struct {
	cause error
}

func (e *threadGoneError) Error() string { return e.cause.Error() }

func (e *threadGoneError) Is(target error) bool { return target == services.ErrThreadGone }

func (e *threadGoneError) Unwrap() error { return e.cause }

// isThreadGone recognizes the Bot API responses that mean the destination
// topic no longer exists.
func isThreadGone(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message thread not found") ||
		strings.Contains(msg, "topic_deleted") ||
		strings.Contains(msg, "topic_closed")
}
