// Package telegram – update source.
//
// This file runs the long-polling loop and converts raw Telegram updates
// into dispatcher events. Classification rules:
//
//   - private chat message        → KindMessage / OriginPrivateChat
//   - group topic message         → KindMessage / OriginGroupThread
//   - "/command" in the group     → KindCommand (any topic)
//   - edited message, either side → KindEdit
//
// The bot's own messages (the mirrors it posts) come back as updates and
// are skipped, as is non-command chatter outside any topic.
package telegram

import (
	"errors"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"github.com/rs/zerolog/log"

	"github.com/TobyLinn/BetterForward/internal/dispatch"
	"github.com/TobyLinn/BetterForward/internal/services"
)

// ErrGetMe is returned when the bot identity cannot be retrieved at startup.
var ErrGetMe = errors.New("cannot retrieve bot identity")

// Bot owns the long-polling loop and the admin command surface.
type Bot struct {
	api        *telego.Bot
	dispatcher *dispatch.Dispatcher
	admin      *services.Admin
	transport  services.Transport
	groupID    int64

	selfID   int64
	username string
}

// NewBot wires the update source to the dispatcher and the administrative
// surface. Command replies go out through transport so they share the rate
// limiter and per-call timeout with all other outbound traffic. It
// registers itself as the dispatcher's command handler.
func NewBot(api *telego.Bot, d *dispatch.Dispatcher, admin *services.Admin, transport services.Transport, groupID int64) *Bot {
	b := &Bot{
		api:        api,
		dispatcher: d,
		admin:      admin,
		transport:  transport,
		groupID:    groupID,
	}
	d.OnCommand = b.handleCommand
	return b
}

// Run starts long polling and blocks until the update channel closes
// (after Stop) or startup fails.
func (b *Bot) Run() error {
	me, err := b.api.GetMe()
	if err != nil {
		log.Error().Err(err).Msg("cannot retrieve bot identity")
		return ErrGetMe
	}
	b.selfID = me.ID
	b.username = me.Username

	log.Info().
		Int64("id", me.ID).
		Str("username", me.Username).
		Msg("running as bot")

	updates, err := b.api.UpdatesViaLongPolling(nil)
	if err != nil {
		return err
	}

	for update := range updates {
		if ev, ok := b.toEvent(update); ok {
			b.dispatcher.Dispatch(ev)
		}
	}
	return nil
}

// Stop ends long polling; Run returns once in-flight updates are handed to
// the dispatcher.
func (b *Bot) Stop() {
	b.api.StopLongPolling()
}

// toEvent classifies one update. The second return is false for updates
// the relay ignores.
func (b *Bot) toEvent(update telego.Update) (dispatch.Event, bool) {
	switch {
	case update.Message != nil:
		return b.classifyMessage(update.Message, dispatch.KindMessage)
	case update.EditedMessage != nil:
		return b.classifyMessage(update.EditedMessage, dispatch.KindEdit)
	default:
		return dispatch.Event{}, false
	}
}

// classifyMessage maps a (possibly edited) message to an event.
func (b *Bot) classifyMessage(msg *telego.Message, kind dispatch.Kind) (dispatch.Event, bool) {
	if msg.From == nil || msg.From.ID == b.selfID {
		return dispatch.Event{}, false
	}
	at := time.Unix(msg.Date, 0)

	// Private chat with an end user.
	if msg.Chat.Type == telego.ChatTypePrivate {
		return dispatch.Event{
			Kind:      kind,
			Origin:    dispatch.OriginPrivateChat,
			UserID:    msg.From.ID,
			UserTitle: displayName(msg.From),
			MessageID: msg.MessageID,
			Text:      messageText(msg),
			Time:      at,
		}, true
	}

	// Only the configured group is relayed.
	if msg.Chat.ID != b.groupID {
		return dispatch.Event{}, false
	}

	if kind == dispatch.KindMessage {
		if cmd, args, ok := b.parseCommand(messageText(msg)); ok {
			return dispatch.Event{
				Kind:      dispatch.KindCommand,
				Origin:    dispatch.OriginGroupThread,
				ThreadID:  msg.MessageThreadID,
				MessageID: msg.MessageID,
				Command:   cmd,
				Args:      args,
				Time:      at,
			}, true
		}
	}

	// Staff traffic outside any topic has nowhere to route.
	if msg.MessageThreadID == 0 {
		return dispatch.Event{}, false
	}

	return dispatch.Event{
		Kind:      kind,
		Origin:    dispatch.OriginGroupThread,
		ThreadID:  msg.MessageThreadID,
		MessageID: msg.MessageID,
		Text:      messageText(msg),
		Time:      at,
	}, true
}

// parseCommand splits "/cmd arg1 arg2", tolerating the "@botname" suffix
// Telegram appends in groups.
func (b *Bot) parseCommand(text string) (cmd string, args []string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	cmd = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		if b.username != "" && !strings.EqualFold(cmd[at+1:], b.username) {
			return "", nil, false
		}
		cmd = cmd[:at]
	}
	if cmd == "" {
		return "", nil, false
	}
	return strings.ToLower(cmd), fields[1:], true
}

// messageText returns the text, falling back to the media caption.
func messageText(msg *telego.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

// displayName builds the topic title for a user.
func displayName(u *telego.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.Username != "" {
		name = "@" + u.Username
	}
	if name == "" {
		name = "User"
	}
	return name
}
