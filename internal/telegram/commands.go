// Package telegram – administrative commands.
//
// Staff issue these inside the group; the dispatcher serializes them on a
// reserved lane so ruleset mutations stay ordered. Replies go back into
// the topic the command was issued in.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/TobyLinn/BetterForward/internal/dispatch"
	"github.com/TobyLinn/BetterForward/internal/services"
)

// handleCommand is the dispatch.CommandHandler wired in NewBot.
func (b *Bot) handleCommand(ctx context.Context, ev dispatch.Event) {
	switch ev.Command {
	case "spamlist":
		b.cmdSpamList(ctx, ev)
	case "addspam":
		b.cmdAddSpam(ctx, ev)
	case "delspam":
		b.cmdDelSpam(ctx, ev)
	case "resetcaptcha":
		b.cmdResetCaptcha(ctx, ev)
	case "unlock":
		b.cmdUnlock(ctx, ev)
	case "captchastats":
		b.cmdCaptchaStats(ctx, ev)
	case "help", "start":
		b.reply(ctx, ev, helpText)
	default:
		b.reply(ctx, ev, "Unknown command. Send /help for the command list.")
	}
}

const helpText = `Commands:
/spamlist - show spam keywords
/addspam <keyword> - add a spam keyword
/delspam <keyword> - remove a spam keyword
/resetcaptcha <user_id> - wipe a user's verification state
/unlock <user_id> - lift a captcha lockout
/captchastats <user_id> - verification stats for the last 24h`

func (b *Bot) cmdSpamList(ctx context.Context, ev dispatch.Event) {
	rules, err := b.admin.ListSpamRules(ctx)
	if err != nil {
		b.reply(ctx, ev, "Failed to read the spam rule list.")
		return
	}
	if len(rules) == 0 {
		b.reply(ctx, ev, "No spam keywords configured.")
		return
	}
	b.reply(ctx, ev, "Spam keywords:\n- "+strings.Join(rules, "\n- "))
}

func (b *Bot) cmdAddSpam(ctx context.Context, ev dispatch.Event) {
	if len(ev.Args) == 0 {
		b.reply(ctx, ev, "Usage: /addspam <keyword>")
		return
	}
	keyword := strings.Join(ev.Args, " ")
	added, err := b.admin.AddSpamRule(ctx, keyword)
	if err != nil {
		b.reply(ctx, ev, "Failed to add the keyword.")
		return
	}
	if !added {
		b.reply(ctx, ev, fmt.Sprintf("Keyword %q is already in the list.", keyword))
		return
	}
	b.reply(ctx, ev, fmt.Sprintf("Keyword %q added.", keyword))
}

func (b *Bot) cmdDelSpam(ctx context.Context, ev dispatch.Event) {
	if len(ev.Args) == 0 {
		b.reply(ctx, ev, "Usage: /delspam <keyword>")
		return
	}
	keyword := strings.Join(ev.Args, " ")
	removed, err := b.admin.RemoveSpamRule(ctx, keyword)
	if err != nil {
		b.reply(ctx, ev, "Failed to remove the keyword.")
		return
	}
	if !removed {
		b.reply(ctx, ev, fmt.Sprintf("Keyword %q is not in the list.", keyword))
		return
	}
	b.reply(ctx, ev, fmt.Sprintf("Keyword %q removed.", keyword))
}

func (b *Bot) cmdResetCaptcha(ctx context.Context, ev dispatch.Event) {
	userID, ok := parseUserID(ev.Args)
	if !ok {
		b.reply(ctx, ev, "Usage: /resetcaptcha <user_id>")
		return
	}
	if err := b.admin.ResetCaptcha(ctx, userID); err != nil {
		b.reply(ctx, ev, "Failed to reset verification state.")
		return
	}
	b.reply(ctx, ev, fmt.Sprintf("Verification state for user %d cleared.", userID))
}

func (b *Bot) cmdUnlock(ctx context.Context, ev dispatch.Event) {
	userID, ok := parseUserID(ev.Args)
	if !ok {
		b.reply(ctx, ev, "Usage: /unlock <user_id>")
		return
	}
	st, err := b.admin.ForceUnlock(ctx, userID)
	if errors.Is(err, services.ErrNoChallenge) {
		b.reply(ctx, ev, fmt.Sprintf("User %d has no verification state.", userID))
		return
	}
	if err != nil {
		b.reply(ctx, ev, "Failed to unlock the user.")
		return
	}
	b.reply(ctx, ev, fmt.Sprintf("User %d unlocked, state is now %q.", userID, st.Status))
}

func (b *Bot) cmdCaptchaStats(ctx context.Context, ev dispatch.Event) {
	userID, ok := parseUserID(ev.Args)
	if !ok {
		b.reply(ctx, ev, "Usage: /captchastats <user_id>")
		return
	}
	stats, err := b.admin.CaptchaStats(ctx, userID)
	if err != nil {
		b.reply(ctx, ev, "Failed to read verification stats.")
		return
	}
	b.reply(ctx, ev, fmt.Sprintf(
		"Verification attempts for user %d in the last 24h: %d total, %d passed, %d failed.",
		userID, stats.Total, stats.Passed, stats.Failed))
}

// parseUserID reads the single numeric argument the user-targeting
// commands take.
func parseUserID(args []string) (int64, bool) {
	if len(args) != 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// reply answers in the topic the command was issued in. Replies go through
// the shared transport so they respect the outbound rate limit.
func (b *Bot) reply(ctx context.Context, ev dispatch.Event, text string) {
	target := services.Target{ChatID: b.groupID, ThreadID: ev.ThreadID}
	if _, err := b.transport.Deliver(ctx, target, services.Content{Text: text}); err != nil {
		log.Error().Err(err).Str("command", ev.Command).Msg("cannot send command reply")
	}
}
