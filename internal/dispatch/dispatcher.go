// Package dispatch – the dispatcher itself.
//
// See package documentation in event.go. Every event gets a correlation ID
// carried through its log entries; handler panics and downstream errors are
// contained to the single event being processed.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/TobyLinn/BetterForward/internal/domain"
	"github.com/TobyLinn/BetterForward/internal/observability"
	"github.com/TobyLinn/BetterForward/internal/repo"
	"github.com/TobyLinn/BetterForward/internal/services"
)

// CommandHandler processes an administrative command event. Wired by the
// presentation layer (internal/telegram); the dispatcher only guarantees it
// runs on the right lane with panics contained.
type CommandHandler func(ctx context.Context, ev Event)

// Dispatcher drives the forwarding core. Construct with NewDispatcher.
type Dispatcher struct {
	Router  *services.TopicRouter
	Captcha *services.CaptchaEngine
	Spam    *services.SpamFilter

	// Transport sends user-visible notices (captcha prompts, rejection and
	// lockout messages).
	Transport services.Transport

	// OnCommand handles KindCommand events; nil drops them.
	OnCommand CommandHandler

	// Timeout bounds the processing of one event, covering its store and
	// transport calls.
	Timeout time.Duration

	lanes *laneGroup
}

// NewDispatcher constructs a dispatcher running at most workers events
// concurrently.
func NewDispatcher(router *services.TopicRouter, captcha *services.CaptchaEngine, spam *services.SpamFilter, transport services.Transport, workers int, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		Router:    router,
		Captcha:   captcha,
		Spam:      spam,
		Transport: transport,
		Timeout:   timeout,
		lanes:     newLaneGroup(workers),
	}
}

// Dispatch accepts one inbound event. It returns immediately; processing
// happens on the event's per-user lane. All events for one user (including
// group-side events in that user's topic) are processed in arrival order
// and never concurrently.
func (d *Dispatcher) Dispatch(ev Event) {
	lg := log.With().
		Str("event_id", uuid.NewString()).
		Str("kind", string(ev.Kind)).
		Str("origin", string(ev.Origin)).
		Logger()

	key, ok := d.laneKey(ev, lg)
	if !ok {
		return
	}

	observability.QueueDepth.Inc()
	d.lanes.Submit(key, func() {
		defer observability.QueueDepth.Dec()
		defer func() {
			if rec := recover(); rec != nil {
				lg.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("event handler panicked, event discarded")
			}
		}()

		ctx := context.Background()
		if d.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.Timeout)
			defer cancel()
		}
		d.process(ctx, ev, lg)
	})
}

// Wait blocks until all dispatched events have finished processing.
func (d *Dispatcher) Wait() { d.lanes.Wait() }

// laneKey picks the serialization key: the user ID for private events, the
// topic's owning user for group events. Group events in a topic no mapping
// resolves to are handled inline (they have no lane to join).
func (d *Dispatcher) laneKey(ev Event, lg zerolog.Logger) (int64, bool) {
	if ev.Origin == OriginPrivateChat {
		return ev.UserID, true
	}
	if ev.Kind == KindCommand {
		// Commands touch shared state, not one user's lane; serialize them
		// all on a single reserved lane to keep ruleset mutations ordered.
		return 0, true
	}
	ut, err := repo.GetUserThreadByThreadID(context.Background(), d.Router.DB, ev.ThreadID)
	if errors.Is(err, repo.ErrNotFound) {
		observability.RoutingErrors.WithLabelValues("unknown_thread").Inc()
		lg.Warn().
			Int("thread_id", ev.ThreadID).
			Msg("group event in unmapped topic, nothing to route to")
		return 0, false
	}
	if err != nil {
		lg.Error().Err(err).Msg("thread lookup failed, event not processed")
		return 0, false
	}
	return ut.UserID, true
}

// process runs one event end to end on its lane.
func (d *Dispatcher) process(ctx context.Context, ev Event, lg zerolog.Logger) {
	switch ev.Kind {
	case KindMessage:
		if ev.Origin == OriginPrivateChat {
			d.handleUserMessage(ctx, ev, lg)
		} else {
			d.handleGroupReply(ctx, ev, lg)
		}
	case KindEdit:
		d.handleEdit(ctx, ev, lg)
	case KindDelete:
		d.handleDelete(ctx, ev, lg)
	case KindCommand:
		if d.OnCommand != nil {
			d.OnCommand(ctx, ev)
		}
	default:
		lg.Warn().Msg("unknown event kind, dropped")
	}
}

// handleUserMessage runs the inbound pipeline: spam filter, captcha gate,
// then forwarding. Flagged messages are dropped in silence and never touch
// captcha accounting.
func (d *Dispatcher) handleUserMessage(ctx context.Context, ev Event, lg zerolog.Logger) {
	if c := d.Spam.Classify(ev.Text); c.Flagged {
		lg.Debug().
			Int64("user_id", ev.UserID).
			Strs("matched", c.Matched).
			Msg("message flagged as spam, dropped")
		return
	}

	verified, err := d.Captcha.IsVerified(ctx, ev.UserID)
	if err != nil {
		lg.Error().Err(err).Int64("user_id", ev.UserID).Msg("verification lookup failed, event not processed")
		return
	}

	if verified {
		if _, err := d.Router.ForwardToGroup(ctx, ev.UserID, ev.UserTitle, ev.MessageID); err != nil {
			d.reportRoutingFailure(err, ev, lg)
		}
		return
	}

	pending, err := d.Captcha.HasPendingChallenge(ctx, ev.UserID)
	if err != nil {
		lg.Error().Err(err).Int64("user_id", ev.UserID).Msg("challenge lookup failed, event not processed")
		return
	}
	if pending {
		d.gradeAnswer(ctx, ev, lg)
		return
	}
	d.issueChallenge(ctx, ev, lg)
}

// issueChallenge starts verification for a first-contact (or re-locked)
// user and sends the prompt.
func (d *Dispatcher) issueChallenge(ctx context.Context, ev Event, lg zerolog.Logger) {
	st, err := d.Captcha.IssueChallenge(ctx, ev.UserID)
	if err != nil {
		var locked *services.StillLockedError
		switch {
		case errors.As(err, &locked):
			d.notify(ctx, ev.UserID, fmt.Sprintf(
				"You are temporarily locked. Please try again in %d seconds.",
				int(locked.Remaining.Seconds())))
		case errors.Is(err, services.ErrAlreadyVerified):
			// Raced with a concurrent pass; harmless.
		default:
			lg.Error().Err(err).Int64("user_id", ev.UserID).Msg("failed to issue challenge")
		}
		return
	}
	lg.Info().Int64("user_id", ev.UserID).Int("difficulty", st.Difficulty).Msg("challenge issued")
	d.notify(ctx, ev.UserID, fmt.Sprintf(
		"Please verify you are human before your message can be delivered.\n\n%s", st.Challenge))
}

// gradeAnswer submits the message text as a captcha answer and phrases the
// outcome for the user.
func (d *Dispatcher) gradeAnswer(ctx context.Context, ev Event, lg zerolog.Logger) {
	res, err := d.Captcha.SubmitAnswer(ctx, ev.UserID, ev.Text)
	if err != nil {
		if errors.Is(err, services.ErrNoChallenge) || errors.Is(err, services.ErrAlreadyVerified) {
			return
		}
		lg.Error().Err(err).Int64("user_id", ev.UserID).Msg("answer grading failed, event not processed")
		return
	}

	switch res.Outcome {
	case services.OutcomeAccepted:
		lg.Info().Int64("user_id", ev.UserID).Msg("user passed verification")
		d.notify(ctx, ev.UserID, "Verification successful! You can now send your message.")
	case services.OutcomeRejected:
		d.notify(ctx, ev.UserID, fmt.Sprintf(
			"Incorrect answer. %d attempts remaining.", res.RemainingAttempts))
	case services.OutcomeLockedOut:
		lg.Info().Int64("user_id", ev.UserID).Msg("user locked out of verification")
		d.notify(ctx, ev.UserID, fmt.Sprintf(
			"Too many failed attempts. Please try again in %d seconds.",
			int(res.RetryAfter.Seconds())))
	case services.OutcomeStillLocked:
		d.notify(ctx, ev.UserID, fmt.Sprintf(
			"You are temporarily locked. Please try again in %d seconds.",
			int(res.RetryAfter.Seconds())))
	case services.OutcomeReissued:
		d.notify(ctx, ev.UserID, fmt.Sprintf(
			"Your previous challenge expired. Here is a new one:\n\n%s", res.Challenge))
	}
}

// handleGroupReply forwards a staff reply back to the topic's user.
func (d *Dispatcher) handleGroupReply(ctx context.Context, ev Event, lg zerolog.Logger) {
	if _, err := d.Router.ForwardToUser(ctx, ev.ThreadID, ev.MessageID); err != nil {
		d.reportRoutingFailure(err, ev, lg)
	}
}

// handleEdit propagates an edit to the counterpart message. A missing
// correlation is a non-event.
func (d *Dispatcher) handleEdit(ctx context.Context, ev Event, lg zerolog.Logger) {
	err := d.Router.PropagateEdit(ctx, ev.MessageID, d.direction(ev), ev.Text)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		lg.Warn().Err(err).Int("message_id", ev.MessageID).Msg("edit propagation failed")
	}
}

// handleDelete propagates a deletion to the counterpart message.
func (d *Dispatcher) handleDelete(ctx context.Context, ev Event, lg zerolog.Logger) {
	err := d.Router.PropagateDelete(ctx, ev.MessageID, d.direction(ev))
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		lg.Warn().Err(err).Int("message_id", ev.MessageID).Msg("delete propagation failed")
	}
}

// direction maps an event's origin to the MessageLink direction its
// original was forwarded in.
func (d *Dispatcher) direction(ev Event) domain.Direction {
	if ev.Origin == OriginPrivateChat {
		return domain.DirectionUserToGroup
	}
	return domain.DirectionGroupToUser
}

// reportRoutingFailure converts router errors into the right visibility:
// unknown threads are warnings (retrying cannot help), routing errors are
// operator alerts, invariant violations are high severity. None of them
// escape the lane.
func (d *Dispatcher) reportRoutingFailure(err error, ev Event, lg zerolog.Logger) {
	var routing *services.RoutingError
	switch {
	case errors.Is(err, services.ErrUnknownThread):
		lg.Warn().
			Int("thread_id", ev.ThreadID).
			Msg("reply in a topic with no mapped user, not forwarded")
	case errors.As(err, &routing):
		lg.Error().
			Err(routing).
			Int64("user_id", ev.UserID).
			Int("message_id", ev.MessageID).
			Msg("forwarding failed, message not delivered")
	case errors.Is(err, services.ErrInvariant):
		observability.RoutingErrors.WithLabelValues("invariant").Inc()
		lg.Error().
			Err(err).
			Int64("user_id", ev.UserID).
			Msg("store invariant violated, event discarded")
	default:
		lg.Error().Err(err).Msg("unexpected forwarding failure")
	}
}

// notify sends a plain-text notice to a user's private chat, best-effort.
func (d *Dispatcher) notify(ctx context.Context, userID int64, text string) {
	if _, err := d.Transport.Deliver(ctx, services.Target{ChatID: userID}, services.Content{Text: text}); err != nil {
		log.Debug().Err(err).Int64("user_id", userID).Msg("notice delivery failed")
	}
}
