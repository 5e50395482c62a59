// Package services – TopicRouter
//
// The router owns the user↔topic bijection and the bidirectional
// forwarding protocol. It resolves (or creates) the user's topic, asks the
// transport to mirror the message, and records a MessageLink so edits and
// deletions on either side can find their counterpart later.
//
// The router holds no state between calls; the store is the single source
// of truth. Concurrency safety for same-user traffic comes from the
// dispatcher's per-user lanes, with the store's unique constraints as the
// backstop for interleavings those lanes cannot see (restarts, manual
// operations).
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/TobyLinn/BetterForward/internal/domain"
	"github.com/TobyLinn/BetterForward/internal/observability"
	"github.com/TobyLinn/BetterForward/internal/repo"
)

// TopicRouter forwards messages between users and the staffed group.
type TopicRouter struct {
	DB        *gorm.DB
	Transport Transport
	// GroupID is the staffed group all topics live in.
	GroupID int64
}

// NewTopicRouter constructs a router for the given group.
func NewTopicRouter(db *gorm.DB, transport Transport, groupID int64) *TopicRouter {
	return &TopicRouter{DB: db, Transport: transport, GroupID: groupID}
}

// ResolveOrCreateThread returns the user's topic ID, creating the topic
// (and the mapping) on first contact. Safe under concurrent first contact:
// if two racing calls both create a topic, the store keeps exactly one
// mapping and the loser's orphan topic is logged and abandoned.
func (r *TopicRouter) ResolveOrCreateThread(ctx context.Context, userID int64, title string) (int, error) {
	existing, err := repo.GetUserThread(ctx, r.DB, userID)
	switch {
	case err == nil && !existing.Archived:
		return existing.ThreadID, nil
	case err != nil && !errors.Is(err, repo.ErrNotFound):
		return 0, err
	}

	threadID, terr := r.Transport.CreateThread(ctx, userID, title)
	if terr != nil {
		observability.RoutingErrors.WithLabelValues("routing").Inc()
		return 0, &RoutingError{Op: "create_thread", Err: terr}
	}

	if existing != nil && existing.Archived {
		// Reactivate the archived mapping with the fresh topic.
		if err := repo.ReassignUserThread(ctx, r.DB, userID, threadID); err != nil {
			return 0, err
		}
		observability.ThreadsCreated.Inc()
		return threadID, nil
	}

	ut, created, err := repo.CreateUserThread(ctx, r.DB, userID, threadID)
	if err != nil {
		return 0, err
	}
	if !created {
		// Lost a first-contact race beneath the per-user lane (duplicate
		// webhook on restart, manual insert). The winner's mapping stands;
		// the topic we just created is orphaned.
		log.Warn().
			Int64("user_id", userID).
			Int("orphan_thread_id", threadID).
			Int("kept_thread_id", ut.ThreadID).
			Msg("lost thread-creation race, keeping existing mapping")
		return ut.ThreadID, nil
	}
	observability.ThreadsCreated.Inc()
	return threadID, nil
}

// ForwardToGroup mirrors a user's private message into their topic and
// records the correlation. The message is never silently dropped: every
// failure surfaces as an error for the dispatcher to report.
func (r *TopicRouter) ForwardToGroup(ctx context.Context, userID int64, title string, messageID int) (*domain.MessageLink, error) {
	threadID, err := r.ResolveOrCreateThread(ctx, userID, title)
	if err != nil {
		return nil, err
	}

	mirrorID, err := r.Transport.Deliver(ctx,
		Target{ChatID: r.GroupID, ThreadID: threadID},
		Content{FromChatID: userID, MessageID: messageID},
	)
	if err != nil {
		if errors.Is(err, ErrThreadGone) {
			r.healStaleMapping(ctx, userID, threadID)
		}
		observability.RoutingErrors.WithLabelValues("routing").Inc()
		return nil, &RoutingError{Op: "deliver", Err: err}
	}

	link, _, err := repo.CreateMessageLink(ctx, r.DB, messageID, mirrorID, userID, domain.DirectionUserToGroup)
	if err != nil {
		return nil, err
	}
	_ = repo.TouchUserThread(ctx, r.DB, userID)
	observability.ForwardedMessages.WithLabelValues(string(domain.DirectionUserToGroup)).Inc()
	return link, nil
}

// ForwardToUser mirrors a staff reply from a topic back to the owning user.
// Returns ErrUnknownThread when no active mapping resolves to threadID;
// that is reported, not retried, since retrying cannot create a mapping.
func (r *TopicRouter) ForwardToUser(ctx context.Context, threadID int, messageID int) (*domain.MessageLink, error) {
	ut, err := repo.GetUserThreadByThreadID(ctx, r.DB, threadID)
	if errors.Is(err, repo.ErrNotFound) {
		observability.RoutingErrors.WithLabelValues("unknown_thread").Inc()
		return nil, ErrUnknownThread
	}
	if err != nil {
		return nil, err
	}

	mirrorID, err := r.Transport.Deliver(ctx,
		Target{ChatID: ut.UserID},
		Content{FromChatID: r.GroupID, MessageID: messageID},
	)
	if err != nil {
		observability.RoutingErrors.WithLabelValues("routing").Inc()
		return nil, &RoutingError{Op: "deliver", Err: err}
	}

	link, _, err := repo.CreateMessageLink(ctx, r.DB, messageID, mirrorID, ut.UserID, domain.DirectionGroupToUser)
	if err != nil {
		return nil, err
	}
	_ = repo.TouchUserThread(ctx, r.DB, ut.UserID)
	observability.ForwardedMessages.WithLabelValues(string(domain.DirectionGroupToUser)).Inc()
	return link, nil
}

// ResolveCounterpart looks up the forwarded mirror of an original message.
// repo.ErrNotFound means the message predates correlation tracking or was
// already cleaned up; callers treat that as a non-event.
func (r *TopicRouter) ResolveCounterpart(ctx context.Context, originMessageID int, dir domain.Direction) (*domain.MessageLink, error) {
	return repo.GetMessageLink(ctx, r.DB, originMessageID, dir)
}

// PropagateEdit applies an edit made to an original message onto its
// mirror. Returns repo.ErrNotFound when no correlation exists.
func (r *TopicRouter) PropagateEdit(ctx context.Context, originMessageID int, dir domain.Direction, text string) error {
	link, err := r.ResolveCounterpart(ctx, originMessageID, dir)
	if err != nil {
		return err
	}
	return r.Transport.EditDelivered(ctx, r.mirrorChat(link), link.MirrorMessageID, text)
}

// PropagateDelete removes the mirror of a deleted original message and
// drops the correlation row. Best-effort: a missing mirror is tolerated.
func (r *TopicRouter) PropagateDelete(ctx context.Context, originMessageID int, dir domain.Direction) error {
	link, err := r.ResolveCounterpart(ctx, originMessageID, dir)
	if err != nil {
		return err
	}
	if derr := r.Transport.DeleteDelivered(ctx, r.mirrorChat(link), link.MirrorMessageID); derr != nil {
		log.Debug().
			Int("mirror_message_id", link.MirrorMessageID).
			Err(derr).
			Msg("mirror already gone, dropping link anyway")
	}
	return repo.DeleteMessageLink(ctx, r.DB, originMessageID, dir)
}

// mirrorChat returns the chat the link's mirror message lives in.
func (r *TopicRouter) mirrorChat(link *domain.MessageLink) int64 {
	if link.Direction == domain.DirectionUserToGroup {
		return r.GroupID
	}
	return link.UserID
}

// healStaleMapping archives a mapping whose topic was removed on the group
// side. The failed message stays unforwarded (its error surfaces to the
// dispatcher); the user's next message triggers fresh topic creation.
func (r *TopicRouter) healStaleMapping(ctx context.Context, userID int64, threadID int) {
	if err := repo.ArchiveUserThread(ctx, r.DB, userID); err != nil {
		log.Error().
			Int64("user_id", userID).
			Int("thread_id", threadID).
			Err(err).
			Msg("failed to archive stale thread mapping")
		return
	}
	log.Info().
		Int64("user_id", userID).
		Int("thread_id", threadID).
		Msg("archived stale thread mapping, next message recreates the topic")
}
