package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/TobyLinn/BetterForward/internal/domain"
)

func TestCreateMessageLink_RoundTrip(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	link, created, err := CreateMessageLink(ctx, db, 10, 20, 1001, domain.DirectionUserToGroup)
	if err != nil {
		t.Fatalf("CreateMessageLink: %v", err)
	}
	if !created || link.ID == 0 {
		t.Fatalf("expected fresh link, got created=%v link=%+v", created, link)
	}

	got, err := GetMessageLink(ctx, db, 10, domain.DirectionUserToGroup)
	if err != nil {
		t.Fatalf("GetMessageLink: %v", err)
	}
	if got.MirrorMessageID != 20 || got.UserID != 1001 || got.Direction != domain.DirectionUserToGroup {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestCreateMessageLink_DuplicateIsIdempotent(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	first, _, err := CreateMessageLink(ctx, db, 10, 20, 1001, domain.DirectionUserToGroup)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	second, created, err := CreateMessageLink(ctx, db, 10, 77, 1001, domain.DirectionUserToGroup)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if created {
		t.Fatal("expected created=false for duplicate (origin, direction)")
	}
	if second.MirrorMessageID != first.MirrorMessageID {
		t.Fatalf("duplicate insert must return the original mirror, got %d", second.MirrorMessageID)
	}

	total, err := CountMessageLinks(ctx, db, 1001)
	if err != nil {
		t.Fatalf("CountMessageLinks: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected one link, got %d", total)
	}
}

func TestCreateMessageLink_SameOriginOppositeDirections(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	// Message IDs are per-chat on the platform, so the same numeric origin
	// can legitimately exist once per direction.
	if _, created, err := CreateMessageLink(ctx, db, 10, 20, 1001, domain.DirectionUserToGroup); err != nil || !created {
		t.Fatalf("user_to_group insert: created=%v err=%v", created, err)
	}
	if _, created, err := CreateMessageLink(ctx, db, 10, 30, 1001, domain.DirectionGroupToUser); err != nil || !created {
		t.Fatalf("group_to_user insert: created=%v err=%v", created, err)
	}

	a, err := GetMessageLink(ctx, db, 10, domain.DirectionUserToGroup)
	if err != nil || a.MirrorMessageID != 20 {
		t.Fatalf("user_to_group lookup: link=%+v err=%v", a, err)
	}
	b, err := GetMessageLink(ctx, db, 10, domain.DirectionGroupToUser)
	if err != nil || b.MirrorMessageID != 30 {
		t.Fatalf("group_to_user lookup: link=%+v err=%v", b, err)
	}
}

func TestGetMessageLink_Missing(t *testing.T) {
	db := newRepoDB(t)

	_, err := GetMessageLink(context.Background(), db, 404, domain.DirectionUserToGroup)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteMessageLink_ToleratesAbsence(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if _, _, err := CreateMessageLink(ctx, db, 10, 20, 1001, domain.DirectionUserToGroup); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := DeleteMessageLink(ctx, db, 10, domain.DirectionUserToGroup); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := GetMessageLink(ctx, db, 10, domain.DirectionUserToGroup); !errors.Is(err, ErrNotFound) {
		t.Fatalf("link should be gone, got %v", err)
	}
	// Double delete is a no-op.
	if err := DeleteMessageLink(ctx, db, 10, domain.DirectionUserToGroup); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}
