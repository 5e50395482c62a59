// Package repo – UserThread repository.
//
// Persistence for the user↔topic mapping. The creation path is written so
// that two concurrent first-contact inserts for the same user can never
// produce two rows: the insert uses ON CONFLICT DO NOTHING on the primary
// key and the loser refetches the winner's mapping. This is the schema-level
// backstop beneath the dispatcher's per-user serialization; neither replaces
// the other.
//
// Error semantics:
//   - Missing rows surface as ErrNotFound (gorm.ErrRecordNotFound).
//   - Other DB errors are propagated raw.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TobyLinn/BetterForward/internal/domain"
)

// CreateUserThread inserts the mapping userID→threadID. If a row for userID
// already exists (a lost race or an archived mapping), the existing row is
// returned with created=false and threadID is not written.
func CreateUserThread(ctx context.Context, db *gorm.DB, userID int64, threadID int) (*domain.UserThread, bool, error) {
	now := time.Now().UTC()
	ut := &domain.UserThread{
		UserID:       userID,
		ThreadID:     threadID,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(ut)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := GetUserThread(ctx, db, userID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return ut, true, nil
}

// GetUserThread fetches the mapping for userID, archived or not.
func GetUserThread(ctx context.Context, db *gorm.DB, userID int64) (*domain.UserThread, error) {
	var ut domain.UserThread
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&ut).Error
	if err != nil {
		return nil, err
	}
	return &ut, nil
}

// GetUserThreadByThreadID resolves a topic back to its owning user.
// Archived mappings are excluded: a reply posted into a dead topic must not
// route anywhere.
func GetUserThreadByThreadID(ctx context.Context, db *gorm.DB, threadID int) (*domain.UserThread, error) {
	var ut domain.UserThread
	err := db.WithContext(ctx).
		Where("thread_id = ? AND archived = ?", threadID, false).
		First(&ut).Error
	if err != nil {
		return nil, err
	}
	return &ut, nil
}

// ReassignUserThread points an existing (archived) mapping at a freshly
// created topic and reactivates it. Returns ErrNotFound if no row exists.
func ReassignUserThread(ctx context.Context, db *gorm.DB, userID int64, threadID int) error {
	res := db.WithContext(ctx).
		Model(&domain.UserThread{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"thread_id":      threadID,
			"archived":       false,
			"last_active_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ArchiveUserThread flags the mapping as lost on the group side. The row is
// kept (never hard-deleted); routing skips it and the next inbound message
// from the user triggers fresh topic creation.
func ArchiveUserThread(ctx context.Context, db *gorm.DB, userID int64) error {
	res := db.WithContext(ctx).
		Model(&domain.UserThread{}).
		Where("user_id = ?", userID).
		Update("archived", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchUserThread updates last_active_at after a successful forward.
// A missing row is not an error here.
func TouchUserThread(ctx context.Context, db *gorm.DB, userID int64) error {
	return db.WithContext(ctx).
		Model(&domain.UserThread{}).
		Where("user_id = ?", userID).
		Update("last_active_at", time.Now().UTC()).Error
}

// CountUserThreads returns the number of mappings, active and archived.
func CountUserThreads(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.UserThread{}).
		Count(&total).Error
	return total, err
}
