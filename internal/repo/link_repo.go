// Package repo – MessageLink repository.
//
// Persistence for forwarded-message correlations. Inserts are idempotent on
// (origin_message_id, direction) so a redelivered update that re-forwards
// the same message records exactly one link.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TobyLinn/BetterForward/internal/domain"
)

// CreateMessageLink records the correlation between an original message and
// its forwarded mirror. A duplicate (origin, direction) insert returns the
// existing link with created=false.
func CreateMessageLink(ctx context.Context, db *gorm.DB, originID, mirrorID int, userID int64, dir domain.Direction) (*domain.MessageLink, bool, error) {
	link := &domain.MessageLink{
		OriginMessageID: originID,
		MirrorMessageID: mirrorID,
		UserID:          userID,
		Direction:       dir,
		CreatedAt:       time.Now().UTC(),
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "origin_message_id"}, {Name: "direction"}},
			DoNothing: true,
		}).
		Create(link)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := GetMessageLink(ctx, db, originID, dir)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return link, true, nil
}

// GetMessageLink fetches the link for an original message in the given
// direction. Returns ErrNotFound if the message predates correlation
// tracking or the link was already cleaned up.
func GetMessageLink(ctx context.Context, db *gorm.DB, originID int, dir domain.Direction) (*domain.MessageLink, error) {
	var link domain.MessageLink
	err := db.WithContext(ctx).
		Where("origin_message_id = ? AND direction = ?", originID, dir).
		First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// DeleteMessageLink removes a correlation after the underlying message was
// deleted on either side. Absence is tolerated: deleting a link that does
// not exist is not an error.
func DeleteMessageLink(ctx context.Context, db *gorm.DB, originID int, dir domain.Direction) error {
	return db.WithContext(ctx).
		Where("origin_message_id = ? AND direction = ?", originID, dir).
		Delete(&domain.MessageLink{}).Error
}

// CountMessageLinks returns the number of recorded correlations for a user.
func CountMessageLinks(ctx context.Context, db *gorm.DB, userID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.MessageLink{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}
