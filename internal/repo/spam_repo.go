// Package repo – SpamRule repository.
//
// Persistence for the spam keyword set. Keywords are stored already
// case-folded by the service layer; the unique index makes duplicate adds
// a no-op rather than an error.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TobyLinn/BetterForward/internal/domain"
)

// ListSpamRules returns all keywords, oldest first.
func ListSpamRules(ctx context.Context, db *gorm.DB) ([]domain.SpamRule, error) {
	var out []domain.SpamRule
	err := db.WithContext(ctx).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// AddSpamRule inserts a keyword. Returns added=false if it already exists.
func AddSpamRule(ctx context.Context, db *gorm.DB, keyword string) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "keyword"}},
			DoNothing: true,
		}).
		Create(&domain.SpamRule{
			Keyword:   keyword,
			CreatedAt: time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RemoveSpamRule deletes a keyword. Returns removed=false if it was not
// present.
func RemoveSpamRule(ctx context.Context, db *gorm.DB, keyword string) (bool, error) {
	res := db.WithContext(ctx).
		Where("keyword = ?", keyword).
		Delete(&domain.SpamRule{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
