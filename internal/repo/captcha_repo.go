// Package repo – CaptchaState repository.
//
// Persistence for the per-user verification state machine and the attempt
// audit trail. All correctness-relevant captcha state lives here; the
// engine holds nothing across calls, so a restart can never lose an attempt
// count or a lockout.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/TobyLinn/BetterForward/internal/domain"
)

// GetCaptchaState fetches the verification row for userID, or ErrNotFound
// if the user has never been challenged.
func GetCaptchaState(ctx context.Context, db *gorm.DB, userID int64) (*domain.CaptchaState, error) {
	var st domain.CaptchaState
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&st).Error
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveCaptchaState upserts the full verification row.
func SaveCaptchaState(ctx context.Context, db *gorm.DB, st *domain.CaptchaState) error {
	st.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(st).Error
}

// DeleteCaptchaState removes the verification row entirely (administrative
// reset). The user's next message is treated as first contact again.
func DeleteCaptchaState(ctx context.Context, db *gorm.DB, userID int64) error {
	return db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.CaptchaState{}).Error
}

// RecordCaptchaAttempt appends one audit row for an answer submission.
func RecordCaptchaAttempt(ctx context.Context, db *gorm.DB, userID int64, success bool) error {
	return db.WithContext(ctx).Create(&domain.CaptchaAttempt{
		UserID:    userID,
		Success:   success,
		CreatedAt: time.Now().UTC(),
	}).Error
}

// CaptchaAttemptStats summarizes a user's recorded submissions since a
// cutoff time.
type CaptchaAttemptStats struct {
	Total  int64
	Passed int64
	Failed int64
}

// GetCaptchaAttemptStats returns submission counts for userID since the
// given time.
func GetCaptchaAttemptStats(ctx context.Context, db *gorm.DB, userID int64, since time.Time) (CaptchaAttemptStats, error) {
	var stats CaptchaAttemptStats
	base := db.WithContext(ctx).
		Model(&domain.CaptchaAttempt{}).
		Where("user_id = ? AND created_at > ?", userID, since)

	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}
	if err := base.Session(&gorm.Session{}).Where("success = ?", true).Count(&stats.Passed).Error; err != nil {
		return stats, err
	}
	stats.Failed = stats.Total - stats.Passed
	return stats, nil
}
