// Package domain defines the persistence models for the forwarding core:
// user↔topic mappings, forwarded-message correlations, captcha state, and
// the spam keyword set. These types are mapped with GORM and form the
// durable data layer of the bot.
package domain

import (
	"time"
)

// Direction labels which way a forwarded message travelled.
type Direction string

const (
	// DirectionUserToGroup marks a message forwarded from a user's private
	// chat into their topic in the group.
	DirectionUserToGroup Direction = "user_to_group"
	// DirectionGroupToUser marks a staff reply forwarded from a group topic
	// back to the owning user.
	DirectionGroupToUser Direction = "group_to_user"
)

// CaptchaStatus is the lifecycle state of a user's verification challenge.
// Only the transitions pending→passed, pending→locked, and locked→pending
// (after the lock expires) are valid; everything else is rejected.
type CaptchaStatus string

const (
	// CaptchaPending means a challenge is outstanding and answers are accepted.
	CaptchaPending CaptchaStatus = "pending"
	// CaptchaPassed means the user solved a challenge; the gate stays open
	// until an administrator resets it.
	CaptchaPassed CaptchaStatus = "passed"
	// CaptchaLocked means the attempt limit was hit; answers are refused
	// until LockedUntil elapses.
	CaptchaLocked CaptchaStatus = "locked"
)

// UserThread maps one end user to their dedicated topic in the group.
//
// Fields:
//   - UserID: Telegram user ID, primary key, immutable.
//   - ThreadID: forum topic ID inside the group; unique, assigned once.
//   - Archived: set when the topic was removed on the group side; archived
//     rows are excluded from routing and a fresh topic is created on the
//     user's next message.
//   - CreatedAt / LastActiveAt: bookkeeping timestamps.
//
// The unique index on ThreadID together with the UserID primary key
// enforces the user↔topic bijection at the schema level.
type UserThread struct {
	UserID       int64     `json:"user_id"   gorm:"primaryKey;autoIncrement:false"`
	ThreadID     int       `json:"thread_id" gorm:"not null;uniqueIndex:ux_user_threads_thread"`
	Archived     bool      `json:"archived"  gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// TableName returns the database table name for UserThread.
func (UserThread) TableName() string { return "user_threads" }

// MessageLink correlates a forwarded message with its mirror on the other
// side, so edits and deletions can be propagated without re-resolving the
// user. One row per forwarded message.
//
// (OriginMessageID, Direction) is unique: a given source message is
// forwarded at most once per direction, which is what makes redelivered
// updates idempotent.
type MessageLink struct {
	ID              uint      `json:"id"                gorm:"primaryKey;autoIncrement"`
	OriginMessageID int       `json:"origin_message_id" gorm:"not null;uniqueIndex:ux_links_origin_direction,priority:1"`
	MirrorMessageID int       `json:"mirror_message_id" gorm:"not null;index"`
	UserID          int64     `json:"user_id"           gorm:"not null;index"`
	Direction       Direction `json:"direction"         gorm:"type:varchar(16);not null;uniqueIndex:ux_links_origin_direction,priority:2;check:direction IN ('user_to_group','group_to_user')"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the database table name for MessageLink.
func (MessageLink) TableName() string { return "message_links" }

// CaptchaState is the per-user verification row. It exists from the user's
// first contact onward; Status tracks the challenge state machine and
// Difficulty the current ladder step (bumped one step on each lockout
// expiry, capped).
type CaptchaState struct {
	UserID         int64         `json:"user_id"         gorm:"primaryKey;autoIncrement:false"`
	Challenge      string        `json:"challenge"       gorm:"type:varchar(128);not null"`
	ExpectedAnswer string        `json:"expected_answer" gorm:"type:varchar(64);not null"`
	AttemptCount   int           `json:"attempt_count"   gorm:"not null;default:0"`
	Status         CaptchaStatus `json:"status"          gorm:"type:varchar(16);not null;check:status IN ('pending','passed','locked')"`
	Difficulty     int           `json:"difficulty"      gorm:"not null;default:0"`
	LockedUntil    *time.Time    `json:"locked_until,omitempty"`
	IssuedAt       time.Time     `json:"issued_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// TableName returns the database table name for CaptchaState.
func (CaptchaState) TableName() string { return "captcha_states" }

// CaptchaAttempt is an audit row recorded for every answer submission, used
// by the /captchastats admin command.
type CaptchaAttempt struct {
	ID        uint      `json:"id"         gorm:"primaryKey;autoIncrement"`
	UserID    int64     `json:"user_id"    gorm:"not null;index:idx_captcha_attempts_user_time,priority:1"`
	Success   bool      `json:"success"    gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_captcha_attempts_user_time,priority:2"`
}

// TableName returns the database table name for CaptchaAttempt.
func (CaptchaAttempt) TableName() string { return "captcha_attempts" }

// SpamRule is one keyword in the spam filter's rule set. Keywords are
// stored case-folded; existence in the table is the whole lifecycle.
type SpamRule struct {
	ID        uint      `json:"id"      gorm:"primaryKey;autoIncrement"`
	Keyword   string    `json:"keyword" gorm:"type:varchar(255);not null;uniqueIndex:ux_spam_rules_keyword"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for SpamRule.
func (SpamRule) TableName() string { return "spam_rules" }

// SchemaVersion records every applied migration step. The highest Version
// is the store's current schema version, checked at startup.
type SchemaVersion struct {
	Version   int       `json:"version" gorm:"primaryKey;autoIncrement:false"`
	AppliedAt time.Time `json:"applied_at"`
}

// TableName returns the database table name for SchemaVersion.
func (SchemaVersion) TableName() string { return "schema_versions" }
