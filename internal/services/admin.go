// Package services – administrative surface
//
// The operations the group's staff invoke through bot commands. They
// mutate state owned by the core (spam rules, captcha state) but are
// driven externally; the command layer handles parsing and presentation.
package services

import (
	"context"
	"time"

	"github.com/TobyLinn/BetterForward/internal/domain"
	"github.com/TobyLinn/BetterForward/internal/repo"
)

// Admin bundles the administrative operations exposed to the command
// layer.
type Admin struct {
	Spam    *SpamFilter
	Captcha *CaptchaEngine
}

// NewAdmin constructs the administrative surface over the given components.
func NewAdmin(spam *SpamFilter, captcha *CaptchaEngine) *Admin {
	return &Admin{Spam: spam, Captcha: captcha}
}

// ListSpamRules returns the current keyword set.
func (a *Admin) ListSpamRules(ctx context.Context) ([]string, error) {
	return a.Spam.List(ctx)
}

// AddSpamRule adds a keyword; returns false if it already existed.
func (a *Admin) AddSpamRule(ctx context.Context, keyword string) (bool, error) {
	return a.Spam.Add(ctx, keyword)
}

// RemoveSpamRule removes a keyword; returns false if it was not present.
func (a *Admin) RemoveSpamRule(ctx context.Context, keyword string) (bool, error) {
	return a.Spam.Remove(ctx, keyword)
}

// ResetCaptcha wipes a user's verification state; their next message is
// first contact again.
func (a *Admin) ResetCaptcha(ctx context.Context, userID int64) error {
	return a.Captcha.Reset(ctx, userID)
}

// ForceUnlock lifts a lockout immediately and issues a fresh challenge at
// base difficulty.
func (a *Admin) ForceUnlock(ctx context.Context, userID int64) (*domain.CaptchaState, error) {
	return a.Captcha.ForceUnlock(ctx, userID)
}

// CaptchaStats summarizes a user's answer submissions over the last 24
// hours.
func (a *Admin) CaptchaStats(ctx context.Context, userID int64) (repo.CaptchaAttemptStats, error) {
	since := a.Captcha.now().Add(-24 * time.Hour)
	return repo.GetCaptchaAttemptStats(ctx, a.Captcha.DB, userID, since)
}
