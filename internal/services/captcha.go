// Package services – CaptchaEngine
//
// Per-user verification state machine gating first contact. The machine is
// NoChallenge → Pending → {Passed | Locked}, with Locked → Pending once the
// lockout expires; the re-issued challenge resets the attempt count and
// climbs one difficulty step. A Pending challenge itself goes stale after
// ChallengeTTL and is replaced instead of graded, so a scripted solver
// cannot sit on one problem indefinitely. All state is read and written
// through the store per operation, so a restart can never lose an attempt
// count or a lockout.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/TobyLinn/BetterForward/internal/domain"
	"github.com/TobyLinn/BetterForward/internal/observability"
	"github.com/TobyLinn/BetterForward/internal/repo"
)

// Outcome classifies the result of an answer submission.
type Outcome string

const (
	// OutcomeAccepted: correct answer, user is now verified.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeRejected: wrong answer, attempts remain.
	OutcomeRejected Outcome = "rejected"
	// OutcomeLockedOut: wrong answer consumed the last attempt.
	OutcomeLockedOut Outcome = "locked_out"
	// OutcomeStillLocked: submission refused, lockout in force.
	OutcomeStillLocked Outcome = "still_locked"
	// OutcomeReissued: the previous challenge was stale (lockout expired,
	// or the challenge outlived its TTL); a fresh one was issued instead
	// of grading the answer.
	OutcomeReissued Outcome = "reissued"
)

// SubmitResult carries the outcome of SubmitAnswer plus the fields the
// dispatcher needs to phrase a user notice.
type SubmitResult struct {
	Outcome           Outcome
	RemainingAttempts int           // valid for OutcomeRejected
	RetryAfter        time.Duration // valid for OutcomeLockedOut / OutcomeStillLocked
	Challenge         string        // valid for OutcomeReissued
}

// CaptchaEngine issues challenges and grades answers. Safe for concurrent
// use across distinct users; the dispatcher serializes calls per user.
type CaptchaEngine struct {
	DB *gorm.DB

	// MaxAttempts is the number of wrong answers before lockout.
	MaxAttempts int
	// Lockout is how long a locked user waits before a fresh challenge.
	Lockout time.Duration
	// ChallengeTTL is how long a Pending challenge stays answerable. An
	// answer arriving later is not graded; a fresh challenge replaces the
	// stale one. Zero disables expiry.
	ChallengeTTL time.Duration
	// BaseDifficulty is the ladder step for first-ever challenges.
	BaseDifficulty int

	// Now is the clock; overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

// NewCaptchaEngine constructs an engine with the given policy knobs.
func NewCaptchaEngine(db *gorm.DB, maxAttempts int, lockout, challengeTTL time.Duration, baseDifficulty int) *CaptchaEngine {
	return &CaptchaEngine{
		DB:             db,
		MaxAttempts:    maxAttempts,
		Lockout:        lockout,
		ChallengeTTL:   challengeTTL,
		BaseDifficulty: clampDifficulty(baseDifficulty),
		Now:            time.Now,
	}
}

// challengeExpired reports whether a Pending challenge is past its TTL.
func (e *CaptchaEngine) challengeExpired(st *domain.CaptchaState, now time.Time) bool {
	return e.ChallengeTTL > 0 && now.After(st.IssuedAt.Add(e.ChallengeTTL))
}

func (e *CaptchaEngine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// IssueChallenge creates or re-surfaces the challenge for userID.
//
// Transitions:
//   - no state → fresh Pending at BaseDifficulty
//   - Pending, within ChallengeTTL → the outstanding challenge is returned
//     unchanged (attempts are never reset by re-prompting)
//   - Pending, past ChallengeTTL → fresh Pending at the same difficulty
//   - Locked, expired → fresh Pending, attempt_count 0, difficulty +1 step
//   - Locked, in force → *StillLockedError
//   - Passed → ErrAlreadyVerified
func (e *CaptchaEngine) IssueChallenge(ctx context.Context, userID int64) (*domain.CaptchaState, error) {
	now := e.now()

	st, err := repo.GetCaptchaState(ctx, e.DB, userID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return e.freshChallenge(ctx, userID, e.BaseDifficulty, now)
	case err != nil:
		return nil, err
	}

	switch st.Status {
	case domain.CaptchaPassed:
		return nil, ErrAlreadyVerified
	case domain.CaptchaPending:
		if e.challengeExpired(st, now) {
			return e.freshChallenge(ctx, userID, st.Difficulty, now)
		}
		return st, nil
	case domain.CaptchaLocked:
		if st.LockedUntil != nil && now.Before(*st.LockedUntil) {
			return nil, &StillLockedError{Remaining: st.LockedUntil.Sub(now)}
		}
		return e.freshChallenge(ctx, userID, st.Difficulty+1, now)
	default:
		return nil, ErrInvariant
	}
}

// SubmitAnswer grades an answer against the outstanding challenge.
// See Outcome values for the possible results; ErrNoChallenge and
// ErrAlreadyVerified cover the states in which grading is invalid.
func (e *CaptchaEngine) SubmitAnswer(ctx context.Context, userID int64, answer string) (SubmitResult, error) {
	now := e.now()

	st, err := repo.GetCaptchaState(ctx, e.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return SubmitResult{}, ErrNoChallenge
	}
	if err != nil {
		return SubmitResult{}, err
	}

	switch st.Status {
	case domain.CaptchaPassed:
		return SubmitResult{}, ErrAlreadyVerified

	case domain.CaptchaLocked:
		if st.LockedUntil != nil && now.Before(*st.LockedUntil) {
			observability.CaptchaOutcomes.WithLabelValues(string(OutcomeStillLocked)).Inc()
			return SubmitResult{
				Outcome:    OutcomeStillLocked,
				RetryAfter: st.LockedUntil.Sub(now),
			}, nil
		}
		// Lock expired: the stale answer is not graded; a fresh, harder
		// challenge replaces it.
		fresh, err := e.freshChallenge(ctx, userID, st.Difficulty+1, now)
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Outcome: OutcomeReissued, Challenge: fresh.Challenge}, nil

	case domain.CaptchaPending:
		if e.challengeExpired(st, now) {
			// The challenge went stale; its answer is worthless now. Replace
			// it at the same difficulty without charging an attempt.
			fresh, err := e.freshChallenge(ctx, userID, st.Difficulty, now)
			if err != nil {
				return SubmitResult{}, err
			}
			return SubmitResult{Outcome: OutcomeReissued, Challenge: fresh.Challenge}, nil
		}
		// fall through to grading below
	default:
		return SubmitResult{}, ErrInvariant
	}

	if answersMatch(answer, st.ExpectedAnswer) {
		st.Status = domain.CaptchaPassed
		st.LockedUntil = nil
		if err := repo.SaveCaptchaState(ctx, e.DB, st); err != nil {
			return SubmitResult{}, err
		}
		_ = repo.RecordCaptchaAttempt(ctx, e.DB, userID, true)
		observability.CaptchaOutcomes.WithLabelValues(string(OutcomeAccepted)).Inc()
		return SubmitResult{Outcome: OutcomeAccepted}, nil
	}

	st.AttemptCount++
	_ = repo.RecordCaptchaAttempt(ctx, e.DB, userID, false)

	if st.AttemptCount >= e.MaxAttempts {
		until := now.Add(e.Lockout)
		st.Status = domain.CaptchaLocked
		st.LockedUntil = &until
		if err := repo.SaveCaptchaState(ctx, e.DB, st); err != nil {
			return SubmitResult{}, err
		}
		observability.CaptchaOutcomes.WithLabelValues(string(OutcomeLockedOut)).Inc()
		return SubmitResult{Outcome: OutcomeLockedOut, RetryAfter: e.Lockout}, nil
	}

	if err := repo.SaveCaptchaState(ctx, e.DB, st); err != nil {
		return SubmitResult{}, err
	}
	observability.CaptchaOutcomes.WithLabelValues(string(OutcomeRejected)).Inc()
	return SubmitResult{
		Outcome:           OutcomeRejected,
		RemainingAttempts: e.MaxAttempts - st.AttemptCount,
	}, nil
}

// IsVerified reports whether userID has passed verification. A user with no
// captcha state is unverified, not an error.
func (e *CaptchaEngine) IsVerified(ctx context.Context, userID int64) (bool, error) {
	st, err := repo.GetCaptchaState(ctx, e.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.Status == domain.CaptchaPassed, nil
}

// HasPendingChallenge reports whether userID currently has an outstanding
// (Pending) challenge, so the dispatcher can treat a private message as an
// answer submission rather than a message to forward.
func (e *CaptchaEngine) HasPendingChallenge(ctx context.Context, userID int64) (bool, error) {
	st, err := repo.GetCaptchaState(ctx, e.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.Status == domain.CaptchaPending, nil
}

// Reset deletes the user's verification state entirely. Their next message
// is treated as first contact again. Administrative operation.
func (e *CaptchaEngine) Reset(ctx context.Context, userID int64) error {
	return repo.DeleteCaptchaState(ctx, e.DB, userID)
}

// ForceUnlock clears a lockout immediately and issues a fresh challenge at
// the base difficulty. Administrative operation; a no-op for users who are
// not locked.
func (e *CaptchaEngine) ForceUnlock(ctx context.Context, userID int64) (*domain.CaptchaState, error) {
	st, err := repo.GetCaptchaState(ctx, e.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoChallenge
	}
	if err != nil {
		return nil, err
	}
	if st.Status != domain.CaptchaLocked {
		return st, nil
	}
	return e.freshChallenge(ctx, userID, e.BaseDifficulty, e.now())
}

// freshChallenge writes a new Pending row for userID at the given ladder
// step (clamped) with a zero attempt count.
func (e *CaptchaEngine) freshChallenge(ctx context.Context, userID int64, difficulty int, now time.Time) (*domain.CaptchaState, error) {
	question, answer := generateChallenge(clampDifficulty(difficulty))
	st := &domain.CaptchaState{
		UserID:         userID,
		Challenge:      question,
		ExpectedAnswer: strconv.Itoa(answer),
		AttemptCount:   0,
		Status:         domain.CaptchaPending,
		Difficulty:     clampDifficulty(difficulty),
		LockedUntil:    nil,
		IssuedAt:       now,
	}
	if err := repo.SaveCaptchaState(ctx, e.DB, st); err != nil {
		return nil, err
	}
	return st, nil
}

// answersMatch compares a submitted answer to the expected one: trim, then
// integer comparison. A non-numeric submission never matches (and counts as
// a failed attempt at the caller).
func answersMatch(submitted, expected string) bool {
	got, err := strconv.Atoi(strings.TrimSpace(submitted))
	if err != nil {
		return false
	}
	want, err := strconv.Atoi(expected)
	if err != nil {
		return false
	}
	return got == want
}
