// Package services – SpamFilter
//
// Keyword filter gating inbound traffic before it reaches the captcha gate
// and the router. The durable rule set lives in the store; evaluation runs
// against an immutable in-memory snapshot swapped atomically after every
// mutation, so Classify never takes a DB round-trip and a half-applied
// rule change can never be observed.
//
// Matching is a Unicode case-folded substring test: a message containing
// "buySPAMWORDnow" is flagged by the rule "spamword". Flagged messages are
// dropped silently; only a counter records them.
package services

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/TobyLinn/BetterForward/internal/observability"
	"github.com/TobyLinn/BetterForward/internal/repo"
)

// Classification is the result of evaluating one message against the rule
// set. Flagged is true when at least one keyword matched.
type Classification struct {
	Flagged bool
	Matched []string
}

// SpamFilter evaluates message text against the keyword set.
// Safe for concurrent use.
type SpamFilter struct {
	DB *gorm.DB

	mu    sync.RWMutex
	rules []string // case-folded snapshot
}

// NewSpamFilter constructs a filter and loads the initial snapshot from the
// store.
func NewSpamFilter(ctx context.Context, db *gorm.DB) (*SpamFilter, error) {
	f := &SpamFilter{DB: db}
	if err := f.Reload(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload rebuilds the in-memory snapshot from the store. Called after every
// mutation; evaluations issued after Reload returns see the new rule set.
func (f *SpamFilter) Reload(ctx context.Context) error {
	rows, err := repo.ListSpamRules(ctx, f.DB)
	if err != nil {
		return err
	}
	rules := make([]string, 0, len(rows))
	for _, r := range rows {
		rules = append(rules, r.Keyword)
	}
	f.mu.Lock()
	f.rules = rules
	f.mu.Unlock()
	return nil
}

// Classify evaluates text against the current snapshot. It is a pure
// function of the snapshot and the text; an empty rule set flags nothing.
func (f *SpamFilter) Classify(text string) Classification {
	f.mu.RLock()
	rules := f.rules
	f.mu.RUnlock()

	if len(rules) == 0 || text == "" {
		return Classification{}
	}

	folded := foldText(text)
	var matched []string
	for _, kw := range rules {
		if strings.Contains(folded, kw) {
			matched = append(matched, kw)
		}
	}
	if len(matched) == 0 {
		return Classification{}
	}
	observability.SpamDropped.Inc()
	return Classification{Flagged: true, Matched: matched}
}

// Add inserts a keyword (case-folded) and refreshes the snapshot.
// Returns false if the keyword was already present.
func (f *SpamFilter) Add(ctx context.Context, keyword string) (bool, error) {
	kw := foldText(strings.TrimSpace(keyword))
	if kw == "" {
		return false, nil
	}
	added, err := repo.AddSpamRule(ctx, f.DB, kw)
	if err != nil {
		return false, err
	}
	if added {
		if err := f.Reload(ctx); err != nil {
			return true, err
		}
	}
	return added, nil
}

// Remove deletes a keyword and refreshes the snapshot. Returns false if the
// keyword was not present.
func (f *SpamFilter) Remove(ctx context.Context, keyword string) (bool, error) {
	kw := foldText(strings.TrimSpace(keyword))
	if kw == "" {
		return false, nil
	}
	removed, err := repo.RemoveSpamRule(ctx, f.DB, kw)
	if err != nil {
		return false, err
	}
	if removed {
		if err := f.Reload(ctx); err != nil {
			return true, err
		}
	}
	return removed, nil
}

// List returns the durable keyword set, oldest first.
func (f *SpamFilter) List(ctx context.Context) ([]string, error) {
	rows, err := repo.ListSpamRules(ctx, f.DB)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Keyword)
	}
	return out, nil
}

// foldText applies Unicode case folding so matching is case-insensitive
// beyond ASCII (e.g. "STRASSE" matches "straße").
func foldText(s string) string {
	return cases.Fold().String(s)
}
