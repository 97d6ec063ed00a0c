// Package hints maintains the learned keyword-to-category vocabulary that biases
// receipt extraction. The table is seeded with defaults, mutated only through
// user feedback, and persisted wholesale to a Store after each mutation.
package hints

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"
)

// CategoryHints pairs a category name with its matching keywords.
type CategoryHints struct {
	Category string
	Keywords []string
}

// Table is an ordered category-to-keywords mapping. Iteration order is insertion
// order, and Suggest returns the first category with a matching keyword, so the
// order entries were learned in decides ties.
type Table struct {
	mu       sync.RWMutex
	order    []string
	keywords map[string][]string

	// saveMu serializes wholesale store rewrites so a slow save cannot
	// clobber a newer snapshot.
	saveMu sync.Mutex
	store  Store
	logger *slog.Logger
}

// NewTable builds a table from the store contents, falling back to the seeded
// defaults when the store is nil, empty, or unreadable. A load failure is logged
// and never fatal.
func NewTable(ctx context.Context, store Store, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Table{
		keywords: make(map[string][]string),
		store:    store,
		logger:   logger,
	}

	entries := Defaults()
	if store != nil {
		loaded, err := store.Load(ctx)
		switch {
		case err != nil:
			logger.Warn("hints.load.failed", "error", err)
		case len(loaded) > 0:
			entries = loaded
		}
	}
	t.setEntries(entries)
	return t
}

func (t *Table) setEntries(entries []CategoryHints) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = t.order[:0]
	clear(t.keywords)
	for _, e := range entries {
		cat := strings.TrimSpace(e.Category)
		if cat == "" {
			continue
		}
		kws := make([]string, 0, len(e.Keywords))
		for _, kw := range e.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		if _, seen := t.keywords[cat]; !seen {
			t.order = append(t.order, cat)
		}
		t.keywords[cat] = kws
	}
}

// Suggest scans the table in insertion order and returns the first category with
// a keyword appearing as a substring of the description plus merchant name.
// Matching is case-insensitive. ok is false when nothing matched.
func (t *Table) Suggest(description, merchant string) (category string, ok bool) {
	text := strings.ToLower(description + " " + merchant)

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, cat := range t.order {
		if containsKeyword(t.keywords[cat], text) {
			return cat, true
		}
	}
	return "", false
}

// SuggestFrom is Suggest over a detached snapshot, for callers that need a
// stable view across several matches.
func SuggestFrom(entries []CategoryHints, description, merchant string) (category string, ok bool) {
	text := strings.ToLower(description + " " + merchant)
	for _, e := range entries {
		if containsKeyword(e.Keywords, text) {
			return e.Category, true
		}
	}
	return "", false
}

func containsKeyword(keywords []string, text string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Learn folds a corrected description into a category's keyword set. Tokens are
// the whitespace-split words of the description longer than 3 characters,
// lowercased, in original order. An existing category gains each of the first
// two tokens it does not already hold; a new category is appended to the table
// seeded with the first three distinct tokens. When the table changed it is
// flushed to the store best-effort, and Learn reports whether it changed.
func (t *Table) Learn(ctx context.Context, description, category string) bool {
	category = strings.TrimSpace(category)
	tokens := tokenize(description)
	if category == "" || len(tokens) == 0 {
		return false
	}

	t.mu.Lock()
	changed := t.learnLocked(category, tokens)
	t.mu.Unlock()

	if changed {
		t.logger.Info("hints.learned", "category", category, "tokens", tokens)
		t.flush(ctx)
	}
	return changed
}

func (t *Table) learnLocked(category string, tokens []string) bool {
	kws, exists := t.keywords[category]
	if !exists {
		seed := make([]string, 0, 3)
		for _, tok := range tokens {
			if len(seed) == 3 {
				break
			}
			if !slices.Contains(seed, tok) {
				seed = append(seed, tok)
			}
		}
		t.order = append(t.order, category)
		t.keywords[category] = seed
		return true
	}

	changed := false
	if len(tokens) > 2 {
		tokens = tokens[:2]
	}
	for _, tok := range tokens {
		if !slices.Contains(kws, tok) {
			kws = append(kws, tok)
			changed = true
		}
	}
	if changed {
		t.keywords[category] = kws
	}
	return changed
}

func (t *Table) flush(ctx context.Context) {
	if t.store == nil {
		return
	}
	t.saveMu.Lock()
	defer t.saveMu.Unlock()
	if err := t.store.Save(ctx, t.Snapshot()); err != nil {
		t.logger.Warn("hints.save.failed", "error", err)
	}
}

// Snapshot returns an ordered copy of the table, safe to hold across later
// mutations.
func (t *Table) Snapshot() []CategoryHints {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]CategoryHints, 0, len(t.order))
	for _, cat := range t.order {
		out = append(out, CategoryHints{
			Category: cat,
			Keywords: slices.Clone(t.keywords[cat]),
		})
	}
	return out
}

// SerializeJSON renders the table as a compact JSON object with keys in
// insertion order, for embedding in an extraction prompt.
func (t *Table) SerializeJSON() ([]byte, error) {
	return MarshalEntries(t.Snapshot())
}

func tokenize(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if utf8.RuneCountInString(w) > 3 {
			out = append(out, strings.ToLower(w))
		}
	}
	return out
}
