// Package moderation filters model answers before they reach the user.
package moderation

import (
	"strings"
	"sync"
)

// Moderator inspects an answer and returns what the user should see.
type Moderator interface {
	Moderate(text string) string
}

// ModeratorFunc adapts a function to Moderator.
type ModeratorFunc func(text string) string

func (f ModeratorFunc) Moderate(text string) string { return f(text) }

// Blocklist refuses any answer containing one of its terms, compared
// case-insensitively as substrings. Other answers pass through unchanged.
type Blocklist struct {
	mu      sync.RWMutex
	terms   []string
	refusal string
}

// NewBlocklist builds a blocklist. Empty terms are ignored.
func NewBlocklist(terms []string, refusal string) *Blocklist {
	b := &Blocklist{refusal: refusal}
	b.terms = normalize(terms)
	return b
}

func normalize(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, strings.ToLower(t))
		}
	}
	return out
}

// Matcher is implemented by moderators that can name what they matched.
type Matcher interface {
	Match(text string) (string, bool)
}

// Moderate returns the refusal on the first matching term, else text.
func (b *Blocklist) Moderate(text string) string {
	if _, ok := b.Match(text); ok {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return b.refusal
	}
	return text
}

// Match reports the first term found in text.
func (b *Blocklist) Match(text string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	lower := strings.ToLower(text)
	for _, term := range b.terms {
		if strings.Contains(lower, term) {
			return term, true
		}
	}
	return "", false
}

// SetTerms swaps the terms and refusal at runtime.
func (b *Blocklist) SetTerms(terms []string, refusal string) {
	normalized := normalize(terms)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.terms = normalized
	b.refusal = refusal
}

// Terms returns a copy of the lowercased terms.
func (b *Blocklist) Terms() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.terms...)
}
