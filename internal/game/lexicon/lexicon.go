// Package lexicon provides the immutable word set shared by all rooms and
// the validity/score lookup used on every move submission.
package lexicon

import "strings"

// Lexicon is an immutable set of valid words with per-word score weights.
// It is loaded once at startup and is safe for concurrent reads without
// locking.
type Lexicon struct {
	words map[string]int
}

// New builds a Lexicon from a word→score map. Keys are normalized; entries
// with non-positive scores are dropped.
//
// Postcondition: Returns a non-nil Lexicon independent of the input map.
func New(words map[string]int) *Lexicon {
	normalized := make(map[string]int, len(words))
	for w, score := range words {
		if score <= 0 {
			continue
		}
		key := Normalize(w)
		if key == "" {
			continue
		}
		if existing, ok := normalized[key]; !ok || score > existing {
			normalized[key] = score
		}
	}
	return &Lexicon{words: normalized}
}

// Normalize lowercases a candidate token and strips surrounding whitespace.
// Lookups and stored words share this canonical form.
func Normalize(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// Validate reports whether token is a valid word and its score weight.
// The lookup is a single hash probe; cost does not depend on lexicon size.
//
// Postcondition: Returns (score, true) for valid words, (0, false) otherwise.
func (l *Lexicon) Validate(token string) (int, bool) {
	score, ok := l.words[Normalize(token)]
	if !ok {
		return 0, false
	}
	return score, true
}

// Contains reports whether token is in the lexicon.
func (l *Lexicon) Contains(token string) bool {
	_, ok := l.words[Normalize(token)]
	return ok
}

// Size returns the number of distinct words.
func (l *Lexicon) Size() int {
	return len(l.words)
}
