package types

import (
	"slices"
	"strings"
	"time"
)

// =============================================================================
// SESSION
// =============================================================================

// Session is one player's ongoing chain of words.
//
// History is non-empty and holds every accepted word in insertion order,
// starting with the seed. While GameOver is false the last History entry
// equals CurrentWord. Version increments on every successful save and is
// used for optimistic concurrency by the store.
type Session struct {
	ID          string    `json:"session_id"`
	CurrentWord string    `json:"current_word"`
	History     []string  `json:"history"`
	Score       int       `json:"score"`
	GameOver    bool      `json:"game_over"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewSession returns a session seeded with a single word.
func NewSession(id, seed string, now time.Time) *Session {
	return &Session{
		ID:          id,
		CurrentWord: seed,
		History:     []string{seed},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Seed returns the word the session started from.
func (s *Session) Seed() string {
	if len(s.History) == 0 {
		return s.CurrentWord
	}
	return s.History[0]
}

// Contains reports whether word is already in the history, ignoring case.
func (s *Session) Contains(word string) bool {
	return slices.ContainsFunc(s.History, func(h string) bool {
		return strings.EqualFold(h, word)
	})
}

// Tail returns a copy of the last n history entries.
func (s *Session) Tail(n int) []string {
	if n <= 0 || n >= len(s.History) {
		return slices.Clone(s.History)
	}
	return slices.Clone(s.History[len(s.History)-n:])
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.History = slices.Clone(s.History)
	return &c
}
