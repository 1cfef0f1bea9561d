// Package room implements the authoritative game-state engine: the shared
// board, player sessions, the per-room actor loop that serializes all
// mutations, and the registry that owns room lifecycles.
package room

import (
	"errors"
	"fmt"
)

// ErrPositionClaimed is returned when a board position already holds a word.
var ErrPositionClaimed = errors.New("position already claimed")

// ErrOutOfBounds is returned for positions outside the board.
var ErrOutOfBounds = errors.New("position out of bounds")

// Claim is one claimed board position.
type Claim struct {
	Position int
	Word     string
	PlayerID string
	Score    int
}

// Board is the shared puzzle state all sessions in a room observe. It is
// mutated only inside the room's run loop.
type Board struct {
	slots []*Claim
}

// NewBoard creates a board with size unclaimed positions.
//
// Precondition: size must be >= 1.
func NewBoard(size int) *Board {
	return &Board{slots: make([]*Claim, size)}
}

// Size returns the total number of positions.
func (b *Board) Size() int {
	return len(b.slots)
}

// ClaimedCount returns the number of claimed positions.
func (b *Board) ClaimedCount() int {
	n := 0
	for _, s := range b.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Full reports whether every position is claimed.
func (b *Board) Full() bool {
	return b.ClaimedCount() == len(b.slots)
}

// At returns the claim at pos, or nil if the position is unclaimed.
//
// Postcondition: Returns (claim, nil) or (nil, nil) for in-bounds positions,
// (nil, ErrOutOfBounds) otherwise.
func (b *Board) At(pos int) (*Claim, error) {
	if pos < 0 || pos >= len(b.slots) {
		return nil, ErrOutOfBounds
	}
	return b.slots[pos], nil
}

// Claim records a word at pos. First claim wins; later claims for the same
// position fail with ErrPositionClaimed.
//
// Postcondition: Returns nil and stores the claim, or an error leaving the
// board unchanged.
func (b *Board) Claim(pos int, word, playerID string, score int) error {
	if pos < 0 || pos >= len(b.slots) {
		return fmt.Errorf("claiming position %d on board of size %d: %w", pos, len(b.slots), ErrOutOfBounds)
	}
	if b.slots[pos] != nil {
		return ErrPositionClaimed
	}
	b.slots[pos] = &Claim{Position: pos, Word: word, PlayerID: playerID, Score: score}
	return nil
}

// Claims returns all claimed positions in board order.
func (b *Board) Claims() []Claim {
	out := make([]Claim, 0, len(b.slots))
	for _, s := range b.slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}
