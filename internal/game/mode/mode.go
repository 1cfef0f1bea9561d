// Package mode defines per-room play-mode configuration and the pluggable
// end-condition predicates that decide when a room is finished. Built-in
// modes cover cooperative, timed, and endless play; additional modes can be
// supplied as sandboxed Lua scripts.
package mode

import (
	"fmt"
	"time"
)

// Name identifies a play mode.
type Name string

const (
	Cooperative Name = "cooperative"
	Timed       Name = "timed"
	Endless     Name = "endless"
)

// End reasons produced by the built-in conditions. Rooms may also end for
// reasons outside any mode's control ("idle-timeout", "all-players-left").
const (
	ReasonBoardComplete = "board-complete"
	ReasonTimeExpired   = "time-expired"
	ReasonStrikeLimit   = "strike-limit"
)

// Status is the read-only view of room progress an end condition sees.
// It is assembled inside the room's run loop, so conditions never observe
// a half-applied mutation.
type Status struct {
	// BoardSize is the total number of positions.
	BoardSize int
	// Claimed is the number of claimed positions.
	Claimed int
	// Elapsed is the time since the room became active.
	Elapsed time.Duration
	// Strikes is the count of consecutive rejected moves since the last
	// accepted one, summed across all players.
	Strikes int
	// ActivePlayers is the number of sessions not yet removed.
	ActivePlayers int
}

// EndCondition decides whether a room is finished. Check is called inside
// the room's serialization point after each accepted move and on each tick.
type EndCondition interface {
	// Check returns (reason, true) when the room should end.
	Check(s Status) (string, bool)
}

// EndConditionFunc adapts a function to the EndCondition interface.
type EndConditionFunc func(s Status) (string, bool)

// Check calls the underlying function.
func (f EndConditionFunc) Check(s Status) (string, bool) { return f(s) }

// Config is the per-room mode configuration supplied at room creation.
type Config struct {
	// Name is the play mode identifier.
	Name Name
	// BoardSize is the number of board positions.
	BoardSize int
	// MinPlayers is the lobby threshold required before a start signal
	// can activate the room.
	MinPlayers int
	// RoundDuration bounds active play for timed mode; zero means no bound.
	RoundDuration time.Duration
	// StrikeLimit is the endless-mode failure threshold; zero disables it.
	StrikeLimit int
	// End is the pluggable end condition.
	End EndCondition
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("mode name must not be empty")
	}
	if c.BoardSize < 1 {
		return fmt.Errorf("mode %s: board size must be >= 1, got %d", c.Name, c.BoardSize)
	}
	if c.MinPlayers < 1 {
		return fmt.Errorf("mode %s: min players must be >= 1, got %d", c.Name, c.MinPlayers)
	}
	if c.End == nil {
		return fmt.Errorf("mode %s: end condition must not be nil", c.Name)
	}
	return nil
}

// CooperativeConfig builds the cooperative mode: the room ends when every
// board position is claimed.
func CooperativeConfig(boardSize, minPlayers int) Config {
	return Config{
		Name:       Cooperative,
		BoardSize:  boardSize,
		MinPlayers: minPlayers,
		End: EndConditionFunc(func(s Status) (string, bool) {
			if s.BoardSize > 0 && s.Claimed >= s.BoardSize {
				return ReasonBoardComplete, true
			}
			return "", false
		}),
	}
}

// TimedConfig builds the timed mode: the room ends when the round duration
// elapses, or earlier if the board fills.
func TimedConfig(boardSize, minPlayers int, round time.Duration) Config {
	return Config{
		Name:          Timed,
		BoardSize:     boardSize,
		MinPlayers:    minPlayers,
		RoundDuration: round,
		End: EndConditionFunc(func(s Status) (string, bool) {
			if s.BoardSize > 0 && s.Claimed >= s.BoardSize {
				return ReasonBoardComplete, true
			}
			if round > 0 && s.Elapsed >= round {
				return ReasonTimeExpired, true
			}
			return "", false
		}),
	}
}

// EndlessConfig builds the endless mode: play continues until the strike
// limit of consecutive rejections is reached or the board fills.
func EndlessConfig(boardSize, minPlayers, strikeLimit int) Config {
	return Config{
		Name:        Endless,
		BoardSize:   boardSize,
		MinPlayers:  minPlayers,
		StrikeLimit: strikeLimit,
		End: EndConditionFunc(func(s Status) (string, bool) {
			if s.BoardSize > 0 && s.Claimed >= s.BoardSize {
				return ReasonBoardComplete, true
			}
			if strikeLimit > 0 && s.Strikes >= strikeLimit {
				return ReasonStrikeLimit, true
			}
			return "", false
		}),
	}
}

// ForName builds a built-in mode configuration by name with the given
// defaults. Unknown names fall back to cooperative.
func ForName(name string, boardSize, minPlayers int) Config {
	switch Name(name) {
	case Timed:
		return TimedConfig(boardSize, minPlayers, 3*time.Minute)
	case Endless:
		return EndlessConfig(boardSize, minPlayers, 10)
	default:
		return CooperativeConfig(boardSize, minPlayers)
	}
}
