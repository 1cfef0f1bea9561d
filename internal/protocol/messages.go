// Package protocol defines the message envelope and payload types used to
// replicate room state to clients and to accept client submissions. The
// envelope is transport-agnostic JSON; ordering is expressed through the
// sequence number carried by every state-bearing message.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a message type on the wire.
type Kind string

// Client-to-server kinds.
const (
	KindJoinRequest     Kind = "join_request"
	KindMoveSubmit      Kind = "move_submit"
	KindStartRequest    Kind = "start_request"
	KindLeaveRequest    Kind = "leave_request"
	KindHeartbeat       Kind = "heartbeat"
	KindSnapshotRequest Kind = "snapshot_request"
)

// Server-to-client kinds.
const (
	KindJoinAccepted       Kind = "join_accepted"
	KindMoveRejected       Kind = "move_rejected"
	KindStateDelta         Kind = "state_delta"
	KindSnapshot           Kind = "snapshot"
	KindRoomStarted        Kind = "room_started"
	KindPlayerJoined       Kind = "player_joined"
	KindPlayerLeft         Kind = "player_left"
	KindPlayerDisconnected Kind = "player_disconnected"
	KindRoomEnded          Kind = "room_ended"
	KindError              Kind = "error"
)

// RejectReason classifies why a move submission was not accepted.
type RejectReason string

const (
	RejectInvalidWord    RejectReason = "invalid word"
	RejectPositionTaken  RejectReason = "position already claimed"
	RejectWordUsed       RejectReason = "word already used"
	RejectWrongPhase     RejectReason = "room not active"
	RejectNotJoined      RejectReason = "player not in room"
	RejectOutOfBounds    RejectReason = "position out of bounds"
)

// Envelope is the wire frame for every message. Seq is set only on
// state-bearing server messages; clients use it for gap detection.
type Envelope struct {
	Type Kind            `json:"type"`
	Seq  uint64          `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode builds a wire frame from a kind, sequence number, and payload.
// A nil payload produces an envelope with no data field.
//
// Postcondition: Returns the JSON encoding or a non-nil error.
func Encode(kind Kind, seq uint64, payload any) ([]byte, error) {
	env := Envelope{Type: kind, Seq: seq}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshalling %s payload: %w", kind, err)
		}
		env.Data = data
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s envelope: %w", kind, err)
	}
	return raw, nil
}

// MustEncode is Encode for payloads that cannot fail to marshal.
// It panics on error and is intended for server-built payload structs only.
func MustEncode(kind Kind, seq uint64, payload any) []byte {
	raw, err := Encode(kind, seq, payload)
	if err != nil {
		panic(err)
	}
	return raw
}

// Decode parses a wire frame.
//
// Postcondition: Returns the Envelope or a non-nil error for malformed
// frames or empty message types.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("parsing envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope missing type")
	}
	return env, nil
}

// DecodeData unmarshals the envelope payload into v.
//
// Precondition: v must be a non-nil pointer.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s envelope has no data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("parsing %s payload: %w", e.Type, err)
	}
	return nil
}

// JoinRequest asks to join (or rejoin) a room.
type JoinRequest struct {
	RoomID string `json:"room_id"`
	Mode   string `json:"mode,omitempty"`
}

// MoveSubmit is a player's attempt to claim a board position with a word.
type MoveSubmit struct {
	Token    string `json:"token"`
	Position int    `json:"position"`
	// ClientTime is the client's wall clock in unix milliseconds. It is
	// informational only; acceptance order is decided server-side.
	ClientTime int64 `json:"client_time,omitempty"`
}

// MoveRejected reports a rejected submission back to its sender only.
type MoveRejected struct {
	Reason   RejectReason `json:"reason"`
	Token    string       `json:"token"`
	Position int          `json:"position"`
}

// SlotState is one claimed board position inside a snapshot.
type SlotState struct {
	Position int    `json:"position"`
	Word     string `json:"word"`
	PlayerID string `json:"player_id"`
	Score    int    `json:"score"`
}

// PlayerState is one participant inside a snapshot.
type PlayerState struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name,omitempty"`
	Status   string `json:"status"`
	Score    int    `json:"score"`
}

// RoomSnapshot is the full authoritative room state. It is sent on join,
// on reconnect, and whenever a client reports a sequence gap.
type RoomSnapshot struct {
	RoomID    string        `json:"room_id"`
	Mode      string        `json:"mode"`
	Phase     string        `json:"phase"`
	Seq       uint64        `json:"seq"`
	BoardSize int           `json:"board_size"`
	Board     []SlotState   `json:"board"`
	Players   []PlayerState `json:"players"`
	EndReason string        `json:"end_reason,omitempty"`
}

// JoinAccepted confirms a join and carries the current snapshot.
type JoinAccepted struct {
	PlayerID string       `json:"player_id"`
	Snapshot RoomSnapshot `json:"snapshot"`
}

// StateDelta is one accepted mutation. Seq on the envelope is the sequence
// number this mutation produced.
type StateDelta struct {
	Position   int    `json:"position"`
	Word       string `json:"word"`
	PlayerID   string `json:"player_id"`
	ScoreDelta int    `json:"score_delta"`
}

// RoomStarted announces the lobby→active transition.
type RoomStarted struct {
	BoardSize int `json:"board_size"`
}

// PlayerEvent announces a join, leave, or disconnect of one participant.
type PlayerEvent struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name,omitempty"`
}

// FinalScore is one player's total at room end.
type FinalScore struct {
	PlayerID string `json:"player_id"`
	Score    int    `json:"score"`
}

// RoomEnded announces the terminal transition with the final ledger totals.
type RoomEnded struct {
	Reason      string       `json:"reason"`
	FinalScores []FinalScore `json:"final_scores"`
}

// ErrorMessage reports a request-level failure (bad frame, unknown room).
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
