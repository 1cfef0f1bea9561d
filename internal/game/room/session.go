package room

import (
	"fmt"
	"sync"
	"time"
)

// Status is a player session's connection state.
type Status string

const (
	// StatusConnected means the session has a live transport attachment.
	StatusConnected Status = "connected"
	// StatusPending means the transport dropped but the grace window has
	// not yet elapsed; the player may still reconnect and resume.
	StatusPending Status = "disconnected-pending"
	// StatusLeft is terminal: explicit leave or grace-window expiry.
	StatusLeft Status = "left"
)

// PlayerSession tracks one participant in a room. All fields are mutated
// only inside the room's run loop, so no locking is needed here; the Outbox
// carries its own synchronization because the transport reads from it.
type PlayerSession struct {
	// PlayerID is the opaque identity, stable across reconnects within the
	// grace window.
	PlayerID string
	// Name is the display name (for peers and logging).
	Name string
	// Status is the connection state machine position.
	Status Status
	// ContributedScore is this player's running total in the room.
	ContributedScore int
	// LastHeartbeat is the most recent liveness signal.
	LastHeartbeat time.Time
	// DisconnectedAt is set when Status becomes StatusPending.
	DisconnectedAt time.Time
	// JoinedAt orders players for display purposes only.
	JoinedAt time.Time

	outbox *Outbox
}

// Connected reports whether the session can currently receive messages.
func (s *PlayerSession) Connected() bool {
	return s.Status == StatusConnected && s.outbox != nil
}

// attach replaces the session's transport attachment, closing any previous
// one. Called only from the room loop.
func (s *PlayerSession) attach(out *Outbox, now time.Time) {
	if s.outbox != nil && s.outbox != out {
		_ = s.outbox.Close()
	}
	s.outbox = out
	s.Status = StatusConnected
	s.LastHeartbeat = now
	s.DisconnectedAt = time.Time{}
}

// detach clears the transport attachment and starts the grace window.
// Called only from the room loop.
func (s *PlayerSession) detach(now time.Time) {
	if s.outbox != nil {
		_ = s.outbox.Close()
		s.outbox = nil
	}
	s.Status = StatusPending
	s.DisconnectedAt = now
}

// send pushes a message to the session if it is connected. A push failure
// (closed or full outbox) is reported to the caller so the room can mark
// the session disconnected; it never blocks.
func (s *PlayerSession) send(data []byte) error {
	if !s.Connected() {
		return fmt.Errorf("session %s not connected", s.PlayerID)
	}
	return s.outbox.Push(data)
}

// Outbox routes room broadcasts to a transport writer through a buffered
// channel. The room pushes; the transport's write pump drains.
type Outbox struct {
	playerID string
	messages chan []byte
	mu       sync.Mutex
	closed   bool
}

// NewOutbox creates an Outbox for the given player.
//
// Precondition: playerID must be non-empty.
// Postcondition: Returns an Outbox with an open message channel.
func NewOutbox(playerID string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		playerID: playerID,
		messages: make(chan []byte, bufferSize),
	}
}

// PlayerID returns the owning player's identifier.
func (o *Outbox) PlayerID() string {
	return o.playerID
}

// Push enqueues a message without blocking.
//
// Postcondition: The message is enqueued, or an error if the outbox is
// closed or full. A full outbox is a slow consumer; the caller treats it
// like a disconnect.
func (o *Outbox) Push(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s is closed", o.playerID)
	}
	select {
	case o.messages <- data:
		return nil
	default:
		return fmt.Errorf("outbox %s buffer full", o.playerID)
	}
}

// Messages returns the read-only message channel. The transport write pump
// reads from this channel until it is closed.
func (o *Outbox) Messages() <-chan []byte {
	return o.messages
}

// Close marks the outbox closed and closes the message channel.
//
// Postcondition: Further Push calls return an error. Safe to call twice.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.messages)
	}
	return nil
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
