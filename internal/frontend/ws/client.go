package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// client is one websocket connection bound to an authenticated player.
// Outbound traffic funnels through send so the write pump is the only
// goroutine touching the socket for writes. The connection id is distinct
// from the player id: one player may connect, drop, and reconnect, and the
// logs need to tell those sockets apart.
type client struct {
	id       string
	conn     *websocket.Conn
	playerID string
	name     string
	logger   *zap.Logger

	send         chan []byte
	writeTimeout time.Duration
	done         chan struct{}
}

func newClient(conn *websocket.Conn, playerID, name string, sendBuffer int, writeTimeout time.Duration, logger *zap.Logger) *client {
	id := uuid.NewString()
	return &client{
		id:           id,
		conn:         conn,
		playerID:     playerID,
		name:         name,
		logger:       logger.With(zap.String("player", playerID), zap.String("conn", id)),
		send:         make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// enqueue hands a message to the write pump without blocking. Dropping on a
// full buffer is acceptable; the room's own snapshot mechanism lets the
// client recover.
func (c *client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// writePump drains the send channel onto the socket until the connection
// is torn down.
func (c *client) writePump() {
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(c.writeTimeout))
				return
			}
			if c.writeTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

// pipe copies messages from a source channel into the send buffer until the
// source closes. Each room attachment gets its own pipe; a reattachment
// closes the previous outbox, which ends the previous pipe.
func (c *client) pipe(src <-chan []byte) {
	for msg := range src {
		if !c.enqueue(msg) {
			c.logger.Warn("send buffer full, dropping message")
		}
	}
}

// close tears the client down. Safe to call from the read pump only.
func (c *client) close() {
	close(c.done)
	_ = c.conn.Close()
}
