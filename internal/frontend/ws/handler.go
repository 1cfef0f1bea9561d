// Package ws exposes the game over websockets: an authenticated upgrade
// endpoint whose frames are protocol envelopes, plus the REST endpoints for
// account registration, login, and the leaderboard.
package ws

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pcollard/wordhall/internal/auth"
	"github.com/pcollard/wordhall/internal/config"
	"github.com/pcollard/wordhall/internal/game/room"
	"github.com/pcollard/wordhall/internal/protocol"
)

// GameHandler upgrades authenticated requests to websocket sessions and
// bridges envelope traffic onto room commands.
type GameHandler struct {
	cfg      config.WebsocketConfig
	registry *room.Registry
	verifier *auth.Manager
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewGameHandler creates a GameHandler.
//
// Precondition: registry, verifier, and logger must be non-nil.
func NewGameHandler(cfg config.WebsocketConfig, registry *room.Registry, verifier *auth.Manager, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		cfg:      cfg,
		registry: registry,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// bearerToken extracts the player token from the Authorization header or
// the token query parameter. Browsers cannot set headers on websocket
// dials, so the query form is the common path.
func bearerToken(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	return r.URL.Query().Get("token")
}

// ServeHTTP authenticates, upgrades, and runs the session until the socket
// closes. A transport drop reports a disconnect to the player's room; the
// session itself survives there for the grace window.
func (h *GameHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.Verify(bearerToken(r))
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	c := newClient(conn, claims.PlayerID, claims.Name, h.cfg.OutboxSize, h.cfg.WriteTimeout, h.logger)
	c.logger.Info("client connected", zap.String("remote_addr", r.RemoteAddr))

	go c.writePump()
	h.readLoop(c)
}

// readLoop is the per-connection dispatch: every inbound frame becomes a
// room command. It owns the client's room membership.
func (h *GameHandler) readLoop(c *client) {
	var current *room.Room

	defer func() {
		if current != nil {
			_ = current.Disconnect(c.playerID)
		}
		c.close()
		c.logger.Info("client disconnected")
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			c.enqueue(protocol.MustEncode(protocol.KindError, 0, protocol.ErrorMessage{
				Code:    "bad_frame",
				Message: err.Error(),
			}))
			continue
		}

		switch env.Type {
		case protocol.KindJoinRequest:
			var req protocol.JoinRequest
			if err := env.DecodeData(&req); err != nil {
				c.enqueue(protocol.MustEncode(protocol.KindError, 0, protocol.ErrorMessage{
					Code:    "bad_frame",
					Message: err.Error(),
				}))
				continue
			}
			next, err := h.registry.GetOrCreate(req.RoomID, req.Mode)
			if err != nil {
				c.enqueue(protocol.MustEncode(protocol.KindError, 0, protocol.ErrorMessage{
					Code:    "join_failed",
					Message: err.Error(),
				}))
				continue
			}
			if current != nil && current != next {
				_ = current.Leave(c.playerID)
			}
			out := room.NewOutbox(c.playerID, h.cfg.OutboxSize)
			if err := next.Join(c.playerID, c.name, out); err != nil {
				_ = out.Close()
				c.enqueue(protocol.MustEncode(protocol.KindError, 0, protocol.ErrorMessage{
					Code:    "join_failed",
					Message: err.Error(),
				}))
				continue
			}
			go c.pipe(out.Messages())
			current = next

		case protocol.KindMoveSubmit:
			if current == nil {
				c.enqueue(protocol.MustEncode(protocol.KindMoveRejected, 0, protocol.MoveRejected{
					Reason: protocol.RejectNotJoined,
				}))
				continue
			}
			var move protocol.MoveSubmit
			if err := env.DecodeData(&move); err != nil {
				c.enqueue(protocol.MustEncode(protocol.KindError, 0, protocol.ErrorMessage{
					Code:    "bad_frame",
					Message: err.Error(),
				}))
				continue
			}
			_ = current.SubmitMove(c.playerID, move.Token, move.Position)

		case protocol.KindHeartbeat:
			if current != nil {
				_ = current.Heartbeat(c.playerID)
			}

		case protocol.KindStartRequest:
			if current != nil {
				_ = current.RequestStart(c.playerID)
			}

		case protocol.KindSnapshotRequest:
			if current != nil {
				_ = current.RequestSnapshot(c.playerID)
			}

		case protocol.KindLeaveRequest:
			if current != nil {
				_ = current.Leave(c.playerID)
				current = nil
			}

		default:
			c.enqueue(protocol.MustEncode(protocol.KindError, 0, protocol.ErrorMessage{
				Code:    "unknown_type",
				Message: "unsupported message type: " + string(env.Type),
			}))
		}
	}
}
