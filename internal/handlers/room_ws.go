// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rbutcher/fivedice/internal/auth"
	"github.com/rbutcher/fivedice/internal/game"
	"github.com/rbutcher/fivedice/internal/lobby"
	"github.com/rbutcher/fivedice/internal/middleware"
	"github.com/rbutcher/fivedice/internal/models"
	"github.com/rbutcher/fivedice/internal/scoring"
)

// RoomMessage is the shape of every inbound WebSocket message. Type selects
// the action; the other fields are read only where relevant.
type RoomMessage struct {
	Type     string `json:"type"`
	DieIndex *int   `json:"dieIndex,omitempty"`
	Category string `json:"category,omitempty"`
}

// RoomWSHandler upgrades the HTTP connection to WebSocket for a room. It
// authenticates the user, routes the connection to the waiting room or the
// running game, and then reads messages until the client goes away.
//
// GET /rooms/ws/{room_code}?token=...&name=...
func RoomWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/rooms/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing room_code in path (/rooms/ws/{room_code})", http.StatusBadRequest)
			return
		}
		code := strings.ToUpper(pathParts[0])

		// Resolve identity before the upgrade so a minted guest token can
		// still travel back in a Set-Cookie header.
		identity, err := EnsureGuest(w, r)
		if err != nil {
			logger.Warnf("authentication failed for room %s: %v", code, err)
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"fivedice"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("websocket accept error for room %s: %v", code, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler exit")

		if c.Subprotocol() != "fivedice" {
			c.Close(websocket.StatusPolicyViolation, "client must use the 'fivedice' subprotocol")
			return
		}

		connID := uuid.New()
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)
		logger.Infof("user %s connected to room %s (connection %s)", identity.ID, code, connID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Every connection gets one game-phase event queue and one pump
		// draining it in order, whether the room is waiting or playing.
		out := make(chan []byte, 32)
		go gameEventPump(ctx, c, out)

		var lob *lobby.Lobby
		if s, ok := gs.Sessions.Get(code); ok {
			// The room is already playing: only a known persistent
			// identity may resume its seat.
			if err := s.HandleRejoin(identity.ID, connID, c, out); err != nil {
				logger.Infof("rejected stranger %s for in-progress room %s", identity.ID, code)
				sendWsError(ctx, c, "cannot join an in-progress game")
				c.Close(websocket.StatusPolicyViolation, "not a participant in this game")
				return
			}
		} else if l, ok := gs.Lobbies.Get(code); ok {
			lob = l
			member := &lobby.Member{
				PersistentID: identity.ID,
				DisplayName:  identity.Name,
				ConnID:       connID,
				Conn:         c,
				Cancel:       cancel,
				OutChan:      make(chan map[string]interface{}, 16),
				GameOut:      out,
			}
			if err := lob.AddMember(member); err != nil {
				logger.Warnf("failed to seat %s in room %s: %v", identity.ID, code, err)
				sendWsError(ctx, c, err.Error())
				c.Close(websocket.StatusPolicyViolation, "could not join room")
				return
			}
			go writePump(ctx, c, member, logger)
			lob.Broadcast(map[string]interface{}{
				"type":    "system_message",
				"message": fmt.Sprintf("%s joined the room.", identity.Name),
			})
			lob.BroadcastRoomUpdate()
		} else {
			sendWsMessage(ctx, c, map[string]interface{}{"type": "game_not_found"})
			c.Close(websocket.StatusPolicyViolation, "room not found")
			return
		}

		readRoomMessages(ctx, c, gs, code, lob, identity, connID, logger)

		// The read loop exited: the client disconnected or left. Inform
		// whichever phase currently owns the room.
		if s, ok := gs.Sessions.Get(code); ok {
			s.HandleDisconnect(connID)
		} else if lob != nil && !lob.IsStarted() {
			lob.RemoveByConn(connID)
		}
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

// readRoomMessages reads and dispatches inbound messages until the
// connection closes. Each message is routed by the room's current phase, so
// a connection seated in the waiting room flows seamlessly into the game
// once the host starts it.
func readRoomMessages(ctx context.Context, c *websocket.Conn, gs *GameServer, code string, lob *lobby.Lobby, identity auth.Identity, connID uuid.UUID, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("websocket closed normally for %s in room %s", identity.ID, code)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("websocket context canceled for %s in room %s", identity.ID, code)
			} else {
				logger.Warnf("websocket read error for %s in room %s: %v", identity.ID, code, err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg RoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("invalid JSON from %s in room %s: %v", identity.ID, code, err)
			sendWsError(ctx, c, "invalid JSON")
			continue
		}

		logger.Debugf("action %q from %s in room %s", msg.Type, identity.ID, code)

		if msg.Type == "ping" {
			sendWsMessage(ctx, c, map[string]interface{}{"type": "pong"})
			continue
		}

		if s, ok := gs.Sessions.Get(code); ok {
			if done := dispatchGameMessage(s, msg, connID); done {
				return
			}
			continue
		}
		if lob != nil {
			if done := dispatchLobbyMessage(ctx, c, gs, lob, msg, identity, connID, logger); done {
				return
			}
			continue
		}
		sendWsMessage(ctx, c, map[string]interface{}{"type": "game_not_found"})
	}
}

// dispatchGameMessage maps a wire message onto the session's closed action
// union. Returns true when the connection should be closed.
func dispatchGameMessage(s *game.Session, msg RoomMessage, connID uuid.UUID) bool {
	switch msg.Type {
	case "roll_dice":
		s.HandleAction(connID, models.Action{Type: models.ActionRollDice})
	case "toggle_die_lock":
		idx := -1
		if msg.DieIndex != nil {
			idx = *msg.DieIndex
		}
		s.HandleAction(connID, models.Action{Type: models.ActionToggleDieLock, DieIndex: idx})
	case "choose_score":
		s.HandleAction(connID, models.Action{Type: models.ActionChooseScore, Category: scoring.Category(msg.Category)})
	case "abandon_game", "leave_room":
		s.HandleAction(connID, models.Action{Type: models.ActionAbandonGame})
		return true
	default:
		// Unknown in-game input is dropped; the session must not react.
	}
	return false
}

// dispatchLobbyMessage handles waiting-room traffic. Returns true when the
// connection should be closed.
func dispatchLobbyMessage(ctx context.Context, c *websocket.Conn, gs *GameServer, lob *lobby.Lobby, msg RoomMessage, identity auth.Identity, connID uuid.UUID, logger *logrus.Logger) bool {
	switch msg.Type {
	case "start_game":
		if identity.ID != lob.HostID {
			sendWsError(ctx, c, "only the host can start the game")
			return false
		}
		seats, err := lob.StartSeats()
		if err != nil {
			sendWsError(ctx, c, err.Error())
			return false
		}
		s := gs.Sessions.Create(lob.Code, seats, lob.Variant)
		gs.Lobbies.Delete(lob.Code)
		logger.Infof("room %s started with %d players (variant %s)", lob.Code, len(seats), lob.Variant)
		if s.Sink != nil {
			go func() {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()
				if err := s.Sink.UpdateRoomStatus(sctx, lob.Code, game.StatusInProgress); err != nil {
					logger.Warnf("failed to mark room %s in progress: %v", lob.Code, err)
				}
			}()
		}
		s.Begin()
	case "leave_room":
		lob.RemoveByConn(connID)
		lob.Broadcast(map[string]interface{}{
			"type":    "system_message",
			"message": fmt.Sprintf("%s left the room.", identity.Name),
		})
		c.Close(websocket.StatusNormalClosure, "left room")
		return true
	default:
		sendWsError(ctx, c, fmt.Sprintf("unknown action type: %s", msg.Type))
	}
	return false
}

// writePump drains a lobby member's out channel onto the socket.
func writePump(ctx context.Context, c *websocket.Conn, m *lobby.Member, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-m.OutChan:
			if !ok {
				return
			}
			sendWsMessage(ctx, c, msg)
		}
	}
}

// sendWsMessage marshals a message and writes it with a timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("attempted to send WebSocket message on nil connection")
		return
	}
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("error marshaling WebSocket message: %v", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Write(writeCtx, websocket.MessageText, data); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			log.Printf("error writing WebSocket message: %v", err)
		}
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, errorMsg string) {
	sendWsMessage(ctx, c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}
