// internal/handlers/game_server.go
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/coder/quartz"
	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/rbutcher/fivedice/internal/cache"
	"github.com/rbutcher/fivedice/internal/game"
	"github.com/rbutcher/fivedice/internal/lobby"
	"github.com/rbutcher/fivedice/internal/models"
	"github.com/rbutcher/fivedice/internal/scoring"
)

// GameServer holds the waiting-room store, the session registry, and the
// shared turn clock, and knows how to wire a new session's callbacks.
type GameServer struct {
	Lobbies   *lobby.Store
	Sessions  game.SessionStore
	TurnClock *game.TurnClock

	Logf func(f string, v ...interface{})
}

// NewGameServer builds the stores and the session factory. sink may be nil
// when no database is configured; sessions then simply skip persistence.
func NewGameServer(sink game.Sink) *GameServer {
	gs := &GameServer{
		Lobbies:   lobby.NewStore(),
		TurnClock: game.NewTurnClock(quartz.NewReal()),
		Logf:      log.Printf,
	}

	turnSecs := game.DefaultTurnSeconds
	if v := os.Getenv("TURN_TIMER_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			turnSecs = n
		}
	}

	gs.Sessions = game.NewMemoryStore(func(roomID string, players []*models.Player, variant scoring.Variant) *game.Session {
		s := game.NewSession(roomID, variant, players,
			rand.New(rand.NewSource(time.Now().UnixNano())), gs.TurnClock)
		s.SetTurnSeconds(turnSecs)
		s.BroadcastFn = broadcastFunc(s)
		s.BroadcastToPlayerFn = broadcastToPlayerFunc(s)
		s.Sink = sink
		s.RecordActionFn = recordAction
		s.OnEmpty = func(roomID string) {
			gs.Sessions.Remove(roomID)
		}
		s.OnGameEnd = func(roomID, winner, reason string) {
			gs.Logf("room %s finished: winner=%s reason=%s", roomID, winner, reason)
		}
		return s
	})
	return gs
}

// broadcastFunc returns a function suitable for Session.BroadcastFn. It is
// invoked with the session lock held on the mutating goroutine, so reading
// Players directly is safe. Events are enqueued synchronously onto each
// connection's out queue while the lock is held; that is what keeps the
// delivered snapshots in mutation order. The per-connection pump does the
// actual socket I/O, so the critical section never blocks on the network.
func broadcastFunc(s *game.Session) func(ev game.Event) {
	return func(ev game.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("room %s: failed to marshal event %s: %v", s.RoomID, ev.Type, err)
			return
		}
		for _, p := range s.Players {
			enqueueEvent(s.RoomID, p, ev.Type, data)
		}
	}
}

// broadcastToPlayerFunc returns a function suitable for
// Session.BroadcastToPlayerFn. Same locking and ordering contract as
// broadcastFunc.
func broadcastToPlayerFunc(s *game.Session) func(connID uuid.UUID, ev game.Event) {
	return func(connID uuid.UUID, ev game.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("room %s: failed to marshal event %s: %v", s.RoomID, ev.Type, err)
			return
		}
		for _, p := range s.Players {
			if p.ConnectionID == connID {
				enqueueEvent(s.RoomID, p, ev.Type, data)
				return
			}
		}
	}
}

// enqueueEvent pushes one marshaled event onto a seat's out queue without
// blocking. A full queue means the pump is not keeping up; dropping is
// preferable to stalling the session under its lock.
func enqueueEvent(roomID string, p *models.Player, evType game.EventType, data []byte) {
	if !p.Connected || p.Out == nil {
		return
	}
	select {
	case p.Out <- data:
	default:
		log.Printf("room %s: out queue full for %s, dropped %s", roomID, p.PersistentID, evType)
	}
}

// gameEventPump drains a connection's out queue onto the socket, one write
// at a time. One pump per connection; it exits with the connection's
// context.
func gameEventPump(ctx context.Context, c *websocket.Conn, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-out:
			writeWithTimeout(c, data)
		}
	}
}

func writeWithTimeout(c *websocket.Conn, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, data); err != nil {
		log.Printf("websocket write failed: %v", err)
	}
}

// recordAction ships one action to the historian queue, fire and forget.
func recordAction(roomID, actorID, actionType string, payload map[string]interface{}) {
	rec := cache.ActionRecord{
		RoomID:        roomID,
		ActorID:       actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.PublishAction(ctx, rec); err != nil {
			log.Printf("room %s: failed to publish action %s: %v", roomID, actionType, err)
		}
	}()
}
