// internal/lobby/lobby.go
package lobby

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/rbutcher/fivedice/internal/models"
	"github.com/rbutcher/fivedice/internal/scoring"
)

// Seat limits for a room.
const (
	MinPlayers = 2
	MaxPlayers = 8
)

// Member is a single user's presence in a waiting room.
type Member struct {
	PersistentID string
	DisplayName  string

	// ConnID is the ephemeral id of the member's live connection.
	ConnID uuid.UUID
	Conn   *websocket.Conn

	Cancel  func()
	OutChan chan map[string]interface{}

	// GameOut is the connection's game-phase event queue, created with
	// the connection and handed to the player seat at start.
	GameOut chan []byte

	IsHost bool
}

// Write pushes a message onto the member's out channel without blocking.
// Dropped messages are logged; the write pump owns actual delivery.
func (m *Member) Write(msg map[string]interface{}) {
	select {
	case m.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		log.Printf("lobby: out channel for %s full or closed, dropped %q", m.PersistentID, msgType)
	}
}

// WriteError is a convenience to send an error object.
func (m *Member) WriteError(msg string) {
	m.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}

// Lobby is the WAITING phase of a room: a roster of connected users who
// have not started playing yet. Seat order for the eventual game is join
// order, fixed once the game starts.
type Lobby struct {
	Code    string
	HostID  string
	Variant scoring.Variant

	// members is keyed by persistent identity; order preserves join order.
	members map[string]*Member
	order   []string

	Started      bool
	LastActivity time.Time

	// OnEmpty is called after the last member leaves, so the store can
	// drop the room.
	OnEmpty func(code string)

	Mu sync.Mutex
}

// New creates an empty waiting room.
func New(code, hostID string, variant scoring.Variant) *Lobby {
	return &Lobby{
		Code:         code,
		HostID:       hostID,
		Variant:      variant,
		members:      make(map[string]*Member),
		LastActivity: time.Now(),
	}
}

// AddMember seats a user in the waiting room, or rebinds their connection
// if the same identity is already present. Full rooms and started rooms
// reject new identities.
func (l *Lobby) AddMember(m *Member) error {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	if existing, ok := l.members[m.PersistentID]; ok {
		existing.ConnID = m.ConnID
		existing.Conn = m.Conn
		existing.OutChan = m.OutChan
		existing.GameOut = m.GameOut
		existing.Cancel = m.Cancel
		existing.DisplayName = m.DisplayName
		l.touch()
		return nil
	}
	if l.Started {
		return fmt.Errorf("room %s has already started", l.Code)
	}
	if len(l.members) >= MaxPlayers {
		return fmt.Errorf("room %s is full", l.Code)
	}
	m.IsHost = m.PersistentID == l.HostID
	l.members[m.PersistentID] = m
	l.order = append(l.order, m.PersistentID)
	l.touch()
	return nil
}

// RemoveByConn drops the member bound to the given connection. A stale
// connection id (already replaced by a rejoin) removes nobody. Returns
// whether a member was removed.
func (l *Lobby) RemoveByConn(connID uuid.UUID) bool {
	l.Mu.Lock()
	var removed bool
	for id, m := range l.members {
		if m.ConnID == connID {
			delete(l.members, id)
			for i, oid := range l.order {
				if oid == id {
					l.order = append(l.order[:i], l.order[i+1:]...)
					break
				}
			}
			removed = true
			break
		}
	}
	empty := len(l.members) == 0
	l.touch()
	onEmpty := l.OnEmpty
	l.Mu.Unlock()

	if removed {
		l.BroadcastRoomUpdate()
	}
	if empty && onEmpty != nil {
		onEmpty(l.Code)
	}
	return removed
}

// MemberCount returns the current roster size.
func (l *Lobby) MemberCount() int {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	return len(l.members)
}

// Broadcast sends msg to every member.
func (l *Lobby) Broadcast(msg map[string]interface{}) {
	l.Mu.Lock()
	members := make([]*Member, 0, len(l.members))
	for _, m := range l.members {
		members = append(members, m)
	}
	l.Mu.Unlock()
	for _, m := range members {
		m.Write(msg)
	}
}

// BroadcastRoomUpdate pushes the current roster to every member.
func (l *Lobby) BroadcastRoomUpdate() {
	l.Broadcast(map[string]interface{}{
		"type":    "room_update",
		"members": l.MemberList(),
		"started": l.IsStarted(),
	})
}

// MemberInfo is the public roster entry for room_update messages.
type MemberInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Host bool   `json:"host"`
}

// MemberList returns the roster in join order.
func (l *Lobby) MemberList() []MemberInfo {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	out := make([]MemberInfo, 0, len(l.order))
	for _, id := range l.order {
		m, ok := l.members[id]
		if !ok {
			continue
		}
		out = append(out, MemberInfo{ID: m.PersistentID, Name: m.DisplayName, Host: m.IsHost})
	}
	return out
}

// IsStarted reports whether the room's game has been started.
func (l *Lobby) IsStarted() bool {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	return l.Started
}

// StartSeats marks the room started and returns the player seats in join
// order, ready to hand to a game session. Fails below the player minimum
// or on a second start.
func (l *Lobby) StartSeats() ([]*models.Player, error) {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	if l.Started {
		return nil, fmt.Errorf("room %s has already started", l.Code)
	}
	if len(l.members) < MinPlayers {
		return nil, fmt.Errorf("room %s needs at least %d players", l.Code, MinPlayers)
	}
	l.Started = true
	l.touch()
	seats := make([]*models.Player, 0, len(l.order))
	for _, id := range l.order {
		m := l.members[id]
		seats = append(seats, &models.Player{
			ConnectionID: m.ConnID,
			Conn:         m.Conn,
			Out:          m.GameOut,
			PersistentID: m.PersistentID,
			DisplayName:  m.DisplayName,
			Sheet:        scoring.Sheet{},
			Connected:    true,
		})
	}
	return seats, nil
}

// touch refreshes the idle clock used by the store's sweeper. Assumes lock
// is held.
func (l *Lobby) touch() {
	l.LastActivity = time.Now()
}
