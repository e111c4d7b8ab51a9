// internal/models/player.go
package models

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/rbutcher/fivedice/internal/scoring"
)

// Player is one seat in a game session. The seat is keyed by PersistentID,
// which survives reconnects; ConnectionID identifies the current WebSocket
// connection and is replaced on every rejoin.
type Player struct {
	// ConnectionID is the ephemeral id of the player's live connection.
	// uuid.Nil while the player has no connection.
	ConnectionID uuid.UUID `json:"-"`

	// PersistentID is the stable identity issued by the identity verifier.
	PersistentID string `json:"id"`

	DisplayName string `json:"name"`

	// Sheet holds the scored categories. A written category is final.
	Sheet scoring.Sheet `json:"sheet"`

	// TotalScore is recomputed from Sheet after every write, never mutated
	// independently.
	TotalScore int `json:"totalScore"`

	// Abandoned is monotonic: once true it never resets, even if the same
	// persistent identity reconnects.
	Abandoned bool `json:"abandoned"`

	Conn      *websocket.Conn `json:"-"`
	Connected bool            `json:"connected"`

	// Out carries marshaled outbound events for the live connection, in
	// the order they were fired. A single writer pump per connection
	// drains it, so clients see snapshots in mutation order. Rebound on
	// every rejoin alongside Conn.
	Out chan []byte `json:"-"`
}

// Active reports whether the player still holds a live seat in the game.
func (p *Player) Active() bool {
	return !p.Abandoned
}
