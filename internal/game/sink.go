// internal/game/sink.go
package game

import (
	"context"

	"github.com/rbutcher/fivedice/internal/scoring"
)

// PlayerResult is one player's final line in a finished game.
type PlayerResult struct {
	PersistentID string
	DisplayName  string
	TotalScore   int
	Abandoned    bool
	DidWin       bool
}

// FinishedGame is the record handed to the persistence sink when a session
// ends. It is a detached copy; the sink never sees live session state.
type FinishedGame struct {
	RoomID  string
	Variant scoring.Variant
	Reason  string
	Winner  string
	Players []PlayerResult
}

// Sink receives session lifecycle writes. Calls happen after the in-memory
// mutation and are best-effort: the session logs failures and plays on, it
// never rolls back or retries.
type Sink interface {
	RecordFinishedGame(ctx context.Context, fg FinishedGame) error
	UpdateRoomStatus(ctx context.Context, roomID string, status Status) error
}

// RecordActionFunc publishes a single game action to the out-of-band
// history queue. Implementations must not block the caller meaningfully.
type RecordActionFunc func(roomID, actorID, actionType string, payload map[string]interface{})
