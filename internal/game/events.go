// internal/game/events.go
package game

import (
	"github.com/rbutcher/fivedice/internal/dice"
	"github.com/rbutcher/fivedice/internal/models"
	"github.com/rbutcher/fivedice/internal/scoring"
)

// EventType enumerates the notifications a session can emit to clients.
type EventType string

const (
	EventGameStarted     EventType = "game_started"
	EventGameUpdate      EventType = "game_update"
	EventGameEnded       EventType = "game_ended"
	EventSystemMessage   EventType = "system_message"
	EventTurnTimerUpdate EventType = "turn_timer_update"

	// EventDiceRolled is an animation cue only; the authoritative dice
	// values travel in the accompanying game_update snapshot.
	EventDiceRolled EventType = "dice_rolled"
)

// EndReason says why a game ended.
const (
	EndReasonCompleted = "completed"
	EndReasonAbandon   = "abandon"
)

// Event is the wire shape of an outbound session notification. Fields are
// populated per event type and omitted otherwise.
type Event struct {
	Type    EventType `json:"type"`
	State   *Snapshot `json:"state,omitempty"`
	Winner  string    `json:"winner,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Message string    `json:"message,omitempty"`

	// SecondsLeft is set on turn_timer_update.
	SecondsLeft *int `json:"secondsLeft,omitempty"`
}

// PlayerSnapshot is the public view of one seat.
type PlayerSnapshot struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Sheet      scoring.Sheet `json:"sheet"`
	TotalScore int           `json:"totalScore"`
	Abandoned  bool          `json:"abandoned"`
	Connected  bool          `json:"connected"`
}

// Snapshot is the full authoritative session state sent to clients on every
// mutation and on reconnect. Nothing in the session is hidden information,
// so every participant receives the same snapshot.
type Snapshot struct {
	RoomID             string               `json:"roomId"`
	Variant            scoring.Variant      `json:"variant"`
	Status             Status               `json:"status"`
	Players            []PlayerSnapshot     `json:"players"`
	CurrentPlayerIndex int                  `json:"currentPlayerIndex"`
	CurrentPlayer      string               `json:"currentPlayer"`
	Dice               [dice.Count]dice.Die `json:"dice"`
	RollsLeft          int                  `json:"rollsLeft"`
	TurnNumber         int                  `json:"turnNumber"`
	Winner             string               `json:"winner,omitempty"`
}

// snapshot builds a Snapshot from the current state. Assumes lock is held.
func (s *Session) snapshot() *Snapshot {
	snap := &Snapshot{
		RoomID:             s.RoomID,
		Variant:            s.Variant,
		Status:             s.Status,
		Players:            make([]PlayerSnapshot, 0, len(s.Players)),
		CurrentPlayerIndex: s.CurrentPlayerIndex,
		Dice:               s.Dice,
		RollsLeft:          s.RollsLeft,
		TurnNumber:         s.TurnNumber,
		Winner:             s.Winner,
	}
	if s.CurrentPlayerIndex >= 0 && s.CurrentPlayerIndex < len(s.Players) {
		snap.CurrentPlayer = s.Players[s.CurrentPlayerIndex].PersistentID
	}
	for _, p := range s.Players {
		snap.Players = append(snap.Players, snapshotPlayer(p))
	}
	return snap
}

func snapshotPlayer(p *models.Player) PlayerSnapshot {
	sheet := make(scoring.Sheet, len(p.Sheet))
	for cat, v := range p.Sheet {
		sheet[cat] = v
	}
	return PlayerSnapshot{
		ID:         p.PersistentID,
		Name:       p.DisplayName,
		Sheet:      sheet,
		TotalScore: p.TotalScore,
		Abandoned:  p.Abandoned,
		Connected:  p.Connected,
	}
}
