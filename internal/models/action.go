// internal/models/action.go
package models

import "github.com/rbutcher/fivedice/internal/scoring"

// ActionType is the closed set of in-game moves a player can make. Lobby
// traffic (join, ready, start) never reaches the session dispatcher, so it
// is not part of this union.
type ActionType string

const (
	ActionRollDice      ActionType = "roll_dice"
	ActionToggleDieLock ActionType = "toggle_die_lock"
	ActionChooseScore   ActionType = "choose_score"
	ActionAbandonGame   ActionType = "abandon_game"
)

// Valid reports whether t is a known in-game action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionRollDice, ActionToggleDieLock, ActionChooseScore, ActionAbandonGame:
		return true
	}
	return false
}

// Action is a single player move, dispatched through one session entry
// point. Only the field relevant to the action type is meaningful.
type Action struct {
	Type     ActionType       `json:"type"`
	DieIndex int              `json:"dieIndex,omitempty"`
	Category scoring.Category `json:"category,omitempty"`
}
