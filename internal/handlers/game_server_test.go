// internal/handlers/game_server_test.go
package handlers

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/rbutcher/fivedice/internal/game"
	"github.com/rbutcher/fivedice/internal/models"
	"github.com/rbutcher/fivedice/internal/scoring"
)

func seatWithQueue(id string, depth int) *models.Player {
	return &models.Player{
		ConnectionID: uuid.New(),
		PersistentID: id,
		DisplayName:  id,
		Sheet:        scoring.Sheet{},
		Connected:    true,
		Out:          make(chan []byte, depth),
	}
}

// TestBroadcastDeliversEventsInMutationOrder fires two events back to back
// under the session lock and checks that each connection's queue holds them
// in that order. Snapshots are the authoritative state, so a reordered
// delivery would leave clients rendering stale truth.
func TestBroadcastDeliversEventsInMutationOrder(t *testing.T) {
	gs := NewGameServer(nil)
	p1 := seatWithQueue("u1", 8)
	p2 := seatWithQueue("u2", 8)
	s := gs.Sessions.Create("ORDER1", []*models.Player{p1, p2}, scoring.VariantClassic)

	s.Mu.Lock()
	s.BroadcastFn(game.Event{Type: game.EventDiceRolled})
	s.BroadcastFn(game.Event{Type: game.EventGameUpdate})
	s.Mu.Unlock()

	for _, p := range []*models.Player{p1, p2} {
		var got []game.EventType
		for i := 0; i < 2; i++ {
			select {
			case data := <-p.Out:
				var ev game.Event
				if err := json.Unmarshal(data, &ev); err != nil {
					t.Fatalf("bad event payload for %s: %v", p.PersistentID, err)
				}
				got = append(got, ev.Type)
			default:
				t.Fatalf("queue for %s holds %d events, want 2", p.PersistentID, i)
			}
		}
		if got[0] != game.EventDiceRolled || got[1] != game.EventGameUpdate {
			t.Fatalf("events for %s out of order: %v", p.PersistentID, got)
		}
	}
}

// TestBroadcastToPlayerTargetsOneQueue checks the single-connection path
// used for reconnect snapshots.
func TestBroadcastToPlayerTargetsOneQueue(t *testing.T) {
	gs := NewGameServer(nil)
	p1 := seatWithQueue("u1", 8)
	p2 := seatWithQueue("u2", 8)
	s := gs.Sessions.Create("ORDER2", []*models.Player{p1, p2}, scoring.VariantClassic)

	s.Mu.Lock()
	s.BroadcastToPlayerFn(p2.ConnectionID, game.Event{Type: game.EventGameUpdate})
	s.Mu.Unlock()

	select {
	case <-p2.Out:
	default:
		t.Fatalf("expected an event on p2's queue")
	}
	select {
	case <-p1.Out:
		t.Fatalf("p1 should not have received a targeted event")
	default:
	}
}

// TestBroadcastNeverBlocksOnFullQueue fills a seat's queue and fires one
// more event; the broadcast must drop it and return rather than stall the
// session under its lock.
func TestBroadcastNeverBlocksOnFullQueue(t *testing.T) {
	gs := NewGameServer(nil)
	p1 := seatWithQueue("u1", 1)
	s := gs.Sessions.Create("FULL01", []*models.Player{p1}, scoring.VariantClassic)

	s.Mu.Lock()
	s.BroadcastFn(game.Event{Type: game.EventDiceRolled})
	s.BroadcastFn(game.Event{Type: game.EventGameUpdate}) // dropped
	s.Mu.Unlock()

	var first game.Event
	if err := json.Unmarshal(<-p1.Out, &first); err != nil {
		t.Fatalf("bad event payload: %v", err)
	}
	if first.Type != game.EventDiceRolled {
		t.Fatalf("expected the first event to survive, got %s", first.Type)
	}
	select {
	case <-p1.Out:
		t.Fatalf("second event should have been dropped")
	default:
	}
}

// TestFinishedSessionLeavesStoreWhenAllDepart plays a game to its end and
// disconnects everyone; the registry must no longer know the room.
func TestFinishedSessionLeavesStoreWhenAllDepart(t *testing.T) {
	gs := NewGameServer(nil)
	p1 := seatWithQueue("u1", 64)
	p2 := seatWithQueue("u2", 64)
	s := gs.Sessions.Create("ROOMX1", []*models.Player{p1, p2}, scoring.VariantClassic)
	s.SetTurnSeconds(0)
	s.Begin()

	s.HandleAction(p2.ConnectionID, models.Action{Type: models.ActionAbandonGame})

	s.Mu.Lock()
	if s.Status != game.StatusFinished {
		s.Mu.Unlock()
		t.Fatalf("expected the game to finish when one player remains")
	}
	s.Mu.Unlock()
	if _, ok := gs.Sessions.Get("ROOMX1"); !ok {
		t.Fatalf("room should survive while participants are connected")
	}

	s.HandleDisconnect(p2.ConnectionID)
	s.HandleDisconnect(p1.ConnectionID)

	if _, ok := gs.Sessions.Get("ROOMX1"); ok {
		t.Fatalf("finished session should be destroyed once all participants depart")
	}
}
