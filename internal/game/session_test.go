// internal/game/session_test.go
package game

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbutcher/fivedice/internal/dice"
	"github.com/rbutcher/fivedice/internal/models"
	"github.com/rbutcher/fivedice/internal/scoring"
)

// mockBroadcaster captures events fired by a session so tests can assert on
// what clients would have seen.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []Event
	playerEvents map[uuid.UUID][]Event
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{playerEvents: make(map[uuid.UUID][]Event)}
}

func (m *mockBroadcaster) broadcast(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allEvents = append(m.allEvents, ev)
}

func (m *mockBroadcaster) broadcastTo(connID uuid.UUID, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playerEvents[connID] = append(m.playerEvents[connID], ev)
}

func (m *mockBroadcaster) eventsOfType(t EventType) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.allEvents {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (m *mockBroadcaster) countType(t EventType) int {
	return len(m.eventsOfType(t))
}

func (m *mockBroadcaster) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allEvents = nil
	m.playerEvents = make(map[uuid.UUID][]Event)
}

// newTestSession builds a session with n seated players, a fixed rng seed,
// and the turn timer disabled so tests exercise pure turn logic.
func newTestSession(n int, variant scoring.Variant) (*Session, *mockBroadcaster) {
	players := make([]*models.Player, n)
	for i := range players {
		players[i] = &models.Player{
			ConnectionID: uuid.New(),
			PersistentID: fmt.Sprintf("user-%d", i),
			DisplayName:  fmt.Sprintf("Player%d", i+1),
			Sheet:        scoring.Sheet{},
			Connected:    true,
		}
	}
	s := NewSession("TEST01", variant, players, rand.New(rand.NewSource(1)), nil)
	s.SetTurnSeconds(0)
	mb := newMockBroadcaster()
	s.BroadcastFn = mb.broadcast
	s.BroadcastToPlayerFn = mb.broadcastTo
	return s, mb
}

// emptyCategory returns the first category the player has not scored yet.
func emptyCategory(p *models.Player) scoring.Category {
	for _, cat := range scoring.Categories {
		if _, ok := p.Sheet[cat]; !ok {
			return cat
		}
	}
	return ""
}

func TestBeginStartsFirstTurn(t *testing.T) {
	s, mb := newTestSession(2, scoring.VariantClassic)
	s.Begin()

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Equal(t, StatusInProgress, s.Status)
	assert.Equal(t, 0, s.CurrentPlayerIndex)
	assert.Equal(t, 1, s.TurnNumber)
	assert.Equal(t, RollsPerTurn, s.RollsLeft)
	for _, d := range s.Dice {
		assert.False(t, d.Locked)
		assert.GreaterOrEqual(t, d.Value, 1)
		assert.LessOrEqual(t, d.Value, 6)
	}
	assert.Equal(t, 1, mb.countType(EventGameStarted))
}

func TestBeginTwiceIsNoOp(t *testing.T) {
	s, mb := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	mb.clear()
	s.Begin()

	assert.Equal(t, 0, mb.countType(EventGameStarted))
	s.Mu.Lock()
	assert.Equal(t, 1, s.TurnNumber)
	s.Mu.Unlock()
}

func TestRollConsumesRollsAndStopsAtZero(t *testing.T) {
	s, mb := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p1 := s.Players[0]

	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionRollDice})
	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionRollDice})
	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionRollDice})

	s.Mu.Lock()
	assert.Equal(t, 0, s.RollsLeft)
	s.Mu.Unlock()
	assert.Equal(t, 3, mb.countType(EventDiceRolled))

	// A fourth roll is a silent no-op.
	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionRollDice})
	s.Mu.Lock()
	assert.Equal(t, 0, s.RollsLeft)
	s.Mu.Unlock()
	assert.Equal(t, 3, mb.countType(EventDiceRolled))
}

func TestRollOutOfTurnIsNoOp(t *testing.T) {
	s, mb := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p2 := s.Players[1]

	s.HandleAction(p2.ConnectionID, models.Action{Type: models.ActionRollDice})

	s.Mu.Lock()
	assert.Equal(t, RollsPerTurn, s.RollsLeft)
	s.Mu.Unlock()
	assert.Equal(t, 0, mb.countType(EventDiceRolled))
}

func TestLockedDiceSurviveRolls(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p1 := s.Players[0]

	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionToggleDieLock, DieIndex: 0})
	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionToggleDieLock, DieIndex: 4})

	s.Mu.Lock()
	v0, v4 := s.Dice[0].Value, s.Dice[4].Value
	s.Mu.Unlock()

	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionRollDice})
	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionRollDice})

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Equal(t, v0, s.Dice[0].Value)
	assert.Equal(t, v4, s.Dice[4].Value)
	assert.Equal(t, 1, s.RollsLeft, "locking never consumes a roll")
}

func TestToggleLockBadIndexIsNoOp(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p1 := s.Players[0]

	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionToggleDieLock, DieIndex: -1})
	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionToggleDieLock, DieIndex: 5})

	s.Mu.Lock()
	defer s.Mu.Unlock()
	for _, d := range s.Dice {
		assert.False(t, d.Locked)
	}
}

func TestChooseScorePassesTurnWithinRound(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p1 := s.Players[0]

	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionChooseScore, Category: scoring.CategoryChance})

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Equal(t, 1, s.CurrentPlayerIndex)
	assert.Equal(t, 1, s.TurnNumber, "round counter only moves when play wraps to the first seat")
	assert.Equal(t, RollsPerTurn, s.RollsLeft, "incoming player gets a full allowance")
	assert.Contains(t, p1.Sheet, scoring.CategoryChance)
	assert.Equal(t, scoring.Total(p1.Sheet), p1.TotalScore)
}

func TestChooseScoreComputesFromCurrentDice(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p1 := s.Players[0]

	s.Mu.Lock()
	vals := []int{1, 1, 1, 2, 3}
	for i := range s.Dice {
		s.Dice[i] = dice.Die{Value: vals[i]}
	}
	s.Mu.Unlock()

	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionChooseScore, Category: scoring.CategoryOnes})

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Equal(t, 3, p1.Sheet[scoring.CategoryOnes])
	assert.Equal(t, 3, p1.TotalScore)
	assert.Equal(t, 1, s.CurrentPlayerIndex)
	assert.Equal(t, 1, s.TurnNumber)
}

func TestTurnNumberIncrementsOnWrap(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantClassic)
	s.Begin()

	s.HandleAction(s.Players[0].ConnectionID, models.Action{Type: models.ActionChooseScore, Category: scoring.CategoryChance})
	s.HandleAction(s.Players[1].ConnectionID, models.Action{Type: models.ActionChooseScore, Category: scoring.CategoryChance})

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Equal(t, 0, s.CurrentPlayerIndex)
	assert.Equal(t, 2, s.TurnNumber)
}

func TestScoredCategoryStaysFinal(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p1, p2 := s.Players[0], s.Players[1]

	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionChooseScore, Category: scoring.CategoryChance})
	first := p1.Sheet[scoring.CategoryChance]
	s.HandleAction(p2.ConnectionID, models.Action{Type: models.ActionChooseScore, Category: scoring.CategoryChance})

	// Back on p1's turn; rewriting chance is rejected and the turn stays put.
	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionChooseScore, Category: scoring.CategoryChance})

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Equal(t, 0, s.CurrentPlayerIndex)
	assert.Equal(t, first, p1.Sheet[scoring.CategoryChance])
	assert.Len(t, p1.Sheet, 1)
}

func TestAscendingVariantRejectsOutOfOrderScore(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantAscending)
	s.Begin()
	p1 := s.Players[0]

	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionChooseScore, Category: scoring.CategoryChance})
	s.Mu.Lock()
	assert.Empty(t, p1.Sheet)
	assert.Equal(t, 0, s.CurrentPlayerIndex)
	s.Mu.Unlock()

	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionChooseScore, Category: scoring.CategoryOnes})
	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Contains(t, p1.Sheet, scoring.CategoryOnes)
	assert.Equal(t, 1, s.CurrentPlayerIndex)
}

func TestAbandonLeavingOnePlayerEndsGame(t *testing.T) {
	s, mb := newTestSession(2, scoring.VariantClassic)
	ended := 0
	s.OnGameEnd = func(roomID, winner, reason string) { ended++ }
	s.Begin()
	p1, p2 := s.Players[0], s.Players[1]

	s.HandleAction(p2.ConnectionID, models.Action{Type: models.ActionAbandonGame})

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Equal(t, StatusFinished, s.Status)
	assert.Equal(t, p1.DisplayName, s.Winner)
	assert.True(t, p2.Abandoned)
	assert.Equal(t, 1, ended)

	evs := mb.eventsOfType(EventGameEnded)
	require.Len(t, evs, 1)
	assert.Equal(t, EndReasonAbandon, evs[0].Reason)
}

func TestAbandonByCurrentPlayerPassesTurn(t *testing.T) {
	s, _ := newTestSession(3, scoring.VariantClassic)
	s.Begin()
	p1 := s.Players[0]

	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionAbandonGame})

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Equal(t, StatusInProgress, s.Status)
	assert.Equal(t, 1, s.CurrentPlayerIndex)
	assert.True(t, p1.Abandoned)
}

func TestAbandonedSeatIsSkippedOnLaterRounds(t *testing.T) {
	s, _ := newTestSession(3, scoring.VariantClassic)
	s.Begin()

	// Middle seat leaves while p1 holds the turn.
	s.HandleAction(s.Players[1].ConnectionID, models.Action{Type: models.ActionAbandonGame})
	s.HandleAction(s.Players[0].ConnectionID, models.Action{Type: models.ActionChooseScore, Category: scoring.CategoryChance})

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Equal(t, 2, s.CurrentPlayerIndex, "play skips the abandoned seat")
	assert.Equal(t, 1, s.TurnNumber)
}

func TestAbandonAfterGameFinishedIsNoOp(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantClassic)
	var removed []string
	s.OnEmpty = func(roomID string) { removed = append(removed, roomID) }
	s.Begin()

	s.HandleAction(s.Players[0].ConnectionID, models.Action{Type: models.ActionAbandonGame})
	s.HandleAction(s.Players[1].ConnectionID, models.Action{Type: models.ActionAbandonGame})

	// The second abandon arrived after the game already finished, so the
	// winner from the first abandon stands. Both players are still
	// connected, so the room stays registered for them to see the result.
	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Equal(t, StatusFinished, s.Status)
	assert.Empty(t, removed)
	assert.Equal(t, s.Players[1].DisplayName, s.Winner)
}

func TestFinishedSessionDestroyedOnceAllDepart(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantClassic)
	var removed []string
	s.OnEmpty = func(roomID string) { removed = append(removed, roomID) }
	s.Begin()
	p1, p2 := s.Players[0], s.Players[1]

	s.HandleAction(p2.ConnectionID, models.Action{Type: models.ActionAbandonGame})
	s.Mu.Lock()
	require.Equal(t, StatusFinished, s.Status)
	s.Mu.Unlock()

	// The winner is still looking at the result screen; the room stays.
	s.HandleDisconnect(p2.ConnectionID)
	assert.Empty(t, removed)

	// The last connection leaving hands the room back to the registry.
	s.HandleDisconnect(p1.ConnectionID)
	assert.Equal(t, []string{"TEST01"}, removed)
}

func TestRejoinRebindsSeat(t *testing.T) {
	s, mb := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p1 := s.Players[0]

	newConn := uuid.New()
	err := s.HandleRejoin(p1.PersistentID, newConn, nil, nil)
	require.NoError(t, err)

	s.Mu.Lock()
	assert.Equal(t, newConn, p1.ConnectionID)
	assert.True(t, p1.Connected)
	s.Mu.Unlock()

	// The rejoining connection received a private full snapshot.
	mb.mu.Lock()
	evs := mb.playerEvents[newConn]
	mb.mu.Unlock()
	require.NotEmpty(t, evs)
	assert.Equal(t, EventGameUpdate, evs[0].Type)
	require.NotNil(t, evs[0].State)

	// The rebound connection owns the turn.
	s.HandleAction(newConn, models.Action{Type: models.ActionRollDice})
	s.Mu.Lock()
	assert.Equal(t, RollsPerTurn-1, s.RollsLeft)
	s.Mu.Unlock()
}

func TestRejoinStrangerIsRejected(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantClassic)
	s.Begin()

	err := s.HandleRejoin("user-99", uuid.New(), nil, nil)
	assert.Error(t, err)
}

func TestRejoinNeverResetsAbandoned(t *testing.T) {
	s, _ := newTestSession(3, scoring.VariantClassic)
	s.Begin()
	p2 := s.Players[1]

	s.HandleAction(p2.ConnectionID, models.Action{Type: models.ActionAbandonGame})
	require.NoError(t, s.HandleRejoin(p2.PersistentID, uuid.New(), nil, nil))

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.True(t, p2.Abandoned, "abandonment is permanent for the game")
	assert.True(t, p2.Connected, "the seat may still spectate")
}

func TestDisconnectMarksAbandonedDuringGame(t *testing.T) {
	s, _ := newTestSession(3, scoring.VariantClassic)
	s.Begin()
	p3 := s.Players[2]

	s.HandleDisconnect(p3.ConnectionID)

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.True(t, p3.Abandoned)
	assert.False(t, p3.Connected)
	assert.Equal(t, StatusInProgress, s.Status)
}

func TestDisconnectWithStaleConnectionIDIsNoOp(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p1 := s.Players[0]
	oldConn := p1.ConnectionID

	require.NoError(t, s.HandleRejoin(p1.PersistentID, uuid.New(), nil, nil))
	s.HandleDisconnect(oldConn)

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.False(t, p1.Abandoned, "the old connection no longer speaks for the seat")
	assert.True(t, p1.Connected)
}

func TestActionsIgnoredAfterGameEnds(t *testing.T) {
	s, mb := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p1 := s.Players[0]

	s.HandleAction(s.Players[1].ConnectionID, models.Action{Type: models.ActionAbandonGame})
	mb.clear()

	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionRollDice})
	assert.Equal(t, 0, mb.countType(EventDiceRolled))
}

func TestFullGameCompletesAfterThirteenRounds(t *testing.T) {
	s, mb := newTestSession(2, scoring.VariantClassic)
	s.Begin()

	for i := 0; i < 2*MaxTurns; i++ {
		s.Mu.Lock()
		require.Equal(t, StatusInProgress, s.Status, "game ended early at move %d", i)
		cur := s.Players[s.CurrentPlayerIndex]
		cat := emptyCategory(cur)
		conn := cur.ConnectionID
		s.Mu.Unlock()
		require.NotEqual(t, scoring.Category(""), cat)

		s.HandleAction(conn, models.Action{Type: models.ActionRollDice})
		s.HandleAction(conn, models.Action{Type: models.ActionChooseScore, Category: cat})
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Equal(t, StatusFinished, s.Status)
	for _, p := range s.Players {
		assert.Len(t, p.Sheet, len(scoring.Categories))
		assert.Equal(t, scoring.Total(p.Sheet), p.TotalScore)
	}

	evs := mb.eventsOfType(EventGameEnded)
	require.Len(t, evs, 1)
	assert.Equal(t, EndReasonCompleted, evs[0].Reason)

	// The declared winner holds the highest total.
	var best int
	for _, p := range s.Players {
		if p.TotalScore > best {
			best = p.TotalScore
		}
	}
	for _, p := range s.Players {
		if p.DisplayName == s.Winner {
			assert.Equal(t, best, p.TotalScore)
		}
	}
}

func TestWinnerTieGoesToEarliestSeat(t *testing.T) {
	s, _ := newTestSession(3, scoring.VariantClassic)
	s.Begin()

	s.Mu.Lock()
	s.Players[0].TotalScore = 150
	s.Players[1].TotalScore = 200
	s.Players[2].TotalScore = 200
	s.endGame(EndReasonCompleted)
	winner := s.Winner
	s.Mu.Unlock()

	assert.Equal(t, s.Players[1].DisplayName, winner)
}

func TestForcedMoveOnExpiryWithoutRoll(t *testing.T) {
	s, mb := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p1 := s.Players[0]
	s.Mu.Lock()
	seq := s.turnSeq
	s.Mu.Unlock()

	// Simulate the countdown firing for the opening turn: the player never
	// rolled, so exactly one roll is synthesized before scoring.
	s.handleExpiry(seq)

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Len(t, p1.Sheet, 1)
	assert.Equal(t, 1, s.CurrentPlayerIndex)
	assert.Equal(t, 1, mb.countType(EventDiceRolled))
	assert.Equal(t, scoring.Total(p1.Sheet), p1.TotalScore)
}

func TestForcedMovePicksHighestScoringCategory(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p1 := s.Players[0]

	// Roll once so the expiry path does not synthesize a roll over the
	// fixed dice planted below.
	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionRollDice})
	s.Mu.Lock()
	for i := range s.Dice {
		s.Dice[i] = dice.Die{Value: 6}
	}
	seq := s.turnSeq
	s.Mu.Unlock()

	s.handleExpiry(seq)

	s.Mu.Lock()
	defer s.Mu.Unlock()
	require.Len(t, p1.Sheet, 1)
	assert.Equal(t, 50, p1.Sheet[scoring.CategoryFiveOfAKind])
}

func TestForcedMoveTieGoesToFirstCategoryInOrder(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p1 := s.Players[0]

	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionRollDice})
	s.Mu.Lock()
	// three_of_a_kind and chance both score 13 here; enumeration order
	// breaks the tie.
	vals := []int{2, 2, 2, 3, 4}
	for i := range s.Dice {
		s.Dice[i] = dice.Die{Value: vals[i]}
	}
	seq := s.turnSeq
	s.Mu.Unlock()

	s.handleExpiry(seq)

	s.Mu.Lock()
	defer s.Mu.Unlock()
	require.Len(t, p1.Sheet, 1)
	assert.Equal(t, 13, p1.Sheet[scoring.CategoryThreeOfAKind])
}

func TestStaleExpiryIsIgnored(t *testing.T) {
	s, _ := newTestSession(2, scoring.VariantClassic)
	s.Begin()
	p1 := s.Players[0]
	s.Mu.Lock()
	seq := s.turnSeq
	s.Mu.Unlock()

	// A manual score completes the turn first.
	s.HandleAction(p1.ConnectionID, models.Action{Type: models.ActionChooseScore, Category: scoring.CategoryChance})

	// The countdown armed for the old turn fires late; its sequence no
	// longer matches and nothing changes.
	s.handleExpiry(seq)

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Len(t, p1.Sheet, 1)
	assert.Empty(t, s.Players[1].Sheet)
	assert.Equal(t, 1, s.CurrentPlayerIndex)
}
