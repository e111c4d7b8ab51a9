// internal/game/session.go
package game

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/rbutcher/fivedice/internal/dice"
	"github.com/rbutcher/fivedice/internal/models"
	"github.com/rbutcher/fivedice/internal/scoring"
)

// Status is the lifecycle phase of a session.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// MaxTurns is the number of full rounds in a game; every player scores each
// of the 13 categories exactly once.
const MaxTurns = 13

// RollsPerTurn is how many rolls a player gets each turn, including the
// opening roll.
const RollsPerTurn = 3

// Session holds the entire authoritative state for one room's game.
//
// All mutation goes through Mu: a player action, a timer expiry, and a
// disconnect notification are each a multi-step read-modify-write, and only
// one of them may be applying at a time. Methods whose names start with a
// lower-case letter assume the lock is already held.
type Session struct {
	RoomID  string
	Variant scoring.Variant

	// Players is in fixed seat order, never reordered after creation.
	Players            []*models.Player
	CurrentPlayerIndex int

	Dice       [dice.Count]dice.Die
	RollsLeft  int
	TurnNumber int
	Status     Status
	Winner     string

	// rolledThisTurn tracks whether the current player has rolled at all
	// this turn; the forced move on timeout synthesizes a roll if not.
	rolledThisTurn bool

	// turnSeq increments on every turn handoff and game end. A timer expiry
	// captured under an older sequence is stale and must be ignored, which
	// is what makes a manual score race-free against a concurrent expiry.
	turnSeq int

	turnSeconds int
	rng         *rand.Rand
	clock       *TurnClock

	Mu sync.Mutex

	// BroadcastFn sends an event to every connected participant. If nil, no
	// broadcast is done.
	BroadcastFn func(ev Event)

	// BroadcastToPlayerFn sends an event to a single connection.
	BroadcastToPlayerFn func(connID uuid.UUID, ev Event)

	// OnGameEnd is invoked once when the session finishes.
	OnGameEnd func(roomID, winner, reason string)

	// OnEmpty is invoked when the last active player is gone and the
	// session should be removed from its registry.
	OnEmpty func(roomID string)

	// Sink receives finished-game records, fire and forget.
	Sink Sink

	// RecordActionFn publishes actions to the history queue, if set.
	RecordActionFn RecordActionFunc
}

// NewSession builds a session for the given seats. The game is not running
// until Begin is called.
func NewSession(roomID string, variant scoring.Variant, players []*models.Player, rng *rand.Rand, clock *TurnClock) *Session {
	for _, p := range players {
		if p.Sheet == nil {
			p.Sheet = scoring.Sheet{}
		}
	}
	return &Session{
		RoomID:      roomID,
		Variant:     variant,
		Players:     players,
		Status:      StatusWaiting,
		turnSeconds: DefaultTurnSeconds,
		rng:         rng,
		clock:       clock,
	}
}

// SetTurnSeconds overrides the per-turn countdown. Zero disables the timer,
// which tests for pure turn logic rely on.
func (s *Session) SetTurnSeconds(secs int) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.turnSeconds = secs
}

// Begin starts the game: first seat plays first, fresh dice, full rolls.
func (s *Session) Begin() {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Status != StatusWaiting {
		log.Printf("room %s: Begin called in status %s, ignoring", s.RoomID, s.Status)
		return
	}
	s.Status = StatusInProgress
	s.TurnNumber = 1
	s.CurrentPlayerIndex = 0
	s.resetTurn()
	s.recordAction("", "game_start", map[string]interface{}{"players": len(s.Players), "variant": string(s.Variant)})

	s.fireEvent(Event{Type: EventGameStarted, State: s.snapshot()})
	s.fireEvent(Event{Type: EventSystemMessage, Message: fmt.Sprintf("Game started. %s plays first.", s.Players[0].DisplayName)})
	s.startTurnTimer()
}

// HandleAction is the single dispatcher for in-game player moves. Illegal
// actions (wrong turn, exhausted rolls, scored category, bad index) are
// silent no-ops: a late or malformed client message must never desync the
// authoritative state, and other participants never hear about it.
func (s *Session) HandleAction(connID uuid.UUID, a models.Action) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Status != StatusInProgress {
		return
	}

	switch a.Type {
	case models.ActionRollDice:
		s.handleRoll(connID)
	case models.ActionToggleDieLock:
		s.handleToggleLock(connID, a.DieIndex)
	case models.ActionChooseScore:
		s.handleChooseScore(connID, a.Category)
	case models.ActionAbandonGame:
		if p := s.playerByConn(connID); p != nil {
			s.markAbandoned(p)
		}
	default:
		log.Printf("room %s: unknown action %q from connection %s", s.RoomID, a.Type, connID)
	}
}

// handleRoll re-rolls the unlocked dice for the current player.
func (s *Session) handleRoll(connID uuid.UUID) {
	p := s.currentPlayerIfActing(connID)
	if p == nil || s.RollsLeft <= 0 {
		return
	}
	dice.RollUnlocked(s.rng, &s.Dice)
	s.RollsLeft--
	s.rolledThisTurn = true
	s.recordAction(p.PersistentID, "roll_dice", map[string]interface{}{"rollsLeft": s.RollsLeft})

	s.fireEvent(Event{Type: EventDiceRolled})
	s.fireEvent(Event{Type: EventGameUpdate, State: s.snapshot()})
}

// handleToggleLock flips one die's lock. Locking never consumes a roll.
func (s *Session) handleToggleLock(connID uuid.UUID, idx int) {
	p := s.currentPlayerIfActing(connID)
	if p == nil || idx < 0 || idx >= dice.Count {
		return
	}
	s.Dice[idx].Locked = !s.Dice[idx].Locked
	s.fireEvent(Event{Type: EventGameUpdate, State: s.snapshot()})
}

// handleChooseScore writes the chosen category and hands the turn over.
func (s *Session) handleChooseScore(connID uuid.UUID, cat scoring.Category) {
	p := s.currentPlayerIfActing(connID)
	if p == nil {
		return
	}
	if !scoring.Allowed(s.Variant, p.Sheet, cat) {
		return
	}
	s.applyScore(p, cat)
	// The pending expiry must not fire for a turn that was just completed
	// manually: cancel the countdown inside this critical section.
	s.cancelTurnTimer()
	s.advanceTurn()
}

// applyScore writes a category score, recomputes the total, and logs it.
// Callers have already validated the write. Assumes lock is held.
func (s *Session) applyScore(p *models.Player, cat scoring.Category) {
	score := scoring.Score(cat, dice.Values(s.Dice))
	p.Sheet[cat] = score
	p.TotalScore = scoring.Total(p.Sheet)
	s.recordAction(p.PersistentID, "choose_score", map[string]interface{}{"category": string(cat), "score": score})
	s.fireEvent(Event{Type: EventSystemMessage, Message: fmt.Sprintf("%s scored %d in %s.", p.DisplayName, score, cat)})
}

// advanceTurn moves to the next active seat, bumps the round counter on
// wrap, resets the dice, and checks for game completion. Assumes lock held.
func (s *Session) advanceTurn() {
	if s.Status != StatusInProgress {
		return
	}
	n := len(s.Players)

	nextIdx := -1
	wrapped := false
	for i := 1; i <= n; i++ {
		cand := (s.CurrentPlayerIndex + i) % n
		if s.Players[cand].Active() {
			nextIdx = cand
			wrapped = s.CurrentPlayerIndex+i >= n
			break
		}
	}
	if nextIdx == -1 {
		// Zero active players left. The registry destroys the session
		// before an all-abandoned state can persist.
		log.Printf("room %s: no active players remain, destroying session", s.RoomID)
		s.destroy()
		return
	}

	s.CurrentPlayerIndex = nextIdx
	if wrapped {
		s.TurnNumber++
	}

	if s.TurnNumber > MaxTurns || s.allActiveSheetsComplete() {
		s.endGame(EndReasonCompleted)
		return
	}

	s.resetTurn()
	s.startTurnTimer()
	cur := s.Players[s.CurrentPlayerIndex]
	s.fireEvent(Event{Type: EventSystemMessage, Message: fmt.Sprintf("It is %s's turn.", cur.DisplayName)})
	s.fireEvent(Event{Type: EventGameUpdate, State: s.snapshot()})
}

// resetTurn gives the incoming player fresh dice and a full roll allowance,
// and advances the turn sequence so any countdown armed for the previous
// turn becomes stale. Assumes lock is held.
func (s *Session) resetTurn() {
	s.turnSeq++
	s.Dice = dice.New(s.rng)
	s.RollsLeft = RollsPerTurn
	s.rolledThisTurn = false
}

// startTurnTimer arms the countdown for the current turn. Assumes lock held.
func (s *Session) startTurnTimer() {
	if s.clock == nil || s.turnSeconds <= 0 {
		return
	}
	seq := s.turnSeq
	s.clock.Start(s.RoomID, time.Duration(s.turnSeconds)*time.Second,
		func(left int) {
			// Ticks run on the countdown goroutine; serialize with player
			// actions before touching session state.
			s.Mu.Lock()
			if s.Status == StatusInProgress && seq == s.turnSeq {
				s.fireEvent(Event{Type: EventTurnTimerUpdate, SecondsLeft: &left})
			}
			s.Mu.Unlock()
		},
		func() {
			s.handleExpiry(seq)
		})
}

// cancelTurnTimer stops the room countdown, if any. Assumes lock is held.
func (s *Session) cancelTurnTimer() {
	if s.clock != nil {
		s.clock.Cancel(s.RoomID)
	}
}

// handleExpiry forces a move for the current player when their countdown
// runs out. seq identifies the turn the countdown was armed for; if the
// turn has since moved on (a manual score won the race), the expiry is
// stale and dropped.
func (s *Session) handleExpiry(seq int) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Status != StatusInProgress || seq != s.turnSeq {
		log.Printf("room %s: stale turn expiry (seq %d, current %d), ignoring", s.RoomID, seq, s.turnSeq)
		return
	}

	p := s.Players[s.CurrentPlayerIndex]
	log.Printf("room %s: turn timer expired for %s", s.RoomID, p.DisplayName)
	s.recordAction(p.PersistentID, "turn_timeout", nil)

	// A player who never rolled still needs dice on the table before a
	// category can be scored: synthesize exactly one roll.
	if !s.rolledThisTurn {
		dice.RollUnlocked(s.rng, &s.Dice)
		s.RollsLeft--
		s.rolledThisTurn = true
		s.fireEvent(Event{Type: EventDiceRolled})
	}

	cat, ok := s.bestCategory(p)
	if !ok {
		// Complete sheet mid-round can only happen for a seat that sat
		// through forced moves; just pass the turn along.
		s.advanceTurn()
		return
	}
	s.applyScore(p, cat)
	s.fireEvent(Event{Type: EventSystemMessage, Message: fmt.Sprintf("%s ran out of time; %s was scored automatically.", p.DisplayName, cat)})
	s.advanceTurn()
}

// bestCategory picks the legal category with the highest score for the
// current dice. Ties go to the first category in enumeration order.
func (s *Session) bestCategory(p *models.Player) (scoring.Category, bool) {
	values := dice.Values(s.Dice)
	best := scoring.Category("")
	bestScore := -1
	for _, cat := range scoring.Eligible(s.Variant, p.Sheet) {
		if sc := scoring.Score(cat, values); sc > bestScore {
			best = cat
			bestScore = sc
		}
	}
	return best, bestScore >= 0
}

// allActiveSheetsComplete reports whether every non-abandoned player has a
// full sheet. Assumes lock is held.
func (s *Session) allActiveSheetsComplete() bool {
	any := false
	for _, p := range s.Players {
		if !p.Active() {
			continue
		}
		any = true
		if !scoring.Complete(p.Sheet) {
			return false
		}
	}
	return any
}

// HandleRejoin rebinds an existing seat to a new connection. The seat is
// matched by persistent identity; a stranger to the game is rejected, since
// an in-progress game cannot take new participants. Abandoned state and
// scores are never reset by a rejoin.
func (s *Session) HandleRejoin(persistentID string, connID uuid.UUID, conn *websocket.Conn, out chan []byte) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	p := s.playerByPersistentID(persistentID)
	if p == nil {
		return fmt.Errorf("no seat for identity %s in room %s", persistentID, s.RoomID)
	}
	p.ConnectionID = connID
	p.Conn = conn
	p.Out = out
	p.Connected = true
	s.recordAction(persistentID, "player_rejoin", nil)
	log.Printf("room %s: %s reconnected", s.RoomID, p.DisplayName)

	// The rejoining client resumes from a full snapshot.
	s.fireEventToPlayer(connID, Event{Type: EventGameUpdate, State: s.snapshot()})
	s.fireEvent(Event{Type: EventSystemMessage, Message: fmt.Sprintf("%s reconnected.", p.DisplayName)})
	return nil
}

// HandleDisconnect processes a dropped connection. In a running game the
// seat is marked abandoned immediately; there is no grace period. A room
// that is no longer in progress lives only as long as someone is still
// connected to it: the last departure hands it back to the registry.
func (s *Session) HandleDisconnect(connID uuid.UUID) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	p := s.playerByConn(connID)
	if p == nil {
		// A stale connection id (the seat already rebound to a newer
		// connection) must not abandon the seat.
		return
	}
	p.Connected = false
	p.Conn = nil
	p.Out = nil
	if s.Status != StatusInProgress {
		if !s.anyConnected() {
			log.Printf("room %s: last participant departed, destroying session", s.RoomID)
			s.destroy()
		}
		return
	}
	log.Printf("room %s: %s disconnected", s.RoomID, p.DisplayName)
	s.markAbandoned(p)
}

// markAbandoned flips a seat to abandoned (monotonic) and reshapes the game
// around it: last player standing wins immediately, an empty table destroys
// the session, and an abandoned current player forfeits the turn. Assumes
// lock is held.
func (s *Session) markAbandoned(p *models.Player) {
	if p.Abandoned {
		return
	}
	p.Abandoned = true
	s.recordAction(p.PersistentID, "player_abandon", nil)
	s.fireEvent(Event{Type: EventSystemMessage, Message: fmt.Sprintf("%s left the game.", p.DisplayName)})

	active := s.activePlayers()
	switch len(active) {
	case 0:
		s.destroy()
		return
	case 1:
		s.endGame(EndReasonAbandon)
		return
	}

	if s.Players[s.CurrentPlayerIndex] == p {
		s.cancelTurnTimer()
		s.advanceTurn()
		return
	}
	s.fireEvent(Event{Type: EventGameUpdate, State: s.snapshot()})
}

// endGame finalizes the session: winner selection, notifications, and the
// fire-and-forget persistence write. Assumes lock is held.
func (s *Session) endGame(reason string) {
	if s.Status == StatusFinished {
		return
	}
	s.Status = StatusFinished
	s.turnSeq++ // Invalidate any in-flight expiry.
	if s.clock != nil {
		s.clock.Cancel(s.RoomID)
	}

	// Winner is the active player with the highest total; ties go to the
	// earliest seat, a left-to-right max reduction.
	var winner *models.Player
	for _, p := range s.Players {
		if !p.Active() {
			continue
		}
		if winner == nil || p.TotalScore > winner.TotalScore {
			winner = p
		}
	}
	if winner != nil {
		s.Winner = winner.DisplayName
	}

	msg := fmt.Sprintf("Game over. %s wins with %d points.", s.Winner, winnerScore(winner))
	if reason == EndReasonAbandon {
		msg = fmt.Sprintf("All other players left. %s wins.", s.Winner)
	}
	log.Printf("room %s: game ended (%s), winner %s", s.RoomID, reason, s.Winner)
	s.recordAction("", "game_end", map[string]interface{}{"winner": s.Winner, "reason": reason})

	s.fireEvent(Event{Type: EventGameUpdate, State: s.snapshot()})
	s.fireEvent(Event{Type: EventGameEnded, Winner: s.Winner, Reason: reason, Message: msg})

	if s.OnGameEnd != nil {
		s.OnGameEnd(s.RoomID, s.Winner, reason)
	}
	if s.Sink != nil {
		fg := s.finishedGame(reason, winner)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Sink.RecordFinishedGame(ctx, fg); err != nil {
				log.Printf("room %s: failed to record finished game: %v", fg.RoomID, err)
			}
			if err := s.Sink.UpdateRoomStatus(ctx, fg.RoomID, StatusFinished); err != nil {
				log.Printf("room %s: failed to update room status: %v", fg.RoomID, err)
			}
		}()
	}
}

func winnerScore(p *models.Player) int {
	if p == nil {
		return 0
	}
	return p.TotalScore
}

// finishedGame detaches a persistence record from live state. Assumes lock
// is held.
func (s *Session) finishedGame(reason string, winner *models.Player) FinishedGame {
	fg := FinishedGame{
		RoomID:  s.RoomID,
		Variant: s.Variant,
		Reason:  reason,
		Winner:  s.Winner,
	}
	for _, p := range s.Players {
		fg.Players = append(fg.Players, PlayerResult{
			PersistentID: p.PersistentID,
			DisplayName:  p.DisplayName,
			TotalScore:   p.TotalScore,
			Abandoned:    p.Abandoned,
			DidWin:       p == winner,
		})
	}
	return fg
}

// destroy tears the session down without declaring a winner. Assumes lock
// is held.
func (s *Session) destroy() {
	s.Status = StatusFinished
	s.turnSeq++
	if s.clock != nil {
		s.clock.Cancel(s.RoomID)
	}
	if s.OnEmpty != nil {
		s.OnEmpty(s.RoomID)
	}
}

// currentPlayerIfActing returns the current player only when the acting
// connection owns the turn and the seat is still active. Assumes lock held.
func (s *Session) currentPlayerIfActing(connID uuid.UUID) *models.Player {
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return nil
	}
	p := s.Players[s.CurrentPlayerIndex]
	if p.ConnectionID != connID || !p.Active() {
		return nil
	}
	return p
}

func (s *Session) playerByConn(connID uuid.UUID) *models.Player {
	for _, p := range s.Players {
		if p.ConnectionID == connID {
			return p
		}
	}
	return nil
}

func (s *Session) playerByPersistentID(id string) *models.Player {
	for _, p := range s.Players {
		if p.PersistentID == id {
			return p
		}
	}
	return nil
}

// anyConnected reports whether any seat still has a live connection.
// Assumes lock is held.
func (s *Session) anyConnected() bool {
	for _, p := range s.Players {
		if p.Connected {
			return true
		}
	}
	return false
}

func (s *Session) activePlayers() []*models.Player {
	var out []*models.Player
	for _, p := range s.Players {
		if p.Active() {
			out = append(out, p)
		}
	}
	return out
}

// fireEvent broadcasts to all participants. Assumes lock is held.
func (s *Session) fireEvent(ev Event) {
	if s.BroadcastFn != nil {
		s.BroadcastFn(ev)
	}
}

// fireEventToPlayer sends to one connection. Assumes lock is held.
func (s *Session) fireEventToPlayer(connID uuid.UUID, ev Event) {
	if s.BroadcastToPlayerFn != nil {
		s.BroadcastToPlayerFn(connID, ev)
	}
}

// recordAction pushes an action onto the history queue, if configured.
// Assumes lock is held.
func (s *Session) recordAction(actorID, actionType string, payload map[string]interface{}) {
	if s.RecordActionFn != nil {
		s.RecordActionFn(s.RoomID, actorID, actionType, payload)
	}
}
