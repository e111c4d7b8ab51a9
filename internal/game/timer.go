// internal/game/timer.go
package game

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// DefaultTurnSeconds is how long a player has to finish a turn before the
// session forces a move for them.
const DefaultTurnSeconds = 90

// TurnClock runs at most one countdown per room. Remaining time is computed
// from the stored deadline on each tick rather than by counting ticks, so
// scheduler jitter cannot skew the countdown. The quartz clock is injected
// so tests can drive time manually.
type TurnClock struct {
	clock quartz.Clock

	mu    sync.Mutex
	rooms map[string]chan struct{}
}

// NewTurnClock builds a TurnClock on the given quartz clock. Pass
// quartz.NewReal() in production.
func NewTurnClock(clock quartz.Clock) *TurnClock {
	return &TurnClock{
		clock: clock,
		rooms: make(map[string]chan struct{}),
	}
}

// Start begins a countdown for roomID, replacing any countdown already
// running for that room. onTick fires roughly once per second with the whole
// seconds remaining; onExpire fires once when the deadline passes. Both run
// on the countdown goroutine, so implementations must do their own locking.
func (tc *TurnClock) Start(roomID string, d time.Duration, onTick func(secondsLeft int), onExpire func()) {
	stop := make(chan struct{})
	deadline := tc.clock.Now().Add(d)

	tc.mu.Lock()
	if prev, ok := tc.rooms[roomID]; ok {
		close(prev)
	}
	tc.rooms[roomID] = stop
	tc.mu.Unlock()

	go func() {
		ticker := tc.clock.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				left := int(deadline.Sub(now) / time.Second)
				if left <= 0 {
					tc.clear(roomID, stop)
					onExpire()
					return
				}
				if onTick != nil {
					onTick(left)
				}
			}
		}
	}()
}

// Cancel stops the countdown for roomID, if one is running. Cancelling a
// room with no countdown is a no-op.
func (tc *TurnClock) Cancel(roomID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if stop, ok := tc.rooms[roomID]; ok {
		close(stop)
		delete(tc.rooms, roomID)
	}
}

// clear removes the room entry only if it still belongs to this countdown,
// so an expiry never cancels a newer countdown started for the same room.
func (tc *TurnClock) clear(roomID string, stop chan struct{}) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if cur, ok := tc.rooms[roomID]; ok && cur == stop {
		delete(tc.rooms, roomID)
	}
}
