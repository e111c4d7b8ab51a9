// internal/lobby/store.go
package lobby

import (
	"crypto/rand"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/rbutcher/fivedice/internal/scoring"
)

// Store manages the waiting rooms in memory with thread-safe access.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*Lobby
}

// NewStore initializes an empty Store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*Lobby)}
}

// Create mints a fresh room with an unused code and registers it. The
// lobby's OnEmpty callback is wired to remove it from this store.
func (s *Store) Create(hostID string, variant scoring.Variant) *Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	var code string
	for {
		code = newRoomCode()
		if _, exists := s.rooms[code]; !exists {
			break
		}
	}
	l := New(code, hostID, variant)
	l.OnEmpty = s.Delete
	s.rooms[code] = l
	log.Printf("lobby store: created room %s", code)
	return l
}

// Get retrieves a room by code.
func (s *Store) Get(code string) (*Lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rooms[code]
	return l, ok
}

// Delete drops a room. Deleting an absent code is a no-op.
func (s *Store) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; ok {
		delete(s.rooms, code)
		log.Printf("lobby store: deleted room %s", code)
	}
}

// List returns a copy of the current rooms, for the room list endpoint.
func (s *Store) List() []*Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Lobby, 0, len(s.rooms))
	for _, l := range s.rooms {
		out = append(out, l)
	}
	return out
}

// Sweep periodically drops rooms that have sat idle past maxIdle, closing
// out waiting rooms whose members wandered off without leaving. Blocks;
// run it on its own goroutine.
func (s *Store) Sweep(maxIdle time.Duration) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		s.mu.Lock()
		for code, l := range s.rooms {
			l.Mu.Lock()
			idle := now.Sub(l.LastActivity) > maxIdle
			l.Mu.Unlock()
			if idle {
				delete(s.rooms, code)
				log.Printf("lobby store: swept idle room %s", code)
			}
		}
		s.mu.Unlock()
	}
}

// roomCodeAlphabet avoids easily confused characters.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newRoomCode returns a random 6-character room code.
func newRoomCode() string {
	code := make([]byte, 6)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeAlphabet))))
		code[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(code)
}
