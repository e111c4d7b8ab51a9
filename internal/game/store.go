// internal/game/store.go
package game

import (
	"log"
	"sync"

	"github.com/rbutcher/fivedice/internal/models"
	"github.com/rbutcher/fivedice/internal/scoring"
)

// SessionStore is the authoritative registry of live sessions, the sole
// owner of session lifetime. Every read goes back through the store; no
// caller keeps its own copy of session state across calls.
type SessionStore interface {
	// Create builds and registers a session for roomID.
	Create(roomID string, players []*models.Player, variant scoring.Variant) *Session
	// Get returns the session for roomID. A missing room is a normal
	// absent result, not an error.
	Get(roomID string) (*Session, bool)
	// Remove drops the session. Removing an absent room is a no-op.
	Remove(roomID string)
}

// SessionFactory builds a fully wired session: rng, clock, broadcast hooks,
// sink. The store stays ignorant of that wiring.
type SessionFactory func(roomID string, players []*models.Player, variant scoring.Variant) *Session

// MemoryStore is the in-memory SessionStore. The store mutex only guards
// the map; each session serializes its own mutations with its own lock.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  SessionFactory
}

// NewMemoryStore builds an empty registry around the given factory.
func NewMemoryStore(factory SessionFactory) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

func (ms *MemoryStore) Create(roomID string, players []*models.Player, variant scoring.Variant) *Session {
	s := ms.factory(roomID, players, variant)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.sessions[roomID]; exists {
		log.Printf("session store: room %s already has a session, replacing", roomID)
	}
	ms.sessions[roomID] = s
	return s
}

func (ms *MemoryStore) Get(roomID string) (*Session, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	s, ok := ms.sessions[roomID]
	return s, ok
}

func (ms *MemoryStore) Remove(roomID string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.sessions, roomID)
}
