// internal/game/store_test.go
package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbutcher/fivedice/internal/models"
	"github.com/rbutcher/fivedice/internal/scoring"
)

func newStoreForTest() *MemoryStore {
	return NewMemoryStore(func(roomID string, players []*models.Player, variant scoring.Variant) *Session {
		return NewSession(roomID, variant, players, rand.New(rand.NewSource(1)), nil)
	})
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ms := newStoreForTest()

	s := ms.Create("AAAA11", []*models.Player{{PersistentID: "u1"}}, scoring.VariantClassic)
	require.NotNil(t, s)
	assert.Equal(t, "AAAA11", s.RoomID)
	assert.Equal(t, StatusWaiting, s.Status)

	got, ok := ms.Get("AAAA11")
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestMemoryStoreGetAbsentRoom(t *testing.T) {
	ms := newStoreForTest()
	got, ok := ms.Get("NOPE@@")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestMemoryStoreRemoveIsIdempotent(t *testing.T) {
	ms := newStoreForTest()
	ms.Create("AAAA11", nil, scoring.VariantClassic)

	ms.Remove("AAAA11")
	_, ok := ms.Get("AAAA11")
	assert.False(t, ok)

	ms.Remove("AAAA11")
	ms.Remove("NEVER1")
}
