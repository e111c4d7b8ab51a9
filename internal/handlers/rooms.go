// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rbutcher/fivedice/internal/scoring"
)

// CreateRoomHandler mints a new waiting room.
//
// POST /rooms/create {"variant": "classic"|"ascending"|"descending"}
func CreateRoomHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id, err := EnsureGuest(w, r)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		var req struct {
			Variant scoring.Variant `json:"variant"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Variant == "" {
			req.Variant = scoring.VariantClassic
		}
		if !req.Variant.Valid() {
			http.Error(w, "unknown variant", http.StatusBadRequest)
			return
		}

		l := gs.Lobbies.Create(id.ID, req.Variant)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"room_code": l.Code,
			"variant":   l.Variant,
			"host_id":   id.ID,
		})
	}
}

// ListRoomsHandler returns the open waiting rooms.
//
// GET /rooms/list
func ListRoomsHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type roomInfo struct {
			Code    string          `json:"room_code"`
			Variant scoring.Variant `json:"variant"`
			Members int             `json:"members"`
			Started bool            `json:"started"`
		}
		rooms := []roomInfo{}
		for _, l := range gs.Lobbies.List() {
			rooms = append(rooms, roomInfo{
				Code:    l.Code,
				Variant: l.Variant,
				Members: l.MemberCount(),
				Started: l.IsStarted(),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"rooms": rooms})
	}
}
