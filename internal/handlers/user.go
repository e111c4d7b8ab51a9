// internal/handlers/user.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rbutcher/fivedice/internal/auth"
	"github.com/rbutcher/fivedice/internal/database"
	"github.com/rbutcher/fivedice/internal/models"
)

// EnsureGuest resolves the request's persistent identity. A valid token in
// the "token" query parameter or the "fivedice_token" cookie wins;
// otherwise a fresh guest identity is minted and handed back via cookie.
// The game core never mints identities itself; this is the identity
// verifier boundary.
func EnsureGuest(w http.ResponseWriter, r *http.Request) (auth.Identity, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if c, err := r.Cookie("fivedice_token"); err == nil {
			token = c.Value
		}
	}
	if token != "" {
		if id, err := auth.VerifyJWT(token); err == nil {
			return id, nil
		}
		// Fall through and mint a new identity on a bad token.
	}

	name := r.URL.Query().Get("name")
	id, _, err := mintGuest(w, name)
	return id, err
}

// mintGuest creates a guest identity, records it best-effort, and sets the
// token cookie.
func mintGuest(w http.ResponseWriter, name string) (auth.Identity, string, error) {
	userID := uuid.New()
	if name == "" {
		name = "Guest-" + userID.String()[:8]
	}
	id := auth.Identity{ID: userID.String(), Name: name}

	token, err := auth.CreateJWT(id)
	if err != nil {
		return auth.Identity{}, "", fmt.Errorf("mint guest token: %w", err)
	}

	if database.DB != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			u := &models.User{ID: userID, Username: name, IsEphemeral: true}
			if err := database.CreateGuestUser(ctx, u); err != nil {
				logrus.Warnf("failed to record guest user %s: %v", userID, err)
			}
		}()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "fivedice_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, token, nil
}

// GuestHandler mints a guest identity explicitly and returns the token in
// the body, for clients that prefer the query-parameter flow over cookies.
//
// POST /user/guest {"name": "..."}
func GuestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	id, token, err := mintGuest(w, req.Name)
	if err != nil {
		http.Error(w, "failed to mint guest identity", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"id":    id.ID,
		"name":  id.Name,
		"token": token,
	})
}
