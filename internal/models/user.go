// internal/models/user.go
package models

import "github.com/google/uuid"

// User is an identity known to the service. Guests are minted on first
// contact and marked ephemeral; the game core only ever sees the ID and
// display name.
type User struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	IsEphemeral bool      `json:"is_ephemeral"`
}
