// internal/database/user.go
package database

import (
	"context"
	"fmt"

	"github.com/rbutcher/fivedice/internal/models"
)

// CreateGuestUser records a freshly minted guest identity. Called
// best-effort when a guest token is issued; the identity remains usable
// even if the insert fails.
func CreateGuestUser(ctx context.Context, u *models.User) error {
	q := `
		INSERT INTO users (id, username, is_ephemeral)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := DB.Exec(ctx, q, u.ID, u.Username, u.IsEphemeral); err != nil {
		return fmt.Errorf("insert guest user: %w", err)
	}
	return nil
}

// GetUserByID fetches a user row.
func GetUserByID(ctx context.Context, id string) (*models.User, error) {
	q := `SELECT id, username, is_ephemeral FROM users WHERE id = $1`
	var u models.User
	if err := DB.QueryRow(ctx, q, id).Scan(&u.ID, &u.Username, &u.IsEphemeral); err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}
