// internal/database/game.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rbutcher/fivedice/internal/game"
)

// Sink is the persistence sink backed by the global pgx pool. The session
// core calls it fire-and-forget after in-memory state changes; an error
// here never rolls back or blocks gameplay.
type Sink struct{}

// RecordFinishedGame upserts the game row and one result row per player in
// a single transaction.
func (Sink) RecordFinishedGame(ctx context.Context, fg game.FinishedGame) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertGame := `
			INSERT INTO games (room_id, variant, status, winner, end_reason)
			VALUES ($1, $2, 'finished', $3, $4)
			ON CONFLICT (room_id) DO UPDATE
			SET status = 'finished', winner = $3, end_reason = $4
		`
		if _, e := tx.Exec(ctx, upsertGame, fg.RoomID, string(fg.Variant), fg.Winner, fg.Reason); e != nil {
			return e
		}

		for _, pr := range fg.Players {
			q := `
				INSERT INTO game_results (room_id, player_id, display_name, score, abandoned, did_win)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (room_id, player_id)
				DO UPDATE SET score = $4, abandoned = $5, did_win = $6
			`
			if _, e := tx.Exec(ctx, q, fg.RoomID, pr.PersistentID, pr.DisplayName, pr.TotalScore, pr.Abandoned, pr.DidWin); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert game or results: %w", err)
	}
	return nil
}

// UpdateRoomStatus records the room's lifecycle phase.
func (Sink) UpdateRoomStatus(ctx context.Context, roomID string, status game.Status) error {
	q := `
		INSERT INTO games (room_id, status)
		VALUES ($1, $2)
		ON CONFLICT (room_id) DO UPDATE SET status = $2
	`
	if _, err := DB.Exec(ctx, q, roomID, string(status)); err != nil {
		return fmt.Errorf("update room status: %w", err)
	}
	return nil
}
