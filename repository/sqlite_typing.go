package repository

import (
	"context"
	"fmt"

	"github.com/akinalp/paraf/database"
	"github.com/akinalp/paraf/models"
)

// SQLiteTypingRepo, TypingRepository'nin SQLite implementasyonu.
type SQLiteTypingRepo struct {
	db *database.DB
}

// NewSQLiteTypingRepo, yeni bir SQLite typing repository oluşturur.
func NewSQLiteTypingRepo(db *database.DB) TypingRepository {
	return &SQLiteTypingRepo{db: db}
}

// UpsertTyping, typing durumunu yazar.
// (actor, counterpart) başına tek satır — tarihçe tutulmaz, typing
// ephemeral bir sinyaldir.
func (r *SQLiteTypingRepo) UpsertTyping(ctx context.Context, status *models.TypingStatus) error {
	isTyping := 0
	if status.IsTyping {
		isTyping = 1
	}

	_, err := r.db.Conn.ExecContext(ctx, `
		INSERT INTO typing_status (actor_id, counterpart_id, is_typing, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(actor_id, counterpart_id) DO UPDATE SET
			is_typing = excluded.is_typing,
			updated_at = excluded.updated_at
	`, status.ActorID, status.CounterpartID, isTyping, status.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert typing status: %w", err)
	}

	return nil
}
