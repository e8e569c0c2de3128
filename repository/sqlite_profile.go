package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akinalp/paraf/database"
	"github.com/akinalp/paraf/models"
	"github.com/akinalp/paraf/pkg"
)

// SQLiteProfileRepo, ProfileRepository'nin SQLite implementasyonu.
type SQLiteProfileRepo struct {
	db *database.DB
}

// NewSQLiteProfileRepo, yeni bir SQLite profile repository oluşturur.
func NewSQLiteProfileRepo(db *database.DB) ProfileRepository {
	return &SQLiteProfileRepo{db: db}
}

// GetByID, tek profili getirir.
func (r *SQLiteProfileRepo) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	var displayName, avatarURL sql.NullString
	var lastActiveAt sql.NullTime

	err := r.db.Conn.QueryRowContext(ctx, `
		SELECT id, username, display_name, avatar_url, status, last_active_at
		FROM profiles WHERE id = ?
	`, id).Scan(&p.ID, &p.Username, &displayName, &avatarURL, &p.Status, &lastActiveAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: profile %s", pkg.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if displayName.Valid {
		p.DisplayName = &displayName.String
	}
	if avatarURL.Valid {
		p.AvatarURL = &avatarURL.String
	}
	if lastActiveAt.Valid {
		p.LastActiveAt = &lastActiveAt.Time
	}

	return &p, nil
}

// Upsert, profili ekler veya günceller.
// ON CONFLICT ile tek sorguda hallolur — önce SELECT edip var mı diye
// bakmak race condition'a açıktır.
func (r *SQLiteProfileRepo) Upsert(ctx context.Context, p *models.Profile) error {
	_, err := r.db.Conn.ExecContext(ctx, `
		INSERT INTO profiles (id, username, display_name, avatar_url, status, last_active_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			status = excluded.status,
			last_active_at = excluded.last_active_at
	`, p.ID, p.Username, p.DisplayName, p.AvatarURL, string(p.Status), p.LastActiveAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}

	return nil
}

// UpdateStatus, presence durumunu ve son aktiflik zamanını günceller.
// Profil henüz lokalde yoksa minimal bir satır oluşturulur — presence
// event'i profil senkronizasyonundan önce gelebilir.
func (r *SQLiteProfileRepo) UpdateStatus(ctx context.Context, id string, status models.PresenceStatus) error {
	_, err := r.db.Conn.ExecContext(ctx, `
		INSERT INTO profiles (id, username, status, last_active_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			last_active_at = excluded.last_active_at
	`, id, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update profile status: %w", err)
	}

	return nil
}
