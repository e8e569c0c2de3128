package repository

import (
	"context"

	"github.com/akinalp/paraf/models"
)

// ProfileRepository, kullanıcı profili operasyonlarını tanımlayan interface.
//
// Profil satırları bus'tan gelen event'lerle senkronize edilir —
// Upsert hem ilk görülme hem güncelleme için tek giriş noktasıdır.
type ProfileRepository interface {
	// GetByID, tek profili getirir. Bulunamazsa pkg.ErrNotFound döner.
	GetByID(ctx context.Context, id string) (*models.Profile, error)

	// Upsert, profili ekler veya mevcut satırı günceller.
	Upsert(ctx context.Context, p *models.Profile) error

	// UpdateStatus, kullanıcının presence durumunu ve son aktiflik
	// zamanını günceller.
	UpdateStatus(ctx context.Context, id string, status models.PresenceStatus) error
}
