package models

import "time"

// Profile, bir kullanıcının herkese açık profil bilgisi.
// Auth bilgisi taşımaz — kimlik doğrulama uzak serviste yapılır,
// bu core sadece görüntüleme için profil satırını okur.
type Profile struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	DisplayName  *string    `json:"display_name"` // Nullable
	AvatarURL    *string    `json:"avatar_url"`   // Nullable
	Status       string     `json:"status"`       // "online" | "offline"
	LastActiveAt *time.Time `json:"last_active_at"`
}

// Name, gösterilecek ismi döner — display name yoksa username.
func (p *Profile) Name() string {
	if p.DisplayName != nil && *p.DisplayName != "" {
		return *p.DisplayName
	}
	return p.Username
}
