package models

import "time"

// PresenceStatus, bir kullanıcının bağlantı durumu.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// Presence, bir kullanıcının gözlemlenen bağlantı durumu + son aktiflik zamanı.
//
// "Offline" sunucu tarafından zorlanmaz: heartbeat belirli süre gelmezse
// gözlemci taraf kullanıcıyı lokal olarak offline sayar (bkz. presence.Tracker).
type Presence struct {
	UserID       string         `json:"user_id"`
	Status       PresenceStatus `json:"status"`
	LastActiveAt time.Time      `json:"last_active_at"`
}
