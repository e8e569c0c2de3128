package models

import "time"

// TypingStatus, "X kullanıcısı Y'ye mesaj yazıyor" sinyalinin son hali.
//
// Ephemeral veridir — kanal yaşadığı sürece anlamlıdır, kalıcı state
// olarak güvenilmez. "Yazmayı bıraktı" sinyali yolda kaybolabilir;
// bu yüzden alıcı taraf her true sinyalini liveness timer ile lokal
// olarak eskitir (bkz. typing.Watcher).
type TypingStatus struct {
	ActorID       string    `json:"actor_id"`
	CounterpartID string    `json:"counterpart_id"`
	IsTyping      bool      `json:"is_typing"`
	UpdatedAt     time.Time `json:"updated_at"`
}
