// Package bus, realtime senkronizasyon kanallarını yönetir.
//
// Her kaynak (bir kullanıcının mesaj akışı, typing sinyalleri, presence)
// bir "key" ile adreslenir. Registry aynı key'e abone olan birden fazla
// dinleyiciyi TEK fiziksel kanal üzerinde çoğullar — aynı konuşmayı
// gösteren iki panel iki WebSocket açmaz.
package bus

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operasyon kodları. Sunucu her event'e bir op etiketi koyar;
// dinleyiciler payload'ı bu etikete göre çözer.
const (
	OpMessageInsert = "message_insert"
	OpMessageUpdate = "message_update"
	OpMessageDelete = "message_delete"
	OpTyping        = "typing"
	OpPresence      = "presence"
)

// Event, bus üzerinden taşınan tek bir olay.
//
// Data alanı any tipindedir çünkü her op farklı payload taşır.
// Dinleyici DecodeData ile kendi beklediği tipe çözer.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"data,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// DecodeData, Event.Data'yı hedef struct'a çözer.
//
// JSON decode sonrası Data map[string]any olarak gelir; tekrar
// marshal/unmarshal round-trip'i onu tipli struct'a çevirir. Küçük
// payload'lar için maliyeti ihmal edilebilir, type assertion
// zincirinden çok daha okunaklıdır.
func DecodeData(e Event, target any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode event data: %w", err)
	}
	return nil
}

// MessageEventData, mesaj op'larının payload'ı.
// Insert tam içeriği taşır; update/delete için id ve status yeter,
// store gerisini lokal DB'den tazeler.
type MessageEventData struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Status      string `json:"status,omitempty"`
	Content     string `json:"content,omitempty"`
}

// TypingEventData, typing op'unun payload'ı.
type TypingEventData struct {
	ActorID       string `json:"actor_id"`
	CounterpartID string `json:"counterpart_id"`
	IsTyping      bool   `json:"is_typing"`
}

// PresenceEventData, presence op'unun payload'ı.
type PresenceEventData struct {
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Kaynak key üreticileri. Key formatı sunucuyla ortak sözleşmedir —
// elle string birleştirmek yerine her zaman bu fonksiyonlar kullanılır.

// MessagesKey, kullanıcının mesaj akışı kaynağı.
func MessagesKey(userID string) string {
	return "messages:" + userID
}

// TypingKey, kullanıcıya yönelik typing sinyalleri kaynağı.
func TypingKey(userID string) string {
	return "typing:" + userID
}

// PresenceKey, kullanıcının takip ettiği presence akışı kaynağı.
func PresenceKey(userID string) string {
	return "presence:" + userID
}
