package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MessageStatus, bir mesajın yaşam döngüsündeki durumunu temsil eder.
//
// Durum geçişleri tek yönlüdür:
// sending → sent → delivered → read
// sending → failed (sunucu onayı alınamadı — lokal durum, DB'ye yazılmaz)
type MessageStatus string

const (
	MessageSending   MessageStatus = "sending"   // Optimistic gönderim — sunucu onayı bekleniyor
	MessageSent      MessageStatus = "sent"      // Sunucu onayladı, kalıcı kayıt var
	MessageDelivered MessageStatus = "delivered" // Karşı tarafa ulaştı
	MessageRead      MessageStatus = "read"      // Karşı taraf okudu
	MessageFailed    MessageStatus = "failed"    // Gönderim başarısız — sadece lokal, tekrar denenebilir
)

// Message, iki kullanıcı arasındaki tek bir mesajı temsil eder.
//
// İki bağımsız silme bayrağı taşır — tek bir "deleted" boolean DEĞİL:
//   - Hard delete: satır tamamen silinir, yetki sadece göndericide.
//     Struct üzerinde bayrağı yoktur çünkü silinen satır hiç dönmez.
//   - HiddenForRecipient: alıcının soft delete'i. Satır durur, sadece
//     alıcının görünümünden çıkar — gönderici mesajı görmeye ve
//     düzenlemeye devam eder. Yetki sadece alıcıda.
//
// EditHistory append-only'dir: her düzenleme, yeni içerik yazılmadan ÖNCE
// eski içeriği tarihçeye ekler.
type Message struct {
	ID                 string        `json:"id"`
	SenderID           string        `json:"sender_id"`
	RecipientID        string        `json:"recipient_id"`
	Content            string        `json:"content"`
	AttachmentURL      *string       `json:"attachment_url"` // Nullable — opsiyonel dosya referansı
	Status             MessageStatus `json:"status"`
	ReadAt             *time.Time    `json:"read_at"`   // Nullable — henüz okunmadıysa nil
	EditedAt           *time.Time    `json:"edited_at"` // Nullable — hiç düzenlenmediyse nil
	EditHistory        []string      `json:"edit_history"`
	HiddenForRecipient bool          `json:"hidden_for_recipient"`
	CreatedAt          time.Time     `json:"created_at"`

	// JOIN/aggregate ile doldurulan alanlar
	Sender    *Profile        `json:"sender,omitempty"`
	Reactions []ReactionGroup `json:"reactions"`
}

// ─── Message Lifecycle Kuralları ───
//
// Saf kurallar — DB'ye veya ağa dokunmaz, conversation.Store tarafından
// her mutasyondan önce uygulanır.

// CanEdit, actor'ın bu mesajı düzenleme yetkisi olup olmadığını döner.
// Sadece gönderici düzenleyebilir.
func (m *Message) CanEdit(actorID string) bool {
	return m.SenderID == actorID
}

// CanHardDelete, actor'ın bu mesajı kalıcı silme yetkisi olup olmadığını döner.
// Sadece gönderici kalıcı silebilir — alıcının silmesi soft delete olur.
func (m *Message) CanHardDelete(actorID string) bool {
	return m.SenderID == actorID
}

// IsParticipant, actor'ın bu konuşmanın tarafı olup olmadığını döner.
func (m *Message) IsParticipant(actorID string) bool {
	return m.SenderID == actorID || m.RecipientID == actorID
}

// VisibleTo, mesajın viewer'ın görünümünde olup olmadığını hesaplar.
// hidden_for_recipient bayrağı SADECE alıcının görünümünü etkiler —
// gönderici kendi mesajını her zaman görür.
func (m *Message) VisibleTo(viewerID string) bool {
	if m.RecipientID == viewerID && m.HiddenForRecipient {
		return false
	}
	return true
}

// IsUnreadFor, mesajın viewer için okunmamış sayılıp sayılmadığını döner.
//
// unread_count tanımıyla birebir aynı koşul:
// alıcı = viewer, status ≠ read, hidden_for_recipient = false.
// Kullanıcının kendi gönderdiği mesajlar hiçbir zaman okunmamış sayılmaz.
func (m *Message) IsUnreadFor(viewerID string) bool {
	return m.RecipientID == viewerID &&
		m.Status != MessageRead &&
		!m.HiddenForRecipient
}

// Counterpart, actor'a göre konuşmanın karşı tarafını döner.
func (m *Message) Counterpart(actorID string) string {
	if m.SenderID == actorID {
		return m.RecipientID
	}
	return m.SenderID
}

// ApplyEdit, düzenlemeyi mesaja uygular: önce mevcut içerik tarihçeye
// eklenir (append-only), sonra yeni içerik yazılır ve edited_at set edilir.
func (m *Message) ApplyEdit(newContent string, now time.Time) {
	m.EditHistory = append(m.EditHistory, m.Content)
	m.Content = newContent
	m.EditedAt = &now
}

// ─── Reaction Kuralları ───

// ReactionChange, bir reaction toggle işleminin sonucunu temsil eder.
type ReactionChange string

const (
	ReactionAdded    ReactionChange = "added"    // Kullanıcının bu mesajda reaction'ı yoktu — eklendi
	ReactionReplaced ReactionChange = "replaced" // Farklı türde reaction vardı — yenisiyle değiştirildi
	ReactionRemoved  ReactionChange = "removed"  // Aynı tür tekrar uygulandı — kaldırıldı
)

// ResolveReactionToggle, toggle semantiğini hesaplayan saf kuraldır.
// existingKind boş string ise kullanıcının mevcut reaction'ı yok demektir.
//
// Kural: yoksa ekle, farklı türse değiştir, aynı türse kaldır.
// Repository katmanı aynı kuralı SQL seviyesinde uygular — bu fonksiyon
// lokal reconciliation ve testler için kaynak doğruluktur.
func ResolveReactionToggle(existingKind, kind string) ReactionChange {
	switch existingKind {
	case "":
		return ReactionAdded
	case kind:
		return ReactionRemoved
	default:
		return ReactionReplaced
	}
}

// ReactionGroup, bir mesajın aynı türdeki reaction'larının özetidir:
// [{kind: "like", count: 3, users: ["u1","u2","u3"]}]
type ReactionGroup struct {
	Kind  string   `json:"kind"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// ─── Request Tipleri ───

// SendMessageRequest, yeni mesaj gönderme isteği.
//
// AttachmentURL opsiyonel — ek varsa Content boş olabilir (sadece dosya mesajı).
type SendMessageRequest struct {
	Content       string  `json:"content"`
	AttachmentURL *string `json:"attachment_url,omitempty"`
}

// Validate, SendMessageRequest'in geçerli olup olmadığını kontrol eder.
// Eki olmayan boş mesaj geçersizdir.
func (r *SendMessageRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	contentLen := utf8.RuneCountInString(r.Content)

	hasAttachment := r.AttachmentURL != nil && *r.AttachmentURL != ""
	if hasAttachment && contentLen == 0 {
		return nil
	}

	if contentLen < 1 {
		return fmt.Errorf("message content is required")
	}
	if contentLen > 2000 {
		return fmt.Errorf("message content must be at most 2000 characters")
	}
	return nil
}

// EditMessageRequest, mesaj düzenleme isteği.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// Validate, EditMessageRequest'in geçerli olup olmadığını kontrol eder.
// Düzenlemede ek değiştirilemez — içerik zorunludur.
func (r *EditMessageRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	contentLen := utf8.RuneCountInString(r.Content)
	if contentLen < 1 {
		return fmt.Errorf("message content is required")
	}
	if contentLen > 2000 {
		return fmt.Errorf("message content must be at most 2000 characters")
	}
	return nil
}

// ToggleReactionRequest, mesaja reaction ekleme/değiştirme/kaldırma isteği.
type ToggleReactionRequest struct {
	Kind string `json:"kind"`
}

// Validate, ToggleReactionRequest'in geçerli olup olmadığını kontrol eder.
func (r *ToggleReactionRequest) Validate() error {
	r.Kind = strings.TrimSpace(r.Kind)
	if r.Kind == "" {
		return fmt.Errorf("reaction kind is required")
	}
	return nil
}
