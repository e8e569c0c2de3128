package repository

import (
	"context"

	"github.com/akinalp/paraf/models"
)

// MessageRepository, mesaj store operasyonlarını tanımlayan interface.
//
// Interface kullanmamızın sebebi: üst katman (conversation store) somut
// SQLite implementasyonuna değil, bu kontrata bağımlıdır. Testlerde
// in-memory fake ile değiştirilebilir, ileride senkronize bir remote
// store aynı kontratı karşılayabilir.
type MessageRepository interface {
	// Insert, yeni mesajı kaydeder ve DB'nin atadığı created_at değerini
	// mesaja geri yazar.
	Insert(ctx context.Context, msg *models.Message) error

	// GetByID, tek mesajı gönderici profiliyle birlikte getirir.
	// Bulunamazsa pkg.ErrNotFound döner.
	GetByID(ctx context.Context, id string) (*models.Message, error)

	// Page, viewer ile counterpart arasındaki konuşmanın bir sayfasını
	// getirir. page 1 tabanlıdır; 1. sayfa en yeni mesajları içerir.
	// Dönen dilim kronolojik sıradadır (eski → yeni).
	// search boş değilse içerik üzerinde case-insensitive substring
	// filtresi uygulanır; toplam sayı da filtrelenmiş sayıdır.
	// Viewer'ın gizlediği mesajlar (hidden_for_recipient) hem sonuçta
	// hem toplamda görünmez.
	Page(ctx context.Context, viewerID, counterpartID string, page, size int, search string) ([]*models.Message, int, error)

	// UpdateContent, mesaj içeriğini ve edit geçmişini günceller,
	// edited_at damgasını atar. Mesaj yoksa pkg.ErrNotFound.
	UpdateContent(ctx context.Context, id, content, historyJSON string) error

	// UpdateStatus, teslimat durumunu günceller (sent → delivered → read).
	UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error

	// HardDelete, mesaj satırını kalıcı siler. Reaction'lar cascade ile gider.
	HardDelete(ctx context.Context, id string) error

	// HideForRecipient, mesajı alıcının görünümünden düşürür.
	// Satır durur — gönderici mesajı görmeye devam eder.
	HideForRecipient(ctx context.Context, id string) error

	// MarkConversationRead, counterpart'tan viewer'a gelen okunmamış
	// tüm görünür mesajları okundu işaretler. Etkilenen satır sayısını döner.
	MarkConversationRead(ctx context.Context, viewerID, counterpartID string) (int64, error)

	// ClearConversation, konuşmayı viewer tarafında temizler:
	// viewer'ın gönderdikleri kalıcı silinir, aldıkları gizlenir.
	// İki bacak tek transaction içinde çalışır.
	ClearConversation(ctx context.Context, viewerID, counterpartID string) error

	// UnreadCount, counterpart'tan viewer'a gelen okunmamış görünür
	// mesaj sayısını döner.
	UnreadCount(ctx context.Context, viewerID, counterpartID string) (int, error)

	// ListConversations, viewer'ın tüm konuşmalarını son mesaj zamanına
	// göre (en yeni önce) özetler.
	ListConversations(ctx context.Context, viewerID string) ([]*models.ConversationSummary, error)

	// ToggleReaction, kullanıcının mesajdaki reaction'ını değiştirir:
	// yoksa ekler, aynı türse kaldırır, farklı türse değiştirir.
	ToggleReaction(ctx context.Context, messageID, userID, kind string) (models.ReactionChange, error)

	// GetReactionsByMessageIDs, birden fazla mesajın reaction gruplarını
	// tek sorguda getirir (N+1 önleme).
	GetReactionsByMessageIDs(ctx context.Context, messageIDs []string) (map[string][]models.ReactionGroup, error)
}
