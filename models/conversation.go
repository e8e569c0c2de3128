package models

// MessagePage, bir konuşmanın sayfalanmış mesaj penceresi.
//
// Messages her zaman created_at ASC sıralıdır (ekran sırası) —
// DB'den DESC çekilir, store katmanında ters çevrilir.
// TotalCount arama filtresi uygulandıktan SONRAKİ toplam sayıdır;
// HasMore = offset + dönen < TotalCount.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	TotalCount int       `json:"total_count"`
	HasMore    bool      `json:"has_more"`
}

// ConversationSummary, konuşma listesi için tek satırlık özet:
// karşı taraf + son mesaj anlık görüntüsü + viewer'a özel okunmamış sayısı.
//
// UnreadCount viewer perspektifinden hesaplanır:
// alıcı = viewer, gönderici = karşı taraf, status ≠ read,
// hidden_for_recipient = false olan mesajların sayısı.
type ConversationSummary struct {
	CounterpartID string   `json:"counterpart_id"`
	Username      string   `json:"username"`
	DisplayName   *string  `json:"display_name"`
	AvatarURL     *string  `json:"avatar_url"`
	LastMessage   *Message `json:"last_message"`
	UnreadCount   int      `json:"unread_count"`
}
