// Package conversation, bir konuşmanın mesaj penceresini yöneten Store'u sağlar.
//
// Store, UI ile alt katmanlar arasındaki tek kapıdır: sayfalı okuma,
// optimistic gönderim, düzenleme/silme/reaction mutasyonları ve bus'tan
// gelen değişikliklerin cache'e yansıtılması buradan geçer. UI hiçbir
// zaman repository'ye veya bus'a doğrudan dokunmaz.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/paraf/bus"
	"github.com/akinalp/paraf/config"
	"github.com/akinalp/paraf/models"
	"github.com/akinalp/paraf/notify"
	"github.com/akinalp/paraf/pkg"
	"github.com/akinalp/paraf/pkg/cache"
	"github.com/akinalp/paraf/pkg/retry"
	"github.com/akinalp/paraf/repository"
	"github.com/akinalp/paraf/session"
)

// Store, konuşma durumunu yöneten ana bileşen.
//
// İç durum üç parçadan oluşur:
//   - pages: sayfa sonuçlarının TTL cache'i. Bus event'i geldiğinde
//     ilgili konuşmanın TÜM sayfaları düşürülür.
//   - pending: henüz sunucu onayı almamış (sending/failed) mesajlar.
//     Cache'e YAZILMAZ — 1. sayfa sonucuna okuma anında eklenir.
//   - fetchSeq: konuşma başına tazeleme nesli. Üst üste gelen
//     tazelemelerde eski cevabın yeniyi ezmesini önler.
type Store struct {
	mu sync.Mutex

	msgRepo     repository.MessageRepository
	profileRepo repository.ProfileRepository
	registry    *bus.Registry
	session     *session.Session
	notifier    notify.Notifier

	pageSize      int
	markReadDelay time.Duration
	retryAttempts int
	retryBaseWait time.Duration

	pages    *cache.TTLCache[string, models.MessagePage]
	profiles *cache.TTLCache[string, *models.Profile]

	pending    map[string][]*models.Message // counterpart → onaysız mesajlar
	fetchSeq   map[string]int64             // counterpart → tazeleme nesli
	readTimers map[string]*time.Timer       // counterpart → gecikmeli okundu sayacı

	handle       *bus.Handle
	disconnected atomic.Bool

	// onUpdate, bir konuşmanın içeriği değiştiğinde çağrılır — UI bu
	// callback ile ilgili konuşmayı yeniden çizer. nil olabilir.
	onUpdate func(counterpartID string)
}

// NewStore, yeni bir konuşma store'u oluşturur. Start çağrılana kadar
// bus'a abone olmaz; okuma/yazma operasyonları yine de çalışır.
func NewStore(
	cfg *config.Config,
	msgRepo repository.MessageRepository,
	profileRepo repository.ProfileRepository,
	registry *bus.Registry,
	sess *session.Session,
	notifier notify.Notifier,
	onUpdate func(counterpartID string),
) *Store {
	if notifier == nil {
		notifier = notify.Noop{}
	}

	return &Store{
		msgRepo:       msgRepo,
		profileRepo:   profileRepo,
		registry:      registry,
		session:       sess,
		notifier:      notifier,
		pageSize:      cfg.Conversation.PageSize,
		markReadDelay: cfg.Conversation.MarkReadDelay,
		retryAttempts: cfg.Retry.Attempts,
		retryBaseWait: cfg.Retry.BaseWait,
		pages:         cache.New[string, models.MessagePage](cfg.Conversation.CacheTTL, cfg.Conversation.CacheTTL),
		profiles:      cache.New[string, *models.Profile](cfg.Conversation.CacheTTL, cfg.Conversation.CacheTTL),
		pending:       make(map[string][]*models.Message),
		fetchSeq:      make(map[string]int64),
		readTimers:    make(map[string]*time.Timer),
		onUpdate:      onUpdate,
	}
}

// Start, aktörün mesaj akışına abone olur.
func (s *Store) Start(ctx context.Context) error {
	actorID, err := s.session.ActorID()
	if err != nil {
		return err
	}

	s.handle = s.registry.Acquire(ctx, bus.MessagesKey(actorID), bus.Listener{
		OnEvent: s.onBusEvent,
		OnDown: func(err error) {
			// Akış öldü — cache'teki veri bayatlayabilir. UI bayrağa
			// bakıp "bağlantı yok" göstergesi çizer; yeniden bağlanma
			// kararı üst katmanındır.
			s.disconnected.Store(true)
			log.Printf("[conv] message stream down: %v", err)
		},
	})
	s.disconnected.Store(false)

	return nil
}

// Close, aboneliği bırakır, sayaçları ve cache'leri kapatır.
func (s *Store) Close() {
	if s.handle != nil {
		s.handle.Release()
	}

	s.mu.Lock()
	for cp, t := range s.readTimers {
		t.Stop()
		delete(s.readTimers, cp)
	}
	s.mu.Unlock()

	s.pages.Close()
	s.profiles.Close()
}

// Disconnected, mesaj akışının kopuk olup olmadığını döner.
func (s *Store) Disconnected() bool {
	return s.disconnected.Load()
}

// ─── Okuma ───

// GetPage, konuşmanın bir sayfasını döner. page 1 tabanlıdır; 1. sayfa
// konuşmanın en yeni mesajlarını içerir ve dilim ekran sırasındadır
// (eski → yeni).
//
// search boş değilse içerik üzerinde büyük/küçük harf duyarsız substring
// filtresi uygulanır; TotalCount filtrelenmiş toplamdır.
//
// Onaysız (sending/failed) mesajlar sadece aramasız 1. sayfaya eklenir —
// cache'teki kopya değişmez, çağrı başına birleştirilir.
func (s *Store) GetPage(ctx context.Context, counterpartID string, page int, search string) (*models.MessagePage, error) {
	actorID, err := s.session.ActorID()
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	search = strings.TrimSpace(search)

	key := pageKey(counterpartID, page, s.pageSize, search)
	cached, hit := s.pages.Get(key)
	if !hit {
		var fetchErr error
		err := retry.Do(ctx, s.retryAttempts, s.retryBaseWait, func() error {
			messages, total, err := s.msgRepo.Page(ctx, actorID, counterpartID, page, s.pageSize, search)
			if err != nil {
				fetchErr = err
				return err
			}

			if err := s.attachReactions(ctx, messages); err != nil {
				fetchErr = err
				return err
			}

			values := make([]models.Message, len(messages))
			for i, m := range messages {
				values[i] = *m
			}
			cached = models.MessagePage{
				Messages:   values,
				TotalCount: total,
				HasMore:    (page-1)*s.pageSize+len(values) < total,
			}
			fetchErr = nil
			return nil
		})
		if err != nil {
			return nil, fetchErr
		}
		s.pages.Set(key, cached)
	}

	result := models.MessagePage{
		Messages:   append([]models.Message(nil), cached.Messages...),
		TotalCount: cached.TotalCount,
		HasMore:    cached.HasMore,
	}

	if page == 1 && search == "" {
		s.mu.Lock()
		for _, p := range s.pending[counterpartID] {
			result.Messages = append(result.Messages, *p)
		}
		s.mu.Unlock()
	}

	return &result, nil
}

// ListConversations, aktörün tüm konuşma özetlerini döner.
func (s *Store) ListConversations(ctx context.Context) ([]*models.ConversationSummary, error) {
	actorID, err := s.session.ActorID()
	if err != nil {
		return nil, err
	}
	return s.msgRepo.ListConversations(ctx, actorID)
}

// ─── Gönderim ───

// Send, mesajı optimistic olarak gönderir.
//
// Mesaj önce "sending" durumunda pending listesine girer — UI onu hemen
// gösterir. Yazma başarılıysa "sent" olur ve kalıcı kayda geçer;
// başarısızsa "failed" durumunda pending'de KALIR ve mesajla birlikte
// hata döner. Başarısız mesaj kaybolmaz — Resend ile tekrar denenebilir.
func (s *Store) Send(ctx context.Context, counterpartID string, req *models.SendMessageRequest) (*models.Message, error) {
	actorID, err := s.session.ActorID()
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrValidation, err)
	}

	msg := &models.Message{
		ID:            uuid.NewString(),
		SenderID:      actorID,
		RecipientID:   counterpartID,
		Content:       req.Content,
		AttachmentURL: req.AttachmentURL,
		Status:        models.MessageSending,
		EditHistory:   []string{},
		CreatedAt:     time.Now().UTC(),
	}
	if sender, err := s.profile(ctx, actorID); err == nil {
		msg.Sender = sender
	}

	s.mu.Lock()
	s.pending[counterpartID] = append(s.pending[counterpartID], msg)
	s.mu.Unlock()
	s.notifyUpdate(counterpartID)

	return s.persistPending(ctx, counterpartID, msg)
}

// Resend, başarısız bir mesajı tekrar dener.
// Mesaj pending listesinde "failed" durumunda bulunmalıdır.
func (s *Store) Resend(ctx context.Context, counterpartID, messageID string) (*models.Message, error) {
	s.mu.Lock()
	var msg *models.Message
	for _, p := range s.pending[counterpartID] {
		if p.ID == messageID && p.Status == models.MessageFailed {
			msg = p
			break
		}
	}
	if msg != nil {
		msg.Status = models.MessageSending
	}
	s.mu.Unlock()

	if msg == nil {
		return nil, fmt.Errorf("%w: no failed message %s", pkg.ErrNotFound, messageID)
	}

	s.notifyUpdate(counterpartID)

	return s.persistPending(ctx, counterpartID, msg)
}

// DiscardFailed, başarısız bir mesajı pending listesinden düşürür
// (kullanıcı vazgeçti).
func (s *Store) DiscardFailed(counterpartID, messageID string) {
	s.mu.Lock()
	list := s.pending[counterpartID]
	for i, p := range list {
		if p.ID == messageID && p.Status == models.MessageFailed {
			s.pending[counterpartID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notifyUpdate(counterpartID)
}

// persistPending, pending mesajı kalıcı kayda geçirmeyi dener.
//
// Yazma, pending'deki PAYLAŞILAN struct üzerinde değil özel bir kopya
// üzerinde çalışır: GetPage aynı anda pending mesajları lock altında
// kopyalıyor olabilir, repository ise Insert sırasında created_at'e
// yazar. Paylaşılan struct'a tüm yazmalar lock altında yapılır.
func (s *Store) persistPending(ctx context.Context, counterpartID string, msg *models.Message) (*models.Message, error) {
	s.mu.Lock()
	draft := *msg
	s.mu.Unlock()
	draft.Status = models.MessageSent

	err := retry.Do(ctx, s.retryAttempts, s.retryBaseWait, func() error {
		return s.msgRepo.Insert(ctx, &draft)
	})
	if err != nil {
		s.mu.Lock()
		msg.Status = models.MessageFailed
		failed := *msg
		s.mu.Unlock()

		s.notifyUpdate(counterpartID)
		return &failed, fmt.Errorf("failed to send message: %w", err)
	}

	s.mu.Lock()
	*msg = draft // sent durumu + repository'nin bastığı created_at
	list := s.pending[counterpartID]
	for i, p := range list {
		if p.ID == msg.ID {
			s.pending[counterpartID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.invalidate(counterpartID)
	s.notifyUpdate(counterpartID)

	sent := draft
	return &sent, nil
}

// ─── Mutasyonlar ───

// Edit, mesaj içeriğini düzenler. Sadece gönderici düzenleyebilir.
// Eski içerik düzenleme tarihçesine eklenir (append-only).
func (s *Store) Edit(ctx context.Context, messageID string, req *models.EditMessageRequest) (*models.Message, error) {
	actorID, err := s.session.ActorID()
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrValidation, err)
	}

	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.CanEdit(actorID) {
		return nil, fmt.Errorf("%w: only the sender can edit a message", pkg.ErrForbidden)
	}

	msg.ApplyEdit(req.Content, time.Now().UTC())
	historyJSON, err := json.Marshal(msg.EditHistory)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal edit history: %v", pkg.ErrInternal, err)
	}
	if err := s.msgRepo.UpdateContent(ctx, msg.ID, msg.Content, string(historyJSON)); err != nil {
		return nil, err
	}

	cp := msg.Counterpart(actorID)
	s.invalidate(cp)
	s.notifyUpdate(cp)

	return msg, nil
}

// Delete, mesajı aktörün rolüne göre siler.
//
// Asimetrik kural: gönderici kalıcı siler (satır herkes için gider),
// alıcı sadece kendi görünümünden gizler (gönderici görmeye devam eder).
// Taraf olmayan aktör için ErrForbidden.
func (s *Store) Delete(ctx context.Context, messageID string) error {
	actorID, err := s.session.ActorID()
	if err != nil {
		return err
	}

	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}

	switch {
	case msg.CanHardDelete(actorID):
		err = s.msgRepo.HardDelete(ctx, msg.ID)
	case msg.RecipientID == actorID:
		err = s.msgRepo.HideForRecipient(ctx, msg.ID)
	default:
		return fmt.Errorf("%w: not a participant of this conversation", pkg.ErrForbidden)
	}
	if err != nil {
		return err
	}

	cp := msg.Counterpart(actorID)
	s.invalidate(cp)
	s.notifyUpdate(cp)

	return nil
}

// ToggleReaction, aktörün mesajdaki reaction'ını değiştirir:
// yoksa ekler, aynı türse kaldırır, farklı türse değiştirir.
func (s *Store) ToggleReaction(ctx context.Context, messageID string, req *models.ToggleReactionRequest) (models.ReactionChange, error) {
	actorID, err := s.session.ActorID()
	if err != nil {
		return "", err
	}
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", pkg.ErrValidation, err)
	}

	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return "", err
	}
	if !msg.IsParticipant(actorID) {
		return "", fmt.Errorf("%w: not a participant of this conversation", pkg.ErrForbidden)
	}

	change, err := s.msgRepo.ToggleReaction(ctx, msg.ID, actorID, req.Kind)
	if err != nil {
		return "", err
	}

	cp := msg.Counterpart(actorID)
	s.invalidate(cp)
	s.notifyUpdate(cp)

	return change, nil
}

// MarkRead, counterpart'tan gelen okunmamış mesajları okundu işaretler.
// Etkilenen mesaj sayısını döner; tekrar çağrılması güvenlidir (0 döner).
func (s *Store) MarkRead(ctx context.Context, counterpartID string) (int64, error) {
	actorID, err := s.session.ActorID()
	if err != nil {
		return 0, err
	}

	affected, err := s.msgRepo.MarkConversationRead(ctx, actorID, counterpartID)
	if err != nil {
		return 0, err
	}

	if affected > 0 {
		s.invalidate(counterpartID)
		s.notifyUpdate(counterpartID)
	}

	return affected, nil
}

// MarkReadAfterDelay, konuşma ekrana geldikten kısa bir süre sonra
// okundu işaretler. Kullanıcı konuşmalar arasında hızlı gezinirken
// yanlışlıkla okundu işaretlememek için gecikme konur; CancelMarkRead
// ile iptal edilebilir.
func (s *Store) MarkReadAfterDelay(counterpartID string) {
	s.mu.Lock()
	if t, ok := s.readTimers[counterpartID]; ok {
		t.Stop()
	}
	s.readTimers[counterpartID] = time.AfterFunc(s.markReadDelay, func() {
		s.mu.Lock()
		delete(s.readTimers, counterpartID)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.MarkRead(ctx, counterpartID); err != nil {
			log.Printf("[conv] delayed mark-read failed for %s: %v", counterpartID, err)
		}
	})
	s.mu.Unlock()
}

// CancelMarkRead, bekleyen gecikmeli okundu işaretlemeyi iptal eder
// (kullanıcı konuşmadan gecikme dolmadan ayrıldı).
func (s *Store) CancelMarkRead(counterpartID string) {
	s.mu.Lock()
	if t, ok := s.readTimers[counterpartID]; ok {
		t.Stop()
		delete(s.readTimers, counterpartID)
	}
	s.mu.Unlock()
}

// Clear, konuşmayı aktör tarafında temizler: aktörün gönderdikleri
// kalıcı silinir, aldıkları gizlenir. Tek transaction'da çalışır.
// Onaysız mesajlar da düşürülür.
func (s *Store) Clear(ctx context.Context, counterpartID string) error {
	actorID, err := s.session.ActorID()
	if err != nil {
		return err
	}

	if err := s.msgRepo.ClearConversation(ctx, actorID, counterpartID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.pending, counterpartID)
	s.mu.Unlock()

	s.invalidate(counterpartID)
	s.notifyUpdate(counterpartID)

	return nil
}

// ─── Bus entegrasyonu ───

// onBusEvent, mesaj akışından gelen event'leri cache'e yansıtır.
//
// Tüm op'lar için strateji aynıdır: ilgili konuşmanın sayfaları
// düşürülür ve 1. sayfa arka planda tazelenir. Aynı event'in tekrar
// gelmesi zararsızdır — düşmüş cache'i tekrar düşürmek no-op'tur
// (idempotent).
func (s *Store) onBusEvent(e bus.Event) {
	switch e.Op {
	case bus.OpMessageInsert, bus.OpMessageUpdate, bus.OpMessageDelete:
	default:
		return
	}

	actorID, err := s.session.ActorID()
	if err != nil {
		return
	}

	var data bus.MessageEventData
	if err := bus.DecodeData(e, &data); err != nil {
		log.Printf("[conv] dropped malformed message event: %v", err)
		return
	}

	cp := data.SenderID
	if cp == actorID {
		cp = data.RecipientID
	}

	s.invalidate(cp)
	go s.refreshFirstPage(actorID, cp)

	// Bildirim yan kanalı: bana gelen, benim göndermediğim ve henüz
	// okunmamış yeni mesajlar bildirim üretir.
	if e.Op == bus.OpMessageInsert &&
		data.RecipientID == actorID &&
		data.SenderID != actorID &&
		data.Status != string(models.MessageRead) {
		go s.pushNotification(data)
	}

	s.notifyUpdate(cp)
}

// refreshFirstPage, konuşmanın 1. sayfasını arka planda tazeler.
//
// Nesil sayacı bayat cevap korumasıdır: tazeleme başlarken nesil artar;
// sorgu dönene kadar YENİ bir tazeleme başladıysa bu cevap çöpe gider —
// eski veri yeni verinin üstüne yazılmaz.
func (s *Store) refreshFirstPage(actorID, counterpartID string) {
	s.mu.Lock()
	s.fetchSeq[counterpartID]++
	seq := s.fetchSeq[counterpartID]
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	messages, total, err := s.msgRepo.Page(ctx, actorID, counterpartID, 1, s.pageSize, "")
	if err != nil {
		log.Printf("[conv] background refresh failed for %s: %v", counterpartID, err)
		return
	}
	if err := s.attachReactions(ctx, messages); err != nil {
		log.Printf("[conv] background refresh failed for %s: %v", counterpartID, err)
		return
	}

	s.mu.Lock()
	stale := s.fetchSeq[counterpartID] != seq
	s.mu.Unlock()
	if stale {
		return
	}

	values := make([]models.Message, len(messages))
	for i, m := range messages {
		values[i] = *m
	}
	s.pages.Set(pageKey(counterpartID, 1, s.pageSize, ""), models.MessagePage{
		Messages:   values,
		TotalCount: total,
		HasMore:    len(values) < total,
	})
	s.notifyUpdate(counterpartID)
}

// pushNotification, gelen mesaj için bildirim üretir.
func (s *Store) pushNotification(data bus.MessageEventData) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n := notify.Notification{
		Title:    "Yeni mesaj",
		Body:     data.Content,
		SenderID: data.SenderID,
	}
	if sender, err := s.profile(ctx, data.SenderID); err == nil {
		n.SenderName = sender.Name()
		n.AvatarURL = sender.AvatarURL
		n.Title = sender.Name()
	}

	if err := s.notifier.Notify(ctx, n); err != nil {
		log.Printf("[conv] notification failed: %v", err)
	}
}

// ─── Yardımcılar ───

// attachReactions, sayfa mesajlarının reaction gruplarını tek sorguda doldurur.
func (s *Store) attachReactions(ctx context.Context, messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}

	reactions, err := s.msgRepo.GetReactionsByMessageIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, m := range messages {
		m.Reactions = reactions[m.ID]
	}
	return nil
}

// profile, profili TTL cache üzerinden getirir.
func (s *Store) profile(ctx context.Context, userID string) (*models.Profile, error) {
	if p, ok := s.profiles.Get(userID); ok {
		return p, nil
	}

	p, err := s.profileRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.profiles.Set(userID, p)
	return p, nil
}

// invalidate, konuşmanın tüm sayfalarını cache'ten düşürür
// (tüm sayfa numarası / arama kombinasyonları).
func (s *Store) invalidate(counterpartID string) {
	prefix := counterpartID + "|"
	s.pages.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

func (s *Store) notifyUpdate(counterpartID string) {
	if s.onUpdate != nil {
		s.onUpdate(counterpartID)
	}
}

// pageKey, sayfa cache anahtarı. Counterpart önek olduğu için
// invalidation prefix taramasıyla yapılabilir.
func pageKey(counterpartID string, page, size int, search string) string {
	return fmt.Sprintf("%s|%d|%d|%s", counterpartID, page, size, search)
}
