package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/paraf/bus"
	"github.com/akinalp/paraf/config"
	"github.com/akinalp/paraf/models"
	"github.com/akinalp/paraf/notify"
	"github.com/akinalp/paraf/pkg"
	"github.com/akinalp/paraf/session"
)

// ─── Fake'ler ───

// fakeMessageRepo, MessageRepository'nin in-memory implementasyonu.
// insertErr yazma hatası, insertDelay yavaş disk simüle eder.
type fakeMessageRepo struct {
	mu          sync.Mutex
	messages    map[string]*models.Message
	reactions   map[string]map[string]string // messageID → userID → kind
	insertErr   error
	insertDelay time.Duration // kurulumda set edilir, sonrası salt okunur
	pageCalls   int
	seq         int
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		messages:  make(map[string]*models.Message),
		reactions: make(map[string]map[string]string),
	}
}

func (r *fakeMessageRepo) Insert(_ context.Context, msg *models.Message) error {
	if r.insertDelay > 0 {
		time.Sleep(r.insertDelay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}

	r.seq++
	stored := *msg
	stored.CreatedAt = time.Unix(int64(r.seq), 0)
	r.messages[msg.ID] = &stored
	msg.CreatedAt = stored.CreatedAt
	return nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: message %s", pkg.ErrNotFound, id)
	}
	copied := *msg
	return &copied, nil
}

func (r *fakeMessageRepo) visible(viewerID, counterpartID, search string) []*models.Message {
	var out []*models.Message
	for _, m := range r.messages {
		between := (m.SenderID == viewerID && m.RecipientID == counterpartID) ||
			(m.SenderID == counterpartID && m.RecipientID == viewerID)
		if !between || !m.VisibleTo(viewerID) {
			continue
		}
		if search != "" && !containsFold(m.Content, search) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func containsFold(haystack, needle string) bool {
	h, n := []rune(haystack), []rune(needle)
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			a, b := h[i+j], n[j]
			if a != b && a != b+32 && a != b-32 {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (r *fakeMessageRepo) Page(_ context.Context, viewerID, counterpartID string, page, size int, search string) ([]*models.Message, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pageCalls++

	all := r.visible(viewerID, counterpartID, search)
	total := len(all)

	end := total - (page-1)*size
	if end < 0 {
		end = 0
	}
	start := end - size
	if start < 0 {
		start = 0
	}

	var out []*models.Message
	for _, m := range all[start:end] {
		copied := *m
		out = append(out, &copied)
	}
	return out, total, nil
}

func (r *fakeMessageRepo) UpdateContent(_ context.Context, id, content, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return pkg.ErrNotFound
	}
	msg.Content = content
	now := time.Now()
	msg.EditedAt = &now
	return nil
}

func (r *fakeMessageRepo) UpdateStatus(_ context.Context, id string, status models.MessageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return pkg.ErrNotFound
	}
	msg.Status = status
	return nil
}

func (r *fakeMessageRepo) HardDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[id]; !ok {
		return pkg.ErrNotFound
	}
	delete(r.messages, id)
	delete(r.reactions, id)
	return nil
}

func (r *fakeMessageRepo) HideForRecipient(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return pkg.ErrNotFound
	}
	msg.HiddenForRecipient = true
	return nil
}

func (r *fakeMessageRepo) MarkConversationRead(_ context.Context, viewerID, counterpartID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected int64
	for _, m := range r.messages {
		if m.RecipientID == viewerID && m.SenderID == counterpartID && m.IsUnreadFor(viewerID) {
			m.Status = models.MessageRead
			now := time.Now()
			m.ReadAt = &now
			affected++
		}
	}
	return affected, nil
}

func (r *fakeMessageRepo) ClearConversation(_ context.Context, viewerID, counterpartID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.messages {
		if m.SenderID == viewerID && m.RecipientID == counterpartID {
			delete(r.messages, id)
		} else if m.SenderID == counterpartID && m.RecipientID == viewerID {
			m.HiddenForRecipient = true
		}
	}
	return nil
}

func (r *fakeMessageRepo) UnreadCount(_ context.Context, viewerID, counterpartID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.messages {
		if m.SenderID == counterpartID && m.IsUnreadFor(viewerID) {
			count++
		}
	}
	return count, nil
}

func (r *fakeMessageRepo) ListConversations(_ context.Context, viewerID string) ([]*models.ConversationSummary, error) {
	return nil, nil
}

func (r *fakeMessageRepo) ToggleReaction(_ context.Context, messageID, userID, kind string) (models.ReactionChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reactions[messageID] == nil {
		r.reactions[messageID] = make(map[string]string)
	}
	change := models.ResolveReactionToggle(r.reactions[messageID][userID], kind)
	switch change {
	case models.ReactionRemoved:
		delete(r.reactions[messageID], userID)
	default:
		r.reactions[messageID][userID] = kind
	}
	return change, nil
}

func (r *fakeMessageRepo) GetReactionsByMessageIDs(_ context.Context, messageIDs []string) (map[string][]models.ReactionGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]models.ReactionGroup)
	for _, id := range messageIDs {
		byKind := make(map[string][]string)
		for user, kind := range r.reactions[id] {
			byKind[kind] = append(byKind[kind], user)
		}
		for kind, users := range byKind {
			out[id] = append(out[id], models.ReactionGroup{Kind: kind, Count: len(users), Users: users})
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) pageCallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pageCalls
}

// fakeProfileRepo, sabit profiller döner.
type fakeProfileRepo struct{}

func (fakeProfileRepo) GetByID(_ context.Context, id string) (*models.Profile, error) {
	return &models.Profile{ID: id, Username: id}, nil
}
func (fakeProfileRepo) Upsert(context.Context, *models.Profile) error { return nil }
func (fakeProfileRepo) UpdateStatus(context.Context, string, models.PresenceStatus) error {
	return nil
}

// fakeNotifier, üretilen bildirimleri kaydeder.
type fakeNotifier struct {
	mu            sync.Mutex
	notifications []notify.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, notification notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notifications)
}

type fakeChannel struct {
	events chan bus.Event
	errs   chan error
	once   sync.Once
}

func (c *fakeChannel) Events() <-chan bus.Event { return c.events }
func (c *fakeChannel) Errs() <-chan error       { return c.errs }
func (c *fakeChannel) Close() error {
	c.once.Do(func() {
		close(c.events)
		close(c.errs)
	})
	return nil
}

func (c *fakeChannel) die(err error) {
	c.once.Do(func() {
		c.errs <- err
		close(c.events)
		close(c.errs)
	})
}

type fakeOpener struct {
	ch *fakeChannel
}

func (o *fakeOpener) Open(context.Context, string) (bus.Channel, error) {
	return o.ch, nil
}

// ─── Kurulum yardımcıları ───

func testConfig() *config.Config {
	return &config.Config{
		Conversation: config.ConversationConfig{
			PageSize:      5,
			CacheTTL:      time.Minute,
			MarkReadDelay: 30 * time.Millisecond,
		},
		Retry: config.RetryConfig{
			Attempts: 2,
			BaseWait: time.Millisecond,
		},
	}
}

func testSession(t *testing.T, actorID string) *session.Session {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": actorID,
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	s := session.New()
	if err := s.SetToken(token); err != nil {
		t.Fatalf("failed to set token: %v", err)
	}
	return s
}

type storeEnv struct {
	store    *Store
	repo     *fakeMessageRepo
	notifier *fakeNotifier
	channel  *fakeChannel
}

// newStoreEnv, actor için bus'a bağlı tam bir Store kurar.
func newStoreEnv(t *testing.T, actorID string, repo *fakeMessageRepo) *storeEnv {
	t.Helper()

	ch := &fakeChannel{events: make(chan bus.Event, 16), errs: make(chan error, 1)}
	registry := bus.NewRegistry(&fakeOpener{ch: ch})
	t.Cleanup(registry.Close)

	notifier := &fakeNotifier{}
	store := NewStore(testConfig(), repo, fakeProfileRepo{}, registry, testSession(t, actorID), notifier, nil)
	if err := store.Start(context.Background()); err != nil {
		t.Fatalf("failed to start store: %v", err)
	}
	t.Cleanup(store.Close)

	return &storeEnv{store: store, repo: repo, notifier: notifier, channel: ch}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

// seed, repo'ya doğrudan bir mesaj ekler (başka istemciden gelmiş gibi).
func seed(t *testing.T, repo *fakeMessageRepo, sender, recipient, content string) *models.Message {
	t.Helper()
	msg := &models.Message{
		ID:          fmt.Sprintf("seed-%s-%d", content, time.Now().UnixNano()),
		SenderID:    sender,
		RecipientID: recipient,
		Content:     content,
		Status:      models.MessageSent,
		EditHistory: []string{},
	}
	if err := repo.Insert(context.Background(), msg); err != nil {
		t.Fatalf("failed to seed message: %v", err)
	}
	return msg
}

// ─── Testler ───

func TestStoreSend(t *testing.T) {
	ctx := context.Background()

	t.Run("başarılı gönderim", func(t *testing.T) {
		env := newStoreEnv(t, "alice", newFakeMessageRepo())

		msg, err := env.store.Send(ctx, "bob", &models.SendMessageRequest{Content: "merhaba"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.Status != models.MessageSent {
			t.Fatalf("status = %s, want sent", msg.Status)
		}

		page, err := env.store.GetPage(ctx, "bob", 1, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Messages) != 1 || page.Messages[0].Content != "merhaba" {
			t.Fatalf("page = %+v, want the sent message", page.Messages)
		}
	})

	t.Run("geçersiz istek", func(t *testing.T) {
		env := newStoreEnv(t, "alice", newFakeMessageRepo())

		_, err := env.store.Send(ctx, "bob", &models.SendMessageRequest{Content: "   "})
		if !errors.Is(err, pkg.ErrValidation) {
			t.Fatalf("err = %v, want ErrValidation", err)
		}
	})

	t.Run("başarısız gönderim kaybolmaz", func(t *testing.T) {
		repo := newFakeMessageRepo()
		repo.insertErr = errors.New("disk meşgul")
		env := newStoreEnv(t, "alice", repo)

		msg, err := env.store.Send(ctx, "bob", &models.SendMessageRequest{Content: "kayıp olmasın"})
		if err == nil {
			t.Fatal("expected send error")
		}
		if msg == nil || msg.Status != models.MessageFailed {
			t.Fatalf("failed message should be returned with failed status, got %+v", msg)
		}

		// Başarısız mesaj 1. sayfada görünmeye devam eder.
		page, err := env.store.GetPage(ctx, "bob", 1, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Messages) != 1 || page.Messages[0].Status != models.MessageFailed {
			t.Fatalf("page should surface the failed message, got %+v", page.Messages)
		}

		// Yazma yolu düzeldi — Resend başarır ve pending temizlenir.
		repo.mu.Lock()
		repo.insertErr = nil
		repo.mu.Unlock()

		resent, err := env.store.Resend(ctx, "bob", msg.ID)
		if err != nil {
			t.Fatalf("resend failed: %v", err)
		}
		if resent.Status != models.MessageSent {
			t.Fatalf("status = %s, want sent", resent.Status)
		}

		page, _ = env.store.GetPage(ctx, "bob", 1, "")
		if len(page.Messages) != 1 || page.Messages[0].Status != models.MessageSent {
			t.Fatalf("page after resend = %+v, want single sent message", page.Messages)
		}
	})

	t.Run("eşzamanlı gönderim ve okuma", func(t *testing.T) {
		// Yavaş yazma sırasında başka bir goroutine aynı konuşmayı
		// okuyor: pending mesajların durumu ile sayfa kopyalama
		// çakışmamalı (-race ile anlamlı).
		repo := newFakeMessageRepo()
		repo.insertDelay = 10 * time.Millisecond
		env := newStoreEnv(t, "alice", repo)

		done := make(chan struct{})
		var readers sync.WaitGroup
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
					if _, err := env.store.GetPage(ctx, "bob", 1, ""); err != nil {
						t.Errorf("concurrent read failed: %v", err)
						return
					}
				}
			}
		}()

		var senders sync.WaitGroup
		for i := 0; i < 5; i++ {
			senders.Add(1)
			go func(i int) {
				defer senders.Done()
				content := fmt.Sprintf("eşzamanlı-%d", i)
				if _, err := env.store.Send(ctx, "bob", &models.SendMessageRequest{Content: content}); err != nil {
					t.Errorf("concurrent send failed: %v", err)
				}
			}(i)
		}
		senders.Wait()
		close(done)
		readers.Wait()

		page, err := env.store.GetPage(ctx, "bob", 1, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.TotalCount != 5 {
			t.Fatalf("total = %d, want 5", page.TotalCount)
		}
		for _, m := range page.Messages {
			if m.Status != models.MessageSent {
				t.Fatalf("message %q status = %s, want sent", m.Content, m.Status)
			}
		}
	})

	t.Run("başarısız mesaj vazgeçilebilir", func(t *testing.T) {
		repo := newFakeMessageRepo()
		repo.insertErr = errors.New("disk meşgul")
		env := newStoreEnv(t, "alice", repo)

		msg, _ := env.store.Send(ctx, "bob", &models.SendMessageRequest{Content: "vazgeç"})
		env.store.DiscardFailed("bob", msg.ID)

		page, err := env.store.GetPage(ctx, "bob", 1, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Messages) != 0 {
			t.Fatalf("discarded message should not appear, got %+v", page.Messages)
		}
	})
}

func TestStoreGetPage(t *testing.T) {
	ctx := context.Background()

	t.Run("sayfalama ve sıra", func(t *testing.T) {
		repo := newFakeMessageRepo()
		env := newStoreEnv(t, "alice", repo)
		for i := 1; i <= 7; i++ {
			seed(t, repo, "alice", "bob", fmt.Sprintf("mesaj-%d", i))
		}

		// pageSize=5: 1. sayfa son 5 mesaj, kronolojik sırada.
		page, err := env.store.GetPage(ctx, "bob", 1, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.TotalCount != 7 || !page.HasMore {
			t.Fatalf("total=%d hasMore=%v, want 7/true", page.TotalCount, page.HasMore)
		}
		if len(page.Messages) != 5 || page.Messages[0].Content != "mesaj-3" || page.Messages[4].Content != "mesaj-7" {
			t.Fatalf("page 1 = %v, want mesaj-3..mesaj-7", contents(page.Messages))
		}

		page, err = env.store.GetPage(ctx, "bob", 2, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Messages) != 2 || page.HasMore {
			t.Fatalf("page 2 = %v hasMore=%v, want 2 messages / false", contents(page.Messages), page.HasMore)
		}
	})

	t.Run("cache tekrar sorgu atmaz", func(t *testing.T) {
		repo := newFakeMessageRepo()
		env := newStoreEnv(t, "alice", repo)
		seed(t, repo, "alice", "bob", "tek")

		if _, err := env.store.GetPage(ctx, "bob", 1, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		before := repo.pageCallCount()
		if _, err := env.store.GetPage(ctx, "bob", 1, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if repo.pageCallCount() != before {
			t.Fatal("second read should come from cache")
		}
	})

	t.Run("arama filtresi", func(t *testing.T) {
		repo := newFakeMessageRepo()
		env := newStoreEnv(t, "alice", repo)
		seed(t, repo, "alice", "bob", "Fatura ödendi")
		seed(t, repo, "bob", "alice", "hangi fatura?")
		seed(t, repo, "alice", "bob", "elektrik")

		page, err := env.store.GetPage(ctx, "bob", 1, "fatura")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.TotalCount != 2 || len(page.Messages) != 2 {
			t.Fatalf("search results = %v (total %d), want 2 matches", contents(page.Messages), page.TotalCount)
		}
	})
}

func TestStoreEdit(t *testing.T) {
	ctx := context.Background()
	repo := newFakeMessageRepo()
	seeded := seed(t, repo, "alice", "bob", "ilk hali")

	t.Run("gönderici düzenler, tarihçe büyür", func(t *testing.T) {
		env := newStoreEnv(t, "alice", repo)

		msg, err := env.store.Edit(ctx, seeded.ID, &models.EditMessageRequest{Content: "yeni hali"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.Content != "yeni hali" {
			t.Fatalf("content = %q, want %q", msg.Content, "yeni hali")
		}
		if len(msg.EditHistory) != 1 || msg.EditHistory[0] != "ilk hali" {
			t.Fatalf("history = %v, want [ilk hali]", msg.EditHistory)
		}
	})

	t.Run("alıcı düzenleyemez", func(t *testing.T) {
		env := newStoreEnv(t, "bob", repo)

		_, err := env.store.Edit(ctx, seeded.ID, &models.EditMessageRequest{Content: "sahte"})
		if !errors.Is(err, pkg.ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
	})
}

func TestStoreDeleteAsymmetry(t *testing.T) {
	ctx := context.Background()

	t.Run("gönderici silince satır herkes için gider", func(t *testing.T) {
		repo := newFakeMessageRepo()
		msg := seed(t, repo, "alice", "bob", "silinecek")
		env := newStoreEnv(t, "alice", repo)

		if err := env.store.Delete(ctx, msg.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := repo.GetByID(ctx, msg.ID); !errors.Is(err, pkg.ErrNotFound) {
			t.Fatal("hard delete should remove the row entirely")
		}
	})

	t.Run("alıcı silince sadece kendi görünümünden düşer", func(t *testing.T) {
		repo := newFakeMessageRepo()
		msg := seed(t, repo, "alice", "bob", "gizlenecek")
		bobEnv := newStoreEnv(t, "bob", repo)
		aliceEnv := newStoreEnv(t, "alice", repo)

		if err := bobEnv.store.Delete(ctx, msg.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		bobPage, _ := bobEnv.store.GetPage(ctx, "alice", 1, "")
		if len(bobPage.Messages) != 0 {
			t.Fatalf("recipient view = %v, want empty", contents(bobPage.Messages))
		}

		alicePage, _ := aliceEnv.store.GetPage(ctx, "bob", 1, "")
		if len(alicePage.Messages) != 1 {
			t.Fatalf("sender view = %v, want the message to remain", contents(alicePage.Messages))
		}
	})

	t.Run("taraf olmayan silemez", func(t *testing.T) {
		repo := newFakeMessageRepo()
		msg := seed(t, repo, "alice", "bob", "dokunulmaz")
		env := newStoreEnv(t, "carol", repo)

		if err := env.store.Delete(ctx, msg.ID); !errors.Is(err, pkg.ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
	})
}

func TestStoreMarkRead(t *testing.T) {
	ctx := context.Background()
	repo := newFakeMessageRepo()
	seed(t, repo, "alice", "bob", "bir")
	seed(t, repo, "alice", "bob", "iki")
	env := newStoreEnv(t, "bob", repo)

	t.Run("okunmamışlar işaretlenir", func(t *testing.T) {
		affected, err := env.store.MarkRead(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if affected != 2 {
			t.Fatalf("affected = %d, want 2", affected)
		}

		unread, _ := repo.UnreadCount(ctx, "bob", "alice")
		if unread != 0 {
			t.Fatalf("unread = %d, want 0", unread)
		}
	})

	t.Run("tekrar çağrı güvenli", func(t *testing.T) {
		affected, err := env.store.MarkRead(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if affected != 0 {
			t.Fatalf("affected = %d, want 0 on second call", affected)
		}
	})

	t.Run("gecikmeli işaretleme iptal edilebilir", func(t *testing.T) {
		seed(t, repo, "alice", "bob", "üç")

		env.store.MarkReadAfterDelay("alice")
		env.store.CancelMarkRead("alice")
		time.Sleep(60 * time.Millisecond)

		unread, _ := repo.UnreadCount(ctx, "bob", "alice")
		if unread != 1 {
			t.Fatal("cancelled delayed mark-read should not fire")
		}

		env.store.MarkReadAfterDelay("alice")
		waitFor(t, func() bool {
			unread, _ := repo.UnreadCount(ctx, "bob", "alice")
			return unread == 0
		}, "delayed mark-read should fire")
	})
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	repo := newFakeMessageRepo()
	sent := seed(t, repo, "alice", "bob", "benim")
	received := seed(t, repo, "bob", "alice", "onun")
	env := newStoreEnv(t, "alice", repo)

	if err := env.store.Clear(ctx, "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Kendi gönderdiği kalıcı gitti.
	if _, err := repo.GetByID(ctx, sent.ID); !errors.Is(err, pkg.ErrNotFound) {
		t.Fatal("own sent message should be hard-deleted")
	}

	// Aldığı satır duruyor ama alice görünümünden düştü.
	got, err := repo.GetByID(ctx, received.ID)
	if err != nil {
		t.Fatalf("received message should survive: %v", err)
	}
	if !got.HiddenForRecipient {
		t.Fatal("received message should be hidden, not deleted")
	}

	page, _ := env.store.GetPage(ctx, "bob", 1, "")
	if len(page.Messages) != 0 {
		t.Fatalf("cleared conversation should be empty, got %v", contents(page.Messages))
	}
}

func TestStoreToggleReaction(t *testing.T) {
	ctx := context.Background()
	repo := newFakeMessageRepo()
	msg := seed(t, repo, "alice", "bob", "tepki ver")
	env := newStoreEnv(t, "bob", repo)

	steps := []struct {
		kind string
		want models.ReactionChange
	}{
		{"like", models.ReactionAdded},
		{"heart", models.ReactionReplaced},
		{"heart", models.ReactionRemoved},
	}
	for _, step := range steps {
		change, err := env.store.ToggleReaction(ctx, msg.ID, &models.ToggleReactionRequest{Kind: step.kind})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if change != step.want {
			t.Fatalf("toggle(%s) = %s, want %s", step.kind, change, step.want)
		}
	}

	t.Run("taraf olmayan tepki veremez", func(t *testing.T) {
		outsider := newStoreEnv(t, "carol", repo)
		_, err := outsider.store.ToggleReaction(ctx, msg.ID, &models.ToggleReactionRequest{Kind: "like"})
		if !errors.Is(err, pkg.ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
	})
}

func TestStoreBusIntegration(t *testing.T) {
	ctx := context.Background()

	t.Run("insert event cache'i tazeler ve bildirim üretir", func(t *testing.T) {
		repo := newFakeMessageRepo()
		env := newStoreEnv(t, "alice", repo)

		// Cache'i doldur — boş konuşma.
		page, _ := env.store.GetPage(ctx, "bob", 1, "")
		if len(page.Messages) != 0 {
			t.Fatal("conversation should start empty")
		}

		// Karşı istemci mesaj yazdı: satır repo'ya düştü, event bus'tan geldi.
		msg := seed(t, repo, "bob", "alice", "duydun mu?")
		env.channel.events <- bus.Event{
			Op: bus.OpMessageInsert,
			Data: map[string]any{
				"id":           msg.ID,
				"sender_id":    "bob",
				"recipient_id": "alice",
				"status":       "sent",
				"content":      "duydun mu?",
			},
		}

		waitFor(t, func() bool {
			page, err := env.store.GetPage(ctx, "bob", 1, "")
			return err == nil && len(page.Messages) == 1
		}, "event should invalidate the cached page")

		waitFor(t, func() bool {
			return env.notifier.count() == 1
		}, "qualifying insert should produce a notification")
	})

	t.Run("kendi mesajı bildirim üretmez", func(t *testing.T) {
		repo := newFakeMessageRepo()
		env := newStoreEnv(t, "alice", repo)

		msg := seed(t, repo, "alice", "bob", "benden")
		env.channel.events <- bus.Event{
			Op: bus.OpMessageInsert,
			Data: map[string]any{
				"id":           msg.ID,
				"sender_id":    "alice",
				"recipient_id": "bob",
				"status":       "sent",
			},
		}

		waitFor(t, func() bool {
			page, err := env.store.GetPage(ctx, "bob", 1, "")
			return err == nil && len(page.Messages) == 1
		}, "own insert should still refresh the page")

		if env.notifier.count() != 0 {
			t.Fatal("own message must not notify")
		}
	})

	t.Run("aynı event'in tekrarı durumu bozmaz", func(t *testing.T) {
		repo := newFakeMessageRepo()
		env := newStoreEnv(t, "alice", repo)
		msg := seed(t, repo, "bob", "alice", "çift geldi")

		event := bus.Event{
			Op: bus.OpMessageInsert,
			Data: map[string]any{
				"id": msg.ID, "sender_id": "bob", "recipient_id": "alice", "status": "sent",
			},
		}
		env.channel.events <- event
		env.channel.events <- event

		waitFor(t, func() bool {
			page, err := env.store.GetPage(ctx, "bob", 1, "")
			return err == nil && len(page.Messages) == 1 && page.TotalCount == 1
		}, "duplicate events should converge to the same state")
	})

	t.Run("kanal ölünce disconnected bayrağı kalkar", func(t *testing.T) {
		repo := newFakeMessageRepo()
		env := newStoreEnv(t, "alice", repo)

		if env.store.Disconnected() {
			t.Fatal("store should start connected")
		}

		env.channel.die(errors.New("ağ koptu"))
		waitFor(t, func() bool { return env.store.Disconnected() }, "disconnected flag should be set")
	})
}

func contents(messages []models.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Content
	}
	return out
}
