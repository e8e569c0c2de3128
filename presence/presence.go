// Package presence, online durum takibini yönetir.
//
// İki yön vardır: aktörün KENDİ durumunu ilan etmesi (heartbeat ile
// periyodik tazelenir) ve BAŞKALARININ durumunu gözlemlemek. Gözlemci
// tarafta "online" iddiası tek başına yetmez — son aktiflik damgası
// eskidiyse kullanıcı offline sayılır. Çökmüş bir istemci "offline"
// sinyali gönderemez; zaman aşımı bu boşluğu kapatır.
package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/akinalp/paraf/bus"
	"github.com/akinalp/paraf/models"
	"github.com/akinalp/paraf/repository"
)

// Tracker, aktörün kendi durumunu yayınlar ve diğer kullanıcıların
// durumunu izler.
type Tracker struct {
	mu           sync.Mutex
	repo         repository.ProfileRepository
	actorID      string
	offlineAfter time.Duration
	states       map[string]models.Presence
	announced    models.PresenceStatus // Aktörün son açık ilanı — heartbeat bunu tazeler
	handle       *bus.Handle
	ticker       *time.Ticker
	done         chan struct{}
	stopOnce     sync.Once
	onChange     func(userID string, online bool)
}

// New, presence tracker oluşturur: presence akışına abone olur ve
// heartbeat döngüsünü başlatır.
//
// onChange, bir kullanıcının online/offline durumu değiştiğinde çağrılır;
// nil geçilebilir.
func New(ctx context.Context, registry *bus.Registry, repo repository.ProfileRepository, actorID string, heartbeat, offlineAfter time.Duration, onChange func(userID string, online bool)) *Tracker {
	t := &Tracker{
		repo:         repo,
		actorID:      actorID,
		offlineAfter: offlineAfter,
		states:       make(map[string]models.Presence),
		done:         make(chan struct{}),
		onChange:     onChange,
	}

	t.handle = registry.Acquire(ctx, bus.PresenceKey(actorID), bus.Listener{
		OnEvent: t.onEvent,
		OnDown: func(err error) {
			log.Printf("[presence] stream down: %v", err)
		},
	})

	t.ticker = time.NewTicker(heartbeat)
	go t.heartbeatLoop()

	return t
}

// GoOnline, aktörü online ilan eder. Heartbeat döngüsü bu ilanı
// periyodik tazeler.
func (t *Tracker) GoOnline(ctx context.Context) error {
	t.mu.Lock()
	t.announced = models.PresenceOnline
	t.mu.Unlock()
	return t.repo.UpdateStatus(ctx, t.actorID, models.PresenceOnline)
}

// GoOffline, aktörü offline ilan eder (uygulama kapanırken veya
// kullanıcı görünmez olmak istediğinde çağrılır). İlan kalıcıdır:
// heartbeat döngüsü offline bir aktörü geri online'a ÇEKMEZ.
// Hiç çağrılmazsa gözlemciler zaman aşımıyla aynı sonuca varır,
// sadece daha geç.
func (t *Tracker) GoOffline(ctx context.Context) error {
	t.mu.Lock()
	t.announced = models.PresenceOffline
	t.mu.Unlock()
	return t.repo.UpdateStatus(ctx, t.actorID, models.PresenceOffline)
}

// IsOnline, kullanıcının şu anda online sayılıp sayılmadığını döner.
//
// "Online" iddiası + taze aktiflik damgası gerekir. Damga offlineAfter
// süresinden eskiyse iddiaya güvenilmez.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.states[userID]
	if !ok || p.Status != models.PresenceOnline {
		return false
	}
	return time.Since(p.LastActiveAt) <= t.offlineAfter
}

// LastSeen, kullanıcının bilinen son aktiflik zamanını döner.
// Hiç görülmediyse ikinci dönüş değeri false olur.
func (t *Tracker) LastSeen(userID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.states[userID]
	if !ok {
		return time.Time{}, false
	}
	return p.LastActiveAt, true
}

// Close, heartbeat döngüsünü durdurur ve aboneliği bırakır.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.ticker.Stop()
		t.handle.Release()
	})
}

// heartbeatLoop, aktörün ONLINE ilanını periyodik tazeler.
//
// Sadece son açık ilan online ise atar: offline ilan edilmiş (veya hiç
// ilan vermemiş) bir aktörün damgasını tazelemek onu istemeden geri
// online gösterirdi. Offline durum tazelik gerektirmez — gözlemciler
// zaten eksik heartbeat'i offline sayar.
func (t *Tracker) heartbeatLoop() {
	for {
		select {
		case <-t.ticker.C:
			t.mu.Lock()
			announced := t.announced
			t.mu.Unlock()
			if announced != models.PresenceOnline {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := t.repo.UpdateStatus(ctx, t.actorID, models.PresenceOnline); err != nil {
				log.Printf("[presence] heartbeat failed: %v", err)
			}
			cancel()
		case <-t.done:
			return
		}
	}
}

func (t *Tracker) onEvent(e bus.Event) {
	if e.Op != bus.OpPresence {
		return
	}

	var data bus.PresenceEventData
	if err := bus.DecodeData(e, &data); err != nil {
		log.Printf("[presence] dropped malformed presence event: %v", err)
		return
	}

	t.mu.Lock()
	prev, had := t.states[data.UserID]
	t.states[data.UserID] = models.Presence{
		UserID:       data.UserID,
		Status:       models.PresenceStatus(data.Status),
		LastActiveAt: data.LastActiveAt,
	}
	onChange := t.onChange
	t.mu.Unlock()

	// Profil satırı da tazelenir — konuşma listesi son görülme
	// zamanını DB'den okur.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := t.repo.UpdateStatus(ctx, data.UserID, models.PresenceStatus(data.Status)); err != nil {
		log.Printf("[presence] failed to persist status for %s: %v", data.UserID, err)
	}
	cancel()

	if onChange != nil {
		nowOnline := models.PresenceStatus(data.Status) == models.PresenceOnline
		wasOnline := had && prev.Status == models.PresenceOnline
		if nowOnline != wasOnline {
			onChange(data.UserID, nowOnline)
		}
	}
}
