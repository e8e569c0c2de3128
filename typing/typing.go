// Package typing, "yazıyor..." sinyalinin iki yarısını yönetir.
//
// Notifier gönderen taraftır: her tuş vuruşunda çağrılır ama karşıya
// her vuruşta sinyal BASMAZ — ilk vuruşta true gönderir, sessizlik
// süresi dolunca false gönderir (debounce).
//
// Watcher alan taraftır: bus'tan gelen typing event'lerini izler ve
// yenilenmeyen "yazıyor" durumunu liveness süresi sonunda kendiliğinden
// false'a düşürür. Karşı tarafın "durdum" sinyali kaybolsa bile gösterge
// sonsuza kadar asılı kalmaz.
package typing

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/akinalp/paraf/bus"
	"github.com/akinalp/paraf/models"
	"github.com/akinalp/paraf/repository"
)

// ─── Gönderen taraf ───

// Notifier, aktörün typing sinyallerini debounce ederek yayınlar.
type Notifier struct {
	mu       sync.Mutex
	repo     repository.TypingRepository
	actorID  string
	debounce time.Duration
	timers   map[string]*time.Timer // counterpart → sessizlik sayacı
	closed   bool
}

// NewNotifier, yeni bir typing notifier oluşturur.
func NewNotifier(repo repository.TypingRepository, actorID string, debounce time.Duration) *Notifier {
	return &Notifier{
		repo:     repo,
		actorID:  actorID,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
	}
}

// Keystroke, aktörün counterpart'a yazdığını bildirir.
//
// İlk vuruşta "yazıyor" yayınlanır. Sonraki her vuruş sadece sessizlik
// sayacını sıfırlar — yeni sinyal gitmez. Sayaç dolunca "durdu"
// otomatik yayınlanır.
func (n *Notifier) Keystroke(ctx context.Context, counterpartID string) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}

	if t, ok := n.timers[counterpartID]; ok {
		// Zaten "yazıyor" durumundayız — sayacı tazele, sinyal basma.
		t.Reset(n.debounce)
		n.mu.Unlock()
		return nil
	}

	n.timers[counterpartID] = time.AfterFunc(n.debounce, func() {
		n.expire(counterpartID)
	})
	n.mu.Unlock()

	return n.publish(ctx, counterpartID, true)
}

// Stop, aktörün yazmayı bıraktığını hemen bildirir (ör: mesaj gönderildi
// veya konuşma kapatıldı). Sayaç beklenmez.
func (n *Notifier) Stop(ctx context.Context, counterpartID string) error {
	n.mu.Lock()
	t, ok := n.timers[counterpartID]
	if ok {
		t.Stop()
		delete(n.timers, counterpartID)
	}
	n.mu.Unlock()

	if !ok {
		// "Yazıyor" hiç yayınlanmadı — "durdu" göndermek gereksiz.
		return nil
	}

	return n.publish(ctx, counterpartID, false)
}

// Close, tüm sayaçları durdurur. Bekleyen "durdu" sinyalleri gönderilmez.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	for cp, t := range n.timers {
		t.Stop()
		delete(n.timers, cp)
	}
}

// expire, sessizlik sayacı dolduğunda çağrılır.
func (n *Notifier) expire(counterpartID string) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	delete(n.timers, counterpartID)
	n.mu.Unlock()

	// Timer callback'inin context'i yoktur — kısa bir zaman aşımı yeter.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.publish(ctx, counterpartID, false); err != nil {
		log.Printf("[typing] failed to publish stop signal: %v", err)
	}
}

func (n *Notifier) publish(ctx context.Context, counterpartID string, isTyping bool) error {
	return n.repo.UpsertTyping(ctx, &models.TypingStatus{
		ActorID:       n.actorID,
		CounterpartID: counterpartID,
		IsTyping:      isTyping,
		UpdatedAt:     time.Now().UTC(),
	})
}

// ─── Alan taraf ───

// Watcher, bus'tan gelen typing sinyallerini izler.
type Watcher struct {
	mu       sync.Mutex
	states   map[string]bool        // actor → yazıyor mu
	timers   map[string]*time.Timer // actor → liveness sayacı
	liveness time.Duration
	handle   *bus.Handle
	onChange func(actorID string, isTyping bool)
	closed   bool
}

// NewWatcher, kullanıcıya yönelik typing akışına abone olur.
//
// onChange, bir aktörün typing durumu her değiştiğinde çağrılır
// (UI göstergesini günceller). nil geçilebilir — IsTyping ile poll
// etmek de mümkündür.
func NewWatcher(ctx context.Context, registry *bus.Registry, userID string, liveness time.Duration, onChange func(actorID string, isTyping bool)) *Watcher {
	w := &Watcher{
		states:   make(map[string]bool),
		timers:   make(map[string]*time.Timer),
		liveness: liveness,
		onChange: onChange,
	}

	w.handle = registry.Acquire(ctx, bus.TypingKey(userID), bus.Listener{
		OnEvent: w.onEvent,
		OnDown: func(err error) {
			// Bağlantı öldü — asılı göstergeleri hemen temizle, liveness
			// sayaçlarını bekletme.
			w.reset()
		},
	})

	return w
}

// IsTyping, aktörün şu anda yazıp yazmadığını döner.
func (w *Watcher) IsTyping(actorID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.states[actorID]
}

// Close, aboneliği bırakır ve tüm sayaçları durdurur.
func (w *Watcher) Close() {
	w.handle.Release()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for actor, t := range w.timers {
		t.Stop()
		delete(w.timers, actor)
	}
	w.states = make(map[string]bool)
}

func (w *Watcher) onEvent(e bus.Event) {
	if e.Op != bus.OpTyping {
		return
	}

	var data bus.TypingEventData
	if err := bus.DecodeData(e, &data); err != nil {
		log.Printf("[typing] dropped malformed typing event: %v", err)
		return
	}

	w.apply(data.ActorID, data.IsTyping)
}

// apply, aktörün durumunu günceller ve liveness sayacını yönetir.
//
// "Yazıyor" geldiğinde sayaç kurulur/tazelenir: yenilenmeyen sinyal
// liveness süresi sonunda otomatik "durdu"ya döner. "Durdu" geldiğinde
// sayaç iptal edilir.
func (w *Watcher) apply(actorID string, isTyping bool) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}

	prev := w.states[actorID]

	if isTyping {
		w.states[actorID] = true
		if t, ok := w.timers[actorID]; ok {
			t.Reset(w.liveness)
		} else {
			w.timers[actorID] = time.AfterFunc(w.liveness, func() {
				w.apply(actorID, false)
			})
		}
	} else {
		delete(w.states, actorID)
		if t, ok := w.timers[actorID]; ok {
			t.Stop()
			delete(w.timers, actorID)
		}
	}

	changed := prev != isTyping
	onChange := w.onChange
	w.mu.Unlock()

	if changed && onChange != nil {
		onChange(actorID, isTyping)
	}
}

// reset, tüm durumları düşürür ve değişenleri bildirir.
func (w *Watcher) reset() {
	w.mu.Lock()
	var active []string
	for actor, typing := range w.states {
		if typing {
			active = append(active, actor)
		}
	}
	w.states = make(map[string]bool)
	for actor, t := range w.timers {
		t.Stop()
		delete(w.timers, actor)
	}
	onChange := w.onChange
	w.mu.Unlock()

	if onChange != nil {
		for _, actor := range active {
			onChange(actor, false)
		}
	}
}
