package bus

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// Kayıt durumları. State() testlerde ve debug loglarında kullanılır.
const (
	StateAbsent      = "absent"      // Kaynak için kayıt yok
	StateSubscribing = "subscribing" // Kanal açılıyor, henüz hazır değil
	StateSubscribed  = "subscribed"  // Kanal açık, event'ler akıyor
)

// Listener, bir kaynağa abone olan tarafın callback'leri.
//
// OnEvent her event'te çağrılır. OnDown kanal öldüğünde BİR kez çağrılır;
// sonrasında kayıt silinmiştir, dinleyici isterse yeniden Acquire eder —
// otomatik yeniden bağlanma Registry'nin işi değildir, çünkü ne zaman
// ve kaç kez denenecegi üst katmanın (ör. UI'ın bağlantı göstergesi)
// politikasıdır.
type Listener struct {
	OnEvent func(Event)
	OnDown  func(error)
}

// entry, tek bir kaynak key'inin kaydı.
// Aynı key'e abone tüm dinleyiciler bu kaydı ve içindeki TEK kanalı paylaşır.
type entry struct {
	state     string
	ch        Channel
	listeners map[int64]Listener
	refs      int
}

// Registry, kaynak başına tek fiziksel kanal garantisi veren çoğullayıcıdır.
//
// Aynı key için üst üste gelen Acquire çağrıları tek kanal açar:
// ilk çağrı kaydı "subscribing" durumunda oluşturup açılışı başlatır,
// sonrakiler sadece dinleyici ekler. Son Release kaydı düşürür ve
// kanalı kapatır.
type Registry struct {
	mu      sync.Mutex
	opener  Opener
	entries map[string]*entry
	nextID  atomic.Int64
}

// NewRegistry, yeni bir Registry oluşturur.
func NewRegistry(opener Opener) *Registry {
	return &Registry{
		opener:  opener,
		entries: make(map[string]*entry),
	}
}

// Handle, tek bir dinleyicinin aboneliğini temsil eder.
// Release çağrılana kadar abonelik canlıdır.
type Handle struct {
	registry *Registry
	key      string
	id       int64
	once     sync.Once
}

// Acquire, key kaynağına abone olur.
//
// Kayıt yoksa oluşturulur ve kanal açılışı arka planda başlar — Acquire
// açılışı BEKLEMEZ, event'ler kanal hazır olunca akmaya başlar. Kayıt
// varsa (açılıyor veya açık) sadece dinleyici eklenir; iki durumda da
// dönen Handle aynı şekilde çalışır.
func (r *Registry) Acquire(ctx context.Context, key string, l Listener) *Handle {
	id := r.nextID.Add(1)

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{
			state:     StateSubscribing,
			listeners: make(map[int64]Listener),
		}
		r.entries[key] = e
		go r.open(ctx, key, e)
	}
	e.listeners[id] = l
	e.refs++
	r.mu.Unlock()

	return &Handle{registry: r, key: key, id: id}
}

// Release, aboneliği bırakır. Idempotent'tir — ikinci çağrı no-op.
// Son dinleyici ayrıldığında kayıt silinir ve kanal kapatılır.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.registry.release(h.key, h.id)
	})
}

func (r *Registry) release(key string, id int64) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return
	}

	if _, ok := e.listeners[id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(e.listeners, id)
	e.refs--

	var ch Channel
	if e.refs == 0 {
		delete(r.entries, key)
		ch = e.ch
	}
	r.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
		log.Printf("[bus] released last subscriber, channel closed: %s", key)
	}
}

// State, key kaydının mevcut durumunu döner.
func (r *Registry) State(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return StateAbsent
	}
	return e.state
}

// Close, tüm kayıtları düşürür ve kanalları kapatır.
// Kalan dinleyicilere OnDown çağrılmaz — kapanış bir hata değildir.
func (r *Registry) Close() {
	r.mu.Lock()
	var channels []Channel
	for key, e := range r.entries {
		if e.ch != nil {
			channels = append(channels, e.ch)
		}
		delete(r.entries, key)
	}
	r.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
}

// open, kanalı açar ve başarılıysa event pompasını başlatır.
//
// Açılış sürerken tüm dinleyiciler ayrılmış olabilir — kayıt haritadan
// silinmiştir. Bu durumda açılan kanal hemen kapatılır; haritadaki
// BAŞKA bir kayda (aynı key yeniden acquire edilmişse) dokunulmaz.
// Pointer karşılaştırması bu "hâlâ güncel miyim" kontrolüdür.
func (r *Registry) open(ctx context.Context, key string, e *entry) {
	ch, err := r.opener.Open(ctx, key)

	r.mu.Lock()
	current, ok := r.entries[key]
	if !ok || current != e {
		r.mu.Unlock()
		if ch != nil {
			_ = ch.Close()
		}
		return
	}

	if err != nil {
		delete(r.entries, key)
		listeners := snapshot(e.listeners)
		r.mu.Unlock()

		log.Printf("[bus] failed to open channel %s: %v", key, err)
		for _, l := range listeners {
			if l.OnDown != nil {
				l.OnDown(err)
			}
		}
		return
	}

	e.state = StateSubscribed
	e.ch = ch
	r.mu.Unlock()

	log.Printf("[bus] channel subscribed: %s", key)
	go r.pump(key, e, ch)
}

// pump, kanal event'lerini dinleyicilere dağıtır.
//
// Events kanalı kapandığında akış bitmiştir: Errs'ten varsa ölüm sebebi
// okunur ve kayıt düşürülür. Release ile tetiklenen normal kapanışta
// kayıt zaten silinmiştir — teardown no-op olur ve OnDown çağrılmaz.
func (r *Registry) pump(key string, e *entry, ch Channel) {
	for event := range ch.Events() {
		r.mu.Lock()
		listeners := snapshot(e.listeners)
		r.mu.Unlock()

		// Callback'ler lock DIŞINDA çağrılır — bir dinleyici callback
		// içinden Acquire/Release çağırabilir, deadlock olmamalı.
		for _, l := range listeners {
			if l.OnEvent != nil {
				l.OnEvent(event)
			}
		}
	}

	// Errs de kapandığı için bekleme yok: hata yazılmadıysa nil gelir.
	err := <-ch.Errs()

	r.mu.Lock()
	current, ok := r.entries[key]
	if !ok || current != e {
		r.mu.Unlock()
		return
	}
	delete(r.entries, key)
	listeners := snapshot(e.listeners)
	r.mu.Unlock()

	log.Printf("[bus] channel down: %s (%v)", key, err)
	for _, l := range listeners {
		if l.OnDown != nil {
			l.OnDown(err)
		}
	}
}

// snapshot, dinleyici haritasının kopyasını döner. Kopya lock altında
// alınır, callback'ler kopya üzerinden çağrılır.
func snapshot(listeners map[int64]Listener) []Listener {
	out := make([]Listener, 0, len(listeners))
	for _, l := range listeners {
		out = append(out, l)
	}
	return out
}
