// Package cache, TTL (time-to-live) destekli generic in-memory cache sağlar.
//
// Konuşma store'u sayfa sonuçlarını ve profil lookup'larını bu cache'te
// tutar: aynı sayfaya art arda bakmak diske inmez, bus'tan yeni event
// geldiğinde ilgili girişler invalidate edilir.
//
// Generic tasarım [K comparable, V any] sayesinde her key/value tipi için
// ayrı cache yazmak gerekmez — tip güvenliği derleme zamanında sağlanır.
package cache

import (
	"sync"
	"time"
)

// entry, cache'teki tek bir girişi temsil eder.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache, süre aşımlı generic in-memory cache.
// Tüm metotlar thread-safe'dir.
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]entry[V]
	ttl     time.Duration
	done    chan struct{}
	stopped sync.Once
}

// New, yeni bir TTLCache oluşturur ve arka planda temizlik goroutine'i başlatır.
//
// ttl: Her girişin yaşam süresi
// cleanupInterval: Süresi dolan girişlerin toplanma sıklığı
func New[K comparable, V any](ttl, cleanupInterval time.Duration) *TTLCache[K, V] {
	c := &TTLCache[K, V]{
		items: make(map[K]entry[V]),
		ttl:   ttl,
		done:  make(chan struct{}),
	}

	go c.cleanupLoop(cleanupInterval)

	return c
}

// Get, key'e karşılık gelen değeri döner.
// Giriş yoksa veya süresi dolmuşsa ikinci dönüş değeri false olur.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set, key'e değer atar. Var olan giriş üzerine yazılır ve TTL sıfırlanır.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[V]{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Delete, tek bir girişi siler. Giriş yoksa no-op.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// DeleteFunc, predicate'in true döndüğü tüm girişleri siler.
//
// Konuşma invalidation'ı buradan geçer: bir counterpart için yeni mesaj
// geldiğinde o counterpart'ın TÜM sayfaları (farklı sayfa numarası,
// boyut ve arama terimi kombinasyonları) tek çağrıyla düşürülür.
func (c *TTLCache[K, V]) DeleteFunc(pred func(key K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.items {
		if pred(key) {
			delete(c.items, key)
		}
	}
}

// Clear, tüm girişleri siler.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]entry[V])
}

// Len, süresi dolmamış giriş sayısını döner.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	n := 0
	for _, e := range c.items {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// Close, temizlik goroutine'ini durdurur.
// Cache'i kapatmadan uygulamayı sonlandırmak goroutine leak yaratır.
func (c *TTLCache[K, V]) Close() {
	c.stopped.Do(func() {
		close(c.done)
	})
}

// cleanupLoop, periyodik olarak süresi dolan girişleri siler.
// Get zaten süresi dolanları görmez; bu döngü sadece bellek geri kazanır.
func (c *TTLCache[K, V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.items {
				if now.After(e.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}
