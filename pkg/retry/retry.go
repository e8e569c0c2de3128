// Package retry, geçici hatalara karşı sınırlı sayıda tekrar deneme sağlar.
//
// Optimistic send akışında kullanılır: lokal yazma geçici olarak
// başarısız olursa (dosya lock'u, disk meşgul) birkaç deneme mesajı
// kurtarabilir. Denemeler arası bekleme her seferinde ikiye katlanır
// (exponential backoff) — sistem zaten sıkışıkken üstüne yüklenilmez.
package retry

import (
	"context"
	"time"
)

// Do, fn'i en fazla attempts kez dener.
//
// İlk başarıda nil döner. Tüm denemeler tükenirse SON hata döner —
// caller ilk geçici hatayı değil, en güncel durumu görür.
// Context iptal edilirse bekleme kesilir ve ctx.Err() döner.
func Do(ctx context.Context, attempts int, baseWait time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	wait := baseWait
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}

		// Son denemeden sonra beklemeye gerek yok.
		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		wait *= 2
	}

	return err
}
