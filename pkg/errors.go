// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// Go'da error'lar basit değerlerdir (string taşıyan struct'lar).
// errors.New() ile sabit error değişkenleri tanımlarız.
// Böylece error karşılaştırması string yerine referans ile yapılır:
//
//	if errors.Is(err, pkg.ErrNotFound) { ... }
//
// Bu, typo'ya açık string karşılaştırmasından çok daha güvenlidir.
package pkg

import "errors"

// Domain-level error'lar.
// Store katmanı bunları döner, UI katmanı errors.Is ile ayrıştırıp
// kullanıcıya uygun (kurtarılabilir) mesajı gösterir.
var (
	// ErrAuthRequired: Oturum açmış kullanıcı yok — işlem baştan reddedilir.
	ErrAuthRequired = errors.New("authentication required")

	// ErrForbidden: İşlem sahiplik kuralını ihlal ediyor
	// (ör: başkasının mesajını düzenleme/kalıcı silme denemesi).
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound: Hedef kayıt bulunamadı — mutasyon tamamlanmadan
	// kayıt silinmiş olabilir.
	ErrNotFound = errors.New("not found")

	// ErrValidation: İstek içeriği geçersiz (ör: eki olmayan boş mesaj).
	ErrValidation = errors.New("validation failed")

	// ErrNetwork: Ağ/kanal hatası — bağlantı kopması, timeout, zorla kapanma.
	ErrNetwork = errors.New("network failure")

	// ErrInternal: Beklenmeyen iç hata.
	ErrInternal = errors.New("internal error")
)
