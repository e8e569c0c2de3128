// Package session, aktif kullanıcı kimliğini yönetir.
//
// Core bir client-side kütüphanedir: token'ı doğrulamaz (doğrulama
// sunucunun işidir), sadece içinden aktör kimliğini okur. Bu yüzden
// ParseUnverified kullanılır — imza kontrolü yapılmaz, claim'ler
// olduğu gibi okunur.
package session

import (
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/paraf/pkg"
)

// Session, oturum token'ını ve ondan türetilen aktör kimliğini tutar.
// Thread-safe'dir — UI thread'i token yenilerken arka plan goroutine'leri
// ActorID okuyabilir.
type Session struct {
	mu      sync.RWMutex
	token   string
	actorID string
}

// New, boş bir Session oluşturur. Token set edilene kadar tüm
// operasyonlar pkg.ErrAuthRequired döner.
func New() *Session {
	return &Session{}
}

// SetToken, JWT token'ı kaydeder ve subject claim'inden aktör kimliğini çıkarır.
func (s *Session) SetToken(token string) error {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("%w: invalid token", pkg.ErrAuthRequired)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return fmt.Errorf("%w: token has no subject", pkg.ErrAuthRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.actorID = subject
	return nil
}

// ActorID, oturum açmış kullanıcının kimliğini döner.
// Oturum yoksa pkg.ErrAuthRequired.
func (s *Session) ActorID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.actorID == "" {
		return "", pkg.ErrAuthRequired
	}
	return s.actorID, nil
}

// Token, ham token'ı döner (bus bağlantısı açılırken gönderilir).
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Clear, oturumu sonlandırır.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.actorID = ""
}
