// Package notify, gelen mesajlar için bildirim yan kanalını sağlar.
//
// Core, bildirimi KENDİSİ göstermez — platform bağımlıdır. Notifier
// interface'i üzerinden dışarı verir: masaüstü kabuğu native bildirim
// gösterir, headless kurulum push gateway'e iletir.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/akinalp/paraf/pkg"
)

// Notification, kullanıcıya gösterilecek bildirim içeriği.
type Notification struct {
	Title      string  `json:"title"`
	Body       string  `json:"body"`
	SenderID   string  `json:"sender_id"`
	SenderName string  `json:"sender_name"`
	AvatarURL  *string `json:"avatar_url,omitempty"`
}

// Notifier, bildirim gösterebilen herhangi bir hedef.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ─── HTTP gateway implementasyonu ───

// HTTPGateway, bildirimi uzak push gateway'e POST eden Notifier.
type HTTPGateway struct {
	url    string
	client *http.Client
}

// NewHTTPGateway, yeni bir push gateway notifier oluşturur.
func NewHTTPGateway(url string) *HTTPGateway {
	return &HTTPGateway{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify, bildirimi JSON olarak gateway'e gönderir.
func (g *HTTPGateway) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to reach push gateway: %v", pkg.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: push gateway returned %d", pkg.ErrNetwork, resp.StatusCode)
	}

	return nil
}

// ─── No-op implementasyonu ───

// Noop, bildirimleri loglayıp yutan Notifier. Push gateway
// yapılandırılmamışsa kullanılır — üst katman nil kontrolü yapmaz.
type Noop struct{}

// Notify, bildirimi loglar ve başarı döner.
func (Noop) Notify(_ context.Context, n Notification) error {
	log.Printf("[notify] (noop) %s: %s", n.Title, n.Body)
	return nil
}
