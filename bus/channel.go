package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/paraf/pkg"
)

// Channel, tek bir kaynağa açılmış fiziksel bağlantıyı temsil eder.
//
// Events kanalı event akışını, Errs kanalı ölümcül bağlantı hatasını
// taşır. Errs'e bir hata düştüğünde kanal ölüdür — Registry onu tespit
// edip dinleyicilere haber verir.
type Channel interface {
	Events() <-chan Event
	Errs() <-chan error
	Close() error
}

// Opener, verilen kaynak için kanal açar.
// Interface olmasının sebebi testlerdir: Registry gerçek WebSocket
// yerine fake opener ile test edilir.
type Opener interface {
	Open(ctx context.Context, key string) (Channel, error)
}

// WSOpener, Opener'ın gorilla/websocket implementasyonu.
type WSOpener struct {
	BaseURL string // ör: wss://sync.paraf.app/bus
	Token   string
	Dialer  *websocket.Dialer
}

// NewWSOpener, yeni bir WebSocket opener oluşturur.
// handshakeTimeout config'ten gelir (BUS_HANDSHAKE_TIMEOUT_MS) —
// DefaultDialer'ın 45 saniyesi masaüstü uygulaması için çok uzundur.
func NewWSOpener(baseURL, token string, handshakeTimeout time.Duration) *WSOpener {
	return &WSOpener{
		BaseURL: baseURL,
		Token:   token,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Open, kaynağa WebSocket bağlantısı kurar ve okuma pompasını başlatır.
func (o *WSOpener) Open(ctx context.Context, key string) (Channel, error) {
	u, err := url.Parse(o.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid bus url: %v", pkg.ErrInternal, err)
	}

	q := u.Query()
	q.Set("key", key)
	if o.Token != "" {
		q.Set("token", o.Token)
	}
	u.RawQuery = q.Encode()

	conn, _, err := o.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial bus: %v", pkg.ErrNetwork, err)
	}

	ch := &wsChannel{
		conn: conn,
		// Buffer, dinleyici yavaş kaldığında kısa patlamaları emer.
		// Dolarsa okuma pompası bloklanır ve backpressure TCP'ye yansır.
		events: make(chan Event, 64),
		errs:   make(chan error, 1),
	}

	go ch.readPump(key)

	return ch, nil
}

// wsChannel, Channel'ın WebSocket implementasyonu.
type wsChannel struct {
	conn      *websocket.Conn
	events    chan Event
	errs      chan error
	closeOnce sync.Once
}

func (c *wsChannel) Events() <-chan Event { return c.events }
func (c *wsChannel) Errs() <-chan error   { return c.errs }

// Close, bağlantıyı kapatır. Okuma pompası kapanışı hata olarak görür
// ama Errs kanalına yazmaz — normal kapanış hata değildir.
func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// readPump, bağlantıdan event okuyup Events kanalına aktarır.
// İlk okuma hatasında durur: hatayı Errs'e yazar ve iki kanalı da
// kapatır. Kapalı Events kanalı dinleyen taraf için "akış bitti"
// sinyalidir.
func (c *wsChannel) readPump(key string) {
	defer func() {
		close(c.events)
		close(c.errs)
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[bus] channel %s closed unexpectedly: %v", key, err)
				c.errs <- fmt.Errorf("%w: %v", pkg.ErrNetwork, err)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			// Bozuk frame akışı öldürmez, loglanıp atlanır.
			log.Printf("[bus] channel %s dropped malformed frame: %v", key, err)
			continue
		}

		c.events <- event
	}
}
