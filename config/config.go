// Package config, mesajlaşma core'unun tüm konfigürasyonunu merkezi yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
//
// Her alt bölüm ayrı bir struct — her struct tek bir concern'ü temsil eder.
// Uygulama her yerde os.Getenv() çağırmak yerine tek bir Config nesnesi taşır.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config, core'un tüm konfigürasyon değerlerini taşır.
type Config struct {
	Database     DatabaseConfig
	Bus          BusConfig
	Typing       TypingConfig
	Presence     PresenceConfig
	Conversation ConversationConfig
	Push         PushConfig
	Retry        RetryConfig
}

// DatabaseConfig, lokal SQLite store ayarları.
type DatabaseConfig struct {
	Path string // SQLite dosya yolu (ör: ./data/paraf.db)
}

// BusConfig, realtime event bus bağlantı ayarları.
type BusConfig struct {
	URL              string // WebSocket endpoint (ör: wss://sync.paraf.app/bus)
	Token            string // Erişim token'ı — kanal açılışında query param olarak gönderilir
	HandshakeTimeout time.Duration
}

// TypingConfig, typing sinyali zamanlama ayarları.
//
// Debounce: son tuş vuruşundan sonra "yazmayı bıraktı" sinyalinin
// otomatik gönderilmesine kadar geçen süre.
// Liveness: alıcı tarafın, yenilenmeyen bir "yazıyor" sinyalini lokal
// olarak false'a düşürmesi için beklediği süre. Liveness > Debounce
// olmalıdır — aksi halde aktif yazan kullanıcı bile "durdu" görünür.
type TypingConfig struct {
	Debounce time.Duration
	Liveness time.Duration
}

// PresenceConfig, online durum takip ayarları.
//
// OfflineAfter, heartbeat'siz geçen bu süreden sonra gözlemcinin
// kullanıcıyı offline saymasını belirler. Heartbeat'in 3 katı makuldür —
// tek bir kayıp heartbeat kullanıcıyı offline düşürmez.
type PresenceConfig struct {
	Heartbeat    time.Duration
	OfflineAfter time.Duration
}

// ConversationConfig, konuşma store ayarları.
type ConversationConfig struct {
	PageSize      int           // Varsayılan sayfa boyutu
	CacheTTL      time.Duration // Sayfa cache'inin yaşam süresi
	MarkReadDelay time.Duration // Konuşma açıldıktan sonra okundu işaretleme gecikmesi
}

// PushConfig, push notification yan kanalı ayarları.
type PushConfig struct {
	GatewayURL string // Boşsa push bildirimi devre dışıdır
}

// RetryConfig, query katmanının geçici hata retry politikası.
type RetryConfig struct {
	Attempts int
	BaseWait time.Duration // Her denemede ikiye katlanır (bounded backoff)
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler (development kolaylığı için).
func Load() (*Config, error) {
	// .env dosyası yoksa hata vermez, sessizce devam eder.
	// Production'da bu dosya olmaz, gerçek env variable'lar kullanılır.
	_ = godotenv.Load()

	debounce, err := getDurationMS("TYPING_DEBOUNCE_MS", 2000)
	if err != nil {
		return nil, err
	}
	liveness, err := getDurationMS("TYPING_LIVENESS_MS", 4000)
	if err != nil {
		return nil, err
	}
	if liveness <= debounce {
		return nil, fmt.Errorf("TYPING_LIVENESS_MS must be greater than TYPING_DEBOUNCE_MS")
	}

	heartbeat, err := getDurationMS("PRESENCE_HEARTBEAT_MS", 30000)
	if err != nil {
		return nil, err
	}
	offlineAfter, err := getDurationMS("PRESENCE_OFFLINE_TIMEOUT_MS", 90000)
	if err != nil {
		return nil, err
	}

	pageSize, err := getInt("CONVERSATION_PAGE_SIZE", 30)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getDurationMS("CONVERSATION_CACHE_TTL_MS", 30000)
	if err != nil {
		return nil, err
	}
	markReadDelay, err := getDurationMS("MARK_READ_DELAY_MS", 400)
	if err != nil {
		return nil, err
	}

	handshake, err := getDurationMS("BUS_HANDSHAKE_TIMEOUT_MS", 10000)
	if err != nil {
		return nil, err
	}

	attempts, err := getInt("RETRY_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	baseWait, err := getDurationMS("RETRY_BASE_WAIT_MS", 200)
	if err != nil {
		return nil, err
	}

	busURL := getEnv("BUS_URL", "")
	if busURL == "" {
		return nil, fmt.Errorf("BUS_URL environment variable is required")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./data/paraf.db"),
		},
		Bus: BusConfig{
			URL:              busURL,
			Token:            getEnv("BUS_TOKEN", ""),
			HandshakeTimeout: handshake,
		},
		Typing: TypingConfig{
			Debounce: debounce,
			Liveness: liveness,
		},
		Presence: PresenceConfig{
			Heartbeat:    heartbeat,
			OfflineAfter: offlineAfter,
		},
		Conversation: ConversationConfig{
			PageSize:      pageSize,
			CacheTTL:      cacheTTL,
			MarkReadDelay: markReadDelay,
		},
		Push: PushConfig{
			GatewayURL: getEnv("PUSH_GATEWAY_URL", ""),
		},
		Retry: RetryConfig{
			Attempts: attempts,
			BaseWait: baseWait,
		},
	}

	return cfg, nil
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// getInt, integer environment variable okur.
func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, strconv.Itoa(fallback))
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}

// getDurationMS, milisaniye cinsinden environment variable okur.
// Zamanlama ayarlarının hepsi ms cinsindendir — tutarlılık için.
func getDurationMS(key string, fallbackMS int) (time.Duration, error) {
	val, err := getInt(key, fallbackMS)
	if err != nil {
		return 0, err
	}
	return time.Duration(val) * time.Millisecond, nil
}
