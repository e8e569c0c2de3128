package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/paraf/database"
	"github.com/akinalp/paraf/models"
	"github.com/akinalp/paraf/pkg"
)

// SQLiteMessageRepo, MessageRepository'nin SQLite implementasyonu.
type SQLiteMessageRepo struct {
	db *database.DB
}

// NewSQLiteMessageRepo, yeni bir SQLite message repository oluşturur.
// Interface döner — caller somut tipi bilmez.
func NewSQLiteMessageRepo(db *database.DB) MessageRepository {
	return &SQLiteMessageRepo{db: db}
}

// createdAtLayout, created_at kolonunun metin formatı.
// CURRENT_TIMESTAMP saniye hassasiyetindedir — art arda gönderilen
// mesajların sırası bozulur. Nanosaniye hassasiyetli damga Go tarafında
// basılır; UTC + sabit format sayesinde metin sıralaması zaman
// sıralamasıyla aynıdır.
const createdAtLayout = "2006-01-02 15:04:05.999999999"

// Insert, yeni mesajı kaydeder ve created_at damgasını mesaja geri yazar.
func (r *SQLiteMessageRepo) Insert(ctx context.Context, msg *models.Message) error {
	historyJSON, err := json.Marshal(msg.EditHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal edit history: %w", err)
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()

	_, err = r.db.Conn.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, content, attachment_url, status, edit_history, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SenderID, msg.RecipientID, msg.Content, msg.AttachmentURL,
		string(msg.Status), string(historyJSON), msg.CreatedAt.Format(createdAtLayout))
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// messageColumns, mesaj SELECT sorgularının ortak kolon listesi.
// Gönderici profili her zaman join'lenir — UI mesajı gönderen adı ve
// avatarıyla birlikte gösterir, ayrı lookup'a gerek kalmaz.
const messageColumns = `
	m.id, m.sender_id, m.recipient_id, m.content, m.attachment_url,
	m.status, m.read_at, m.edited_at, m.edit_history, m.hidden_for_recipient,
	m.created_at,
	p.username, p.display_name, p.avatar_url`

// scanMessage, tek satırı Message struct'ına okur.
//
// NULL olabilen kolonlar sql.Null* tipine okunur, sonra pointer alana
// aktarılır. Doğrudan *string'e Scan etmek NULL'da hata verir.
func scanMessage(scanner interface{ Scan(...any) error }) (*models.Message, error) {
	var msg models.Message
	var attachmentURL sql.NullString
	var readAt, editedAt sql.NullTime
	var historyJSON string
	var hidden int
	var username string
	var displayName, avatarURL sql.NullString

	err := scanner.Scan(
		&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Content, &attachmentURL,
		&msg.Status, &readAt, &editedAt, &historyJSON, &hidden,
		&msg.CreatedAt,
		&username, &displayName, &avatarURL,
	)
	if err != nil {
		return nil, err
	}

	if attachmentURL.Valid {
		msg.AttachmentURL = &attachmentURL.String
	}
	if readAt.Valid {
		msg.ReadAt = &readAt.Time
	}
	if editedAt.Valid {
		msg.EditedAt = &editedAt.Time
	}
	msg.HiddenForRecipient = hidden == 1

	if err := json.Unmarshal([]byte(historyJSON), &msg.EditHistory); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edit history: %w", err)
	}

	sender := models.Profile{ID: msg.SenderID, Username: username}
	if displayName.Valid {
		sender.DisplayName = &displayName.String
	}
	if avatarURL.Valid {
		sender.AvatarURL = &avatarURL.String
	}
	msg.Sender = &sender

	return &msg, nil
}

// GetByID, tek mesajı gönderici profiliyle birlikte getirir.
func (r *SQLiteMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	row := r.db.Conn.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		JOIN profiles p ON p.id = m.sender_id
		WHERE m.id = ?
	`, id)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: message %s", pkg.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// conversationFilter, viewer ile counterpart arasındaki görünür mesajları
// seçen WHERE parçası. İki yön de dahildir; viewer'ın gizlediği satırlar
// (alıcı olduğu ve hidden bayrağı set olan) dışlanır.
const conversationFilter = `
	((m.sender_id = ? AND m.recipient_id = ?) OR (m.sender_id = ? AND m.recipient_id = ?))
	AND NOT (m.recipient_id = ? AND m.hidden_for_recipient = 1)`

// Page, konuşmanın bir sayfasını getirir.
//
// Sorgu DESC çalışır (en yeniler önce) çünkü 1. sayfa konuşmanın
// sonudur. Dönen dilim yerinde ters çevrilir — UI kronolojik sıra bekler.
func (r *SQLiteMessageRepo) Page(ctx context.Context, viewerID, counterpartID string, page, size int, search string) ([]*models.Message, int, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size

	args := []any{viewerID, counterpartID, counterpartID, viewerID, viewerID}
	where := conversationFilter
	if search != "" {
		// instr + lower → case-insensitive substring araması.
		// LIKE kullanılmaz: arama terimindeki % ve _ karakterleri
		// wildcard'a dönüşürdü.
		where += ` AND instr(lower(m.content), lower(?)) > 0`
		args = append(args, search)
	}

	var total int
	err := r.db.Conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages m WHERE `+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	queryArgs := append(args, size, offset)
	rows, err := r.db.Conn.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		JOIN profiles p ON p.id = m.sender_id
		WHERE `+where+`
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ? OFFSET ?
	`, queryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate messages: %w", err)
	}

	// DESC geldi, kronolojik sıraya çevir (eski → yeni)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, total, nil
}

// UpdateContent, mesaj içeriğini günceller ve edited_at damgası atar.
func (r *SQLiteMessageRepo) UpdateContent(ctx context.Context, id, content, historyJSON string) error {
	result, err := r.db.Conn.ExecContext(ctx, `
		UPDATE messages
		SET content = ?, edit_history = ?, edited_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, content, historyJSON, id)
	if err != nil {
		return fmt.Errorf("failed to update message content: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: message %s", pkg.ErrNotFound, id)
	}

	return nil
}

// UpdateStatus, teslimat durumunu günceller.
// read durumuna geçişte read_at da damgalanır.
func (r *SQLiteMessageRepo) UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error {
	var result sql.Result
	var err error
	if status == models.MessageRead {
		result, err = r.db.Conn.ExecContext(ctx, `
			UPDATE messages SET status = ?, read_at = CURRENT_TIMESTAMP WHERE id = ?
		`, string(status), id)
	} else {
		result, err = r.db.Conn.ExecContext(ctx, `
			UPDATE messages SET status = ? WHERE id = ?
		`, string(status), id)
	}
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: message %s", pkg.ErrNotFound, id)
	}

	return nil
}

// HardDelete, mesaj satırını kalıcı siler.
// Yetki kontrolü (sadece gönderici) üst katmanın sorumluluğudur.
func (r *SQLiteMessageRepo) HardDelete(ctx context.Context, id string) error {
	result, err := r.db.Conn.ExecContext(ctx,
		"DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: message %s", pkg.ErrNotFound, id)
	}

	return nil
}

// HideForRecipient, mesajı alıcı görünümünden düşürür. Satır silinmez.
func (r *SQLiteMessageRepo) HideForRecipient(ctx context.Context, id string) error {
	result, err := r.db.Conn.ExecContext(ctx,
		"UPDATE messages SET hidden_for_recipient = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to hide message: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: message %s", pkg.ErrNotFound, id)
	}

	return nil
}

// MarkConversationRead, counterpart'tan gelen okunmamış görünür mesajları
// okundu işaretler. Zaten okunmuş veya gizlenmiş satırlara dokunmaz —
// tekrar çağrılması güvenlidir (0 döner).
func (r *SQLiteMessageRepo) MarkConversationRead(ctx context.Context, viewerID, counterpartID string) (int64, error) {
	result, err := r.db.Conn.ExecContext(ctx, `
		UPDATE messages
		SET status = 'read', read_at = CURRENT_TIMESTAMP
		WHERE recipient_id = ? AND sender_id = ?
		  AND status != 'read'
		  AND hidden_for_recipient = 0
	`, viewerID, counterpartID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark conversation read: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// ClearConversation, konuşmayı viewer tarafında temizler.
//
// Asimetrik kural: viewer kendi gönderdiklerinin sahibidir → kalıcı
// silinir; aldıkları counterpart'ın malıdır → sadece gizlenir.
// İki bacak tek transaction'dadır — biri başarısız olursa ikisi de geri alınır.
func (r *SQLiteMessageRepo) ClearConversation(ctx context.Context, viewerID, counterpartID string) error {
	return database.WithTx(ctx, r.db.Conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM messages WHERE sender_id = ? AND recipient_id = ?
		`, viewerID, counterpartID); err != nil {
			return fmt.Errorf("failed to delete sent messages: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE messages SET hidden_for_recipient = 1
			WHERE sender_id = ? AND recipient_id = ?
		`, counterpartID, viewerID); err != nil {
			return fmt.Errorf("failed to hide received messages: %w", err)
		}

		return nil
	})
}

// UnreadCount, counterpart'tan viewer'a gelen okunmamış görünür mesaj sayısı.
func (r *SQLiteMessageRepo) UnreadCount(ctx context.Context, viewerID, counterpartID string) (int, error) {
	var count int
	err := r.db.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE recipient_id = ? AND sender_id = ?
		  AND status != 'read'
		  AND hidden_for_recipient = 0
	`, viewerID, counterpartID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}

	return count, nil
}

// ListConversations, viewer'ın konuşma özetlerini son mesaj zamanına göre döner.
//
// Her counterpart için son görünür mesajın id'si correlated subquery ile
// bulunur, sonra satırın tamamı join'lenir. Okunmamış sayısı da subquery —
// tek round-trip'te tüm liste gelir.
func (r *SQLiteMessageRepo) ListConversations(ctx context.Context, viewerID string) ([]*models.ConversationSummary, error) {
	rows, err := r.db.Conn.QueryContext(ctx, `
		WITH counterparts AS (
			SELECT DISTINCT CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END AS cp_id
			FROM messages
			WHERE (sender_id = ? OR recipient_id = ?)
			  AND NOT (recipient_id = ? AND hidden_for_recipient = 1)
		)
		SELECT
			c.cp_id, p.username, p.display_name, p.avatar_url,
			(SELECT m.id FROM messages m
			 WHERE ((m.sender_id = ? AND m.recipient_id = c.cp_id) OR (m.sender_id = c.cp_id AND m.recipient_id = ?))
			   AND NOT (m.recipient_id = ? AND m.hidden_for_recipient = 1)
			 ORDER BY m.created_at DESC, m.id DESC LIMIT 1) AS last_id,
			(SELECT COUNT(*) FROM messages m
			 WHERE m.recipient_id = ? AND m.sender_id = c.cp_id
			   AND m.status != 'read' AND m.hidden_for_recipient = 0) AS unread
		FROM counterparts c
		JOIN profiles p ON p.id = c.cp_id
	`, viewerID, viewerID, viewerID, viewerID,
		viewerID, viewerID, viewerID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var summaries []*models.ConversationSummary
	var lastIDs []string
	for rows.Next() {
		var s models.ConversationSummary
		var displayName, avatarURL, lastID sql.NullString
		if err := rows.Scan(&s.CounterpartID, &s.Username, &displayName, &avatarURL, &lastID, &s.UnreadCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if displayName.Valid {
			s.DisplayName = &displayName.String
		}
		if avatarURL.Valid {
			s.AvatarURL = &avatarURL.String
		}
		if lastID.Valid {
			lastIDs = append(lastIDs, lastID.String)
		} else {
			// Tüm mesajları gizlenmiş konuşma — listede gösterilmez.
			continue
		}
		summaries = append(summaries, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	// Son mesajları doldur ve en yeni konuşma en üste gelecek şekilde sırala.
	for i, s := range summaries {
		msg, err := r.GetByID(ctx, lastIDs[i])
		if err != nil {
			return nil, err
		}
		s.LastMessage = msg
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastMessage.CreatedAt.After(summaries[j].LastMessage.CreatedAt)
	})

	return summaries, nil
}

// ToggleReaction, kullanıcının mesajdaki reaction'ını toggle mantığıyla işler.
//
// INSERT OR IGNORE numarası: UNIQUE(message_id, user_id) constraint'i
// varsa insert sessizce atlanır ve rowsAffected 0 olur — "zaten reaction
// var" tespiti ayrı SELECT gerektirmez. Varsa tür karşılaştırılır:
// aynı tür → sil, farklı tür → değiştir.
func (r *SQLiteMessageRepo) ToggleReaction(ctx context.Context, messageID, userID, kind string) (models.ReactionChange, error) {
	result, err := r.db.Conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO reactions (id, message_id, user_id, kind)
		VALUES (?, ?, ?, ?)
	`, uuid.NewString(), messageID, userID, kind)
	if err != nil {
		return "", fmt.Errorf("failed to insert reaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return models.ReactionAdded, nil
	}

	var existing string
	err = r.db.Conn.QueryRowContext(ctx, `
		SELECT kind FROM reactions WHERE message_id = ? AND user_id = ?
	`, messageID, userID).Scan(&existing)
	if err != nil {
		return "", fmt.Errorf("failed to get existing reaction: %w", err)
	}

	if existing == kind {
		if _, err := r.db.Conn.ExecContext(ctx, `
			DELETE FROM reactions WHERE message_id = ? AND user_id = ?
		`, messageID, userID); err != nil {
			return "", fmt.Errorf("failed to remove reaction: %w", err)
		}
		return models.ReactionRemoved, nil
	}

	if _, err := r.db.Conn.ExecContext(ctx, `
		UPDATE reactions SET kind = ?, created_at = CURRENT_TIMESTAMP
		WHERE message_id = ? AND user_id = ?
	`, kind, messageID, userID); err != nil {
		return "", fmt.Errorf("failed to replace reaction: %w", err)
	}
	return models.ReactionReplaced, nil
}

// GetReactionsByMessageIDs, birden fazla mesajın reaction'larını tek
// sorguda gruplar. GROUP_CONCAT kullanıcı listesini tek kolonda taşır —
// sayfa başına tek round-trip yeter.
func (r *SQLiteMessageRepo) GetReactionsByMessageIDs(ctx context.Context, messageIDs []string) (map[string][]models.ReactionGroup, error) {
	reactions := make(map[string][]models.ReactionGroup)
	if len(messageIDs) == 0 {
		return reactions, nil
	}

	placeholders := strings.Repeat("?,", len(messageIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		args[i] = id
	}

	rows, err := r.db.Conn.QueryContext(ctx, `
		SELECT message_id, kind, COUNT(*) as count, GROUP_CONCAT(user_id) as users
		FROM reactions
		WHERE message_id IN (`+placeholders+`)
		GROUP BY message_id, kind
		ORDER BY MIN(created_at)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, kind, users string
		var count int
		if err := rows.Scan(&messageID, &kind, &count, &users); err != nil {
			return nil, fmt.Errorf("failed to scan reaction group: %w", err)
		}
		reactions[messageID] = append(reactions[messageID], models.ReactionGroup{
			Kind:  kind,
			Count: count,
			Users: strings.Split(users, ","),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reaction groups: %w", err)
	}

	return reactions, nil
}
