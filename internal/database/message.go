// internal/database/message.go

package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/realms/internal/models"
)

// AppendMessages inserts msgs in order within one transaction, bumps the room's activity clock
// and reopens it if it had been abandoned.
func (s *Store) AppendMessages(ctx context.Context, code string, msgs ...models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	q := `
	INSERT INTO room_messages (id, room_code, role, user_id, username, character_name,
	                           content, audio_content, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, m := range msgs {
			_, err := tx.Exec(ctx, q,
				m.ID, code, m.Role, m.UserID, m.Username, m.CharacterName,
				m.Content, m.AudioContent, m.Timestamp,
			)
			if err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `UPDATE rooms SET last_activity_at = NOW(), status = 'open' WHERE code = $1`, code)
		return err
	})
}

// ListMessages returns the most recent limit messages in chronological order.
// A limit of zero or less returns the whole log.
func (s *Store) ListMessages(ctx context.Context, code string, limit int) ([]models.Message, error) {
	q := `
	SELECT id, role, user_id, username, character_name, content, audio_content, created_at
	FROM (
		SELECT * FROM room_messages
		WHERE room_code = $1
		ORDER BY seq DESC
		LIMIT NULLIF($2, 0)
	) recent
	ORDER BY seq ASC
	`
	if limit < 0 {
		limit = 0
	}
	rows, err := s.pool.Query(ctx, q, code, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		err := rows.Scan(&m.ID, &m.Role, &m.UserID, &m.Username, &m.CharacterName,
			&m.Content, &m.AudioContent, &m.Timestamp)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
