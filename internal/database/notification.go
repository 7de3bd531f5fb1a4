// internal/database/notification.go

package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/realms/internal/models"
)

// InsertNotification stores n, filling in its ID and timestamp when unset.
func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	var from *uuid.UUID
	if n.FromUser != uuid.Nil {
		from = &n.FromUser
	}
	q := `
	INSERT INTO notifications (id, user_id, type, room_code, from_user, from_username, created_at, read)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, n.ID, n.UserID, n.Type, n.RoomCode, from, n.FromUsername, n.Timestamp, n.Read)
		return err
	})
}

// ListNotifications returns the user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]models.Notification, error) {
	q := `
	SELECT id, user_id, type, room_code, COALESCE(from_user, '00000000-0000-0000-0000-000000000000'::uuid),
	       from_username, created_at, read
	FROM notifications
	WHERE user_id = $1 AND (NOT $2 OR NOT read)
	ORDER BY created_at DESC
	LIMIT 100
	`
	rows, err := s.pool.Query(ctx, q, userID, unreadOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.RoomCode, &n.FromUser, &n.FromUsername, &n.Timestamp, &n.Read)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error {
	q := `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`
	return s.execOne(ctx, q, id, userID)
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error {
	q := `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, userID)
		return err
	})
}
