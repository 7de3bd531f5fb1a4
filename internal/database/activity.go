// internal/database/activity.go

package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/realms/internal/models"
)

// InsertActivityBatch writes historian records in one transaction and advances
// each touched room's last_activity_at. A record newer than the room's last activity
// reopens an abandoned room.
func (s *Store) InsertActivityBatch(ctx context.Context, records []models.ActivityRecord) error {
	if len(records) == 0 {
		return nil
	}
	q := `
	INSERT INTO room_activity (room_code, actor_id, action, payload, occurred_at)
	VALUES ($1, $2, $3, $4, $5)
	`
	touch := `
	UPDATE rooms
	SET status = CASE WHEN $2 > last_activity_at THEN 'open' ELSE status END,
	    last_activity_at = GREATEST(last_activity_at, $2)
	WHERE code = $1
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			payload, err := json.Marshal(rec.Payload)
			if err != nil {
				return err
			}
			if rec.Payload == nil {
				payload = []byte("{}")
			}
			var actor *uuid.UUID
			if rec.ActorID != uuid.Nil {
				actor = &rec.ActorID
			}
			at := time.UnixMilli(rec.Timestamp).UTC()
			if _, err := tx.Exec(ctx, q, rec.RoomCode, actor, rec.Action, payload, at); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, touch, rec.RoomCode, at); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkRoomsAbandoned flags open rooms with no activity since cutoff and returns their codes.
func (s *Store) MarkRoomsAbandoned(ctx context.Context, cutoff time.Time) ([]string, error) {
	q := `
	UPDATE rooms SET status = 'abandoned'
	WHERE status = 'open' AND last_activity_at < $1
	RETURNING code
	`
	var codes []string
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, q, cutoff)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var code string
			if err := rows.Scan(&code); err != nil {
				return err
			}
			codes = append(codes, code)
		}
		return rows.Err()
	})
	return codes, err
}
