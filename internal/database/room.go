// internal/database/room.go

package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/realms/internal/models"
)

const roomColumns = `code, adventure_title, adventure_setting, world_lore, plot, context,
	host_id, is_started, status, created_at, started_at`

const playerColumns = `user_id, username, character_name, character_type, character_backstory,
	is_ready, status, joined_at`

// InsertRoom creates the room and its initial players in one transaction.
// A code collision returns ErrRoomCodeTaken and nothing is written.
func (s *Store) InsertRoom(ctx context.Context, room *models.Room) error {
	q := `
	INSERT INTO rooms (code, adventure_title, adventure_setting, world_lore, plot, context, host_id, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (code) DO NOTHING
	RETURNING created_at
	`
	if room.Status == "" {
		room.Status = models.RoomStatusOpen
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, q,
			room.Code, room.AdventureTitle, room.AdventureSetting, room.WorldLore,
			room.Plot, room.Context, room.HostUID, room.Status,
		).Scan(&room.CreatedAt)
		if err == pgx.ErrNoRows {
			return ErrRoomCodeTaken
		}
		if err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}
		for i := range room.Players {
			if err := upsertPlayer(ctx, tx, room.Code, &room.Players[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertPlayer(ctx context.Context, tx pgx.Tx, code string, p *models.Player) error {
	q := `
	INSERT INTO room_players (room_code, user_id, username, character_name, character_type,
	                          character_backstory, is_ready, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (room_code, user_id)
	DO UPDATE SET status = EXCLUDED.status, username = EXCLUDED.username
	RETURNING ` + playerColumns
	if p.Status == "" {
		p.Status = models.PlayerStatusJoined
	}
	return tx.QueryRow(ctx, q,
		code, p.UserID, p.Username, p.Character.Name, p.Character.Type,
		p.Character.Backstory, p.IsReady, p.Status,
	).Scan(
		&p.UserID, &p.Username, &p.Character.Name, &p.Character.Type,
		&p.Character.Backstory, &p.IsReady, &p.Status, &p.JoinedAt,
	)
}

// GetRoom loads the room and its players ordered by join time. Messages are not loaded.
func (s *Store) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	var r models.Room
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE code = $1`
	err := s.pool.QueryRow(ctx, q, code).Scan(
		&r.Code, &r.AdventureTitle, &r.AdventureSetting, &r.WorldLore, &r.Plot, &r.Context,
		&r.HostUID, &r.IsStarted, &r.Status, &r.CreatedAt, &r.StartedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	players, err := s.listPlayers(ctx, code)
	if err != nil {
		return nil, err
	}
	r.Players = players
	return &r, nil
}

func (s *Store) listPlayers(ctx context.Context, code string) ([]models.Player, error) {
	q := `SELECT ` + playerColumns + ` FROM room_players WHERE room_code = $1 ORDER BY joined_at, user_id`
	rows, err := s.pool.Query(ctx, q, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	players := []models.Player{}
	for rows.Next() {
		var p models.Player
		err := rows.Scan(
			&p.UserID, &p.Username, &p.Character.Name, &p.Character.Type,
			&p.Character.Backstory, &p.IsReady, &p.Status, &p.JoinedAt,
		)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// UpsertPlayer adds the player or re-activates a previous one, keeping their character.
// UpsertPlayer joins or re-joins p and reopens the room if it had been abandoned.
func (s *Store) UpsertPlayer(ctx context.Context, code string, p *models.Player) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := upsertPlayer(ctx, tx, code, p); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE rooms SET last_activity_at = NOW(), status = 'open' WHERE code = $1`, code)
		return err
	})
}

// UpdateCharacter stores the character and clears the ready flag.
func (s *Store) UpdateCharacter(ctx context.Context, code string, userID uuid.UUID, c models.Character) error {
	q := `
	UPDATE room_players
	SET character_name = $3, character_type = $4, character_backstory = $5, is_ready = FALSE
	WHERE room_code = $1 AND user_id = $2
	`
	return s.execOne(ctx, q, code, userID, c.Name, c.Type, c.Backstory)
}

func (s *Store) SetPlayerReady(ctx context.Context, code string, userID uuid.UUID, ready bool) error {
	q := `UPDATE room_players SET is_ready = $3 WHERE room_code = $1 AND user_id = $2`
	return s.execOne(ctx, q, code, userID, ready)
}

// SetPlayerStatus changes joined/left. Leaving also clears the ready flag.
func (s *Store) SetPlayerStatus(ctx context.Context, code string, userID uuid.UUID, status string) error {
	q := `
	UPDATE room_players
	SET status = $3, is_ready = CASE WHEN $3 = 'left' THEN FALSE ELSE is_ready END
	WHERE room_code = $1 AND user_id = $2
	`
	return s.execOne(ctx, q, code, userID, status)
}

// MarkRoomStarted flips is_started once. It reports true only for the caller that flipped it.
func (s *Store) MarkRoomStarted(ctx context.Context, code string) (bool, error) {
	q := `UPDATE rooms SET is_started = TRUE, started_at = NOW() WHERE code = $1 AND NOT is_started`
	var started bool
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, q, code)
		if err != nil {
			return err
		}
		started = ct.RowsAffected() == 1
		return nil
	})
	return started, err
}

// ListRoomsForUser returns rooms the user hosts or currently plays in, newest first.
func (s *Store) ListRoomsForUser(ctx context.Context, userID uuid.UUID) ([]models.Room, error) {
	q := `
	SELECT DISTINCT r.code, r.created_at
	FROM rooms r
	LEFT JOIN room_players p ON p.room_code = r.code AND p.user_id = $1 AND p.status = 'joined'
	WHERE r.host_id = $1 OR p.user_id IS NOT NULL
	ORDER BY r.created_at DESC
	`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	var codes []string
	for rows.Next() {
		var code string
		var ignored any
		if err := rows.Scan(&code, &ignored); err != nil {
			rows.Close()
			return nil, err
		}
		codes = append(codes, code)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rooms := make([]models.Room, 0, len(codes))
	for _, code := range codes {
		r, err := s.GetRoom(ctx, code)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *r)
	}
	return rooms, nil
}

func (s *Store) execOne(ctx context.Context, q string, args ...any) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}
