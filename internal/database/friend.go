// internal/database/friend.go

package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/realms/internal/models"
)

// InsertFriendRequest records a pending request from sender to receiver. A previously
// declined request in the same direction is reopened.
func (s *Store) InsertFriendRequest(ctx context.Context, sender, receiver uuid.UUID) (*models.FriendRequest, error) {
	if sender == receiver {
		return nil, ErrSelfRequest
	}

	req := &models.FriendRequest{SenderID: sender, ReceiverID: receiver, Status: models.FriendRequestPending}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT username FROM users WHERE id = $1`, sender).Scan(&req.SenderUsername)
		if err != nil {
			return notFound(err)
		}
		err = tx.QueryRow(ctx, `SELECT username FROM users WHERE id = $1`, receiver).Scan(&req.ReceiverUsername)
		if err != nil {
			return notFound(err)
		}

		var friends, pending bool
		err = tx.QueryRow(ctx, `
			SELECT
				EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2),
				EXISTS (SELECT 1 FROM friend_requests
				        WHERE status = 'pending'
				          AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)))
		`, sender, receiver).Scan(&friends, &pending)
		if err != nil {
			return err
		}
		if friends {
			return ErrAlreadyFriends
		}
		if pending {
			return ErrRequestExists
		}

		q := `
		INSERT INTO friend_requests (sender_id, receiver_id, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT (sender_id, receiver_id)
		DO UPDATE SET status = 'pending', created_at = NOW(), updated_at = NOW()
		RETURNING created_at
		`
		return tx.QueryRow(ctx, q, sender, receiver).Scan(&req.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// RespondFriendRequest accepts or declines the pending request from sender to receiver.
// Accepting creates the friendship in both directions.
func (s *Store) RespondFriendRequest(ctx context.Context, sender, receiver uuid.UUID, accept bool) error {
	status := models.FriendRequestDeclined
	if accept {
		status = models.FriendRequestAccepted
	}
	q := `
	UPDATE friend_requests
	SET status = $3, updated_at = NOW()
	WHERE sender_id = $1 AND receiver_id = $2 AND status = 'pending'
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, q, sender, receiver, status)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrNoPendingRequest
		}
		if !accept {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO friendships (user_id, friend_id)
			VALUES ($1, $2), ($2, $1)
			ON CONFLICT DO NOTHING
		`, sender, receiver)
		return err
	})
}

// ListFriends returns the public profiles of the user's friends.
func (s *Store) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Profile, error) {
	q := `
	SELECT u.id, u.username, u.profile_picture, u.is_admin
	FROM friendships f
	JOIN users u ON u.id = f.friend_id
	WHERE f.user_id = $1
	ORDER BY u.username
	`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	friends := []models.Profile{}
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.ProfilePicture, &p.IsAdmin); err != nil {
			return nil, err
		}
		friends = append(friends, p)
	}
	return friends, rows.Err()
}

// ListFriendRequests returns incoming and outgoing requests involving the user, newest first.
func (s *Store) ListFriendRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	q := `
	SELECT r.sender_id, su.username, r.receiver_id, ru.username, r.status, r.created_at
	FROM friend_requests r
	JOIN users su ON su.id = r.sender_id
	JOIN users ru ON ru.id = r.receiver_id
	WHERE r.sender_id = $1 OR r.receiver_id = $1
	ORDER BY r.created_at DESC
	`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs := []models.FriendRequest{}
	for rows.Next() {
		var fr models.FriendRequest
		err := rows.Scan(&fr.SenderID, &fr.SenderUsername, &fr.ReceiverID, &fr.ReceiverUsername, &fr.Status, &fr.CreatedAt)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, fr)
	}
	return reqs, rows.Err()
}

func (s *Store) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var ok bool
	q := `SELECT EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2)`
	err := s.pool.QueryRow(ctx, q, a, b).Scan(&ok)
	return ok, err
}

// RemoveFriend deletes the friendship and any requests between the two users.
func (s *Store) RemoveFriend(ctx context.Context, a, b uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			DELETE FROM friendships
			WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
		`, a, b)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `
			DELETE FROM friend_requests
			WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		`, a, b)
		return err
	})
}
