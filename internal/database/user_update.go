// internal/database/user_update.go

package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/realms/internal/auth"
)

// UpdateProfile sets the user's avatar URL.
func (s *Store) UpdateProfile(ctx context.Context, id uuid.UUID, picture string) error {
	q := `UPDATE users SET profile_picture = $1 WHERE id = $2`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, q, picture, id)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// UpdatePassword rehashes and stores a new password.
func (s *Store) UpdatePassword(ctx context.Context, id uuid.UUID, password string) error {
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	q := `UPDATE users SET password = $1 WHERE id = $2`
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, e := tx.Exec(ctx, q, hashed, id)
		if e != nil {
			return e
		}
		if ct.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}
