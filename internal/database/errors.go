// internal/database/errors.go

package database

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSelfRequest        = errors.New("cannot friend yourself")
	ErrAlreadyFriends     = errors.New("already friends")
	ErrRequestExists      = errors.New("a pending friend request already exists")
	ErrNoPendingRequest   = errors.New("no pending friend request found")
	ErrRoomCodeTaken      = errors.New("room code already in use")
)

// uniqueViolation returns the violated constraint name if err is a Postgres 23505.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
