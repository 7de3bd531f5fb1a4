// internal/database/user.go

package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/realms/internal/auth"
	"github.com/jason-s-yu/realms/internal/models"
)

const userColumns = `id, email, password, username, profile_picture, is_admin, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Username, &u.ProfilePicture, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// CreateUser hashes user.Password in place and inserts the row. Usernames and
// emails are stored lowercased.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	hash, err := auth.HashPassword(user.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash

	q := `INSERT INTO users (id, email, password, username, profile_picture, is_admin)
	      VALUES ($1, $2, $3, $4, $5, $6)
	      RETURNING created_at`

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, q,
			user.ID, user.Email, user.Password, user.Username,
			user.ProfilePicture, user.IsAdmin,
		).Scan(&user.CreatedAt)
	})
	if constraint, ok := uniqueViolation(err); ok {
		if strings.Contains(constraint, "username") {
			return ErrUsernameTaken
		}
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(s.pool.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(email))))
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(s.pool.QueryRow(ctx, q, id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE username=$1`
	return scanUser(s.pool.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(username))))
}

// IsUsernameTaken compares case-insensitively.
func (s *Store) IsUsernameTaken(ctx context.Context, username string) (bool, error) {
	var taken bool
	q := `SELECT EXISTS (SELECT 1 FROM users WHERE username=$1)`
	err := s.pool.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(username))).Scan(&taken)
	return taken, err
}

// SearchUsers returns profiles whose username contains query, case-insensitively.
func (s *Store) SearchUsers(ctx context.Context, query string, limit int) ([]models.Profile, error) {
	if limit <= 0 {
		limit = 20
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(query))
	q := `
	SELECT id, username, profile_picture, is_admin
	FROM users
	WHERE username LIKE '%' || $1 || '%'
	ORDER BY username
	LIMIT $2
	`
	rows, err := s.pool.Query(ctx, q, escaped, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := []models.Profile{}
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.ProfilePicture, &p.IsAdmin); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// AuthenticateUser returns the user if password matches, or ErrInvalidCredentials.
func (s *Store) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	match, err := auth.VerifyPassword(password, user.Password)
	if err != nil || !match {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
