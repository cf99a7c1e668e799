package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrEmailTaken         = errors.New("email address already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// Service stores user accounts.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// CreateUser inserts a user with a bcrypt hash of password. email must already be normalized.
func (s *Service) CreateUser(ctx context.Context, email, password string) (uuid.UUID, error) {
	passwordHash, err := HashPassword(password)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var userID uuid.UUID
	err = s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id
	`, email, passwordHash).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return uuid.Nil, ErrEmailTaken
		}
		return uuid.Nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return userID, nil
}

// Authenticate returns the user ID for a matching email and password.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (uuid.UUID, error) {
	var userID uuid.UUID
	var passwordHash string
	err := s.pool.QueryRow(ctx, `SELECT id, password_hash FROM users WHERE email = $1`, email).Scan(&userID, &passwordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrInvalidCredentials
		}
		return uuid.Nil, fmt.Errorf("failed to query user: %w", err)
	}

	if err := VerifyPassword(passwordHash, password); err != nil {
		return uuid.Nil, ErrInvalidCredentials
	}

	return userID, nil
}

// SetPassword replaces the password of the user with the given email.
func (s *Service) SetPassword(ctx context.Context, email, password string) (uuid.UUID, error) {
	if err := ValidatePassword(password); err != nil {
		return uuid.Nil, err
	}
	passwordHash, err := HashPassword(password)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var userID uuid.UUID
	err = s.pool.QueryRow(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW()
		WHERE email = $1
		RETURNING id
	`, email, passwordHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrUserNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to update password: %w", err)
	}

	return userID, nil
}

// UserIDByEmail looks up a user by normalized email.
func (s *Service) UserIDByEmail(ctx context.Context, email string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrUserNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to query user: %w", err)
	}
	return userID, nil
}
