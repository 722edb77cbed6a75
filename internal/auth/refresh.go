package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrTokenRevoked is returned when a refresh token was already used or revoked.
var ErrTokenRevoked = errors.New("refresh token revoked")

// TokenStore keeps issued refresh tokens so each can be used once.
type TokenStore struct {
	db *sqlx.DB
}

// NewTokenStore creates a store on the refresh_tokens table.
func NewTokenStore(db *sqlx.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Save stores a refresh token for rotation checks.
func (s *TokenStore) Save(ctx context.Context, instructorID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO refresh_tokens (token, instructor_id, expires_at, revoked)
		VALUES (?, ?, ?, ?)
	`), token, instructorID, expiresAt.UTC(), false)
	return err
}

// Revoke marks a token revoked. It fails with ErrTokenRevoked when the token
// is unknown or already revoked, so concurrent rotations cannot both succeed.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE refresh_tokens SET revoked = ? WHERE token = ? AND revoked = ?
	`), true, token, false)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenRevoked
	}
	return nil
}

// Sessions issues token pairs and rotates refresh tokens.
type Sessions struct {
	Issuer Issuer
	Store  *TokenStore
}

// Start issues and records a fresh pair for an instructor.
func (s Sessions) Start(ctx context.Context, instructorID string) (TokenPair, error) {
	pair, err := s.Issuer.Issue(instructorID, RoleInstructor)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := s.Store.Save(ctx, instructorID, pair.RefreshToken, pair.RefreshExp); err != nil {
		return TokenPair{}, fmt.Errorf("save refresh token: %w", err)
	}
	return pair, nil
}

// Refresh validates and revokes refreshToken, then starts a new pair.
func (s Sessions) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.Issuer.Parse(refreshToken, TypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.Store.Revoke(ctx, refreshToken); err != nil {
		return TokenPair{}, err
	}
	return s.Start(ctx, claims.Subject)
}
