package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/pavelanni/cloudhire/internal/model"
)

const authSessionTTL = 24 * time.Hour

// ErrLinkUsed is returned when a magic link was already consumed.
var ErrLinkUsed = errors.New("magic link already used")

// CreateAuthSession creates a new auth session token for a user.
func (s *Store) CreateAuthSession(userID int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, now, now.Add(authSessionTTL),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetAuthSession returns the auth session for the given token, or nil if not found/expired.
func (s *Store) GetAuthSession(token string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.db.QueryRow(
		`SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, token,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteAuthSession(token)
		return nil, nil
	}
	return &sess, nil
}

// DeleteAuthSession removes a session token.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// CleanupExpiredSessions removes expired auth sessions and magic links.
func (s *Store) CleanupExpiredSessions() error {
	now := time.Now()
	if _, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at < ?`, now); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM magic_links WHERE expires_at < ?`, now)
	return err
}

// CreateMagicLink records an issued sign-in token.
func (s *Store) CreateMagicLink(l model.MagicLink) error {
	_, err := s.db.Exec(
		`INSERT INTO magic_links (token_id, email, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		l.TokenID, strings.ToLower(l.Email), l.CreatedAt, l.ExpiresAt,
	)
	return err
}

// ConsumeMagicLink marks a token as used. It returns ErrNotFound for an
// unknown token and ErrLinkUsed if it was consumed before.
func (s *Store) ConsumeMagicLink(tokenID string) (*model.MagicLink, error) {
	res, err := s.db.Exec(
		`UPDATE magic_links SET used_at = ? WHERE token_id = ? AND used_at IS NULL`,
		time.Now(), tokenID,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	l, err := s.getMagicLink(tokenID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrNotFound
	}
	if n == 0 {
		return nil, ErrLinkUsed
	}
	return l, nil
}

func (s *Store) getMagicLink(tokenID string) (*model.MagicLink, error) {
	var l model.MagicLink
	err := s.db.QueryRow(
		`SELECT token_id, email, created_at, expires_at, used_at FROM magic_links WHERE token_id = ?`, tokenID,
	).Scan(&l.TokenID, &l.Email, &l.CreatedAt, &l.ExpiresAt, &l.UsedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
