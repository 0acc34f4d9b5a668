package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/org/archpilot/internal/storage"
	"github.com/org/archpilot/pkg/models"
)

const sessionTokenPrefix = "aps_"

// ErrInvalidSession is returned for unknown, expired, or revoked sessions.
var ErrInvalidSession = errors.New("invalid session")

// Store is the persistence surface the session service needs.
type Store interface {
	WriteSession(ctx context.Context, session *models.Session, tokenHash string) error
	GetSession(ctx context.Context, tokenHash string) (*models.Session, error)
	RevokeSession(ctx context.Context, sessionID string) error
}

// SessionService creates and validates opaque API session tokens. Only the
// SHA-256 hash of a token is stored; the plaintext is shown once.
type SessionService struct {
	store Store
	ttl   time.Duration
}

// NewSessionService creates a SessionService with the given session TTL.
func NewSessionService(store Store, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionService{store: store, ttl: ttl}
}

// Create opens a session for an identity and returns the session plus the
// plaintext token.
func (s *SessionService) Create(ctx context.Context, identityID string) (*models.Session, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generating session token: %w", err)
	}
	plaintext := sessionTokenPrefix + base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now().UTC()
	session := &models.Session{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.store.WriteSession(ctx, session, HashToken(plaintext)); err != nil {
		return nil, "", fmt.Errorf("persisting session: %w", err)
	}
	return session, plaintext, nil
}

// Validate looks up a session by its plaintext token.
func (s *SessionService) Validate(ctx context.Context, plaintext string) (*models.Session, error) {
	session, err := s.store.GetSession(ctx, HashToken(plaintext))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	if session.IsRevoked() || session.IsExpired() {
		return nil, ErrInvalidSession
	}
	return session, nil
}

// Revoke ends a session.
func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	return s.store.RevokeSession(ctx, sessionID)
}

// HashToken returns the SHA-256 hex hash of a plaintext token.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
