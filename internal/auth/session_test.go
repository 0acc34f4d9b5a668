package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/org/archpilot/internal/storage"
	"github.com/org/archpilot/pkg/models"
)

type fakeStore struct {
	byHash map[string]*models.Session
	byID   map[string]*models.Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{byHash: map[string]*models.Session{}, byID: map[string]*models.Session{}}
}

func (f *fakeStore) WriteSession(ctx context.Context, session *models.Session, tokenHash string) error {
	f.byHash[tokenHash] = session
	f.byID[session.ID] = session
	return nil
}

func (f *fakeStore) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	if s, ok := f.byHash[tokenHash]; ok {
		return s, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) RevokeSession(ctx context.Context, sessionID string) error {
	if s, ok := f.byID[sessionID]; ok {
		now := time.Now()
		s.RevokedAt = &now
	}
	return nil
}

func TestSessionCreateAndValidate(t *testing.T) {
	store := newFakeStore()
	svc := NewSessionService(store, time.Hour)
	ctx := context.Background()

	session, plaintext, err := svc.Create(ctx, "id-1")
	if err != nil {
		t.Fatalf("creating: %v", err)
	}
	if !strings.HasPrefix(plaintext, "aps_") {
		t.Errorf("expected aps_ prefix, got %q", plaintext)
	}
	// Only the hash is at rest.
	if _, ok := store.byHash[plaintext]; ok {
		t.Error("plaintext token used as a storage key")
	}
	if _, ok := store.byHash[HashToken(plaintext)]; !ok {
		t.Error("expected the token hash as the storage key")
	}

	got, err := svc.Validate(ctx, plaintext)
	if err != nil {
		t.Fatalf("validating: %v", err)
	}
	if got.ID != session.ID || got.IdentityID != "id-1" {
		t.Errorf("validated the wrong session: %+v", got)
	}
}

func TestSessionValidateRejections(t *testing.T) {
	store := newFakeStore()
	svc := NewSessionService(store, time.Hour)
	ctx := context.Background()

	if _, err := svc.Validate(ctx, "aps_unknown"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession for unknown token, got %v", err)
	}

	// Revoked
	session, plaintext, _ := svc.Create(ctx, "id-1")
	if err := svc.Revoke(ctx, session.ID); err != nil {
		t.Fatalf("revoking: %v", err)
	}
	if _, err := svc.Validate(ctx, plaintext); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession after revocation, got %v", err)
	}

	// Expired
	expired := &models.Session{
		ID:         "expired-id",
		IdentityID: "id-2",
		ExpiresAt:  time.Now().Add(-time.Minute),
	}
	store.WriteSession(ctx, expired, HashToken("aps_expired"))
	if _, err := svc.Validate(ctx, "aps_expired"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession for expired session, got %v", err)
	}
}

func TestSessionTokensUnique(t *testing.T) {
	store := newFakeStore()
	svc := NewSessionService(store, time.Hour)
	ctx := context.Background()

	_, first, _ := svc.Create(ctx, "id-1")
	_, second, _ := svc.Create(ctx, "id-1")
	if first == second {
		t.Error("expected distinct tokens per session")
	}
}
