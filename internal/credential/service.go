// Package credential stores third-party secrets for an identity: the
// linked source-hosting account token and user-supplied AI-provider keys.
// Nothing in this package persists or logs plaintext; secrets are
// encrypted fully in memory before any write.
package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/org/archpilot/internal/crypto"
	"github.com/org/archpilot/internal/storage"
	"github.com/org/archpilot/pkg/models"
)

// ErrUnknownProvider is returned for a provider outside the supported set.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrNoKey is returned when an identity has no stored secret for the
// requested field.
var ErrNoKey = errors.New("no stored key")

// Store is the persistence surface the credential service needs.
type Store interface {
	GetCredential(ctx context.Context, identityID string) (*models.StoredCredential, error)
	SetCredentialField(ctx context.Context, identityID, field, blob string) error
	DeleteCredentialField(ctx context.Context, identityID, field string) error
	PurgeCredential(ctx context.Context, identityID string) error
}

// Service encrypts and decrypts stored credentials. Linked-account tokens
// use the process-wide static key; provider API keys use a key derived per
// identity, salted fresh on every write.
type Service struct {
	store  Store
	cipher *crypto.StaticCipher
}

// NewService creates a credential Service.
func NewService(store Store, cipher *crypto.StaticCipher) *Service {
	return &Service{store: store, cipher: cipher}
}

// SaveLinkedToken encrypts and stores the linked-account token, replacing
// any previous one wholesale.
func (s *Service) SaveLinkedToken(ctx context.Context, identityID, token string) error {
	blob, err := s.cipher.Seal([]byte(token))
	if err != nil {
		return fmt.Errorf("encrypting linked token: %w", err)
	}
	return s.store.SetCredentialField(ctx, identityID, storage.FieldLinkedToken, blob)
}

// LinkedToken decrypts and returns the identity's linked-account token.
// Returns ErrNoKey when no token is linked.
func (s *Service) LinkedToken(ctx context.Context, identityID string) (string, error) {
	cred, err := s.store.GetCredential(ctx, identityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNoKey
		}
		return "", err
	}
	if cred.LinkedToken == "" {
		return "", ErrNoKey
	}
	plaintext, err := s.cipher.Open(cred.LinkedToken)
	if err != nil {
		return "", fmt.Errorf("decrypting linked token: %w", err)
	}
	return string(plaintext), nil
}

// Unlink removes the linked-account token. Returns ErrNoKey when nothing
// is linked.
func (s *Service) Unlink(ctx context.Context, identityID string) error {
	cred, err := s.store.GetCredential(ctx, identityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNoKey
		}
		return err
	}
	if cred.LinkedToken == "" {
		return ErrNoKey
	}
	return s.store.DeleteCredentialField(ctx, identityID, storage.FieldLinkedToken)
}

// SaveProviderKey encrypts and stores a user-supplied AI-provider key
// under the identity's derived key.
func (s *Service) SaveProviderKey(ctx context.Context, identityID string, provider models.Provider, key string) error {
	if !provider.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	blob, err := crypto.SealWithSeed([]byte(key), s.cipher.IdentitySeed(identityID))
	if err != nil {
		return fmt.Errorf("encrypting %s key: %w", provider, err)
	}
	return s.store.SetCredentialField(ctx, identityID, string(provider), blob)
}

// ProviderKey decrypts and returns the identity's key for the given
// provider. Returns ErrNoKey when none is stored; decryption failures
// (corruption, tampering) surface as-is and are never treated as absent.
func (s *Service) ProviderKey(ctx context.Context, identityID string, provider models.Provider) (string, error) {
	if !provider.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	cred, err := s.store.GetCredential(ctx, identityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNoKey
		}
		return "", err
	}
	blob, ok := cred.ProviderKeys[provider]
	if !ok {
		return "", ErrNoKey
	}
	plaintext, err := crypto.OpenWithSeed(blob, s.cipher.IdentitySeed(identityID))
	if err != nil {
		return "", fmt.Errorf("decrypting %s key: %w", provider, err)
	}
	return string(plaintext), nil
}

// RemoveProviderKey deletes the stored key for one provider.
func (s *Service) RemoveProviderKey(ctx context.Context, identityID string, provider models.Provider) error {
	if !provider.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return s.store.DeleteCredentialField(ctx, identityID, string(provider))
}

// Purge destroys every stored credential for the identity. Called on
// account deletion.
func (s *Service) Purge(ctx context.Context, identityID string) error {
	return s.store.PurgeCredential(ctx, identityID)
}
