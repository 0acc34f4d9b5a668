package storage

import (
	"context"
	"errors"
	"time"

	"github.com/org/archpilot/pkg/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when trying to create a resource that already exists.
var ErrAlreadyExists = errors.New("already exists")

// FieldLinkedToken is the credential field holding the linked-account
// token. Provider API keys use the provider identifier as the field.
const FieldLinkedToken = "linked_token"

// StorageBackend defines the persistence interface for the service.
type StorageBackend interface {
	// Identities
	CreateIdentity(ctx context.Context, identity *models.Identity) error
	GetIdentity(ctx context.Context, id string) (*models.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*models.Identity, error)
	DeleteIdentity(ctx context.Context, id string) error

	// Passcodes. SetPasscode supersedes any previously active code in a
	// single statement, so concurrent resends leave exactly one active
	// code. MarkVerified flips the identity to verified and clears the
	// code and expiry together.
	SetPasscode(ctx context.Context, identityID, code string, expiresAt time.Time) error
	GetPasscode(ctx context.Context, identityID string) (*models.Passcode, error)
	MarkVerified(ctx context.Context, identityID string) error

	// Credentials
	GetCredential(ctx context.Context, identityID string) (*models.StoredCredential, error)
	SetCredentialField(ctx context.Context, identityID, field, blob string) error
	DeleteCredentialField(ctx context.Context, identityID, field string) error
	PurgeCredential(ctx context.Context, identityID string) error

	// Sessions
	WriteSession(ctx context.Context, session *models.Session, tokenHash string) error
	GetSession(ctx context.Context, tokenHash string) (*models.Session, error)
	RevokeSession(ctx context.Context, sessionID string) error

	// Designs
	SaveDesign(ctx context.Context, design *models.DesignResult) error
	ListDesigns(ctx context.Context, identityID string, limit int) ([]*models.DesignResult, error)

	// Audit
	WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error)

	// Lifecycle
	Close()
}

// AuditFilter specifies query parameters for audit log retrieval.
type AuditFilter struct {
	IdentityID string
	Path       string
	Since      *time.Time
	Limit      int
	Offset     int
}
