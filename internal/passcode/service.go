// Package passcode implements the one-time-passcode lifecycle: issue,
// resend under a throttle, verify. Per identity the states are
// unverified-without-code, unverified-with-code, verified; verification is
// terminal and never regresses.
package passcode

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/org/archpilot/internal/mailer"
	"github.com/org/archpilot/internal/ratelimit"
	"github.com/org/archpilot/internal/storage"
	"github.com/org/archpilot/pkg/models"
)

// Passcode domain outcomes. Each maps to exactly one caller-visible result.
var (
	ErrNotFound        = errors.New("identity not found")
	ErrAlreadyVerified = errors.New("identity already verified")
	ErrNoActiveCode    = errors.New("no active passcode")
	ErrExpired         = errors.New("passcode expired")
	ErrMismatch        = errors.New("passcode mismatch")
	ErrRateLimited     = errors.New("resend rate limit exceeded")
)

const (
	codeTTL    = 10 * time.Minute
	codeDigits = 6
)

var codeSpace = big.NewInt(1_000_000)

// Store is the persistence surface the passcode service needs.
type Store interface {
	GetIdentity(ctx context.Context, id string) (*models.Identity, error)
	SetPasscode(ctx context.Context, identityID, code string, expiresAt time.Time) error
	GetPasscode(ctx context.Context, identityID string) (*models.Passcode, error)
	MarkVerified(ctx context.Context, identityID string) error
}

// Service issues and verifies passcodes against the identity store.
type Service struct {
	store   Store
	limiter ratelimit.Limiter
	mailer  mailer.Mailer
	now     func() time.Time
}

// NewService creates a passcode Service.
func NewService(store Store, limiter ratelimit.Limiter, m mailer.Mailer) *Service {
	return &Service{store: store, limiter: limiter, mailer: m, now: time.Now}
}

// Issue generates a fresh 6-digit code for the identity, supersedes any
// previously active code, and mails it. Called on signup.
func (s *Service) Issue(ctx context.Context, identityID string) error {
	identity, err := s.store.GetIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	code, err := generateCode()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(codeTTL)

	if err := s.store.SetPasscode(ctx, identityID, code, expiresAt); err != nil {
		return fmt.Errorf("persisting passcode: %w", err)
	}
	return s.mailer.Send(ctx, identity.Email,
		"Your verification code",
		fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code),
	)
}

// Resend issues a new code, subject to a 1-per-60s throttle per identity.
// The previous code stops verifying the moment the new one is persisted.
func (s *Service) Resend(ctx context.Context, identityID string) error {
	identity, err := s.store.GetIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	// The window is consulted and consumed before any state check, so a
	// denied window reads the same whatever the identity's state.
	decision, err := s.limiter.Allow(ctx, identityID, ratelimit.PasscodeResend)
	if err != nil {
		return fmt.Errorf("consulting rate limiter: %w", err)
	}
	if !decision.Allowed {
		return ErrRateLimited
	}

	if identity.Verified {
		return ErrAlreadyVerified
	}
	return s.Issue(ctx, identityID)
}

// Verify checks a submitted code. On success the identity transitions to
// verified, the code and expiry are cleared, and a welcome mail is sent.
func (s *Service) Verify(ctx context.Context, identityID, submitted string) error {
	identity, err := s.store.GetIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if identity.Verified {
		return ErrAlreadyVerified
	}

	pc, err := s.store.GetPasscode(ctx, identityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if pc.Code == nil || pc.ExpiresAt == nil {
		return ErrNoActiveCode
	}
	if s.now().After(*pc.ExpiresAt) {
		return ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(*pc.Code), []byte(submitted)) != 1 {
		return ErrMismatch
	}

	if err := s.store.MarkVerified(ctx, identityID); err != nil {
		return fmt.Errorf("marking verified: %w", err)
	}
	return s.mailer.Send(ctx, identity.Email,
		"Welcome aboard",
		"Your account is verified. You can now generate architecture designs.",
	)
}

// generateCode draws a uniform value below 10^6 from a cryptographically
// secure source, so every zero-padded 6-digit string is equally likely.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generating passcode: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
