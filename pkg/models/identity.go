package models

import "time"

// Identity is a signed-up user account.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Passcode is a one-time verification code bound to an identity.
// At most one active (unconsumed, unexpired) passcode exists per identity;
// issuing a new one supersedes the previous.
type Passcode struct {
	IdentityID string
	Code       *string
	ExpiresAt  *time.Time
	Consumed   bool
}

// Active returns true if the passcode can still be submitted.
func (p *Passcode) Active(now time.Time) bool {
	return !p.Consumed && p.Code != nil && p.ExpiresAt != nil && now.Before(*p.ExpiresAt)
}

// Session is an authenticated API session.
type Session struct {
	ID         string
	IdentityID string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// IsExpired returns true if the session has passed its expiry time.
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// IsRevoked returns true if the session has been revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}
