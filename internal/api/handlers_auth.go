package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/org/archpilot/internal/passcode"
	"github.com/org/archpilot/internal/ratelimit"
	"github.com/org/archpilot/internal/storage"
	"github.com/org/archpilot/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	IdentityID string `json:"identity_id"`
}

// SignupHandler creates an unverified identity and issues the first
// verification passcode.
func (s *Server) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	identity := &models.Identity{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateIdentity(r.Context(), identity); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		log.Error().Err(err).Msg("creating identity")
		writeError(w, http.StatusInternalServerError, "failed to create identity")
		return
	}

	if err := s.passcodes.Issue(r.Context(), identity.ID); err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("issuing passcode")
		writeError(w, http.StatusInternalServerError, "failed to send verification code")
		return
	}

	writeJSON(w, http.StatusCreated, signupResponse{IdentityID: identity.ID})
}

type verifyRequest struct {
	IdentityID string `json:"identity_id"`
	Code       string `json:"code"`
}

// VerifyHandler submits a passcode against a pending identity.
func (s *Server) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IdentityID == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "identity_id and code are required")
		return
	}

	if err := s.passcodes.Verify(r.Context(), req.IdentityID, req.Code); err != nil {
		code, msg := passcodeStatus(err)
		writeError(w, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

type resendRequest struct {
	IdentityID string `json:"identity_id"`
}

// ResendHandler issues a fresh passcode, superseding the active one.
func (s *Server) ResendHandler(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IdentityID == "" {
		writeError(w, http.StatusBadRequest, "identity_id is required")
		return
	}

	if err := s.passcodes.Resend(r.Context(), req.IdentityID); err != nil {
		code, msg := passcodeStatus(err)
		writeError(w, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// passcodeStatus maps passcode service errors to HTTP responses.
func passcodeStatus(err error) (int, string) {
	switch {
	case errors.Is(err, passcode.ErrNotFound):
		return http.StatusNotFound, "identity not found"
	case errors.Is(err, passcode.ErrAlreadyVerified):
		return http.StatusConflict, "identity already verified"
	case errors.Is(err, passcode.ErrNoActiveCode):
		return http.StatusBadRequest, "no active verification code"
	case errors.Is(err, passcode.ErrExpired):
		return http.StatusBadRequest, "verification code expired"
	case errors.Is(err, passcode.ErrMismatch):
		return http.StatusBadRequest, "verification code mismatch"
	case errors.Is(err, passcode.ErrRateLimited):
		return http.StatusTooManyRequests, "resend limit reached, try again later"
	default:
		return http.StatusInternalServerError, "verification failed"
	}
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signinResponse struct {
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SigninHandler authenticates an identity and issues a session token.
// Attempts are throttled per client IP and per account.
func (s *Server) SigninHandler(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if !s.allow(w, r, ratelimit.SigninIP, clientIP(r)) {
		return
	}
	if !s.allow(w, r, ratelimit.SigninAccount, req.Email) {
		return
	}

	identity, err := s.store.GetIdentityByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		log.Error().Err(err).Msg("looking up identity")
		writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !identity.Verified {
		writeError(w, http.StatusForbidden, "identity not verified")
		return
	}

	session, plaintext, err := s.sessions.Create(r.Context(), identity.ID)
	if err != nil {
		log.Error().Err(err).Msg("creating session")
		writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}
	writeJSON(w, http.StatusOK, signinResponse{SessionToken: plaintext, ExpiresAt: session.ExpiresAt})
}

// SignoutHandler revokes the current session.
func (s *Server) SignoutHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFromCtx(r.Context())
	if err := s.sessions.Revoke(r.Context(), session.ID); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("revoking session")
		writeError(w, http.StatusInternalServerError, "sign-out failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// allow consults the limiter and writes a 429 when the policy denies.
// Limiter errors fail open: a broken counter should not lock users out.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, policy ratelimit.Policy, subject string) bool {
	decision, err := s.limiter.Allow(r.Context(), subject, policy)
	if err != nil {
		log.Warn().Err(err).Str("policy", policy.Name).Msg("rate limiter unavailable")
		return true
	}
	if !decision.Allowed {
		rateLimitDenials.WithLabelValues(policy.Name).Inc()
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
		return false
	}
	return true
}
