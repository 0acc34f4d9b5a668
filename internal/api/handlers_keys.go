package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/org/archpilot/internal/credential"
	"github.com/org/archpilot/pkg/models"
	"github.com/rs/zerolog/log"
)

type keyPutRequest struct {
	APIKey string `json:"api_key"`
}

// KeyPutHandler stores a provider API key for the authenticated identity.
// The key is sealed under a key derived for this identity before it ever
// reaches storage.
func (s *Server) KeyPutHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFromCtx(r.Context())
	p := models.Provider(chi.URLParam(r, "provider"))
	if !p.Valid() {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	var req keyPutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	if err := s.creds.SaveProviderKey(r.Context(), session.IdentityID, p, req.APIKey); err != nil {
		log.Error().Err(err).Str("provider", string(p)).Msg("storing provider key")
		writeError(w, http.StatusInternalServerError, "failed to store key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "provider": string(p)})
}

// KeyDeleteHandler removes a stored provider API key.
func (s *Server) KeyDeleteHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFromCtx(r.Context())
	p := models.Provider(chi.URLParam(r, "provider"))
	if !p.Valid() {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	if err := s.creds.RemoveProviderKey(r.Context(), session.IdentityID, p); err != nil {
		log.Error().Err(err).Str("provider", string(p)).Msg("removing provider key")
		writeError(w, http.StatusInternalServerError, "failed to remove key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "provider": string(p)})
}

type linkAccountRequest struct {
	Token string `json:"token"`
}

// LinkAccountHandler stores the source-hosting account token. A relink
// replaces the previous token wholesale.
func (s *Server) LinkAccountHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFromCtx(r.Context())

	var req linkAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := s.creds.SaveLinkedToken(r.Context(), session.IdentityID, req.Token); err != nil {
		log.Error().Err(err).Msg("linking account")
		writeError(w, http.StatusInternalServerError, "failed to link account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "linked"})
}

// UnlinkAccountHandler removes the linked-account token.
func (s *Server) UnlinkAccountHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFromCtx(r.Context())

	if err := s.creds.Unlink(r.Context(), session.IdentityID); err != nil {
		if errors.Is(err, credential.ErrNoKey) {
			writeError(w, http.StatusNotFound, "no linked account")
			return
		}
		log.Error().Err(err).Msg("unlinking account")
		writeError(w, http.StatusInternalServerError, "failed to unlink account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlinked"})
}

// DeleteAccountHandler purges the identity's credentials and removes the
// identity itself. Stored ciphertexts are deleted, not merely orphaned.
func (s *Server) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFromCtx(r.Context())

	if err := s.creds.Purge(r.Context(), session.IdentityID); err != nil {
		log.Error().Err(err).Msg("purging credentials")
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}
	if err := s.sessions.Revoke(r.Context(), session.ID); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("revoking session during account deletion")
	}
	if err := s.store.DeleteIdentity(r.Context(), session.IdentityID); err != nil {
		log.Error().Err(err).Msg("deleting identity")
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
