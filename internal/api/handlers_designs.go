package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/org/archpilot/internal/credential"
	"github.com/org/archpilot/internal/ratelimit"
	"github.com/org/archpilot/pkg/models"
	"github.com/rs/zerolog/log"
)

type generateRequest struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type generateResponse struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Tier     string `json:"tier"`
	Content  string `json:"content"`
}

// GenerateHandler runs a design generation through the tiered invoker.
// The user's own provider key, when stored, is tried before the system
// credential; exhaustion of both surfaces as 503 with the
// credentials_exhausted marker.
func (s *Server) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFromCtx(r.Context())

	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	p := models.Provider(req.Provider)
	if !p.Valid() {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	if !s.allow(w, r, ratelimit.Generate, session.IdentityID) {
		return
	}

	userKey, err := s.creds.ProviderKey(r.Context(), session.IdentityID, p)
	if err != nil && !errors.Is(err, credential.ErrNoKey) {
		log.Error().Err(err).Str("provider", string(p)).Msg("loading provider key")
		writeError(w, http.StatusInternalServerError, "failed to load credentials")
		return
	}

	result, err := s.invoker.Invoke(r.Context(), &models.DesignRequest{
		Prompt:   req.Prompt,
		Provider: p,
		Model:    req.Model,
	}, userKey)
	if err != nil {
		if result != nil && result.AllTiersFailed {
			tierExhaustionsTotal.Inc()
			writeExhausted(w, "provider credentials exhausted, add a personal API key")
			return
		}
		log.Error().Err(err).Str("provider", string(p)).Msg("generation failed")
		writeError(w, http.StatusBadGateway, "generation failed")
		return
	}

	design := &models.DesignResult{
		ID:         uuid.NewString(),
		IdentityID: session.IdentityID,
		Provider:   p,
		Tier:       string(result.Tier),
		Content:    result.Response,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.SaveDesign(r.Context(), design); err != nil {
		log.Error().Err(err).Msg("persisting design")
		// The generation itself succeeded; return it anyway.
	}
	generationsTotal.WithLabelValues(string(p), string(result.Tier)).Inc()

	writeJSON(w, http.StatusOK, generateResponse{
		ID:       design.ID,
		Provider: string(p),
		Tier:     string(result.Tier),
		Content:  result.Response,
	})
}

type designSummary struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Tier      string    `json:"tier"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// DesignListHandler returns the identity's stored designs, newest first.
func (s *Server) DesignListHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFromCtx(r.Context())

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	designs, err := s.store.ListDesigns(r.Context(), session.IdentityID, limit)
	if err != nil {
		log.Error().Err(err).Msg("listing designs")
		writeError(w, http.StatusInternalServerError, "failed to list designs")
		return
	}

	out := make([]designSummary, 0, len(designs))
	for _, d := range designs {
		out = append(out, designSummary{
			ID:        d.ID,
			Provider:  string(d.Provider),
			Tier:      d.Tier,
			Content:   d.Content,
			CreatedAt: d.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"designs": out})
}
