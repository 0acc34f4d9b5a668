package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/org/archpilot/internal/storage"
	"github.com/rs/zerolog/log"
)

// HealthHandler reports service readiness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type auditEntryResponse struct {
	Time           time.Time `json:"time"`
	RequestID      string    `json:"request_id"`
	Operation      string    `json:"operation"`
	Path           string    `json:"path"`
	Status         string    `json:"status"`
	ResponseCode   int       `json:"response_code"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	ClientIP       string    `json:"client_ip"`
}

// AuditLogHandler returns the authenticated identity's own audit trail.
func (s *Server) AuditLogHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFromCtx(r.Context())

	filter := storage.AuditFilter{
		IdentityID: session.IdentityID,
		Path:       r.URL.Query().Get("path"),
		Limit:      100,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			filter.Limit = n
		}
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = &t
		}
	}

	entries, err := s.auditor.Query(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("querying audit log")
		writeError(w, http.StatusInternalServerError, "failed to query audit log")
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			Time:           e.Timestamp,
			RequestID:      e.RequestID,
			Operation:      e.Operation,
			Path:           e.Path,
			Status:         e.Status,
			ResponseCode:   e.ResponseCode,
			ResponseTimeMs: e.ResponseTimeMs,
			ClientIP:       e.ClientIP,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
