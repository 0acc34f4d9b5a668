package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/org/archpilot/internal/audit"
	"github.com/org/archpilot/internal/auth"
	"github.com/org/archpilot/internal/credential"
	"github.com/org/archpilot/internal/crypto"
	"github.com/org/archpilot/internal/invoke"
	"github.com/org/archpilot/internal/mailer"
	"github.com/org/archpilot/internal/passcode"
	"github.com/org/archpilot/internal/ratelimit"
	"github.com/org/archpilot/internal/storage"
	"github.com/org/archpilot/pkg/models"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string
	TLSCertFile string
	TLSKeyFile  string
	SessionTTL  time.Duration
	RequestsRPS int
}

// AuditLogger is the interface the server needs from an audit logger.
type AuditLogger interface {
	LogRequest(ctx context.Context, entry *models.AuditEntry)
	Query(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditEntry, error)
}

// Server is the API server.
type Server struct {
	store     storage.StorageBackend
	sessions  *auth.SessionService
	creds     *credential.Service
	passcodes *passcode.Service
	invoker   *invoke.Invoker
	limiter   ratelimit.Limiter
	auditor   AuditLogger
	cfg       Config
	httpSrv   *http.Server
}

// NewServer creates a fully wired Server.
func NewServer(
	store storage.StorageBackend,
	cipher *crypto.StaticCipher,
	limiter ratelimit.Limiter,
	invoker *invoke.Invoker,
	m mailer.Mailer,
	cfg Config,
) *Server {
	creds := credential.NewService(store, cipher)
	passcodes := passcode.NewService(store, limiter, m)
	sessions := auth.NewSessionService(store, cfg.SessionTTL)
	auditor := audit.NewLogger(store)

	return &Server{
		store:     store,
		sessions:  sessions,
		creds:     creds,
		passcodes: passcodes,
		invoker:   invoker,
		limiter:   limiter,
		auditor:   auditor,
		cfg:       cfg,
	}
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(metricsMiddleware)
	r.Use(auditMiddleware(s.auditor))

	// Prometheus metrics (unauthenticated)
	r.Handle("/metrics", MetricsHandler())

	// Public routes (no session required)
	r.Group(func(r chi.Router) {
		r.Get("/v1/sys/health", s.HealthHandler)
		r.Post("/v1/auth/signup", s.SignupHandler)
		r.Post("/v1/auth/verify", s.VerifyHandler)
		r.Post("/v1/auth/resend", s.ResendHandler)
		r.Post("/v1/auth/signin", s.SigninHandler)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(sessionMiddleware(s.sessions))

		r.Post("/v1/auth/signout", s.SignoutHandler)

		// Provider keys (per-identity encryption)
		r.Put("/v1/keys/{provider}", s.KeyPutHandler)
		r.Delete("/v1/keys/{provider}", s.KeyDeleteHandler)

		// Linked source-hosting account (static-key encryption)
		r.Put("/v1/account/link", s.LinkAccountHandler)
		r.Delete("/v1/account/link", s.UnlinkAccountHandler)
		r.Delete("/v1/account", s.DeleteAccountHandler)

		// Designs
		r.Post("/v1/designs/generate", s.GenerateHandler)
		r.Get("/v1/designs", s.DesignListHandler)

		// Audit
		r.Get("/v1/sys/audit-log", s.AuditLogHandler)
	})

	return r
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // generation calls are slow
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		s.httpSrv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
