package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/org/archpilot/internal/api"
	"github.com/org/archpilot/internal/crypto"
	"github.com/org/archpilot/internal/invoke"
	"github.com/org/archpilot/internal/mailer"
	"github.com/org/archpilot/internal/provider"
	"github.com/org/archpilot/internal/ratelimit"
	"github.com/org/archpilot/internal/storage"
	"github.com/org/archpilot/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type config struct {
	ListenAddr    string `yaml:"listen_addr"`
	TLSCertFile   string `yaml:"tls_cert"`
	TLSKeyFile    string `yaml:"tls_key"`
	DBUrl         string `yaml:"db_url"`
	RedisAddr     string `yaml:"redis_addr"`
	MigrationsDir string `yaml:"migrations_dir"`
	LogLevel      string `yaml:"log_level"`
	SessionTTL    string `yaml:"session_ttl"`

	// Static encryption key, 64 hex characters. The server refuses to
	// start without it: handling secrets with a misconfigured cipher is
	// worse than not starting.
	EncryptionKey string `yaml:"encryption_key"`

	SystemKeys struct {
		OpenAI    string `yaml:"openai"`
		Gemini    string `yaml:"gemini"`
		Anthropic string `yaml:"anthropic"`
	} `yaml:"system_keys"`

	SMTP struct {
		Addr     string `yaml:"addr"`
		From     string `yaml:"from"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"smtp"`
}

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	cfgFile := "config.yaml"
	if v := os.Getenv("ARCHPILOT_CONFIG"); v != "" {
		cfgFile = v
	}

	cfg := config{
		ListenAddr:    ":8420",
		MigrationsDir: "migrations",
		LogLevel:      "info",
		SessionTTL:    "24h",
	}

	if data, err := os.ReadFile(cfgFile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to parse config")
		}
	} else {
		log.Warn().Str("file", cfgFile).Msg("config file not found, using defaults")
	}

	// Env overrides
	if v := os.Getenv("ARCHPILOT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DBUrl = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("ARCHPILOT_ENCRYPTION_KEY"); v != "" {
		cfg.EncryptionKey = v
	}
	if v := os.Getenv("ARCHPILOT_OPENAI_KEY"); v != "" {
		cfg.SystemKeys.OpenAI = v
	}
	if v := os.Getenv("ARCHPILOT_GEMINI_KEY"); v != "" {
		cfg.SystemKeys.Gemini = v
	}
	if v := os.Getenv("ARCHPILOT_ANTHROPIC_KEY"); v != "" {
		cfg.SystemKeys.Anthropic = v
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.DBUrl == "" {
		log.Fatal().Msg("db_url must be configured (or DATABASE_URL env var)")
	}

	cipher, err := crypto.NewStaticCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid encryption_key (expect 64 hex characters)")
	}

	sessionTTL, err := time.ParseDuration(cfg.SessionTTL)
	if err != nil {
		log.Fatal().Err(err).Str("session_ttl", cfg.SessionTTL).Msg("invalid session_ttl")
	}

	ctx := context.Background()

	// Connect to database
	store, err := storage.NewPostgresBackend(ctx, cfg.DBUrl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer store.Close()

	// Run migrations
	if err := storage.RunMigrations(cfg.DBUrl, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("migrations applied")

	// Rate limiter: Redis when configured so counting stays atomic across
	// instances, in-process otherwise.
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rl, err := ratelimit.NewRedisLimiter(&redis.Options{Addr: cfg.RedisAddr})
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
		}
		limiter = rl
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis rate limiter")
	} else {
		limiter = ratelimit.NewMemoryLimiter()
		log.Warn().Msg("redis_addr not set, using in-process rate limiter")
	}

	// Provider clients and system-tier credentials
	clients := provider.NewRegistry(&http.Client{Timeout: 90 * time.Second})
	systemKeys := map[models.Provider]string{}
	if cfg.SystemKeys.OpenAI != "" {
		systemKeys[models.ProviderOpenAI] = cfg.SystemKeys.OpenAI
	}
	if cfg.SystemKeys.Gemini != "" {
		systemKeys[models.ProviderGemini] = cfg.SystemKeys.Gemini
	}
	if cfg.SystemKeys.Anthropic != "" {
		systemKeys[models.ProviderAnthropic] = cfg.SystemKeys.Anthropic
	}
	if len(systemKeys) == 0 {
		log.Warn().Msg("no system provider keys configured, users must bring their own keys")
	}
	invoker := invoke.NewInvoker(clients, systemKeys)

	// Mailer
	var m mailer.Mailer
	if cfg.SMTP.Addr != "" {
		m = mailer.NewSMTPMailer(cfg.SMTP.Addr, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	} else {
		m = mailer.LogMailer{}
		log.Warn().Msg("smtp not configured, verification mail goes to the log")
	}

	// Create server
	srv := api.NewServer(store, cipher, limiter, invoker, m, api.Config{
		ListenAddr:  cfg.ListenAddr,
		TLSCertFile: cfg.TLSCertFile,
		TLSKeyFile:  cfg.TLSKeyFile,
		SessionTTL:  sessionTTL,
	})

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("server started")
	<-quit

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}
