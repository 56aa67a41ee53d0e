package rpc

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"loyaltyledger/gateway/middleware"
	"loyaltyledger/native/loyalty"
	"loyaltyledger/storage/journal"
)

const (
	maxRequestBodyBytes = 1 << 16
	defaultJournalLimit = 50
	maxJournalLimit     = 500

	// rateLimitKey names the limiter bucket shared by every API route.
	rateLimitKey = "loyalty"
)

// Config wires the loyalty components into the HTTP surface. Registry and
// Ledger are required; everything else is optional.
type Config struct {
	ServiceName   string
	Registry      *loyalty.TierRegistry
	Ledger        *loyalty.Ledger
	Journal       *journal.Journal
	Hub           *Hub
	Auth          *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          *middleware.CORSConfig
	Logger        *slog.Logger
}

// Server exposes the tier registry and the token ledger over HTTP.
type Server struct {
	cfg      Config
	registry *loyalty.TierRegistry
	ledger   *loyalty.Ledger
	journal  *journal.Journal
	hub      *Hub
	auth     *middleware.Authenticator
	logger   *slog.Logger
	started  time.Time
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "loyaltyd"
	}
	auth := cfg.Auth
	if auth == nil {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{}, logger)
	}
	auth.SetErrorWriter(writeStatus)
	if cfg.RateLimiter != nil {
		cfg.RateLimiter.SetErrorWriter(writeStatus)
	}
	return &Server{
		cfg:      cfg,
		registry: cfg.Registry,
		ledger:   cfg.Ledger,
		journal:  cfg.Journal,
		hub:      cfg.Hub,
		auth:     auth,
		logger:   logger,
		started:  time.Now(),
	}
}

// Handler returns the router wrapped with otel request tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.buildRouter(), s.cfg.ServiceName)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if s.cfg.CORS != nil {
		r.Use(middleware.CORS(*s.cfg.CORS))
	}
	if s.cfg.Observability != nil {
		r.Use(s.cfg.Observability.Middleware)
	}

	r.Get("/healthz", s.handleHealth)
	if s.cfg.Observability != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Observability.MetricsHandler())
	}

	write := s.auth.Middleware(middleware.ScopeWrite)
	admin := s.auth.Middleware(middleware.ScopeAdmin)

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.RateLimiter != nil {
			r.Use(s.cfg.RateLimiter.Middleware(rateLimitKey))
		}
		r.Use(chimw.RequestSize(maxRequestBodyBytes))

		r.Route("/tiers", func(r chi.Router) {
			r.Get("/", s.handleListTiers)
			r.Post("/determine", s.handleDetermineTier)
			r.Get("/{tier}", s.handleGetTier)
			r.With(admin).Put("/{tier}/requirement", s.handleSetTierRequirement)
			r.With(admin).Put("/{tier}/multiplier", s.handleSetTierMultiplier)
		})
		r.Route("/users/{user}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Post("/adjusted-amount", s.handleAdjustedAmount)
			r.With(write).Post("/tier", s.handleUpdateUserTier)
			r.With(write).Post("/redeem", s.handleRedeem)
			r.With(write).Post("/stake", s.handleStake)
			r.With(write).Post("/unstake", s.handleUnstake)
		})
		r.Route("/businesses/{business}", func(r chi.Router) {
			r.Get("/", s.handleGetBusiness)
			r.With(admin).Put("/", s.handleRegisterBusiness)
		})
		r.With(write).Post("/mint", s.handleMint)
		r.With(admin).Get("/journal", s.handleJournal)
		r.Get("/events/ws", s.handleEventsWS)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
}
