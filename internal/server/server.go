// Package server exposes the tutoring gateway over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/classroom-llm-gateway/internal/access"
	"github.com/tjfontaine/classroom-llm-gateway/internal/admin"
	"github.com/tjfontaine/classroom-llm-gateway/internal/auth"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/ports"
	"github.com/tjfontaine/classroom-llm-gateway/internal/telemetry"
	"github.com/tjfontaine/classroom-llm-gateway/internal/tutor"
)

// AccountStore is the identity store view the HTTP layer needs.
type AccountStore interface {
	ports.IdentityStore
	ports.LocalAccountStore
}

// Config holds the HTTP settings.
type Config struct {
	Port           int
	RequestTimeout time.Duration
	CookieName     string
	ServiceName    string
}

// Deps are the components the handlers call.
type Deps struct {
	Logger     *slog.Logger
	Metrics    *telemetry.Metrics
	Accounts   AccountStore
	Sessions   *auth.TokenCodec
	Contexts   *auth.ContextResolver
	Access     *access.Resolver
	Tutor      *tutor.Service
	AdminLinks *admin.Registry
}

type Server struct {
	Router *chi.Mux
	Port   int

	cfg    Config
	deps   Deps
	logger *slog.Logger
	http   *http.Server
}

func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.AdminLinks == nil {
		deps.AdminLinks = admin.NewRegistry()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = auth.DefaultCookieName
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "classroom-llm-gateway"
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(deps.Logger))
	r.Use(MetricsMiddleware(deps.Metrics))
	r.Use(TimeoutMiddleware(cfg.RequestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, cfg.ServiceName)
	})
	r.Use(SessionMiddleware(deps.Sessions, deps.Contexts, cfg.CookieName))

	s := &Server{
		Router: r,
		Port:   cfg.Port,
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.routes()
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
