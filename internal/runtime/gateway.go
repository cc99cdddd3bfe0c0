// Package runtime assembles the tutoring gateway from configuration and
// manages its lifecycle.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/classroom-llm-gateway/internal/access"
	"github.com/tjfontaine/classroom-llm-gateway/internal/admin"
	"github.com/tjfontaine/classroom-llm-gateway/internal/auth"
	"github.com/tjfontaine/classroom-llm-gateway/internal/config"
	"github.com/tjfontaine/classroom-llm-gateway/internal/provider"
	"github.com/tjfontaine/classroom-llm-gateway/internal/provider/gemini"
	"github.com/tjfontaine/classroom-llm-gateway/internal/provider/openai"
	"github.com/tjfontaine/classroom-llm-gateway/internal/server"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage"
	"github.com/tjfontaine/classroom-llm-gateway/internal/telemetry"
	"github.com/tjfontaine/classroom-llm-gateway/internal/tokens"
	"github.com/tjfontaine/classroom-llm-gateway/internal/tutor"
)

// Gateway owns every long-lived component: the store, the provider registry,
// the resolvers, the tutor service and the HTTP server.
type Gateway struct {
	// Dependencies (injected via options)
	cfg        *config.Config
	store      storage.Store
	logger     *slog.Logger
	httpClient *http.Client
	factories  []provider.Factory

	// Assembled components
	providers *provider.Registry
	metrics   *telemetry.Metrics
	access    *access.Resolver
	tutor     *tutor.Service
	links     *admin.Registry
	server    *server.Server

	mu      sync.Mutex
	started bool
	serveCh chan error
}

// New assembles a Gateway. A config is required; the store is opened from
// it unless WithStore supplied one.
func New(opts ...Option) (*Gateway, error) {
	gw := &Gateway{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if gw.cfg == nil {
		return nil, fmt.Errorf("config required (use WithConfig or WithConfigFile)")
	}
	if err := gw.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if gw.store == nil {
		store, err := openStore(gw.cfg.Storage)
		if err != nil {
			return nil, err
		}
		gw.store = store
	}

	if gw.httpClient == nil {
		gw.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	if err := gw.assemble(); err != nil {
		gw.store.Close()
		return nil, err
	}
	return gw, nil
}

func (g *Gateway) assemble() error {
	cfg := g.cfg

	g.metrics = telemetry.NewMetrics(prometheus.NewRegistry())

	g.providers = provider.NewRegistry(provider.Options{HTTPClient: g.httpClient})
	openai.Register(g.providers)
	gemini.Register(g.providers)
	for _, f := range g.factories {
		g.providers.Register(f)
	}
	if !g.providers.IsRegistered(cfg.Platform.Provider) {
		return fmt.Errorf("platform.provider %q is not supported (have %s)",
			cfg.Platform.Provider, strings.Join(g.providers.Types(), ", "))
	}

	g.access = access.NewResolver(g.store, g.providers, platformCredential(cfg.Platform),
		access.WithLogger(g.logger),
		access.WithMetrics(g.metrics),
	)

	g.tutor = tutor.NewService(g.store,
		tutor.WithConfig(tutorConfig(cfg.Tutor)),
		tutor.WithLogger(g.logger),
		tutor.WithMetrics(g.metrics),
		tutor.WithTokenCounter(tokens.NewRegistry()),
	)

	g.links = admin.NewRegistry()

	g.server = server.New(server.Config{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		CookieName:     cfg.Session.CookieName,
		ServiceName:    cfg.Telemetry.ServiceName,
	}, server.Deps{
		Logger:     g.logger,
		Metrics:    g.metrics,
		Accounts:   g.store,
		Sessions:   auth.NewTokenCodec(cfg.Session.Secret, cfg.Session.TTL),
		Contexts:   auth.NewContextResolver(g.store, g.logger),
		Access:     g.access,
		Tutor:      g.tutor,
		AdminLinks: g.links,
	})

	g.logger.Debug("gateway assembled",
		slog.String("storage", cfg.Storage.Type),
		slog.String("platform_provider", cfg.Platform.Provider),
		slog.Any("provider_types", g.providers.Types()))
	return nil
}

// Handler returns the HTTP handler without starting a listener.
func (g *Gateway) Handler() http.Handler {
	return g.server.Router
}

// Store returns the backing store, for provisioning.
func (g *Gateway) Store() storage.Store {
	return g.store
}

// Start begins serving in the background. Serve errors are reported by Wait.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return fmt.Errorf("gateway already started")
	}
	g.started = true
	g.serveCh = make(chan error, 1)

	go func() {
		err := g.server.Start()
		if err != nil {
			g.logger.Error("server error", slog.String("error", err.Error()))
		}
		g.serveCh <- err
	}()

	g.logger.InfoContext(ctx, "gateway started",
		slog.Int("port", g.cfg.Server.Port),
		slog.String("storage", g.cfg.Storage.Type),
		slog.String("platform_model", g.cfg.Platform.Model))
	return nil
}

// Wait blocks until the server stops or ctx is done.
func (g *Gateway) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.serveCh
	g.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("gateway not started")
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops the HTTP server, then closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down gateway")

	if g.started {
		if err := g.server.Shutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			return err
		}
		g.started = false
	}

	if err := g.store.Close(); err != nil {
		g.logger.Error("failed to close storage", slog.String("error", err.Error()))
		return err
	}

	g.logger.Info("gateway shutdown complete")
	return nil
}
