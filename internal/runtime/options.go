package runtime

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/classroom-llm-gateway/internal/config"
	"github.com/tjfontaine/classroom-llm-gateway/internal/provider"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage/sqlite"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(g *Gateway) error {
		g.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file plus TUTOR_*
// environment overrides.
func WithConfigFile(path string) Option {
	return func(g *Gateway) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		g.cfg = cfg
		return nil
	}
}

// WithSQLite opens SQLite storage at path, overriding storage settings in
// the config.
func WithSQLite(path string) Option {
	return func(g *Gateway) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		g.store = store
		return nil
	}
}

// WithStore sets a custom store. The gateway closes it on Shutdown.
func WithStore(store storage.Store) Option {
	return func(g *Gateway) error {
		g.store = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		if logger != nil {
			g.logger = logger
		}
		return nil
	}
}

// WithHTTPClient sets the client shared by every model provider.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) error {
		g.httpClient = client
		return nil
	}
}

// WithProviderFactory registers an extra provider type, replacing a built-in
// one of the same type.
func WithProviderFactory(f provider.Factory) Option {
	return func(g *Gateway) error {
		if f.Type == "" || f.Create == nil {
			return fmt.Errorf("provider factory needs a type and a create func")
		}
		g.factories = append(g.factories, f)
		return nil
	}
}
