package runtime

import (
	"fmt"

	"github.com/tjfontaine/classroom-llm-gateway/internal/config"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage/memory"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage/sqlite"
	"github.com/tjfontaine/classroom-llm-gateway/internal/tutor"
)

// openStore opens the backend named by cfg.Type.
func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite", "":
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func platformCredential(cfg config.PlatformConfig) domain.Credential {
	return domain.Credential{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		Source:   domain.SourcePlatform,
	}
}

func tutorConfig(cfg config.TutorConfig) tutor.Config {
	out := tutor.DefaultConfig()
	if cfg.ModelTimeout > 0 {
		out.ModelTimeout = cfg.ModelTimeout
	}
	if cfg.Temperature > 0 {
		out.Sampling.Temperature = cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		out.Sampling.MaxTokens = cfg.MaxTokens
	}
	if cfg.HistoryLimit > 0 {
		out.HistoryLimit = cfg.HistoryLimit
	}
	out.MaxPromptTokens = cfg.MaxPromptTokens
	return out
}
