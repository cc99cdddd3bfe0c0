// Package config loads gateway settings from a YAML file and TUTOR_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides. Nested keys use "__", so
// TUTOR_SERVER__PORT sets server.port.
const EnvPrefix = "TUTOR_"

// DefaultPath is read when Load is given no path.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Session   SessionConfig   `koanf:"session"`
	Platform  PlatformConfig  `koanf:"platform"`
	Tutor     TutorConfig     `koanf:"tutor"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type SessionConfig struct {
	Secret     string        `koanf:"secret"`
	TTL        time.Duration `koanf:"ttl"`
	CookieName string        `koanf:"cookie_name"`
}

// PlatformConfig is the default credential used for admin overrides, local
// logins and free-token access.
type PlatformConfig struct {
	Provider string `koanf:"provider"` // openai, gemini
	APIKey   string `koanf:"api_key"`
	BaseURL  string `koanf:"base_url"`
	Model    string `koanf:"model"`
}

type TutorConfig struct {
	ModelTimeout    time.Duration `koanf:"model_timeout"`
	Temperature     float32       `koanf:"temperature"`
	MaxTokens       int           `koanf:"max_tokens"`
	MaxPromptTokens int           `koanf:"max_prompt_tokens"`
	HistoryLimit    int           `koanf:"history_limit"`
}

type TelemetryConfig struct {
	Tracing     bool   `koanf:"tracing"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.port":             8080,
	"server.request_timeout":  90 * time.Second,
	"storage.type":            "sqlite",
	"storage.sqlite.path":     "tutor.db",
	"session.ttl":             24 * time.Hour,
	"session.cookie_name":     "tutor_session",
	"platform.provider":       "openai",
	"platform.model":          "gpt-4o-mini",
	"tutor.model_timeout":     60 * time.Second,
	"tutor.temperature":       0.25,
	"tutor.max_tokens":        1000,
	"tutor.max_prompt_tokens": 0,
	"tutor.history_limit":     10,
	"telemetry.tracing":       false,
	"telemetry.service_name":  "classroom-llm-gateway",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty), then environment overrides,
// then fills defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Session.Secret = substituteEnvVars(cfg.Session.Secret)
	cfg.Platform.APIKey = substituteEnvVars(cfg.Platform.APIKey)
	cfg.Platform.BaseURL = substituteEnvVars(cfg.Platform.BaseURL)
	cfg.Storage.SQLite.Path = substituteEnvVars(cfg.Storage.SQLite.Path)

	return &cfg, nil
}

// Validate reports the first setting that would stop the gateway from
// serving requests.
func (c *Config) Validate() error {
	switch {
	case c.Session.Secret == "":
		return errors.New("session.secret is required")
	case c.Platform.APIKey == "":
		return errors.New("platform.api_key is required")
	case c.Platform.Model == "":
		return errors.New("platform.model is required")
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %q", c.Storage.Type)
	}

	if c.Tutor.ModelTimeout <= 0 {
		return errors.New("tutor.model_timeout must be positive")
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
