package ports

import (
	"context"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
)

// ModelProvider is a client bound to a single provider credential.
// Failures are returned as *provider.Error carrying structured metadata.
type ModelProvider interface {
	// Name returns the provider type (e.g., "openai", "gemini")
	Name() string

	// Complete runs a single non-streaming completion
	Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error)
}
