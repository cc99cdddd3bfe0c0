// Package provider builds model clients from credentials and classifies
// their failures.
//
// # Adding a New Provider
//
// Implement ports.ModelProvider in its own package and expose an explicit
// registration function that adds a Factory to a Registry. Wire that call
// from the runtime (or tests) so no package relies on init() side effects.
//
//	func Register(reg *provider.Registry) {
//	    reg.Register(provider.Factory{
//	        Type:        ProviderType,
//	        Description: "Google Gemini API provider",
//	        Create:      New,
//	    })
//	}
package provider

import (
	"net/http"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/ports"
)

// Options are shared construction settings for every backend.
type Options struct {
	// HTTPClient overrides the transport (tests, tracing)
	HTTPClient *http.Client
}

// Factory creates a client bound to one credential.
type Factory struct {
	// Type is the provider type stored with credentials
	Type string

	// Description is a human-readable description
	Description string

	// Create builds the client
	Create func(cred domain.Credential, opts Options) (ports.ModelProvider, error)
}
