// Package gemini implements the Google Gemini backend on the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/ports"
	"github.com/tjfontaine/classroom-llm-gateway/internal/provider"
)

// ProviderType is the provider type identifier stored with credentials.
const ProviderType = "gemini"

// Provider implements ports.ModelProvider over the Gemini API.
type Provider struct {
	client *genai.Client
}

var _ ports.ModelProvider = (*Provider)(nil)

// Register adds the Gemini factory to reg.
func Register(reg *provider.Registry) {
	reg.Register(provider.Factory{
		Type:        ProviderType,
		Description: "Google Gemini API provider",
		Create:      CreateFromCredential,
	})
}

// CreateFromCredential builds a provider bound to cred.
func CreateFromCredential(cred domain.Credential, opts provider.Options) (ports.ModelProvider, error) {
	if cred.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:     cred.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if cred.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: cred.BaseURL}
	}

	// Construction only validates config; no request is made.
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string {
	return ProviderType
}

func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	contents, system := toContents(req.Messages)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Sampling.Temperature),
		MaxOutputTokens: int32(req.Sampling.MaxTokens),
	}
	if req.Sampling.N > 0 {
		config.CandidateCount = int32(req.Sampling.N)
	}
	if system != nil {
		config.SystemInstruction = system
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, toProviderError(err)
	}
	if len(resp.Candidates) == 0 {
		return nil, &provider.Error{Provider: ProviderType, Message: "response contained no candidates"}
	}

	out := &domain.CompletionResponse{
		Text:         strings.TrimSpace(resp.Text()),
		FinishReason: domain.FinishStop,
		Model:        req.Model,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		out.FinishReason = domain.FinishLength
	}
	if resp.UsageMetadata != nil {
		out.Usage = domain.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

// toContents maps turns to Gemini contents. System turns become the system
// instruction; assistant turns use the model role.
func toContents(turns []domain.Turn) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   []*genai.Part
	)
	for _, t := range turns {
		switch t.Role {
		case domain.TurnSystem:
			system = append(system, genai.NewPartFromText(t.Content))
		case domain.TurnAssistant:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{Parts: system}
}

func toProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErrorToProvider(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrorToProvider(*apiErrPtr, err)
	}
	return &provider.Error{Provider: ProviderType, Err: err}
}

func apiErrorToProvider(apiErr genai.APIError, err error) *provider.Error {
	return &provider.Error{
		Provider:   ProviderType,
		StatusCode: apiErr.Code,
		Type:       apiErr.Status,
		Message:    apiErr.Message,
		Timeout:    apiErr.Code == http.StatusGatewayTimeout || apiErr.Status == "DEADLINE_EXCEEDED",
		Err:        err,
	}
}
