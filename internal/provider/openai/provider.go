// Package openai implements the OpenAI chat completions backend.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/ports"
	"github.com/tjfontaine/classroom-llm-gateway/internal/provider"
)

// ProviderType is the provider type identifier stored with credentials.
const ProviderType = "openai"

// ProviderOption configures the provider.
type ProviderOption func(*Provider)

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

// Provider implements ports.ModelProvider over the chat completions API.
type Provider struct {
	client     *Client
	baseURL    string
	httpClient *http.Client
}

var _ ports.ModelProvider = (*Provider)(nil)

// New creates a new OpenAI provider.
func New(apiKey string, opts ...ProviderOption) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}

	var clientOpts []ClientOption
	if p.baseURL != "" {
		clientOpts = append(clientOpts, WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, WithHTTPClient(p.httpClient))
	}

	p.client = NewClient(apiKey, clientOpts...)
	return p
}

// Register adds the OpenAI factory to reg.
func Register(reg *provider.Registry) {
	reg.Register(provider.Factory{
		Type:        ProviderType,
		Description: "OpenAI chat completions API",
		Create:      CreateFromCredential,
	})
}

// CreateFromCredential builds a provider bound to cred.
func CreateFromCredential(cred domain.Credential, opts provider.Options) (ports.ModelProvider, error) {
	if cred.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	var popts []ProviderOption
	if cred.BaseURL != "" {
		popts = append(popts, WithBaseURL(cred.BaseURL))
	}
	if opts.HTTPClient != nil {
		popts = append(popts, WithHTTPClient(opts.HTTPClient))
	}
	return New(cred.APIKey, popts...), nil
}

func (p *Provider) Name() string {
	return ProviderType
}

func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, toAPIRequest(req))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &provider.Error{Provider: ProviderType, Message: "response contained no choices"}
	}

	choice := resp.Choices[0]
	return &domain.CompletionResponse{
		Text:         strings.TrimSpace(choice.Message.Content),
		FinishReason: choice.FinishReason,
		Model:        resp.Model,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// toAPIRequest converts a canonical request to an OpenAI API request.
func toAPIRequest(req *domain.CompletionRequest) *ChatCompletionRequest {
	messages := make([]ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}

	temperature := req.Sampling.Temperature
	return &ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.Sampling.MaxTokens,
		Temperature: &temperature,
		N:           req.Sampling.N,
	}
}
