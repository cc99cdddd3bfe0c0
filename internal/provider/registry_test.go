package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/ports"
)

type stubProvider struct {
	name string
	cred domain.Credential
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	return &domain.CompletionResponse{Model: req.Model, FinishReason: domain.FinishStop}, nil
}

func stubFactory(name string) Factory {
	return Factory{
		Type:        name,
		Description: "stub " + name,
		Create: func(cred domain.Credential, opts Options) (ports.ModelProvider, error) {
			if cred.APIKey == "" {
				return nil, errors.New("missing key")
			}
			return &stubProvider{name: name, cred: cred}, nil
		},
	}
}

func TestRegistry_New(t *testing.T) {
	reg := NewRegistry(Options{})
	reg.Register(stubFactory("openai"))
	reg.Register(stubFactory("gemini"))

	tests := []struct {
		name     string
		cred     domain.Credential
		wantName string
		wantErr  bool
	}{
		{name: "explicit openai", cred: domain.Credential{Provider: "openai", APIKey: "k"}, wantName: "openai"},
		{name: "empty type defaults to openai", cred: domain.Credential{APIKey: "k"}, wantName: "openai"},
		{name: "gemini", cred: domain.Credential{Provider: "gemini", APIKey: "k"}, wantName: "gemini"},
		{name: "unknown type", cred: domain.Credential{Provider: "anthropic", APIKey: "k"}, wantErr: true},
		{name: "factory error", cred: domain.Credential{Provider: "gemini"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := reg.New(tt.cred)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if p.Name() != tt.wantName {
				t.Errorf("New().Name() = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestRegistry_FreshClientPerCall(t *testing.T) {
	reg := NewRegistry(Options{})
	reg.Register(stubFactory("openai"))

	a, err := reg.New(domain.Credential{APIKey: "a"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.New(domain.Credential{APIKey: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("New() returned the same client for two credentials")
	}
	if a.(*stubProvider).cred.APIKey != "a" || b.(*stubProvider).cred.APIKey != "b" {
		t.Error("clients are not bound to their own credentials")
	}
}

func TestRegistry_Types(t *testing.T) {
	reg := NewRegistry(Options{})
	reg.Register(stubFactory("openai"))
	reg.Register(stubFactory("gemini"))

	if diff := cmp.Diff([]string{"gemini", "openai"}, reg.Types()); diff != "" {
		t.Errorf("Types() mismatch (-want +got):\n%s", diff)
	}
	if !reg.IsRegistered("gemini") || reg.IsRegistered("anthropic") {
		t.Error("IsRegistered() returned wrong result")
	}
}
