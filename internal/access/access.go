// Package access decides which model credential serves a request and
// meters free-token use.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/ports"
	"github.com/tjfontaine/classroom-llm-gateway/internal/provider"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage"
	"github.com/tjfontaine/classroom-llm-gateway/internal/telemetry"
)

// Mode selects between normal resolution and the platform override used by
// system-initiated calls.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSystemOverride
)

func (m Mode) String() string {
	if m == ModeSystemOverride {
		return "system"
	}
	return "normal"
}

// ModelAccess is a client bound to one credential and one model. It is
// built per resolution and never cached.
type ModelAccess struct {
	client ports.ModelProvider
	model  string
	source domain.CredentialSource
}

// Client returns the bound provider client.
func (a *ModelAccess) Client() ports.ModelProvider {
	return a.client
}

// Provider returns the provider type of the bound client.
func (a *ModelAccess) Provider() string {
	return a.client.Name()
}

// Model returns the bound model name.
func (a *ModelAccess) Model() string {
	return a.model
}

// Source reports where the credential came from.
func (a *ModelAccess) Source() domain.CredentialSource {
	return a.source
}

// Complete runs a completion against the bound model.
func (a *ModelAccess) Complete(ctx context.Context, turns []domain.Turn, sampling domain.SamplingParams) (*domain.CompletionResponse, error) {
	return a.client.Complete(ctx, &domain.CompletionRequest{
		Model:    a.model,
		Messages: turns,
		Sampling: sampling,
	})
}

// Resolver applies the credential precedence: system override, tenant
// credential, local login, then the metered free-token allowance.
type Resolver struct {
	store     ports.IdentityStore
	providers *provider.Registry
	platform  domain.Credential
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a resolver. platform is the default credential used
// for overrides, local logins and metered access.
func NewResolver(store ports.IdentityStore, providers *provider.Registry, platform domain.Credential, opts ...Option) *Resolver {
	platform.Source = domain.SourcePlatform
	r := &Resolver{
		store:     store,
		providers: providers,
		platform:  platform,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the model access for ac. Denials are *domain.Error values
// of the access category; other errors are store or construction failures.
func (r *Resolver) Resolve(ctx context.Context, ac *domain.AuthContext, mode Mode) (*ModelAccess, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "access.Resolve",
		trace.WithAttributes(
			attribute.String("access.mode", mode.String()),
			attribute.Int64("identity.id", ac.IdentityID),
			attribute.Int64("tenant.id", ac.TenantID),
		),
	)
	defer span.End()

	ma, err := r.resolve(ctx, ac, mode)
	if err != nil {
		outcome := "error"
		if derr, ok := domain.AsError(err); ok {
			outcome = string(derr.Kind)
			r.logger.InfoContext(ctx, "model access denied",
				slog.String("kind", string(derr.Kind)),
				slog.Int64("identity_id", ac.IdentityID),
				slog.Int64("tenant_id", ac.TenantID),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		r.metrics.AccessResolved("none", outcome)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("access.source", string(ma.source)),
		attribute.String("access.model", ma.model),
	)
	r.metrics.AccessResolved(string(ma.source), "granted")
	return ma, nil
}

func (r *Resolver) resolve(ctx context.Context, ac *domain.AuthContext, mode Mode) (*ModelAccess, error) {
	if mode == ModeSystemOverride {
		return r.bind(r.platform)
	}

	if ac.HasTenant() {
		return r.resolveTenant(ctx, ac.TenantID)
	}

	if ac.AuthProvider == domain.AuthProviderLocal {
		return r.bind(r.platform)
	}

	return r.resolveMetered(ctx, ac.IdentityID)
}

func (r *Resolver) resolveTenant(ctx context.Context, tenantID int64) (*ModelAccess, error) {
	tenant, err := r.store.GetTenant(ctx, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrTenantDisabled()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	if !tenant.Enabled {
		return nil, domain.ErrTenantDisabled()
	}

	cred, err := r.store.GetTenantCredential(ctx, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrNoKeyConfigured()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant credential: %w", err)
	}
	if !cred.HasKey() {
		return nil, domain.ErrNoKeyConfigured()
	}
	return r.bind(*cred)
}

// resolveMetered consumes one free token. The client is built first so a
// construction failure never costs the caller a token.
func (r *Resolver) resolveMetered(ctx context.Context, identityID int64) (*ModelAccess, error) {
	if identityID == 0 {
		return nil, domain.ErrTokensExhausted()
	}

	ma, err := r.bind(r.platform)
	if err != nil {
		return nil, err
	}

	ok, err := r.store.DecrementTokenIfPositive(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume free token: %w", err)
	}
	if !ok {
		return nil, domain.ErrTokensExhausted()
	}

	r.metrics.TokenConsumed()
	r.logger.DebugContext(ctx, "free token consumed", slog.Int64("identity_id", identityID))
	return ma, nil
}

func (r *Resolver) bind(cred domain.Credential) (*ModelAccess, error) {
	client, err := r.providers.New(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	return &ModelAccess{
		client: client,
		model:  cred.Model,
		source: cred.Source,
	}, nil
}
