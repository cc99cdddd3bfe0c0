package access

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/ports"
	"github.com/tjfontaine/classroom-llm-gateway/internal/provider"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubProvider struct {
	cred domain.Credential
}

func (p *stubProvider) Name() string { return p.cred.Provider }

func (p *stubProvider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	return &domain.CompletionResponse{Text: "ok:" + p.cred.APIKey, Model: req.Model, FinishReason: domain.FinishStop}, nil
}

func stubRegistry() *provider.Registry {
	reg := provider.NewRegistry(provider.Options{})
	for _, typ := range []string{"openai", "gemini"} {
		reg.Register(provider.Factory{
			Type: typ,
			Create: func(cred domain.Credential, _ provider.Options) (ports.ModelProvider, error) {
				return &stubProvider{cred: cred}, nil
			},
		})
	}
	return reg
}

var platform = domain.Credential{Provider: "openai", APIKey: "platform-key", Model: "gpt-4o-mini"}

type fixture struct {
	store    *memory.Store
	resolver *Resolver

	student  int64
	local    int64
	ltiClass int64
	selfRun  int64
	disabled int64
	noKey    int64
}

func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	f := &fixture{store: s, resolver: NewResolver(s, stubRegistry(), platform)}

	mustID := func(id int64, err error) int64 {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return id
	}

	f.student = mustID(s.CreateIdentity(ctx, &domain.Identity{DisplayName: "Sam", AuthProvider: domain.AuthProviderGoogle}, balance))
	f.local = mustID(s.CreateIdentity(ctx, &domain.Identity{DisplayName: "Lee", AuthProvider: domain.AuthProviderLocal}, 0))

	f.ltiClass = mustID(s.CreateTenant(ctx, &domain.Tenant{Name: "LTI class", Enabled: true}))
	consumer := mustID(s.CreateLTIConsumer(ctx, "campus", domain.Credential{Provider: "gemini", APIKey: "lti-key", Model: "gemini-2.0-flash"}))
	if err := s.LinkTenantLTI(ctx, f.ltiClass, consumer); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTenantCredential(ctx, f.ltiClass, f.local, domain.Credential{APIKey: "self-key", Model: "gpt-4o"}); err != nil {
		t.Fatal(err)
	}

	f.selfRun = mustID(s.CreateTenant(ctx, &domain.Tenant{Name: "Self-run", Enabled: true}))
	if err := s.SetTenantCredential(ctx, f.selfRun, f.local, domain.Credential{APIKey: "self-key", Model: "gpt-4o"}); err != nil {
		t.Fatal(err)
	}

	f.disabled = mustID(s.CreateTenant(ctx, &domain.Tenant{Name: "Archived", Enabled: false}))
	if err := s.SetTenantCredential(ctx, f.disabled, f.local, domain.Credential{APIKey: "old-key", Model: "gpt-4o"}); err != nil {
		t.Fatal(err)
	}

	f.noKey = mustID(s.CreateTenant(ctx, &domain.Tenant{Name: "No key", Enabled: true}))
	return f
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	n, err := f.store.TokenBalance(context.Background(), f.student)
	if err != nil {
		t.Fatalf("TokenBalance() error = %v", err)
	}
	return n
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		ac         func(f *fixture) *domain.AuthContext
		mode       Mode
		wantSource domain.CredentialSource
		wantModel  string
		wantKind   domain.ErrorKind
		wantSpent  int64
	}{
		{
			name:       "system override skips every check",
			ac:         func(f *fixture) *domain.AuthContext { return &domain.AuthContext{IdentityID: f.student, TenantID: f.disabled} },
			mode:       ModeSystemOverride,
			wantSource: domain.SourcePlatform,
			wantModel:  "gpt-4o-mini",
		},
		{
			name:       "lti credential wins over self-service",
			ac:         func(f *fixture) *domain.AuthContext { return &domain.AuthContext{IdentityID: f.student, TenantID: f.ltiClass} },
			wantSource: domain.SourceLTI,
			wantModel:  "gemini-2.0-flash",
		},
		{
			name:       "self-service credential",
			ac:         func(f *fixture) *domain.AuthContext { return &domain.AuthContext{IdentityID: f.student, TenantID: f.selfRun} },
			wantSource: domain.SourceTenant,
			wantModel:  "gpt-4o",
		},
		{
			name:     "disabled tenant",
			ac:       func(f *fixture) *domain.AuthContext { return &domain.AuthContext{IdentityID: f.student, TenantID: f.disabled} },
			wantKind: domain.KindTenantDisabled,
		},
		{
			name:     "vanished tenant",
			ac:       func(f *fixture) *domain.AuthContext { return &domain.AuthContext{IdentityID: f.student, TenantID: 999} },
			wantKind: domain.KindTenantDisabled,
		},
		{
			name:     "tenant without key",
			ac:       func(f *fixture) *domain.AuthContext { return &domain.AuthContext{IdentityID: f.student, TenantID: f.noKey} },
			wantKind: domain.KindNoKeyConfigured,
		},
		{
			name: "local login is never metered",
			ac: func(f *fixture) *domain.AuthContext {
				return &domain.AuthContext{IdentityID: f.local, AuthProvider: domain.AuthProviderLocal}
			},
			wantSource: domain.SourcePlatform,
			wantModel:  "gpt-4o-mini",
		},
		{
			name: "metered identity",
			ac: func(f *fixture) *domain.AuthContext {
				return &domain.AuthContext{IdentityID: f.student, AuthProvider: domain.AuthProviderGoogle}
			},
			wantSource: domain.SourcePlatform,
			wantModel:  "gpt-4o-mini",
			wantSpent:  1,
		},
		{
			name:     "anonymous",
			ac:       func(f *fixture) *domain.AuthContext { return domain.Anonymous() },
			wantKind: domain.KindTokensExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 3)
			ma, err := f.resolver.Resolve(context.Background(), tt.ac(f), tt.mode)

			if spent := 3 - f.balance(t); spent != tt.wantSpent {
				t.Errorf("tokens spent = %d, want %d", spent, tt.wantSpent)
			}

			if tt.wantKind != "" {
				if !domain.IsKind(err, tt.wantKind) {
					t.Fatalf("Resolve() error = %v, want kind %q", err, tt.wantKind)
				}
				if ma != nil {
					t.Error("Resolve() returned access alongside a denial")
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if ma.Source() != tt.wantSource {
				t.Errorf("Source() = %q, want %q", ma.Source(), tt.wantSource)
			}
			if ma.Model() != tt.wantModel {
				t.Errorf("Model() = %q, want %q", ma.Model(), tt.wantModel)
			}
		})
	}
}

func TestResolver_DenialTextsDiffer(t *testing.T) {
	texts := map[string]domain.ErrorKind{}
	for _, kind := range []domain.ErrorKind{domain.KindTenantDisabled, domain.KindNoKeyConfigured, domain.KindTokensExhausted} {
		text := domain.UserText(kind)
		if prev, ok := texts[text]; ok {
			t.Errorf("%q and %q share user text", prev, kind)
		}
		texts[text] = kind
	}
}

func TestResolver_MeteredUntilExhausted(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	ac := &domain.AuthContext{IdentityID: f.student, AuthProvider: domain.AuthProviderGoogle}

	for i := 0; i < 2; i++ {
		if _, err := f.resolver.Resolve(ctx, ac, ModeNormal); err != nil {
			t.Fatalf("Resolve() #%d error = %v", i+1, err)
		}
	}
	_, err := f.resolver.Resolve(ctx, ac, ModeNormal)
	if !domain.IsKind(err, domain.KindTokensExhausted) {
		t.Fatalf("Resolve() after balance spent error = %v, want tokens exhausted", err)
	}
	if got := f.balance(t); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestResolver_ConcurrentMetering(t *testing.T) {
	const balance, callers = 5, 20

	f := newFixture(t, balance)
	ac := &domain.AuthContext{IdentityID: f.student, AuthProvider: domain.AuthProviderGoogle}

	var granted, denied atomic.Int64
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			_, err := f.resolver.Resolve(context.Background(), ac, ModeNormal)
			switch {
			case err == nil:
				granted.Add(1)
			case domain.IsKind(err, domain.KindTokensExhausted):
				denied.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if granted.Load() != balance {
		t.Errorf("granted = %d, want %d", granted.Load(), balance)
	}
	if denied.Load() != callers-balance {
		t.Errorf("denied = %d, want %d", denied.Load(), callers-balance)
	}
	if got := f.balance(t); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestResolver_UnknownProviderIsNotADenial(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	if err := f.store.SetTenantCredential(ctx, f.noKey, f.local, domain.Credential{Provider: "mystery", APIKey: "k", Model: "m"}); err != nil {
		t.Fatal(err)
	}

	_, err := f.resolver.Resolve(ctx, &domain.AuthContext{IdentityID: f.student, TenantID: f.noKey}, ModeNormal)
	if err == nil {
		t.Fatal("Resolve() error = nil, want construction error")
	}
	if _, ok := domain.AsError(err); ok {
		t.Errorf("Resolve() error = %v, want infrastructure error", err)
	}
}

func TestResolver_ConstructionFailureKeepsToken(t *testing.T) {
	f := newFixture(t, 3)
	reg := provider.NewRegistry(provider.Options{})
	reg.Register(provider.Factory{
		Type: "openai",
		Create: func(domain.Credential, provider.Options) (ports.ModelProvider, error) {
			return nil, errors.New("no transport")
		},
	})
	r := NewResolver(f.store, reg, platform)

	_, err := r.Resolve(context.Background(), &domain.AuthContext{IdentityID: f.student}, ModeNormal)
	if err == nil {
		t.Fatal("Resolve() error = nil, want error")
	}
	if got := f.balance(t); got != 3 {
		t.Errorf("balance = %d, want 3", got)
	}
}

func TestModelAccess_Complete(t *testing.T) {
	f := newFixture(t, 0)
	ma, err := f.resolver.Resolve(context.Background(), &domain.AuthContext{IdentityID: f.student, TenantID: f.selfRun}, ModeNormal)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	resp, err := ma.Complete(context.Background(), []domain.Turn{{Role: domain.TurnUser, Content: "hi"}}, domain.DefaultSampling())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Model != "gpt-4o" || resp.Text != "ok:self-key" {
		t.Errorf("Complete() = %+v, want bound model and key", resp)
	}
}
