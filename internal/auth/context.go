package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/ports"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage"
)

// ContextResolver builds the AuthContext for a session from the identity
// store. It never writes.
type ContextResolver struct {
	store  ports.IdentityStore
	logger *slog.Logger
}

// NewContextResolver creates a resolver over store.
func NewContextResolver(store ports.IdentityStore, logger *slog.Logger) *ContextResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextResolver{store: store, logger: logger}
}

// Resolve recomputes the caller's context. Unknown identities resolve to the
// anonymous context; only store failures are returned as errors.
func (r *ContextResolver) Resolve(ctx context.Context, tok SessionToken) (*domain.AuthContext, error) {
	if tok.IdentityID == 0 {
		return domain.Anonymous(), nil
	}

	identity, err := r.store.GetIdentity(ctx, tok.IdentityID)
	if errors.Is(err, storage.ErrNotFound) {
		r.logger.Info("session identity no longer exists", slog.Int64("identity_id", tok.IdentityID))
		return domain.Anonymous(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	ac := &domain.AuthContext{
		IdentityID:   identity.ID,
		DisplayName:  identity.DisplayName,
		AuthProvider: identity.AuthProvider,
		IsAdmin:      identity.IsAdmin,
		IsTester:     identity.IsTester,
		TenantID:     tok.TenantID,
	}

	memberships, err := r.store.GetActiveMemberships(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}

	matched := false
	for _, m := range memberships {
		switch {
		case tok.TenantID != 0 && m.TenantID == tok.TenantID:
			matched = true
			ac.MembershipID = m.ID
			ac.Role = m.Role
		case m.TenantEnabled:
			ac.OtherTenants = append(ac.OtherTenants, domain.TenantRef{
				ID:   m.TenantID,
				Name: m.TenantName,
				Role: m.Role,
			})
		}
	}

	// An inactive or missing membership drops the tenant unless the caller is
	// an admin.
	if !matched && !identity.IsAdmin {
		ac.TenantID = 0
		ac.Role = ""
	}

	if ac.TenantID != 0 {
		tenant, err := r.store.GetTenant(ctx, ac.TenantID)
		if errors.Is(err, storage.ErrNotFound) {
			ac.TenantID = 0
			ac.Role = ""
			ac.MembershipID = 0
			return ac, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load tenant: %w", err)
		}
		ac.TenantName = tenant.Name
		ac.TenantFeatures = tenant.Features
		if identity.IsAdmin {
			ac.Role = domain.RoleInstructor
		}
	}

	return ac, nil
}

// Memo resolves the AuthContext at most once per request.
type Memo struct {
	once     sync.Once
	resolver *ContextResolver
	token    SessionToken
	ac       *domain.AuthContext
	err      error
}

// NewMemo binds a resolver and session token for one request.
func NewMemo(resolver *ContextResolver, tok SessionToken) *Memo {
	return &Memo{resolver: resolver, token: tok}
}

// Get returns the memoized context, resolving it on first use.
func (m *Memo) Get(ctx context.Context) (*domain.AuthContext, error) {
	m.once.Do(func() {
		m.ac, m.err = m.resolver.Resolve(ctx, m.token)
	})
	return m.ac, m.err
}

type memoKey struct{}

// WithMemo stores the memo in the context.
func WithMemo(ctx context.Context, m *Memo) context.Context {
	return context.WithValue(ctx, memoKey{}, m)
}

// FromContext resolves the request's AuthContext. A context without a memo
// is anonymous.
func FromContext(ctx context.Context) (*domain.AuthContext, error) {
	m, ok := ctx.Value(memoKey{}).(*Memo)
	if !ok || m == nil {
		return domain.Anonymous(), nil
	}
	return m.Get(ctx)
}
