package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/ports"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage"
)

// Decision is the outcome of a guard.
type Decision struct {
	Allowed bool
	Status  int
	Reason  string
}

// Allow is the passing decision.
var Allow = Decision{Allowed: true}

func deny(status int, reason string) Decision {
	return Decision{Status: status, Reason: reason}
}

// Guard checks a request's AuthContext. Errors are infrastructure failures,
// never denials.
type Guard func(ctx context.Context, ac *domain.AuthContext) (Decision, error)

// Check runs guards in order and returns the first denial.
func Check(ctx context.Context, ac *domain.AuthContext, guards ...Guard) (Decision, error) {
	for _, g := range guards {
		d, err := g(ctx, ac)
		if err != nil {
			return Decision{}, err
		}
		if !d.Allowed {
			return d, nil
		}
	}
	return Allow, nil
}

// RequireLogin denies anonymous callers.
func RequireLogin(_ context.Context, ac *domain.AuthContext) (Decision, error) {
	if !ac.IsAuthenticated() {
		return deny(http.StatusUnauthorized, "Login required."), nil
	}
	return Allow, nil
}

// RequireAdmin requires a platform admin.
func RequireAdmin(_ context.Context, ac *domain.AuthContext) (Decision, error) {
	if ac == nil || !ac.IsAdmin {
		return deny(http.StatusForbidden, "Login required."), nil
	}
	return Allow, nil
}

// RequireTester hides the route from non-testers.
func RequireTester(_ context.Context, ac *domain.AuthContext) (Decision, error) {
	if ac == nil || !ac.IsTester {
		return deny(http.StatusNotFound, "Not found."), nil
	}
	return Allow, nil
}

// RequireTenantEnabled denies requests while the active tenant is disabled.
// Callers with no active tenant pass.
func RequireTenantEnabled(store ports.IdentityStore) Guard {
	return func(ctx context.Context, ac *domain.AuthContext) (Decision, error) {
		if !ac.HasTenant() {
			return Allow, nil
		}

		tenant, err := store.GetTenant(ctx, ac.TenantID)
		if errors.Is(err, storage.ErrNotFound) {
			return deny(http.StatusForbidden, domain.UserText(domain.KindTenantDisabled)), nil
		}
		if err != nil {
			return Decision{}, fmt.Errorf("failed to load tenant: %w", err)
		}
		if !tenant.Enabled {
			return deny(http.StatusForbidden, domain.UserText(domain.KindTenantDisabled)), nil
		}
		return Allow, nil
	}
}
