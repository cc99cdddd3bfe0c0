package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/ports"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage"
)

// ErrBadCredentials is returned for an unknown username or wrong password.
var ErrBadCredentials = errors.New("invalid username or password")

// ErrNotMember is returned when switching to a tenant the caller cannot use.
var ErrNotMember = errors.New("no active membership in that class")

// HashPassword returns a bcrypt hash suitable for local accounts.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// LocalLogin verifies a username and password and returns a session that
// re-enters the identity's last tenant, if still active.
func LocalLogin(ctx context.Context, store ports.LocalAccountStore, username, password string) (SessionToken, error) {
	id, hash, err := store.GetLocalPasswordHash(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return SessionToken{}, ErrBadCredentials
	}
	if err != nil {
		return SessionToken{}, fmt.Errorf("failed to load local account: %w", err)
	}
	if !CheckPassword(hash, password) {
		return SessionToken{}, ErrBadCredentials
	}

	last, err := store.GetLastTenant(ctx, id)
	if err != nil {
		return SessionToken{}, fmt.Errorf("failed to load last class: %w", err)
	}
	return SessionToken{IdentityID: id, TenantID: last}, nil
}

// TenantSwitcher needs both the identity and local-account views of a store.
type TenantSwitcher interface {
	ports.IdentityStore
	SetLastTenant(ctx context.Context, identityID, tenantID int64) error
}

// SwitchTenant moves the session to tenantID. The caller must hold an active
// membership there; admins may enter any existing tenant. A zero tenantID
// leaves every tenant.
func SwitchTenant(ctx context.Context, store TenantSwitcher, ac *domain.AuthContext, tenantID int64) (SessionToken, error) {
	if !ac.IsAuthenticated() {
		return SessionToken{}, ErrNotMember
	}
	tok := SessionToken{IdentityID: ac.IdentityID}
	if tenantID == 0 {
		return tok, nil
	}

	allowed := false
	if ac.IsAdmin {
		if _, err := store.GetTenant(ctx, tenantID); err == nil {
			allowed = true
		} else if !errors.Is(err, storage.ErrNotFound) {
			return SessionToken{}, fmt.Errorf("failed to load tenant: %w", err)
		}
	}
	if !allowed {
		memberships, err := store.GetActiveMemberships(ctx, ac.IdentityID)
		if err != nil {
			return SessionToken{}, fmt.Errorf("failed to load memberships: %w", err)
		}
		for _, m := range memberships {
			if m.TenantID == tenantID {
				allowed = true
				break
			}
		}
	}
	if !allowed {
		return SessionToken{}, ErrNotMember
	}

	if err := store.SetLastTenant(ctx, ac.IdentityID, tenantID); err != nil {
		return SessionToken{}, fmt.Errorf("failed to record last class: %w", err)
	}
	tok.TenantID = tenantID
	return tok, nil
}
