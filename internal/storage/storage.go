// Package storage defines the persistence contracts shared by the SQLite and
// in-memory backends.
package storage

import (
	"context"
	"errors"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/ports"
)

var (
	// ErrNotFound is returned by lookups of records that do not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNotAppendOnly is returned when SaveTurns is given turns that do not
	// start with the stored ones, such as a list loaded before a concurrent
	// write.
	ErrNotAppendOnly = errors.New("turns do not extend the stored conversation")
)

// ExtendsTurns reports whether turns starts with every stored turn, in order.
func ExtendsTurns(stored, turns []domain.Turn) bool {
	if len(turns) < len(stored) {
		return false
	}
	for i, t := range stored {
		if turns[i] != t {
			return false
		}
	}
	return true
}

// Re-export the store ports for callers that only import storage.
type (
	IdentityStore     = ports.IdentityStore
	LocalAccountStore = ports.LocalAccountStore
	ConversationStore = ports.ConversationStore
)

// Admin holds the write operations used to provision identities, tenants and
// credentials. The core never calls these; tooling and tests do.
type Admin interface {
	CreateIdentity(ctx context.Context, identity *domain.Identity, tokens int64) (int64, error)
	SetLocalPassword(ctx context.Context, identityID int64, username, passwordHash string) error
	CreateTenant(ctx context.Context, tenant *domain.Tenant) (int64, error)
	SetTenantEnabled(ctx context.Context, tenantID int64, enabled bool) error
	AddMembership(ctx context.Context, identityID, tenantID int64, role domain.Role) (int64, error)
	SetMembershipActive(ctx context.Context, membershipID int64, active bool) error
	CreateLTIConsumer(ctx context.Context, name string, cred domain.Credential) (int64, error)
	LinkTenantLTI(ctx context.Context, tenantID, consumerID int64) error
	SetTenantCredential(ctx context.Context, tenantID, creatorID int64, cred domain.Credential) error
	GrantTokens(ctx context.Context, identityID, count int64) error
	TokenBalance(ctx context.Context, identityID int64) (int64, error)
}

// Store is the full backend surface.
type Store interface {
	IdentityStore
	LocalAccountStore
	ConversationStore
	Admin

	// Close closes the storage connection
	Close() error
}
