package ports

import (
	"context"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
)

// IdentityStore is the durable store of accounts, memberships, tenants and
// model credentials. Lookups of missing records return storage.ErrNotFound.
type IdentityStore interface {
	// GetIdentity retrieves an identity by ID
	GetIdentity(ctx context.Context, id int64) (*domain.Identity, error)

	// GetActiveMemberships lists the identity's active memberships, newest first
	GetActiveMemberships(ctx context.Context, identityID int64) ([]domain.Membership, error)

	// GetTenant retrieves a tenant, including its feature flags
	GetTenant(ctx context.Context, id int64) (*domain.Tenant, error)

	// GetTenantCredential returns the tenant's authoritative credential:
	// the linked LTI consumer's when present, else the self-service one.
	// A tenant without either returns storage.ErrNotFound.
	GetTenantCredential(ctx context.Context, tenantID int64) (*domain.Credential, error)

	// DecrementTokenIfPositive atomically consumes one free token.
	// It returns false, without writing, when the balance is already 0.
	DecrementTokenIfPositive(ctx context.Context, identityID int64) (bool, error)
}

// LocalAccountStore backs username/password login for local identities.
type LocalAccountStore interface {
	// GetLocalPasswordHash returns the identity and bcrypt hash for a username
	GetLocalPasswordHash(ctx context.Context, username string) (identityID int64, hash string, err error)

	// GetLastTenant returns the identity's last tenant if its membership is still active
	GetLastTenant(ctx context.Context, identityID int64) (int64, error)

	// SetLastTenant records the identity's most recently selected tenant
	SetLastTenant(ctx context.Context, identityID, tenantID int64) error
}

// ConversationStore persists tutoring conversations.
type ConversationStore interface {
	// CreateConversation stores a new conversation with no turns
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// GetConversation loads a conversation and its turns in order
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// SaveTurns persists turns for a conversation. The stored turns must be a
	// prefix of turns; only the new suffix is written. A stale or divergent
	// list fails with storage.ErrNotAppendOnly and writes nothing.
	SaveTurns(ctx context.Context, id string, turns []domain.Turn) error

	// ListConversations lists an owner's conversations, newest first
	ListConversations(ctx context.Context, ownerID int64, limit int) ([]domain.ConversationSummary, error)

	// ListAllConversations lists every conversation, newest first
	ListAllConversations(ctx context.Context, limit int) ([]domain.ConversationSummary, error)
}
