// Package memory provides an in-process storage.Store for tests and
// single-node development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage"
)

type account struct {
	identity   domain.Identity
	tokens     int64
	lastTenant int64
}

type membership struct {
	id         int64
	identityID int64
	tenantID   int64
	role       domain.Role
	active     bool
}

type localLogin struct {
	identityID int64
	hash       string
}

type conversation struct {
	conv  domain.Conversation
	seq   int64
	turns []domain.Turn
}

// Store is an in-memory implementation of storage.Store
type Store struct {
	mu sync.RWMutex

	nextID        int64
	accounts      map[int64]*account
	logins        map[string]localLogin
	tenants       map[int64]*domain.Tenant
	memberships   map[int64]*membership
	ltiConsumers  map[int64]domain.Credential
	tenantLTI     map[int64]int64
	tenantCreds   map[int64]domain.Credential
	conversations map[string]*conversation
	convSeq       int64
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		accounts:      make(map[int64]*account),
		logins:        make(map[string]localLogin),
		tenants:       make(map[int64]*domain.Tenant),
		memberships:   make(map[int64]*membership),
		ltiConsumers:  make(map[int64]domain.Credential),
		tenantLTI:     make(map[int64]int64),
		tenantCreds:   make(map[int64]domain.Credential),
		conversations: make(map[string]*conversation),
	}
}

func (s *Store) allocID() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) GetIdentity(ctx context.Context, id int64) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("identity %d: %w", id, storage.ErrNotFound)
	}
	identity := acct.identity
	return &identity, nil
}

func (s *Store) GetActiveMemberships(ctx context.Context, identityID int64) ([]domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Membership
	for _, m := range s.memberships {
		if m.identityID != identityID || !m.active {
			continue
		}
		tenant, ok := s.tenants[m.tenantID]
		if !ok {
			continue
		}
		out = append(out, domain.Membership{
			ID:            m.id,
			TenantID:      m.tenantID,
			TenantName:    tenant.Name,
			TenantEnabled: tenant.Enabled,
			Role:          m.role,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) GetTenant(ctx context.Context, id int64) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, ok := s.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %d: %w", id, storage.ErrNotFound)
	}
	out := *tenant
	out.Features = append([]string(nil), tenant.Features...)
	return &out, nil
}

func (s *Store) GetTenantCredential(ctx context.Context, tenantID int64) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if consumerID, ok := s.tenantLTI[tenantID]; ok {
		cred := s.ltiConsumers[consumerID]
		cred.Source = domain.SourceLTI
		return &cred, nil
	}
	if cred, ok := s.tenantCreds[tenantID]; ok {
		cred.Source = domain.SourceTenant
		return &cred, nil
	}
	return nil, fmt.Errorf("credential for tenant %d: %w", tenantID, storage.ErrNotFound)
}

func (s *Store) DecrementTokenIfPositive(ctx context.Context, identityID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[identityID]
	if !ok || acct.tokens <= 0 {
		return false, nil
	}
	acct.tokens--
	return true, nil
}

func (s *Store) GetLocalPasswordHash(ctx context.Context, username string) (int64, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	login, ok := s.logins[username]
	if !ok {
		return 0, "", fmt.Errorf("local account: %w", storage.ErrNotFound)
	}
	return login.identityID, login.hash, nil
}

func (s *Store) GetLastTenant(ctx context.Context, identityID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[identityID]
	if !ok || acct.lastTenant == 0 {
		return 0, nil
	}
	for _, m := range s.memberships {
		if m.identityID == identityID && m.tenantID == acct.lastTenant && m.active {
			return acct.lastTenant, nil
		}
	}
	return 0, nil
}

func (s *Store) SetLastTenant(ctx context.Context, identityID, tenantID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[identityID]
	if !ok {
		return fmt.Errorf("identity %d: %w", identityID, storage.ErrNotFound)
	}
	acct.lastTenant = tenantID
	return nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[conv.ID]; exists {
		return fmt.Errorf("conversation %s already exists", conv.ID)
	}

	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	conv.UpdatedAt = conv.CreatedAt

	stored := *conv
	stored.Turns = nil
	s.convSeq++
	s.conversations[conv.ID] = &conversation{conv: stored, seq: s.convSeq}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}

	out := c.conv
	out.Turns = append([]domain.Turn{}, c.turns...)
	return &out, nil
}

func (s *Store) SaveTurns(ctx context.Context, id string, turns []domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}
	if !storage.ExtendsTurns(c.turns, turns) {
		return fmt.Errorf("conversation %s has %d stored turns not matched by %d given: %w", id, len(c.turns), len(turns), storage.ErrNotAppendOnly)
	}
	if len(turns) == len(c.turns) {
		return nil
	}

	c.turns = append(c.turns, turns[len(c.turns):]...)
	c.conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListConversations(ctx context.Context, ownerID int64, limit int) ([]domain.ConversationSummary, error) {
	return s.list(func(c *conversation) bool { return c.conv.OwnerID == ownerID }, limit), nil
}

func (s *Store) ListAllConversations(ctx context.Context, limit int) ([]domain.ConversationSummary, error) {
	return s.list(func(*conversation) bool { return true }, limit), nil
}

func (s *Store) list(match func(*conversation) bool, limit int) []domain.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*conversation
	for _, c := range s.conversations {
		if match(c) {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]domain.ConversationSummary, 0, len(matched))
	for _, c := range matched {
		var owner string
		if acct, ok := s.accounts[c.conv.OwnerID]; ok {
			owner = acct.identity.DisplayName
		}
		out = append(out, domain.ConversationSummary{
			ID:        c.conv.ID,
			OwnerID:   c.conv.OwnerID,
			OwnerName: owner,
			TenantID:  c.conv.TenantID,
			Topic:     c.conv.Topic,
			UserTurns: domain.CountUserTurns(c.turns),
			CreatedAt: c.conv.CreatedAt,
		})
	}
	return out
}

func (s *Store) CreateIdentity(ctx context.Context, identity *domain.Identity, tokens int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity.ID = s.allocID()
	s.accounts[identity.ID] = &account{identity: *identity, tokens: tokens}
	return identity.ID, nil
}

func (s *Store) SetLocalPassword(ctx context.Context, identityID int64, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[identityID]; !ok {
		return fmt.Errorf("identity %d: %w", identityID, storage.ErrNotFound)
	}
	for name, login := range s.logins {
		if login.identityID == identityID {
			delete(s.logins, name)
		}
	}
	s.logins[username] = localLogin{identityID: identityID, hash: passwordHash}
	return nil
}

func (s *Store) CreateTenant(ctx context.Context, tenant *domain.Tenant) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant.ID = s.allocID()
	stored := *tenant
	stored.Features = append([]string(nil), tenant.Features...)
	sort.Strings(stored.Features)
	s.tenants[tenant.ID] = &stored
	return tenant.ID, nil
}

func (s *Store) SetTenantEnabled(ctx context.Context, tenantID int64, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant %d: %w", tenantID, storage.ErrNotFound)
	}
	tenant.Enabled = enabled
	return nil
}

func (s *Store) AddMembership(ctx context.Context, identityID, tenantID int64, role domain.Role) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.memberships {
		if m.identityID == identityID && m.tenantID == tenantID {
			return 0, fmt.Errorf("identity %d already belongs to tenant %d", identityID, tenantID)
		}
	}
	id := s.allocID()
	s.memberships[id] = &membership{id: id, identityID: identityID, tenantID: tenantID, role: role, active: true}
	return id, nil
}

func (s *Store) SetMembershipActive(ctx context.Context, membershipID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memberships[membershipID]
	if !ok {
		return fmt.Errorf("membership %d: %w", membershipID, storage.ErrNotFound)
	}
	m.active = active
	return nil
}

func (s *Store) CreateLTIConsumer(ctx context.Context, name string, cred domain.Credential) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred.Provider == "" {
		cred.Provider = "openai"
	}
	id := s.allocID()
	s.ltiConsumers[id] = cred
	return id, nil
}

func (s *Store) LinkTenantLTI(ctx context.Context, tenantID, consumerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ltiConsumers[consumerID]; !ok {
		return fmt.Errorf("lti consumer %d: %w", consumerID, storage.ErrNotFound)
	}
	s.tenantLTI[tenantID] = consumerID
	return nil
}

func (s *Store) SetTenantCredential(ctx context.Context, tenantID, creatorID int64, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred.Provider == "" {
		cred.Provider = "openai"
	}
	s.tenantCreds[tenantID] = cred
	return nil
}

func (s *Store) GrantTokens(ctx context.Context, identityID, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[identityID]
	if !ok {
		return fmt.Errorf("identity %d: %w", identityID, storage.ErrNotFound)
	}
	acct.tokens += count
	return nil
}

func (s *Store) TokenBalance(ctx context.Context, identityID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[identityID]
	if !ok {
		return 0, fmt.Errorf("identity %d: %w", identityID, storage.ErrNotFound)
	}
	return acct.tokens, nil
}

// Close is a no-op for the in-memory store
func (s *Store) Close() error {
	return nil
}
