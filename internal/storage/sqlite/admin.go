package sqlite

import (
	"context"
	"fmt"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
)

func (s *Store) CreateIdentity(ctx context.Context, identity *domain.Identity, tokens int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (display_name, auth_provider, is_admin, is_tester, query_tokens)
		 VALUES (?, ?, ?, ?, ?)`,
		identity.DisplayName, identity.AuthProvider, identity.IsAdmin, identity.IsTester, tokens)
	if err != nil {
		return 0, fmt.Errorf("failed to create identity: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get identity id: %w", err)
	}
	identity.ID = id
	return id, nil
}

func (s *Store) SetLocalPassword(ctx context.Context, identityID int64, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_local (user_id, username, password) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET username = excluded.username, password = excluded.password`,
		identityID, username, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to set local password: %w", err)
	}
	return nil
}

func (s *Store) CreateTenant(ctx context.Context, tenant *domain.Tenant) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO tenants (name, enabled) VALUES (?, ?)`,
		tenant.Name, tenant.Enabled)
	if err != nil {
		return 0, fmt.Errorf("failed to create tenant: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get tenant id: %w", err)
	}

	for _, feature := range tenant.Features {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tenant_features (tenant_id, feature) VALUES (?, ?)`, id, feature); err != nil {
			return 0, fmt.Errorf("failed to add tenant feature: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit tenant: %w", err)
	}
	tenant.ID = id
	return id, nil
}

func (s *Store) SetTenantEnabled(ctx context.Context, tenantID int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tenants SET enabled = ? WHERE id = ?`, enabled, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	return requireRow(res, fmt.Sprintf("tenant %d", tenantID))
}

func (s *Store) AddMembership(ctx context.Context, identityID, tenantID int64, role domain.Role) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (user_id, tenant_id, role, active) VALUES (?, ?, ?, 1)`,
		identityID, tenantID, role)
	if err != nil {
		return 0, fmt.Errorf("failed to add membership: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) SetMembershipActive(ctx context.Context, membershipID int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memberships SET active = ? WHERE id = ?`, active, membershipID)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	return requireRow(res, fmt.Sprintf("membership %d", membershipID))
}

func (s *Store) CreateLTIConsumer(ctx context.Context, name string, cred domain.Credential) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO lti_consumers (name, provider, api_key, model) VALUES (?, ?, ?, ?)`,
		name, providerOrDefault(cred.Provider), cred.APIKey, cred.Model)
	if err != nil {
		return 0, fmt.Errorf("failed to create lti consumer: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) LinkTenantLTI(ctx context.Context, tenantID, consumerID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants_lti (tenant_id, consumer_id) VALUES (?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET consumer_id = excluded.consumer_id`,
		tenantID, consumerID)
	if err != nil {
		return fmt.Errorf("failed to link tenant to lti consumer: %w", err)
	}
	return nil
}

func (s *Store) SetTenantCredential(ctx context.Context, tenantID, creatorID int64, cred domain.Credential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants_user (tenant_id, creator_user_id, provider, api_key, model) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET
		   creator_user_id = excluded.creator_user_id,
		   provider = excluded.provider,
		   api_key = excluded.api_key,
		   model = excluded.model`,
		tenantID, creatorID, providerOrDefault(cred.Provider), cred.APIKey, cred.Model)
	if err != nil {
		return fmt.Errorf("failed to set tenant credential: %w", err)
	}
	return nil
}

func (s *Store) GrantTokens(ctx context.Context, identityID, count int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET query_tokens = query_tokens + ? WHERE id = ?`, count, identityID)
	if err != nil {
		return fmt.Errorf("failed to grant tokens: %w", err)
	}
	return requireRow(res, fmt.Sprintf("identity %d", identityID))
}

func (s *Store) TokenBalance(ctx context.Context, identityID int64) (int64, error) {
	var balance int64
	if err := s.db.GetContext(ctx, &balance,
		`SELECT query_tokens FROM users WHERE id = ?`, identityID); err != nil {
		return 0, notFound(err, fmt.Sprintf("identity %d", identityID))
	}
	return balance, nil
}

func providerOrDefault(name string) string {
	if name == "" {
		return "openai"
	}
	return name
}
