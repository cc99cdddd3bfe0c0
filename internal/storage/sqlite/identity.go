package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
)

func (s *Store) GetIdentity(ctx context.Context, id int64) (*domain.Identity, error) {
	query := `SELECT id, display_name, auth_provider, is_admin, is_tester
	          FROM users WHERE id = ?`

	var identity domain.Identity
	if err := s.db.GetContext(ctx, &identity, query, id); err != nil {
		return nil, notFound(err, fmt.Sprintf("identity %d", id))
	}
	return &identity, nil
}

func (s *Store) GetActiveMemberships(ctx context.Context, identityID int64) ([]domain.Membership, error) {
	query := `SELECT m.id, m.tenant_id, t.name AS tenant_name, t.enabled AS tenant_enabled, m.role
	          FROM memberships m
	          JOIN tenants t ON t.id = m.tenant_id
	          WHERE m.user_id = ? AND m.active = 1
	          ORDER BY m.id DESC`

	var memberships []domain.Membership
	if err := s.db.SelectContext(ctx, &memberships, query, identityID); err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	return memberships, nil
}

func (s *Store) GetTenant(ctx context.Context, id int64) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := s.db.GetContext(ctx, &tenant, `SELECT id, name, enabled FROM tenants WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("tenant %d", id))
	}

	if err := s.db.SelectContext(ctx, &tenant.Features,
		`SELECT feature FROM tenant_features WHERE tenant_id = ? ORDER BY feature`, id); err != nil {
		return nil, fmt.Errorf("failed to query tenant features: %w", err)
	}
	return &tenant, nil
}

func (s *Store) GetTenantCredential(ctx context.Context, tenantID int64) (*domain.Credential, error) {
	// A linked LTI consumer is authoritative even when its key is blank.
	ltiQuery := `SELECT c.provider, c.api_key, c.model, 'lti' AS source
	             FROM tenants_lti tl
	             JOIN lti_consumers c ON c.id = tl.consumer_id
	             WHERE tl.tenant_id = ?`

	var cred domain.Credential
	err := s.db.GetContext(ctx, &cred, ltiQuery, tenantID)
	if err == nil {
		return &cred, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get lti credential: %w", err)
	}

	userQuery := `SELECT provider, api_key, model, 'tenant' AS source
	              FROM tenants_user WHERE tenant_id = ?`
	if err := s.db.GetContext(ctx, &cred, userQuery, tenantID); err != nil {
		return nil, notFound(err, fmt.Sprintf("credential for tenant %d", tenantID))
	}
	return &cred, nil
}

func (s *Store) DecrementTokenIfPositive(ctx context.Context, identityID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET query_tokens = query_tokens - 1 WHERE id = ? AND query_tokens > 0`,
		identityID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement tokens: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (s *Store) GetLocalPasswordHash(ctx context.Context, username string) (int64, string, error) {
	var row struct {
		UserID   int64  `db:"user_id"`
		Password string `db:"password"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT user_id, password FROM auth_local WHERE username = ?`, username)
	if err != nil {
		return 0, "", notFound(err, "local account")
	}
	return row.UserID, row.Password, nil
}

func (s *Store) GetLastTenant(ctx context.Context, identityID int64) (int64, error) {
	query := `SELECT u.last_tenant_id
	          FROM users u
	          JOIN memberships m ON m.user_id = u.id AND m.tenant_id = u.last_tenant_id
	          WHERE u.id = ? AND m.active = 1`

	var tenantID int64
	err := s.db.GetContext(ctx, &tenantID, query, identityID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last tenant: %w", err)
	}
	return tenantID, nil
}

func (s *Store) SetLastTenant(ctx context.Context, identityID, tenantID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_tenant_id = ? WHERE id = ?`, nullID(tenantID), identityID)
	if err != nil {
		return fmt.Errorf("failed to set last tenant: %w", err)
	}
	return requireRow(res, fmt.Sprintf("identity %d", identityID))
}
