package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage"
)

func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = conv.CreatedAt

	query := `INSERT INTO conversations (id, owner_id, tenant_id, topic, context, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID, conv.OwnerID, nullID(conv.TenantID), conv.Topic, nullString(conv.Context),
		conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT id, owner_id, COALESCE(tenant_id, 0) AS tenant_id, topic,
	                 COALESCE(context, '') AS context, created_at, updated_at
	          FROM conversations WHERE id = ?`

	var conv domain.Conversation
	if err := s.db.GetContext(ctx, &conv, query, id); err != nil {
		return nil, notFound(err, fmt.Sprintf("conversation %s", id))
	}

	if err := s.db.SelectContext(ctx, &conv.Turns,
		`SELECT role, content FROM turns WHERE conversation_id = ? ORDER BY seq`, id); err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	if conv.Turns == nil {
		conv.Turns = []domain.Turn{}
	}
	return &conv, nil
}

func (s *Store) SaveTurns(ctx context.Context, id string, turns []domain.Turn) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}

	var existing []domain.Turn
	if err := tx.SelectContext(ctx, &existing,
		`SELECT role, content FROM turns WHERE conversation_id = ? ORDER BY seq`, id); err != nil {
		return fmt.Errorf("failed to query turns: %w", err)
	}
	stored := len(existing)
	if !storage.ExtendsTurns(existing, turns) {
		return fmt.Errorf("conversation %s has %d stored turns not matched by %d given: %w", id, stored, len(turns), storage.ErrNotAppendOnly)
	}
	if len(turns) == stored {
		return nil
	}

	now := time.Now().UTC()
	for i := stored; i < len(turns); i++ {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO turns (conversation_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, i, turns[i].Role, turns[i].Content, now)
		if err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	return tx.Commit()
}

const summaryColumns = `c.id, c.owner_id, u.display_name AS owner_name,
	COALESCE(c.tenant_id, 0) AS tenant_id, c.topic, c.created_at,
	(SELECT COUNT(*) FROM turns t WHERE t.conversation_id = c.id AND t.role = 'user') AS user_turns`

func (s *Store) ListConversations(ctx context.Context, ownerID int64, limit int) ([]domain.ConversationSummary, error) {
	query := `SELECT ` + summaryColumns + `
	          FROM conversations c
	          JOIN users u ON u.id = c.owner_id
	          WHERE c.owner_id = ?
	          ORDER BY c.rowid DESC
	          LIMIT ?`

	var summaries []domain.ConversationSummary
	if err := s.db.SelectContext(ctx, &summaries, query, ownerID, limitOrAll(limit)); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return summaries, nil
}

func (s *Store) ListAllConversations(ctx context.Context, limit int) ([]domain.ConversationSummary, error) {
	query := `SELECT ` + summaryColumns + `
	          FROM conversations c
	          JOIN users u ON u.id = c.owner_id
	          ORDER BY c.rowid DESC
	          LIMIT ?`

	var summaries []domain.ConversationSummary
	if err := s.db.SelectContext(ctx, &summaries, query, limitOrAll(limit)); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return summaries, nil
}

// limitOrAll maps non-positive limits to SQLite's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
