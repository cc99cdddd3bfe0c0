package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage/storagetest"
)

var memdbSeq atomic.Int64

func newMemStore(t *testing.T) *Store {
	t.Helper()
	// Use in-memory SQLite with shared cache; each store gets its own name
	dsn := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", memdbSeq.Add(1))
	store, err := New(dsn)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}

func TestSQLiteStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newMemStore(t)
	})
}

func TestSQLiteStore_TokensNeverNegative(t *testing.T) {
	store := newMemStore(t)
	defer store.Close()

	ctx := context.Background()
	id, err := store.CreateIdentity(ctx, &domain.Identity{AuthProvider: domain.AuthProviderDemo}, 0)
	if err != nil {
		t.Fatalf("CreateIdentity() error = %v", err)
	}

	// The CHECK constraint rejects a direct write below zero.
	if _, err := store.db.ExecContext(ctx, `UPDATE users SET query_tokens = -1 WHERE id = ?`, id); err == nil {
		t.Error("expected CHECK constraint to reject a negative balance")
	}
}

func TestSQLiteStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tutor.db")

	store, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	owner, err := store.CreateIdentity(ctx, &domain.Identity{DisplayName: "Persisted", AuthProvider: domain.AuthProviderLocal}, 0)
	if err != nil {
		t.Fatalf("CreateIdentity() error = %v", err)
	}
	conv := &domain.Conversation{ID: "persist-test", OwnerID: owner, Topic: "pointers"}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if err := store.SaveTurns(ctx, conv.ID, []domain.Turn{{Role: domain.TurnAssistant, Content: "hi"}}); err != nil {
		t.Fatalf("SaveTurns() error = %v", err)
	}
	store.Close()

	// Reopen and verify data persisted
	store2, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store2.Close()

	retrieved, err := store2.GetConversation(ctx, "persist-test")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if retrieved.Topic != "pointers" || len(retrieved.Turns) != 1 {
		t.Errorf("retrieved = %+v, want topic pointers with 1 turn", retrieved)
	}
	if retrieved.CreatedAt.IsZero() {
		t.Error("CreatedAt not persisted")
	}
}
