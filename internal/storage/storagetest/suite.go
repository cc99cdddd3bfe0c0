// Package storagetest holds a conformance suite run against every
// storage.Store backend.
package storagetest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) storage.Store

// Run exercises the full storage.Store contract.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"IdentityRoundTrip", testIdentityRoundTrip},
		{"ActiveMemberships", testActiveMemberships},
		{"TenantFeatures", testTenantFeatures},
		{"CredentialPrecedence", testCredentialPrecedence},
		{"DecrementStopsAtZero", testDecrementStopsAtZero},
		{"ConcurrentDecrement", testConcurrentDecrement},
		{"LocalLogin", testLocalLogin},
		{"LastTenant", testLastTenant},
		{"ConversationAppendOnly", testConversationAppendOnly},
		{"ConversationStaleSave", testConversationStaleSave},
		{"ConversationListing", testConversationListing},
		{"NotFound", testNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

func mustIdentity(t *testing.T, s storage.Store, name string, provider domain.AuthProvider, tokens int64) int64 {
	t.Helper()
	id, err := s.CreateIdentity(context.Background(), &domain.Identity{
		DisplayName:  name,
		AuthProvider: provider,
	}, tokens)
	if err != nil {
		t.Fatalf("CreateIdentity() error = %v", err)
	}
	return id
}

func mustTenant(t *testing.T, s storage.Store, name string, enabled bool, features ...string) int64 {
	t.Helper()
	id, err := s.CreateTenant(context.Background(), &domain.Tenant{Name: name, Enabled: enabled, Features: features})
	if err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}
	return id
}

func testIdentityRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	identity := &domain.Identity{DisplayName: "Ada", AuthProvider: domain.AuthProviderLTI, IsAdmin: true}
	id, err := s.CreateIdentity(ctx, identity, 3)
	if err != nil {
		t.Fatalf("CreateIdentity() error = %v", err)
	}

	got, err := s.GetIdentity(ctx, id)
	if err != nil {
		t.Fatalf("GetIdentity() error = %v", err)
	}
	want := &domain.Identity{ID: id, DisplayName: "Ada", AuthProvider: domain.AuthProviderLTI, IsAdmin: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetIdentity() mismatch (-want +got):\n%s", diff)
	}

	balance, err := s.TokenBalance(ctx, id)
	if err != nil {
		t.Fatalf("TokenBalance() error = %v", err)
	}
	if balance != 3 {
		t.Errorf("TokenBalance() = %d, want 3", balance)
	}
}

func testActiveMemberships(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := mustIdentity(t, s, "Student", domain.AuthProviderLTI, 0)
	physics := mustTenant(t, s, "Physics", true)
	chem := mustTenant(t, s, "Chemistry", false)
	bio := mustTenant(t, s, "Biology", true)

	if _, err := s.AddMembership(ctx, user, physics, domain.RoleStudent); err != nil {
		t.Fatalf("AddMembership() error = %v", err)
	}
	if _, err := s.AddMembership(ctx, user, chem, domain.RoleInstructor); err != nil {
		t.Fatalf("AddMembership() error = %v", err)
	}
	bioMembership, err := s.AddMembership(ctx, user, bio, domain.RoleStudent)
	if err != nil {
		t.Fatalf("AddMembership() error = %v", err)
	}
	if err := s.SetMembershipActive(ctx, bioMembership, false); err != nil {
		t.Fatalf("SetMembershipActive() error = %v", err)
	}

	got, err := s.GetActiveMemberships(ctx, user)
	if err != nil {
		t.Fatalf("GetActiveMemberships() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetActiveMemberships() returned %d memberships, want 2", len(got))
	}
	// Newest first
	if got[0].TenantID != chem || got[0].Role != domain.RoleInstructor || got[0].TenantEnabled {
		t.Errorf("memberships[0] = %+v, want disabled Chemistry instructor", got[0])
	}
	if got[1].TenantID != physics || got[1].TenantName != "Physics" || !got[1].TenantEnabled {
		t.Errorf("memberships[1] = %+v, want enabled Physics", got[1])
	}
}

func testTenantFeatures(t *testing.T, s storage.Store) {
	ctx := context.Background()
	id := mustTenant(t, s, "CS1", true, "tutor", "codehelp")

	got, err := s.GetTenant(ctx, id)
	if err != nil {
		t.Fatalf("GetTenant() error = %v", err)
	}
	want := &domain.Tenant{ID: id, Name: "CS1", Enabled: true, Features: []string{"codehelp", "tutor"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetTenant() mismatch (-want +got):\n%s", diff)
	}

	if err := s.SetTenantEnabled(ctx, id, false); err != nil {
		t.Fatalf("SetTenantEnabled() error = %v", err)
	}
	got, err = s.GetTenant(ctx, id)
	if err != nil {
		t.Fatalf("GetTenant() error = %v", err)
	}
	if got.Enabled {
		t.Error("tenant still enabled after SetTenantEnabled(false)")
	}
}

func testCredentialPrecedence(t *testing.T, s storage.Store) {
	ctx := context.Background()
	creator := mustIdentity(t, s, "Instructor", domain.AuthProviderGoogle, 0)
	tenant := mustTenant(t, s, "Algebra", true)

	if _, err := s.GetTenantCredential(ctx, tenant); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetTenantCredential() without credentials error = %v, want ErrNotFound", err)
	}

	if err := s.SetTenantCredential(ctx, tenant, creator, domain.Credential{APIKey: "sk-self", Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("SetTenantCredential() error = %v", err)
	}
	got, err := s.GetTenantCredential(ctx, tenant)
	if err != nil {
		t.Fatalf("GetTenantCredential() error = %v", err)
	}
	want := &domain.Credential{Provider: "openai", APIKey: "sk-self", Model: "gpt-4o-mini", Source: domain.SourceTenant}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("self-service credential mismatch (-want +got):\n%s", diff)
	}

	// A linked LTI consumer wins even with a blank key.
	consumer, err := s.CreateLTIConsumer(ctx, "campus-lms", domain.Credential{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("CreateLTIConsumer() error = %v", err)
	}
	if err := s.LinkTenantLTI(ctx, tenant, consumer); err != nil {
		t.Fatalf("LinkTenantLTI() error = %v", err)
	}
	got, err = s.GetTenantCredential(ctx, tenant)
	if err != nil {
		t.Fatalf("GetTenantCredential() error = %v", err)
	}
	want = &domain.Credential{Provider: "openai", Model: "gpt-4o", Source: domain.SourceLTI}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lti credential mismatch (-want +got):\n%s", diff)
	}
}

func testDecrementStopsAtZero(t *testing.T, s storage.Store) {
	ctx := context.Background()
	id := mustIdentity(t, s, "Demo", domain.AuthProviderDemo, 2)

	for i, want := range []bool{true, true, false, false} {
		ok, err := s.DecrementTokenIfPositive(ctx, id)
		if err != nil {
			t.Fatalf("DecrementTokenIfPositive() #%d error = %v", i, err)
		}
		if ok != want {
			t.Errorf("DecrementTokenIfPositive() #%d = %v, want %v", i, ok, want)
		}
	}

	balance, err := s.TokenBalance(ctx, id)
	if err != nil {
		t.Fatalf("TokenBalance() error = %v", err)
	}
	if balance != 0 {
		t.Errorf("TokenBalance() = %d, want 0", balance)
	}

	ok, err := s.DecrementTokenIfPositive(ctx, 9999)
	if err != nil {
		t.Fatalf("DecrementTokenIfPositive(unknown) error = %v", err)
	}
	if ok {
		t.Error("DecrementTokenIfPositive(unknown) = true, want false")
	}
}

func testConcurrentDecrement(t *testing.T, s storage.Store) {
	const (
		balance = 5
		callers = 20
	)
	ctx := context.Background()
	id := mustIdentity(t, s, "Racer", domain.AuthProviderGitHub, balance)

	var granted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			ok, err := s.DecrementTokenIfPositive(gctx, id)
			if ok {
				granted.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent DecrementTokenIfPositive() error = %v", err)
	}

	if got := granted.Load(); got != balance {
		t.Errorf("granted = %d, want %d", got, balance)
	}
	remaining, err := s.TokenBalance(ctx, id)
	if err != nil {
		t.Fatalf("TokenBalance() error = %v", err)
	}
	if remaining != 0 {
		t.Errorf("TokenBalance() = %d, want 0", remaining)
	}
}

func testLocalLogin(t *testing.T, s storage.Store) {
	ctx := context.Background()
	id := mustIdentity(t, s, "Admin", domain.AuthProviderLocal, 0)

	if err := s.SetLocalPassword(ctx, id, "admin", "$2a$hash"); err != nil {
		t.Fatalf("SetLocalPassword() error = %v", err)
	}
	gotID, hash, err := s.GetLocalPasswordHash(ctx, "admin")
	if err != nil {
		t.Fatalf("GetLocalPasswordHash() error = %v", err)
	}
	if gotID != id || hash != "$2a$hash" {
		t.Errorf("GetLocalPasswordHash() = (%d, %q), want (%d, %q)", gotID, hash, id, "$2a$hash")
	}

	if _, _, err := s.GetLocalPasswordHash(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetLocalPasswordHash(unknown) error = %v, want ErrNotFound", err)
	}
}

func testLastTenant(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := mustIdentity(t, s, "Teacher", domain.AuthProviderLocal, 0)
	tenant := mustTenant(t, s, "History", true)
	membership, err := s.AddMembership(ctx, user, tenant, domain.RoleInstructor)
	if err != nil {
		t.Fatalf("AddMembership() error = %v", err)
	}

	if got, err := s.GetLastTenant(ctx, user); err != nil || got != 0 {
		t.Fatalf("GetLastTenant() before set = (%d, %v), want (0, nil)", got, err)
	}
	if err := s.SetLastTenant(ctx, user, tenant); err != nil {
		t.Fatalf("SetLastTenant() error = %v", err)
	}
	if got, err := s.GetLastTenant(ctx, user); err != nil || got != tenant {
		t.Fatalf("GetLastTenant() = (%d, %v), want (%d, nil)", got, err, tenant)
	}

	// An inactive membership hides the remembered tenant.
	if err := s.SetMembershipActive(ctx, membership, false); err != nil {
		t.Fatalf("SetMembershipActive() error = %v", err)
	}
	if got, err := s.GetLastTenant(ctx, user); err != nil || got != 0 {
		t.Errorf("GetLastTenant() after deactivation = (%d, %v), want (0, nil)", got, err)
	}
}

func testConversationAppendOnly(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner := mustIdentity(t, s, "Learner", domain.AuthProviderLTI, 0)
	conv := &domain.Conversation{ID: "c-1", OwnerID: owner, Topic: "recursion"}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	turns := []domain.Turn{
		{Role: domain.TurnAssistant, Content: "What do you know about recursion?"},
		{Role: domain.TurnUser, Content: "Not much."},
	}
	if err := s.SaveTurns(ctx, "c-1", turns); err != nil {
		t.Fatalf("SaveTurns() error = %v", err)
	}

	turns = append(turns, domain.Turn{Role: domain.TurnAssistant, Content: "Let's start with a base case."})
	if err := s.SaveTurns(ctx, "c-1", turns); err != nil {
		t.Fatalf("SaveTurns() append error = %v", err)
	}
	// Saving the same slice again is a no-op
	if err := s.SaveTurns(ctx, "c-1", turns); err != nil {
		t.Fatalf("SaveTurns() repeat error = %v", err)
	}

	if err := s.SaveTurns(ctx, "c-1", turns[:1]); !errors.Is(err, storage.ErrNotAppendOnly) {
		t.Errorf("SaveTurns() shorter error = %v, want ErrNotAppendOnly", err)
	}

	got, err := s.GetConversation(ctx, "c-1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if diff := cmp.Diff(turns, got.Turns); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
	if got.OwnerID != owner || got.Topic != "recursion" || got.TenantID != 0 || got.Context != "" {
		t.Errorf("conversation = %+v, want owner %d topic recursion with no tenant/context", got, owner)
	}
}

func testConversationStaleSave(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner := mustIdentity(t, s, "Learner", domain.AuthProviderLTI, 0)
	if err := s.CreateConversation(ctx, &domain.Conversation{ID: "c-stale", OwnerID: owner, Topic: "loops"}); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	opening := domain.Turn{Role: domain.TurnAssistant, Content: "What is a loop for?"}
	userA := domain.Turn{Role: domain.TurnUser, Content: "message A"}
	userB := domain.Turn{Role: domain.TurnUser, Content: "message B"}
	replyA := domain.Turn{Role: domain.TurnAssistant, Content: "reply to A"}
	replyB := domain.Turn{Role: domain.TurnAssistant, Content: "reply to B"}

	if err := s.SaveTurns(ctx, "c-stale", []domain.Turn{opening}); err != nil {
		t.Fatalf("SaveTurns(opening) error = %v", err)
	}
	// Two requests both loaded [opening]; A saves first.
	if err := s.SaveTurns(ctx, "c-stale", []domain.Turn{opening, userA}); err != nil {
		t.Fatalf("SaveTurns(A) error = %v", err)
	}

	tests := []struct {
		name  string
		turns []domain.Turn
	}{
		{name: "same length, different turn", turns: []domain.Turn{opening, userB}},
		{name: "longer, different prefix", turns: []domain.Turn{opening, userB, replyB}},
		{name: "different first turn", turns: []domain.Turn{userB, userA, replyA}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.SaveTurns(ctx, "c-stale", tt.turns); !errors.Is(err, storage.ErrNotAppendOnly) {
				t.Errorf("SaveTurns() error = %v, want ErrNotAppendOnly", err)
			}
		})
	}

	if err := s.SaveTurns(ctx, "c-stale", []domain.Turn{opening, userA, replyA}); err != nil {
		t.Fatalf("SaveTurns(A reply) error = %v", err)
	}

	got, err := s.GetConversation(ctx, "c-stale")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	want := []domain.Turn{opening, userA, replyA}
	if diff := cmp.Diff(want, got.Turns); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
}

func testConversationListing(t *testing.T, s storage.Store) {
	ctx := context.Background()
	alice := mustIdentity(t, s, "Alice", domain.AuthProviderLTI, 0)
	bob := mustIdentity(t, s, "Bob", domain.AuthProviderLTI, 0)
	tenant := mustTenant(t, s, "Databases", true)

	for _, c := range []domain.Conversation{
		{ID: "a-1", OwnerID: alice, TenantID: tenant, Topic: "joins"},
		{ID: "b-1", OwnerID: bob, TenantID: tenant, Topic: "indexes"},
		{ID: "a-2", OwnerID: alice, TenantID: tenant, Topic: "transactions", Context: "ACID"},
	} {
		if err := s.CreateConversation(ctx, &c); err != nil {
			t.Fatalf("CreateConversation(%s) error = %v", c.ID, err)
		}
	}
	if err := s.SaveTurns(ctx, "a-2", []domain.Turn{
		{Role: domain.TurnAssistant, Content: "q"},
		{Role: domain.TurnUser, Content: "a"},
		{Role: domain.TurnAssistant, Content: "q"},
		{Role: domain.TurnUser, Content: "a"},
	}); err != nil {
		t.Fatalf("SaveTurns() error = %v", err)
	}

	mine, err := s.ListConversations(ctx, alice, 10)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	var ids []string
	for _, c := range mine {
		ids = append(ids, c.ID)
	}
	if diff := cmp.Diff([]string{"a-2", "a-1"}, ids); diff != "" {
		t.Errorf("ListConversations() ids mismatch (-want +got):\n%s", diff)
	}
	if mine[0].UserTurns != 2 || mine[0].OwnerName != "Alice" || mine[0].TenantID != tenant {
		t.Errorf("ListConversations()[0] = %+v, want 2 user turns owned by Alice", mine[0])
	}

	limited, err := s.ListConversations(ctx, alice, 1)
	if err != nil {
		t.Fatalf("ListConversations(limit 1) error = %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "a-2" {
		t.Errorf("ListConversations(limit 1) = %+v, want [a-2]", limited)
	}

	all, err := s.ListAllConversations(ctx, 0)
	if err != nil {
		t.Fatalf("ListAllConversations() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListAllConversations() returned %d, want 3", len(all))
	}
}

func testNotFound(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if _, err := s.GetIdentity(ctx, 404); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetIdentity() error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetTenant(ctx, 404); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetTenant() error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetConversation(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetConversation() error = %v, want ErrNotFound", err)
	}
	if err := s.SaveTurns(ctx, "missing", nil); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("SaveTurns() error = %v, want ErrNotFound", err)
	}
	if err := s.GrantTokens(ctx, 404, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GrantTokens() error = %v, want ErrNotFound", err)
	}
}
