package auth

import (
	"context"
	"net/http"
	"testing"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
)

func TestGuards(t *testing.T) {
	f := newFixture(t)
	enabled := RequireTenantEnabled(f.store)

	anon := domain.Anonymous()
	student := &domain.AuthContext{IdentityID: f.student, TenantID: f.physics, TenantName: "Physics", Role: domain.RoleStudent}
	instructor := &domain.AuthContext{IdentityID: f.student, TenantID: f.chemistry, TenantName: "Chemistry", Role: domain.RoleInstructor}
	archived := &domain.AuthContext{IdentityID: f.student, TenantID: f.archived, TenantName: "Archived", Role: domain.RoleStudent}
	tester := &domain.AuthContext{IdentityID: f.student, IsTester: true}
	admin := &domain.AuthContext{IdentityID: f.admin, IsAdmin: true}

	tests := []struct {
		name       string
		ac         *domain.AuthContext
		guards     []Guard
		wantAllow  bool
		wantStatus int
	}{
		{name: "login denies anonymous", ac: anon, guards: []Guard{RequireLogin}, wantStatus: http.StatusUnauthorized},
		{name: "login allows identity", ac: student, guards: []Guard{RequireLogin}, wantAllow: true},
		{name: "enabled tenant passes instructor", ac: instructor, guards: []Guard{enabled}, wantAllow: true},
		{name: "admin denies student", ac: student, guards: []Guard{RequireAdmin}, wantStatus: http.StatusForbidden},
		{name: "admin allows admin", ac: admin, guards: []Guard{RequireAdmin}, wantAllow: true},
		{name: "tester hides route", ac: student, guards: []Guard{RequireTester}, wantStatus: http.StatusNotFound},
		{name: "tester allows tester", ac: tester, guards: []Guard{RequireTester}, wantAllow: true},
		{name: "enabled tenant passes", ac: student, guards: []Guard{enabled}, wantAllow: true},
		{name: "no tenant passes", ac: tester, guards: []Guard{enabled}, wantAllow: true},
		{name: "disabled tenant denied", ac: archived, guards: []Guard{enabled}, wantStatus: http.StatusForbidden},
		{name: "first denial wins", ac: anon, guards: []Guard{RequireLogin, RequireTester}, wantStatus: http.StatusUnauthorized},
		{name: "all pass", ac: tester, guards: []Guard{RequireLogin, RequireTester, enabled}, wantAllow: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Check(context.Background(), tt.ac, tt.guards...)
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if d.Allowed != tt.wantAllow {
				t.Fatalf("Check() allowed = %v, want %v (reason %q)", d.Allowed, tt.wantAllow, d.Reason)
			}
			if !tt.wantAllow {
				if d.Status != tt.wantStatus {
					t.Errorf("Check() status = %d, want %d", d.Status, tt.wantStatus)
				}
				if d.Reason == "" {
					t.Error("Check() denial has no reason")
				}
			}
		})
	}
}
