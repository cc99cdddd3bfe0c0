package admin

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		path    string
		wantErr bool
	}{
		{name: "valid", title: "Tutor Chats", path: "/admin/tutor"},
		{name: "duplicate path", title: "Chats again", path: "/admin/tutor", wantErr: true},
		{name: "relative path", title: "Users", path: "admin/users", wantErr: true},
		{name: "missing title", title: "", path: "/admin/users", wantErr: true},
	}

	r := NewRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.title, tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_LinksInOrder(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("Tutor Chats", "/admin/tutor")
	r.MustRegister("Metrics", "/metrics")

	links := r.Links()
	want := []Link{
		{Title: "Tutor Chats", Path: "/admin/tutor"},
		{Title: "Metrics", Path: "/metrics"},
	}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Errorf("Links() mismatch (-want +got):\n%s", diff)
	}

	links[0].Title = "changed"
	if r.Links()[0].Title != "Tutor Chats" {
		t.Error("Links() returned the registry's backing slice")
	}
}

func TestRegistries_AreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.MustRegister("Tutor Chats", "/admin/tutor")

	if got := len(b.Links()); got != 0 {
		t.Errorf("second registry has %d links, want 0", got)
	}
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("Tutor Chats", "/admin/tutor")

	defer func() {
		if recover() == nil {
			t.Error("MustRegister() did not panic on duplicate")
		}
	}()
	r.MustRegister("Tutor Chats", "/admin/tutor")
}
