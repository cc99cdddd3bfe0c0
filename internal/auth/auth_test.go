package auth

import (
	"net/http"
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		want       string
		wantError  bool
	}{
		{
			name:       "valid bearer token",
			authHeader: "Bearer abc.def.ghi",
			want:       "abc.def.ghi",
		},
		{
			name:       "lowercase bearer",
			authHeader: "bearer abc.def.ghi",
			want:       "abc.def.ghi",
		},
		{
			name:       "missing header",
			authHeader: "",
			wantError:  true,
		},
		{
			name:       "invalid format",
			authHeader: "abc.def.ghi",
			wantError:  true,
		},
		{
			name:       "unsupported scheme",
			authHeader: "Basic dXNlcjpwYXNz",
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			got, err := ExtractBearerToken(req)
			if tt.wantError {
				if err == nil {
					t.Error("ExtractBearerToken() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractBearerToken() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractBearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractSessionToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie *http.Cookie
		want   string
	}{
		{name: "bearer wins over cookie", header: "Bearer from-header", cookie: &http.Cookie{Name: DefaultCookieName, Value: "from-cookie"}, want: "from-header"},
		{name: "cookie fallback", cookie: &http.Cookie{Name: DefaultCookieName, Value: "from-cookie"}, want: "from-cookie"},
		{name: "other cookie ignored", cookie: &http.Cookie{Name: "other", Value: "x"}, want: ""},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			if got := ExtractSessionToken(req, ""); got != tt.want {
				t.Errorf("ExtractSessionToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
