package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestNewError_KindTable(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		category ErrorCategory
		status   int
	}{
		{KindTenantDisabled, CategoryAccess, http.StatusForbidden},
		{KindNoKeyConfigured, CategoryAccess, http.StatusForbidden},
		{KindTokensExhausted, CategoryAccess, http.StatusPaymentRequired},
		{KindNotFound, CategorySession, http.StatusNotFound},
		{KindAccessDenied, CategorySession, http.StatusNotFound},
		{KindTimeout, CategoryProvider, http.StatusGatewayTimeout},
		{KindRateLimited, CategoryProvider, http.StatusTooManyRequests},
		{KindQuotaExceeded, CategoryProvider, http.StatusTooManyRequests},
		{KindInvalidCredential, CategoryProvider, http.StatusBadGateway},
		{KindContextTooLong, CategoryProvider, http.StatusBadRequest},
		{KindBadRequest, CategoryProvider, http.StatusBadRequest},
		{KindUnknown, CategoryProvider, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := NewError(tt.kind)
			if err.Category != tt.category {
				t.Errorf("Category = %q, want %q", err.Category, tt.category)
			}
			if got := err.HTTPStatusCode(); got != tt.status {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.status)
			}
			if err.Message == "" || err.Message != UserText(tt.kind) {
				t.Errorf("Message = %q, want UserText(%q)", err.Message, tt.kind)
			}
		})
	}
}

func TestUserText_DistinctDenials(t *testing.T) {
	denials := []ErrorKind{KindTenantDisabled, KindNoKeyConfigured, KindTokensExhausted}
	seen := make(map[string]ErrorKind)
	for _, k := range denials {
		text := UserText(k)
		if prev, ok := seen[text]; ok {
			t.Errorf("%s and %s share user text %q", prev, k, text)
		}
		seen[text] = k
	}
}

func TestUserText_SessionKindsIndistinguishable(t *testing.T) {
	if UserText(KindNotFound) != UserText(KindAccessDenied) {
		t.Error("not_found and access_denied must render identically")
	}
	if NewError(KindNotFound).HTTPStatusCode() != NewError(KindAccessDenied).HTTPStatusCode() {
		t.Error("not_found and access_denied must share a status")
	}
}

func TestUserText_UnknownKindFallsBack(t *testing.T) {
	if got := UserText("made_up"); got != UserText(KindUnknown) {
		t.Errorf("UserText(made_up) = %q, want generic text", got)
	}
	if err := NewError("made_up"); err.Category != CategoryProvider {
		t.Errorf("NewError(made_up).Category = %q, want provider", err.Category)
	}
}

func TestError_DetailNeverLeaks(t *testing.T) {
	err := NewError(KindInvalidCredential).WithDetail("openai (status 401) invalid_api_key: Incorrect API key provided: sk-abc")

	if strings.Contains(err.Error(), "sk-abc") {
		t.Errorf("Error() leaked detail: %q", err.Error())
	}

	raw, jerr := json.Marshal(err)
	if jerr != nil {
		t.Fatalf("Marshal() error = %v", jerr)
	}
	if strings.Contains(string(raw), "sk-abc") {
		t.Errorf("JSON leaked detail: %s", raw)
	}

	var body map[string]string
	if jerr := json.Unmarshal(raw, &body); jerr != nil {
		t.Fatal(jerr)
	}
	if body["kind"] != "invalid_credential" || body["category"] != "provider" {
		t.Errorf("JSON = %s", raw)
	}
}

func TestError_UnwrapAndIsKind(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("tutor turn: %w", NewError(KindTimeout).WithCause(cause))

	if !IsKind(err, KindTimeout) {
		t.Error("IsKind(timeout) = false through a wrapped error")
	}
	if IsKind(err, KindRateLimited) {
		t.Error("IsKind(rate_limited) = true for a timeout")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(cause) = false")
	}
	if IsKind(cause, KindTimeout) {
		t.Error("IsKind() = true for a plain error")
	}

	derr, ok := AsError(err)
	if !ok || derr.Kind != KindTimeout {
		t.Errorf("AsError() = %v, %v", derr, ok)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		err  *Error
		kind ErrorKind
	}{
		{ErrTenantDisabled(), KindTenantDisabled},
		{ErrNoKeyConfigured(), KindNoKeyConfigured},
		{ErrTokensExhausted(), KindTokensExhausted},
		{ErrConversationNotFound(), KindNotFound},
		{ErrConversationAccessDenied(), KindAccessDenied},
	}
	for _, tt := range tests {
		if tt.err.Kind != tt.kind {
			t.Errorf("constructor kind = %q, want %q", tt.err.Kind, tt.kind)
		}
	}
}
