package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
)

type netTimeout struct{}

func (netTimeout) Error() string   { return "i/o timeout" }
func (netTimeout) Timeout() bool   { return true }
func (netTimeout) Temporary() bool { return true }

var _ net.Error = netTimeout{}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{
			name: "context deadline",
			err:  fmt.Errorf("request failed: %w", context.DeadlineExceeded),
			want: domain.KindTimeout,
		},
		{
			name: "net timeout",
			err:  &Error{Provider: "openai", Err: netTimeout{}},
			want: domain.KindTimeout,
		},
		{
			name: "provider timeout flag",
			err:  &Error{Provider: "gemini", Timeout: true},
			want: domain.KindTimeout,
		},
		{
			name: "gateway timeout status",
			err:  &Error{Provider: "openai", StatusCode: 504},
			want: domain.KindTimeout,
		},
		{
			name: "openai insufficient quota",
			err:  &Error{Provider: "openai", StatusCode: 429, Type: "insufficient_quota", Code: "insufficient_quota", Message: "You exceeded your current quota, please check your plan and billing details."},
			want: domain.KindQuotaExceeded,
		},
		{
			name: "gemini resource exhausted with quota",
			err:  &Error{Provider: "gemini", StatusCode: 429, Type: "RESOURCE_EXHAUSTED", Message: "Quota exceeded for quota metric 'Generate Content API requests per minute'"},
			want: domain.KindQuotaExceeded,
		},
		{
			name: "plain rate limit",
			err:  &Error{Provider: "openai", StatusCode: 429, Type: "requests", Code: "rate_limit_exceeded", Message: "Rate limit reached for gpt-4o-mini"},
			want: domain.KindRateLimited,
		},
		{
			name: "gemini resource exhausted without quota",
			err:  &Error{Provider: "gemini", Type: "RESOURCE_EXHAUSTED", Message: "Too many requests"},
			want: domain.KindRateLimited,
		},
		{
			name: "invalid api key",
			err:  &Error{Provider: "openai", StatusCode: 401, Type: "invalid_request_error", Code: "invalid_api_key", Message: "Incorrect API key provided"},
			want: domain.KindInvalidCredential,
		},
		{
			name: "gemini key not valid",
			err:  &Error{Provider: "gemini", StatusCode: 400, Type: "INVALID_ARGUMENT", Message: "API key not valid. Please pass a valid API key."},
			want: domain.KindInvalidCredential,
		},
		{
			name: "forbidden",
			err:  &Error{Provider: "gemini", StatusCode: 403, Type: "PERMISSION_DENIED"},
			want: domain.KindInvalidCredential,
		},
		{
			name: "context length code",
			err:  &Error{Provider: "openai", StatusCode: 400, Code: "context_length_exceeded", Message: "This model's maximum context length is 8192 tokens."},
			want: domain.KindContextTooLong,
		},
		{
			name: "context length message only",
			err:  &Error{Provider: "gemini", StatusCode: 400, Type: "INVALID_ARGUMENT", Message: "The input token count exceeds the maximum context length"},
			want: domain.KindContextTooLong,
		},
		{
			name: "other bad request",
			err:  &Error{Provider: "openai", StatusCode: 400, Type: "invalid_request_error", Message: "'messages' is a required property"},
			want: domain.KindBadRequest,
		},
		{
			name: "server error",
			err:  &Error{Provider: "openai", StatusCode: 500, Type: "server_error", Message: "The server had an error"},
			want: domain.KindUnknown,
		},
		{
			name: "bare message rate limit",
			err:  errors.New("upstream said: rate limit hit"),
			want: domain.KindRateLimited,
		},
		{
			name: "bare unknown",
			err:  errors.New("connection reset by peer"),
			want: domain.KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier(nil, nil)
	ctx := context.Background()

	if got := c.Classify(ctx, nil); got != nil {
		t.Errorf("Classify(nil) = %v, want nil", got)
	}

	raw := &Error{Provider: "openai", StatusCode: 401, Code: "invalid_api_key", Message: "Incorrect API key provided: sk-abc***"}
	got := c.Classify(ctx, raw)
	if got.Kind != domain.KindInvalidCredential {
		t.Fatalf("Classify() kind = %q, want %q", got.Kind, domain.KindInvalidCredential)
	}
	if got.Message != domain.UserText(domain.KindInvalidCredential) {
		t.Errorf("Classify() message = %q, want fixed text", got.Message)
	}
	if got.Category != domain.CategoryProvider {
		t.Errorf("Classify() category = %q, want provider", got.Category)
	}
	if !errors.Is(got, raw) {
		t.Error("Classify() result does not wrap the provider error")
	}

	// Domain errors pass through untouched.
	denial := domain.ErrTokensExhausted()
	if got := c.Classify(ctx, fmt.Errorf("wrapped: %w", denial)); got != denial {
		t.Errorf("Classify(domain error) = %v, want the same error", got)
	}
}

func TestClassifier_MessagesAreFixed(t *testing.T) {
	c := NewClassifier(nil, nil)
	secret := "sk-live-should-never-leak"

	err := c.Classify(context.Background(), &Error{Provider: "openai", StatusCode: 500, Message: "boom " + secret})
	if err.Message != domain.UserText(domain.KindUnknown) {
		t.Errorf("Classify() message = %q, want generic text", err.Message)
	}
	if err.Message == "" || strings.Contains(err.Message, secret) {
		t.Errorf("Classify() message leaks provider detail: %q", err.Message)
	}
}
