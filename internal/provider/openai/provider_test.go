package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/provider"
)

func newTestServer(t *testing.T, status int, body string, check func(*testing.T, *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(t, r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testRequest() *domain.CompletionRequest {
	return &domain.CompletionRequest{
		Model: "gpt-4o-mini",
		Messages: []domain.Turn{
			{Role: domain.TurnUser, Content: "Loops"},
			{Role: domain.TurnAssistant, Content: "What is a loop?"},
		},
		Sampling: domain.DefaultSampling(),
	}
}

func TestProvider_Complete(t *testing.T) {
	srv := newTestServer(t, http.StatusOK,
		`{"id":"1","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"Hi"},"finish_reason":"length"}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`,
		func(t *testing.T, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("path = %s, want /chat/completions", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
				t.Errorf("Authorization = %q", got)
			}
			var req ChatCompletionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			if req.N != 1 || req.MaxTokens != 1000 || req.Temperature == nil || *req.Temperature != 0.25 {
				t.Errorf("sampling = n %d max %d temp %v", req.N, req.MaxTokens, req.Temperature)
			}
			if len(req.Messages) != 2 || req.Messages[1].Role != "assistant" {
				t.Errorf("messages = %+v", req.Messages)
			}
		})

	p := New("sk-test", WithBaseURL(srv.URL+"/"))
	resp, err := p.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "Hi" || resp.FinishReason != domain.FinishLength {
		t.Errorf("Complete() = %+v", resp)
	}
}

func TestProvider_CompleteTrimsText(t *testing.T) {
	srv := newTestServer(t, http.StatusOK,
		`{"id":"2","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"\n\nHello \n"},"finish_reason":"length"}]}`,
		nil)

	p := New("sk-test", WithBaseURL(srv.URL+"/"))
	resp, err := p.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "Hello" {
		t.Errorf("Text = %q, want %q", resp.Text, "Hello")
	}
}

func TestProvider_CompleteErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantKind   domain.ErrorKind
	}{
		{
			name:       "quota",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"message":"You exceeded your current quota, please check your plan and billing details.","type":"insufficient_quota","code":"insufficient_quota"}}`,
			wantStatus: http.StatusTooManyRequests,
			wantKind:   domain.KindQuotaExceeded,
		},
		{
			name:       "rate limit",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"message":"Rate limit reached for requests","type":"requests","code":"rate_limit_exceeded"}}`,
			wantStatus: http.StatusTooManyRequests,
			wantKind:   domain.KindRateLimited,
		},
		{
			name:       "invalid key",
			status:     http.StatusUnauthorized,
			body:       `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
			wantStatus: http.StatusUnauthorized,
			wantKind:   domain.KindInvalidCredential,
		},
		{
			name:       "context length",
			status:     http.StatusBadRequest,
			body:       `{"error":{"message":"This model's maximum context length is 128000 tokens.","type":"invalid_request_error","code":"context_length_exceeded"}}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   domain.KindContextTooLong,
		},
		{
			name:       "non json body",
			status:     http.StatusBadGateway,
			body:       `<html>bad gateway</html>`,
			wantStatus: http.StatusBadGateway,
			wantKind:   domain.KindUnknown,
		},
		{
			name:       "no choices",
			status:     http.StatusOK,
			body:       `{"id":"1","choices":[]}`,
			wantKind:   domain.KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, tt.body, nil)
			p := New("sk-test", WithBaseURL(srv.URL))

			_, err := p.Complete(context.Background(), testRequest())
			var perr *provider.Error
			if !errors.As(err, &perr) {
				t.Fatalf("Complete() error = %v, want *provider.Error", err)
			}
			if perr.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", perr.StatusCode, tt.wantStatus)
			}
			if got := provider.Kind(err); got != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", got, tt.wantKind)
			}
		})
	}
}

func TestProvider_CompleteTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := New("sk-test", WithBaseURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, testRequest())
	if got := provider.Kind(err); got != domain.KindTimeout {
		t.Errorf("Kind() = %q, want %q (err %v)", got, domain.KindTimeout, err)
	}
}

func TestCreateFromCredential(t *testing.T) {
	if _, err := CreateFromCredential(domain.Credential{}, provider.Options{}); err == nil {
		t.Error("CreateFromCredential() without key expected error")
	}

	reg := provider.NewRegistry(provider.Options{})
	Register(reg)
	p, err := reg.New(domain.Credential{APIKey: "sk-test", BaseURL: "http://localhost:1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Name() != ProviderType {
		t.Errorf("Name() = %q, want %q", p.Name(), ProviderType)
	}
}
