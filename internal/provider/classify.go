package provider

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/telemetry"
)

// Classifier maps provider failures to fixed, user-safe errors. The full
// provider detail is logged, never returned.
type Classifier struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewClassifier creates a classifier. Both arguments may be nil.
func NewClassifier(logger *slog.Logger, metrics *telemetry.Metrics) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{logger: logger, metrics: metrics}
}

// Classify returns the domain error for err. Domain errors pass through
// unchanged; nil maps to nil.
func (c *Classifier) Classify(ctx context.Context, err error) *domain.Error {
	if err == nil {
		return nil
	}
	if derr, ok := domain.AsError(err); ok {
		return derr
	}

	kind := Kind(err)

	var perr *Error
	attrs := []any{
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	}
	providerName := "unknown"
	if errors.As(err, &perr) {
		providerName = perr.Provider
		attrs = append(attrs,
			slog.String("provider", perr.Provider),
			slog.Int("status", perr.StatusCode),
			slog.String("type", perr.Type),
			slog.String("code", perr.Code),
		)
	}
	c.logger.ErrorContext(ctx, "model provider request failed", attrs...)
	c.metrics.ProviderError(providerName, string(kind))

	return domain.NewError(kind).WithDetail(err.Error()).WithCause(err)
}

// Kind classifies err without logging. Structured metadata is consulted
// before the message text.
func Kind(err error) domain.ErrorKind {
	if isTimeout(err) {
		return domain.KindTimeout
	}

	var perr *Error
	if !errors.As(err, &perr) {
		if k := kindFromMessage(err.Error()); k != "" {
			return k
		}
		return domain.KindUnknown
	}

	code := strings.ToLower(perr.Code)
	typ := strings.ToLower(perr.Type)
	msg := strings.ToLower(perr.Message)

	switch {
	case perr.Timeout,
		perr.StatusCode == http.StatusRequestTimeout,
		perr.StatusCode == http.StatusGatewayTimeout,
		typ == "deadline_exceeded":
		return domain.KindTimeout

	case code == "context_length_exceeded", isContextMessage(msg):
		return domain.KindContextTooLong

	case code == "insufficient_quota", typ == "insufficient_quota", isQuotaMessage(msg):
		return domain.KindQuotaExceeded

	case perr.StatusCode == http.StatusTooManyRequests,
		code == "rate_limit_exceeded",
		typ == "rate_limit_error", typ == "rate_limit_exceeded", typ == "resource_exhausted":
		return domain.KindRateLimited

	case perr.StatusCode == http.StatusUnauthorized,
		perr.StatusCode == http.StatusForbidden,
		code == "invalid_api_key", isCredentialMessage(msg),
		typ == "authentication_error", typ == "permission_denied", typ == "unauthenticated":
		return domain.KindInvalidCredential

	case perr.StatusCode == http.StatusBadRequest,
		perr.StatusCode == http.StatusNotFound,
		perr.StatusCode == http.StatusUnprocessableEntity,
		typ == "invalid_request_error", typ == "invalid_argument", typ == "not_found":
		return domain.KindBadRequest
	}

	if k := kindFromMessage(perr.Message); k != "" {
		return k
	}
	return domain.KindUnknown
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isContextMessage(msg string) bool {
	return strings.Contains(msg, "maximum context length") ||
		strings.Contains(msg, "context length") ||
		strings.Contains(msg, "context window") ||
		strings.Contains(msg, "too many tokens")
}

func isCredentialMessage(msg string) bool {
	return strings.Contains(msg, "api key not valid") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "incorrect api key")
}

func isQuotaMessage(msg string) bool {
	return strings.Contains(msg, "exceeded your current quota") ||
		strings.Contains(msg, "quota exceeded") ||
		strings.Contains(msg, "billing")
}

// kindFromMessage is the last resort for errors without metadata.
func kindFromMessage(message string) domain.ErrorKind {
	msg := strings.ToLower(message)

	switch {
	case strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout"):
		return domain.KindTimeout
	case isContextMessage(msg):
		return domain.KindContextTooLong
	case isQuotaMessage(msg):
		return domain.KindQuotaExceeded
	case strings.Contains(msg, "rate limit"):
		return domain.KindRateLimited
	case strings.Contains(msg, "api key") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "unauthorized"):
		return domain.KindInvalidCredential
	}
	return ""
}
