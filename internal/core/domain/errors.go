// Package domain provides the canonical types and error taxonomy shared by the
// access resolver, the tutoring engine and the HTTP layer.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory groups error kinds by the subsystem that produces them.
type ErrorCategory string

const (
	// CategoryAccess covers credential resolution denials.
	CategoryAccess ErrorCategory = "access"

	// CategorySession covers conversation lookup and access-check failures.
	CategorySession ErrorCategory = "session"

	// CategoryProvider covers classified model-provider failures.
	CategoryProvider ErrorCategory = "provider"
)

// ErrorKind is the stable tag callers render from.
type ErrorKind string

const (
	// Access denials
	KindTenantDisabled  ErrorKind = "tenant_disabled"
	KindNoKeyConfigured ErrorKind = "no_key_configured"
	KindTokensExhausted ErrorKind = "tokens_exhausted"

	// Session errors
	KindNotFound     ErrorKind = "not_found"
	KindAccessDenied ErrorKind = "access_denied"

	// Provider errors
	KindTimeout           ErrorKind = "timeout"
	KindRateLimited       ErrorKind = "rate_limited"
	KindQuotaExceeded     ErrorKind = "quota_exceeded"
	KindInvalidCredential ErrorKind = "invalid_credential"
	KindContextTooLong    ErrorKind = "context_too_long"
	KindBadRequest        ErrorKind = "bad_request"
	KindUnknown           ErrorKind = "unknown"
)

const genericProviderText = "Something went wrong with this request. The error has been logged, and we'll work on it. For now, please try again."

// userText holds the only text ever shown to an end user for each kind.
var userText = map[ErrorKind]string{
	KindTenantDisabled:  "The current class is archived or disabled. Request cannot be submitted.",
	KindNoKeyConfigured: "No API key set for the current class. Request cannot be submitted.",
	KindTokensExhausted: "You have used all of your free tokens. If you are using this application in a class, please connect using the link from your class. Otherwise, you can create a class and add an API key or contact us if you want to continue using this application.",

	// Both session kinds share one text so a caller cannot probe for ids.
	KindNotFound:     "Invalid id.",
	KindAccessDenied: "Invalid id.",

	KindTimeout:           "The system timed out producing the response. Please try again.",
	KindRateLimited:       "The system is receiving too many requests right now. Please try again in one minute.",
	KindQuotaExceeded:     "The API key for this class has exceeded its current quota. The instructor should check their API plan and billing details.",
	KindInvalidCredential: "The API key set by the instructor for this class is invalid. The instructor needs to provide a valid API key for this application to work.",
	KindContextTooLong:    "Your query is too long for the model to process. Please reduce the length of your input.",
	KindBadRequest:        genericProviderText,
	KindUnknown:           genericProviderText,
}

var kindCategory = map[ErrorKind]ErrorCategory{
	KindTenantDisabled:    CategoryAccess,
	KindNoKeyConfigured:   CategoryAccess,
	KindTokensExhausted:   CategoryAccess,
	KindNotFound:          CategorySession,
	KindAccessDenied:      CategorySession,
	KindTimeout:           CategoryProvider,
	KindRateLimited:       CategoryProvider,
	KindQuotaExceeded:     CategoryProvider,
	KindInvalidCredential: CategoryProvider,
	KindContextTooLong:    CategoryProvider,
	KindBadRequest:        CategoryProvider,
	KindUnknown:           CategoryProvider,
}

// UserText returns the fixed user-facing text for a kind.
func UserText(kind ErrorKind) string {
	if text, ok := userText[kind]; ok {
		return text
	}
	return genericProviderText
}

// Error is a classified, user-renderable failure. Message is always the fixed
// text for Kind; Detail carries diagnostic context that must only be logged.
type Error struct {
	Kind     ErrorKind     `json:"kind"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`

	// Detail is server-side diagnostic text. It is never serialized.
	Detail string `json:"-"`

	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// NewError creates an error of the given kind with its fixed user text.
func NewError(kind ErrorKind) *Error {
	category, ok := kindCategory[kind]
	if !ok {
		category = CategoryProvider
	}
	return &Error{
		Kind:     kind,
		Category: category,
		Message:  UserText(kind),
	}
}

// Error implements the error interface. It never includes Detail.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches server-side diagnostic text.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// HTTPStatusCode returns the suggested HTTP status code for this error.
func (e *Error) HTTPStatusCode() int {
	switch e.Kind {
	case KindTenantDisabled, KindNoKeyConfigured:
		return http.StatusForbidden
	case KindTokensExhausted:
		return http.StatusPaymentRequired
	case KindNotFound, KindAccessDenied:
		// AccessDenied renders like NotFound.
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindRateLimited, KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindContextTooLong, KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// Convenience constructors

// ErrTenantDisabled creates a tenant-disabled access denial.
func ErrTenantDisabled() *Error { return NewError(KindTenantDisabled) }

// ErrNoKeyConfigured creates a no-key access denial.
func ErrNoKeyConfigured() *Error { return NewError(KindNoKeyConfigured) }

// ErrTokensExhausted creates a tokens-exhausted access denial.
func ErrTokensExhausted() *Error { return NewError(KindTokensExhausted) }

// ErrConversationNotFound creates a session not-found error.
func ErrConversationNotFound() *Error { return NewError(KindNotFound) }

// ErrConversationAccessDenied creates a session access-denied error.
func ErrConversationAccessDenied() *Error { return NewError(KindAccessDenied) }

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	de, ok := AsError(err)
	return ok && de.Kind == kind
}
