package provider

import (
	"fmt"
	"strings"
)

// Error is a provider failure with the metadata each backend reports.
// Backends fill what they know; the Classifier reads all of it.
type Error struct {
	// Provider is the backend type (e.g., "openai", "gemini")
	Provider string

	// StatusCode is the HTTP status of the upstream response, if any
	StatusCode int

	// Type is the provider's error type or status name
	// (e.g., "invalid_request_error", "RESOURCE_EXHAUSTED")
	Type string

	// Code is the provider's machine-readable error code
	// (e.g., "insufficient_quota", "context_length_exceeded")
	Code string

	// Message is the provider's human-readable message
	Message string

	// Timeout is set when the backend gave up waiting
	Timeout bool

	// Err is the underlying transport error, if any
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		b.WriteString(" ")
		b.WriteString(e.Code)
	} else if e.Type != "" {
		b.WriteString(" ")
		b.WriteString(e.Type)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}
