package xpost

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/blacktop/crosspub/internal/transport"
)

// MissingEnvError is returned when required configuration is missing.
type MissingEnvError struct {
	Provider  string
	Variables []string
}

func (e MissingEnvError) Error() string {
	if len(e.Variables) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Provider)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Provider, strings.Join(e.Variables, ", "))
}

// ValidationError captures provider-specific validation issues.
type ValidationError struct {
	Provider string
	Reason   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Provider, e.Reason)
}

// APIError is the uniform failure envelope returned by every adapter.
type APIError struct {
	Status int
	Label  string
	Detail string
}

func (e *APIError) Error() string {
	if e.Label == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s (%d): %s", e.Label, e.Status, e.Detail)
}

// FromResponse builds an upstream-rejection error. A 2xx response that still
// lacks the expected success field is reported as 502.
func FromResponse(label string, resp *transport.Response) *APIError {
	status := resp.StatusCode
	if status < 400 {
		status = http.StatusBadGateway
	}
	return &APIError{Status: status, Label: label, Detail: resp.ErrorDetail()}
}

// BusinessError reports an account-state precondition the caller must fix.
func BusinessError(msg string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Detail: msg}
}

// ProcessingError reports asynchronous media processing that failed or
// never finished.
func ProcessingError(label, detail string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Label: label, Detail: detail}
}
