package extraction

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for provider failures
const (
	ErrCodeMissingCredential = "MISSING_CREDENTIAL"
	ErrCodeRequestFailed     = "REQUEST_FAILED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeLoginWall         = "LOGIN_WALL"
	ErrCodeContainerMissing  = "CONTAINER_NOT_FOUND"
	ErrCodeNoItems           = "NO_ITEMS"
	ErrCodeInvalidResponse   = "INVALID_RESPONSE"
)

var (
	// ErrMissingCredential is returned when the hosted API key is not configured
	ErrMissingCredential = errors.New("hosted extraction API key not configured")

	// ErrLoginWall is returned when the page asks for a password
	ErrLoginWall = errors.New("page is behind a login wall")

	// ErrNoItems is returned when the container exists but holds no text items
	ErrNoItems = errors.New("no items found")

	// ErrContainerNotFound is returned when nothing matches the selector
	ErrContainerNotFound = errors.New("item container not found")

	// ErrInvalidSelector is returned for selectors outside the supported grammar
	ErrInvalidSelector = errors.New("invalid item selector")
)

// ProviderError is a failure of one provider
type ProviderError struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Cause    error  `json:"-"`
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Message)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new ProviderError
func NewProviderError(provider, code, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// ExtractionError is returned when every provider failed
type ExtractionError struct {
	URL      string
	Attempts []*ProviderError
}

func (e *ExtractionError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return fmt.Sprintf("extraction failed for %s: %s", e.URL, strings.Join(parts, "; "))
}

// Unwrap exposes every provider failure to errors.Is and errors.As
func (e *ExtractionError) Unwrap() []error {
	out := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, a)
	}
	return out
}

// AsProviderError converts any error into a ProviderError for the named
// provider, keeping an existing one untouched.
func AsProviderError(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	code := ErrCodeRequestFailed
	switch {
	case errors.Is(err, ErrMissingCredential):
		code = ErrCodeMissingCredential
	case errors.Is(err, ErrLoginWall):
		code = ErrCodeLoginWall
	case errors.Is(err, ErrNoItems):
		code = ErrCodeNoItems
	case errors.Is(err, ErrContainerNotFound):
		code = ErrCodeContainerMissing
	}
	return NewProviderError(provider, code, "extraction failed", err)
}
