package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes callers branch on. ErrAuth aborts a
// whole run; ErrNotFound skips the item; ErrForbidden and ErrServerFault are
// restriction signals, not failures.
var (
	ErrAuth        = errors.New("authentication failed")
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrServerFault = errors.New("server fault")
)

// APIError is a non-200 response from a platform API. Payload holds the
// decoded error body when the platform sent JSON (some endpoints return
// partial metadata even on 403/500).
type APIError struct {
	StatusCode int
	Message    string
	Payload    map[string]any
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api: HTTP %d", e.StatusCode)
}

// Unwrap maps the status code onto the sentinel taxonomy so callers can use
// errors.Is without inspecting codes.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == 404:
		return ErrNotFound
	case e.StatusCode == 403:
		return ErrForbidden
	case e.StatusCode >= 500:
		return ErrServerFault
	default:
		return nil
	}
}
