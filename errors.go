package vault

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents an API error.
type Error struct {
	StatusCode int
	Message    string
	Op         string // Operation that failed (e.g., "GetFolder")
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

func hasStatus(err error, code int) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == code
	}
	return false
}

// IsNotFound reports whether err indicates a 404 response.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsUnauthorized reports whether err indicates a 401 response. Those belong
// to the authentication layer and are not ordinary request failures.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}
