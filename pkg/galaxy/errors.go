package galaxy

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidAddress is returned when a server address cannot be used as an endpoint.
var ErrInvalidAddress = errors.New("invalid galaxy server address")

// APIError is a non-2xx response from the server.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("galaxy: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}

	return fmt.Sprintf("galaxy: %s %s returned %d", e.Method, e.Path, e.StatusCode)
}

// IsUnauthorized reports whether the server rejected the API key.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// IsNotFound reports whether the server answered 404.
func IsNotFound(err error) bool {
	var apiErr *APIError

	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
