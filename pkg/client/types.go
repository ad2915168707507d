package client

import (
	"fmt"
	"net/http"
	"time"
)

// ProcessStatus is the liveness record returned by the status endpoints.
type ProcessStatus struct {
	ProcessID         string    `json:"process_id"`
	LastHeartbeat     time.Time `json:"last_heartbeat"`
	ExpirationSeconds int       `json:"process_expiration_in_seconds"`
	KeepAlive         bool      `json:"keep_alive"`
	IsAlive           bool      `json:"is_alive"`
}

// CreateResponse is returned by the process creation endpoints.
type CreateResponse struct {
	ProcessID string `json:"process_id"`
	Message   string `json:"message"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// NotFound reports whether the server answered 404.
func (e *APIError) NotFound() bool { return e.StatusCode == http.StatusNotFound }
