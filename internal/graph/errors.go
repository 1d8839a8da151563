// Package graph provides an HTTP client for the Microsoft Graph API: item
// lookup by path, folder/move/delete calls, and resumable upload sessions
// with chunked PUTs.
package graph

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, graph.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrConflict     = errors.New("graph: conflict")
	ErrGone         = errors.New("graph: resource gone")
	ErrThrottled    = errors.New("graph: throttled")
	ErrLocked       = errors.New("graph: resource locked")
	ErrServerError  = errors.New("graph: server error")

	// ErrUnexpectedStatus covers non-2xx statuses without a dedicated sentinel.
	ErrUnexpectedStatus = errors.New("graph: unexpected status")

	// ErrTransport marks network-level failures (DNS, reset, TLS). The
	// original net/http error is joined alongside it.
	ErrTransport = errors.New("graph: transport failure")
)

// GraphError is the provider error: any non-success HTTP response. It wraps
// a sentinel for errors.Is and keeps the response body (and, for chunk
// uploads, the request headers that were sent) for operator diagnostics.
type GraphError struct {
	StatusCode    int
	RequestID     string
	Message       string
	RequestHeader http.Header // set for chunk uploads only
	Err           error       // sentinel, for errors.Is()
}

func (e *GraphError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// newGraphError drains and closes resp.Body and builds a GraphError from it.
func newGraphError(resp *http.Response, reqHeader http.Header) *GraphError {
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		body = []byte("(failed to read response body)")
	}

	return &GraphError{
		StatusCode:    resp.StatusCode,
		RequestID:     resp.Header.Get("request-id"),
		Message:       string(body),
		RequestHeader: reqHeader,
		Err:           classifyStatus(resp.StatusCode),
	}
}

// classifyStatus maps an HTTP error status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusLocked:
		return ErrLocked
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrUnexpectedStatus
	}
}
