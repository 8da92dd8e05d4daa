package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go-mangadex-upload/internal/models"
)

// Custom Error Types
var (
	ErrRateLimited      = errors.New("API rate limit exceeded")
	ErrUnauthorized     = errors.New("API request unauthorized")
	ErrForbidden        = errors.New("API request forbidden")
	ErrNotFound         = errors.New("API resource not found")
	ErrBadRequest       = errors.New("API rejected the request")
	ErrServerError      = errors.New("API server error")
	ErrUnexpectedStatus = errors.New("API returned an unexpected status")
	ErrTransport        = errors.New("API request could not be sent")
	ErrDecode           = errors.New("API response could not be decoded")
)

// ErrorKind classifies a non-2xx response.
type ErrorKind int

const (
	KindUnrecognized ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindRateLimited
	KindServer
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	default:
		return "unrecognized"
	}
}

// KindForStatus maps an HTTP status code to its ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest:
		return KindBadRequest
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindUnrecognized
	}
}

// APIError is returned for every non-2xx response. It unwraps to the sentinel
// matching its Kind so callers can use errors.Is.
type APIError struct {
	Method string
	Path   string
	Status int
	Kind   ErrorKind
	Errors []models.ApiErrorDetail
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d (%s)", e.Method, e.Path, e.Status, e.Kind)
	if d := e.Detail(); d != "" {
		msg += ": " + d
	}
	return msg
}

// Detail joins the server supplied error details.
func (e *APIError) Detail() string {
	parts := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		switch {
		case d.Detail != "":
			parts = append(parts, d.Detail)
		case d.Title != "":
			parts = append(parts, d.Title)
		}
	}
	return strings.Join(parts, "; ")
}

func (e *APIError) Unwrap() error {
	switch e.Kind {
	case KindBadRequest:
		return ErrBadRequest
	case KindUnauthorized:
		return ErrUnauthorized
	case KindForbidden:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindRateLimited:
		return ErrRateLimited
	case KindServer:
		return ErrServerError
	default:
		return ErrUnexpectedStatus
	}
}

// IsAuthError reports whether err is a 401 or 403 from the platform.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// IsRateLimited reports whether err is a 429 from the platform.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

