package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind classifies a gateway failure. Transport errors are normalized into
// this taxonomy at the gateway boundary; callers never inspect raw transport
// errors.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthorized       Kind = "unauthorized"
	KindNotFound           Kind = "not_found"
	KindBadRequest         Kind = "bad_request"
	KindRateLimited        Kind = "rate_limited"
	KindTimeout            Kind = "timeout"
	KindNetwork            Kind = "network"
	KindServer             Kind = "server"
	KindRefreshFailed      Kind = "refresh_failed"
)

// Error is a normalized identity-service failure with a human-readable
// message and, where applicable, the upstream HTTP status.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf extracts the failure kind from err, or "" if err is not a
// gateway error.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// Retryable reports whether the failure is transient: server errors,
// timeouts and connectivity failures. Client errors (4xx) are terminal.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindServer, KindTimeout, KindNetwork:
		return true
	}
	return false
}

// statusError builds an Error for a non-2xx response, preferring the
// upstream body message and falling back to a message keyed to the
// status class.
func statusError(status int, bodyMessage string) *Error {
	e := &Error{Status: status, Message: bodyMessage}
	switch {
	case status == 401:
		e.Kind = KindUnauthorized
		if e.Message == "" {
			e.Message = "invalid credentials or session"
		}
	case status == 404:
		e.Kind = KindNotFound
		if e.Message == "" {
			e.Message = "requested resource not found"
		}
	case status == 408:
		e.Kind = KindTimeout
		if e.Message == "" {
			e.Message = "request timed out"
		}
	case status == 429:
		e.Kind = KindRateLimited
		if e.Message == "" {
			e.Message = "too many requests, try again later"
		}
	case status >= 400 && status < 500:
		e.Kind = KindBadRequest
		if e.Message == "" {
			e.Message = "bad request"
		}
	default:
		e.Kind = KindServer
		if e.Message == "" {
			e.Message = "identity service error"
		}
	}
	return e
}

// transportError normalizes a failed round trip. A timed-out call is
// classified separately from a connectivity failure, but both are retryable.
func transportError(err error) *Error {
	var uerr *url.Error
	timedOut := errors.Is(err, context.DeadlineExceeded)
	if errors.As(err, &uerr) && uerr.Timeout() {
		timedOut = true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		timedOut = true
	}
	if timedOut {
		return &Error{Kind: KindTimeout, Status: 408, Message: "request timed out"}
	}
	return &Error{Kind: KindNetwork, Message: "cannot reach identity service: check network connectivity"}
}
