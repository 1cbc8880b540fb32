package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"commission-observer/src/helpers"
)

// -----------------------------------------------------------------------------

// statusForError maps the session error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	var (
		authErr       *helpers.AuthError
		notAuthorized *helpers.NotAuthorizedError
		timeout       *helpers.TimeoutError
		connErr       *helpers.ConnectionError
		notConnected  *helpers.NotConnectedError
		remote        *helpers.RemoteError
		protocol      *helpers.ProtocolError
	)
	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &notAuthorized), errors.As(err, &notConnected):
		return http.StatusServiceUnavailable
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &connErr), errors.As(err, &remote), errors.As(err, &protocol):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// -----------------------------------------------------------------------------

// parseDateParam accepts YYYY-MM-DD. An empty value is the zero time.
func parseDateParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", v)
}
