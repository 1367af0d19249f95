package main

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/PaulBabatuyi/realtime-chat/internal/data"
	"github.com/PaulBabatuyi/realtime-chat/internal/middleware"
)

var (
	errUnauthorized = errors.New("unauthorized")
	errForbidden    = errors.New("forbidden")
)

// apiError pairs a sentinel, which decides the status code, with the message
// shown to the client.
type apiError struct {
	kind error
	msg  string
}

func (e *apiError) Error() string { return e.msg }
func (e *apiError) Unwrap() error { return e.kind }

func newAPIError(kind error, msg string) error {
	return &apiError{kind: kind, msg: msg}
}

// writeError maps err onto a status code. Unexpected errors are logged and
// answered with a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "Internal server error. Please try again later."
	switch {
	case errors.Is(err, data.ErrInvalidInput):
		status, msg = http.StatusBadRequest, "Invalid request."
	case errors.Is(err, errUnauthorized):
		status, msg = http.StatusUnauthorized, "Access denied. No token provided."
	case errors.Is(err, errForbidden):
		status, msg = http.StatusForbidden, "Forbidden."
	case errors.Is(err, data.ErrNotFound):
		status, msg = http.StatusNotFound, "Not found."
	case errors.Is(err, data.ErrUserExists):
		status, msg = http.StatusConflict, "Username already exists."
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		msg = apiErr.msg
	}
	middleware.WriteError(w, status, msg)
}
