package api

import (
	"errors"
	"net/http"

	"logalert/internal/domain"
	"logalert/internal/permanent"
	"logalert/internal/session"
)

// badRequest marks malformed client input.
type badRequest struct {
	err error
}

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

// statusFor maps domain and session errors onto HTTP status codes.
func statusFor(err error) int {
	var validation *session.ValidationError
	var input badRequest
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, session.ErrSuperseded), errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownNotification):
		return http.StatusNotFound
	case errors.As(err, &input), errors.Is(err, domain.ErrInvalidNotificationID), errors.Is(err, domain.ErrUnknownField):
		return http.StatusBadRequest
	case permanent.Is(err):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
