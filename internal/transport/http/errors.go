package http

import (
	"errors"
	"net/http"

	"github.com/cwrk-planet/roomcast/internal/domain"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRoomName),
		errors.Is(err, domain.ErrInvalidMessage),
		errors.Is(err, domain.ErrInvalidDisplayName),
		errors.Is(err, domain.ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownConnection):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
