package handler

import (
	"errors"
	"net/http"

	"github.com/mstgnz/gopos/infra/response"
	"github.com/mstgnz/gopos/infra/store"
	"github.com/mstgnz/gopos/provider"
	"github.com/mstgnz/gopos/provider/threed"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var verr *provider.ValidationError
	var terr *provider.TransportError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrUnknownGateway),
		errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, threed.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrSecurityRejected):
		return http.StatusForbidden
	case errors.Is(err, provider.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, provider.ErrUnsupportedTransactionType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, provider.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.As(err, &terr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, message string, err error) {
	response.Error(w, statusFor(err), message, err)
}
