package rpc

import (
	"errors"
	"net/http"

	"shadowpay/core"
	"shadowpay/core/types"
	"shadowpay/native/payrequest"
)

// statusFor maps a ledger failure onto an HTTP status.
func statusFor(err error) int {
	switch payrequest.Classify(err) {
	case payrequest.KindNotFound:
		return http.StatusNotFound
	case payrequest.KindPrecondition:
		return http.StatusConflict
	case payrequest.KindAuthorization:
		return http.StatusForbidden
	case payrequest.KindInput:
		return http.StatusUnprocessableEntity
	}
	switch {
	case errors.Is(err, core.ErrNonceMismatch):
		return http.StatusConflict
	case errors.Is(err, types.ErrInvalidSignature), errors.Is(err, types.ErrMissingSignature):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrUnknownTxType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
