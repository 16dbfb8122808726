package api

import (
	"context"
	"errors"

	"TradeSync/internal/domain/fault"
	"TradeSync/internal/usecase"
	xhttp "TradeSync/pkg/http"
)

// toAppError maps sync-layer failures onto HTTP errors. Ambiguous outcomes
// are handled by the caller since they are not failures.
func toAppError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, usecase.ErrInvalidRequest):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, fault.ErrAlreadyInFlight):
		return xhttp.ConflictError("ERR_ALREADY_IN_FLIGHT", "an identical action is already in flight").WithError(err)
	case errors.Is(err, fault.ErrRejected):
		return xhttp.UnprocessableError("ERR_REJECTED", fault.Reason(err)).
			WithParam("status", fault.Status(err)).
			WithError(err)
	case errors.Is(err, fault.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return xhttp.GatewayTimeoutError("ERR_TIMEOUT", "backend did not answer in time").WithError(err)
	case errors.Is(err, fault.ErrNetwork):
		return xhttp.BadGatewayError("ERR_NETWORK", "backend unreachable").WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
