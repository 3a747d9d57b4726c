package errorhandler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/pasale/pasale-api/internal/ledger"
	"github.com/pasale/pasale-api/internal/pkg/lock"
	"github.com/pasale/pasale-api/internal/pkg/response"
)

// HandleError maps a service error onto the response envelope. Expected
// domain failures are logged at warn, everything else at error.
func HandleError(ctx context.Context, w http.ResponseWriter, err error) {
	var verr ledger.ValidationError
	var serr ledger.StoreError

	switch {
	case errors.As(err, &verr):
		logWarn(ctx, "VALIDATION_ERROR", err)
		response.ValidationError(w, map[string]string{verr.Field: verr.Message})
	case errors.Is(err, ledger.ErrInvalidInput):
		logWarn(ctx, "BAD_REQUEST", err)
		response.BadRequest(w, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		logWarn(ctx, "NOT_FOUND", err)
		response.NotFound(w, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		logWarn(ctx, "INSUFFICIENT_BALANCE", err)
		response.Error(w, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", err.Error())
	case errors.Is(err, ledger.ErrAlreadyReversed), errors.Is(err, ledger.ErrConflict):
		logWarn(ctx, "CONFLICT", err)
		response.Conflict(w, err.Error())
	case errors.Is(err, lock.ErrNotObtained):
		logWarn(ctx, "BUSY", err)
		response.ServiceUnavailable(w, "Ledger is busy, retry shortly")
	case errors.As(err, &serr):
		LogDatabaseError(ctx, serr.Op, serr.Err)
		response.InternalError(w)
	default:
		log.Error().
			Str("request_id", middleware.GetReqID(ctx)).
			Err(err).
			Msg("Request error")
		response.InternalError(w)
	}
}

// LogValidationError logs validation errors with details
func LogValidationError(ctx context.Context, fieldErrors map[string]string) {
	log.Warn().
		Str("request_id", middleware.GetReqID(ctx)).
		Interface("validation_errors", fieldErrors).
		Msg("Validation error")
}

// LogDatabaseError logs database errors with context
func LogDatabaseError(ctx context.Context, operation string, err error) {
	log.Error().
		Str("request_id", middleware.GetReqID(ctx)).
		Str("operation", operation).
		Err(err).
		Msg("Database error")
}

func logWarn(ctx context.Context, code string, err error) {
	log.Warn().
		Str("request_id", middleware.GetReqID(ctx)).
		Str("error_code", code).
		Err(err).
		Msg("Request rejected")
}
