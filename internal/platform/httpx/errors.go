// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// RespondError maps ledger errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var stock *shared.InsufficientStockError
	switch {
	case errors.As(err, &stock):
		JSON(w, http.StatusConflict, ProblemDetail{
			Title:     "Insufficient Stock",
			Status:    http.StatusConflict,
			Detail:    err.Error(),
			Shortages: stock.Shortages,
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusBadRequest, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, shared.ErrRateLimited):
		Problem(w, http.StatusTooManyRequests, "Too Many Attempts", err.Error())
	case errors.Is(err, shared.ErrBusy):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusServiceUnavailable, "Busy", "database busy, retry")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
