package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dipteshhh/learnease-backend/internal/http/response"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/generr"
	"github.com/dipteshhh/learnease-backend/internal/platform/apierr"
)

// toAPIError maps pipeline errors onto HTTP statuses. retryAfter is advertised on ALREADY_PROCESSING.
func toAPIError(err error, retryAfter int) *apierr.Error {
	if ae, ok := apierr.As(err); ok {
		return ae
	}
	var be *generr.BusinessError
	if errors.As(err, &be) {
		status := http.StatusUnprocessableEntity
		if be.Code == generr.CodeDocumentNotFound {
			status = http.StatusNotFound
		}
		return apierr.New(status, be.Code, errors.New(be.Message))
	}
	var se *generr.StateError
	if errors.As(err, &se) {
		out := apierr.New(http.StatusConflict, se.Code, se)
		if se.Code == generr.CodeAlreadyProcessing {
			out.RetryAfterSeconds = retryAfter
		}
		return out
	}
	var ue *generr.UnavailableError
	if errors.As(err, &ue) {
		out := apierr.New(http.StatusServiceUnavailable, ue.Code, errors.New(generr.UserMessage(ue.Code)))
		if ms := ue.RetryAfterMs(); ms > 0 {
			out.RetryAfterSeconds = int((ms + 999) / 1000)
		}
		return out
	}
	return apierr.New(http.StatusInternalServerError, "internal_error", errors.New("internal server error"))
}

func respondErr(c *gin.Context, err error, retryAfter int) {
	response.RespondAPIError(c, toAPIError(err, retryAfter))
}
