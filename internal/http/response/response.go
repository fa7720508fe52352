package response

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dipteshhh/learnease-backend/internal/platform/apierr"
)

var errInternal = errors.New("internal server error")

const errorCodeKey = "error_code"

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	c.Set(errorCodeKey, code)
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError writes err as an envelope. Errors that are not *apierr.Error become a generic 500.
func RespondAPIError(c *gin.Context, err error) {
	ae, ok := apierr.As(err)
	if !ok {
		RespondError(c, http.StatusInternalServerError, "internal_error", errInternal)
		return
	}
	if ae.RetryAfterSeconds > 0 {
		c.Header("Retry-After", strconv.Itoa(ae.RetryAfterSeconds))
	}
	status := ae.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	RespondError(c, status, ae.Code, ae.Err)
}

// ErrorCode returns the code of the error envelope written for c, if any.
func ErrorCode(c *gin.Context) string {
	return c.GetString(errorCodeKey)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondStatus(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}
