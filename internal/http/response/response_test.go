package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dipteshhh/learnease-backend/internal/platform/apierr"
)

func TestRespondAPIError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	ae := apierr.New(http.StatusConflict, "ALREADY_PROCESSING", errors.New("generation already running"))
	ae.RetryAfterSeconds = 5
	RespondAPIError(c, ae)

	if rec.Code != http.StatusConflict || rec.Header().Get("Retry-After") != "5" {
		t.Fatalf("unexpected response: %d %v", rec.Code, rec.Header())
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != "ALREADY_PROCESSING" || env.Error.Message != "generation already running" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if got := ErrorCode(c); got != "ALREADY_PROCESSING" {
		t.Fatalf("error code not recorded on context: %q", got)
	}
}

func TestRespondAPIErrorHidesUnknownErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	RespondAPIError(c, errors.New("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var env ErrorEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Error.Message != "internal server error" {
		t.Fatalf("internal error leaked: %q", env.Error.Message)
	}
}
