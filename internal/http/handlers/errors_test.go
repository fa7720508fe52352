package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/generr"
	"github.com/dipteshhh/learnease-backend/internal/platform/apierr"
)

func TestToAPIError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter int
	}{
		{"not found", generr.NewBusiness(generr.CodeDocumentNotFound, "document not found"), http.StatusNotFound, generr.CodeDocumentNotFound, 0},
		{"business rule", fmt.Errorf("begin: %w", generr.NewBusiness(generr.CodeQuizNotAvailable, "no quiz")), http.StatusUnprocessableEntity, generr.CodeQuizNotAvailable, 0},
		{"already processing", &generr.StateError{Code: generr.CodeAlreadyProcessing, Flow: documents.FlowQuiz, Status: documents.StatusProcessing}, http.StatusConflict, generr.CodeAlreadyProcessing, 7},
		{"illegal retry", &generr.StateError{Code: generr.CodeIllegalRetryState, Flow: documents.FlowQuiz, Status: documents.StatusIdle}, http.StatusConflict, generr.CodeIllegalRetryState, 0},
		{"unavailable", &generr.UnavailableError{Code: generr.CodeGenerationFailed, RetryAfter: 1500 * time.Millisecond}, http.StatusServiceUnavailable, generr.CodeGenerationFailed, 2},
		{"api error", apierr.New(http.StatusBadRequest, "invalid_document", errors.New("bad")), http.StatusBadRequest, "invalid_document", 0},
		{"unknown", errors.New("db exploded"), http.StatusInternalServerError, "internal_error", 0},
	}
	for _, tc := range cases {
		got := toAPIError(tc.err, 7)
		if got.Status != tc.status || got.Code != tc.code || got.RetryAfterSeconds != tc.retryAfter {
			t.Fatalf("%s: got status=%d code=%s retry=%d", tc.name, got.Status, got.Code, got.RetryAfterSeconds)
		}
	}
	if got := toAPIError(errors.New("select * from secrets"), 0); got.Err.Error() != "internal server error" {
		t.Fatalf("internal errors must not leak, got %q", got.Err.Error())
	}
}
