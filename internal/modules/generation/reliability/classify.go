// Package reliability runs generation attempts against an unreliable provider.
package reliability

import (
	"context"
	"errors"

	"github.com/dipteshhh/learnease-backend/internal/modules/generation/generr"
	"github.com/dipteshhh/learnease-backend/internal/pkg/httpx"
	"github.com/dipteshhh/learnease-backend/internal/platform/openai"
)

// Bucket decides what the attempt loop does after a failure.
type Bucket string

const (
	Transient  Bucket = "transient"
	Repairable Bucket = "repairable"
	Terminal   Bucket = "terminal"
)

var repairableCodes = map[string]bool{
	generr.CodeSchemaValidationFailed:     true,
	generr.CodeQuoteNotFound:              true,
	generr.CodeCitationExcerptNotFound:    true,
	generr.CodeCitationOutOfRange:         true,
	generr.CodeAcademicIntegrityViolation: true,
}

// Classify is pure: the same error always lands in the same bucket.
// Anything it does not recognise is terminal.
func Classify(err error) Bucket {
	if err == nil {
		return Terminal
	}

	var ve *generr.ValidationError
	if errors.As(err, &ve) {
		if repairableCodes[ve.Code] {
			return Repairable
		}
		return Terminal
	}
	var be *generr.BusinessError
	if errors.As(err, &be) {
		return Terminal
	}
	var se *generr.StateError
	if errors.As(err, &se) {
		return Terminal
	}
	var ue *generr.UnavailableError
	if errors.As(err, &ue) {
		return Transient
	}

	var connErr *openai.ConnectionError
	var timeoutErr *openai.TimeoutError
	var rateErr *openai.RateLimitError
	var malformedErr *openai.MalformedResponseError
	if errors.As(err, &connErr) || errors.As(err, &timeoutErr) || errors.As(err, &rateErr) || errors.As(err, &malformedErr) {
		return Transient
	}

	if code := httpx.StatusCode(err); code > 0 {
		if httpx.IsRetryableHTTPStatus(code) {
			return Transient
		}
		return Terminal
	}

	if errors.Is(err, context.Canceled) {
		return Terminal
	}
	if errors.Is(err, context.DeadlineExceeded) || httpx.IsNetTimeout(err) {
		return Transient
	}
	return Terminal
}
