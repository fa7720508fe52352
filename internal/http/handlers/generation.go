package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	"github.com/dipteshhh/learnease-backend/internal/http/response"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation"
	"github.com/dipteshhh/learnease-backend/internal/platform/ctxutil"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

var errInvalidLimit = errors.New("limit must be between 1 and 200")

type GenerationHandler struct {
	log        *logger.Logger
	gen        *generation.Orchestrator
	retryAfter int
}

// NewGenerationHandler advertises retryAfterSeconds on ALREADY_PROCESSING responses.
func NewGenerationHandler(log *logger.Logger, gen *generation.Orchestrator, retryAfterSeconds int) *GenerationHandler {
	return &GenerationHandler{
		log:        log.With("handler", "GenerationHandler"),
		gen:        gen,
		retryAfter: retryAfterSeconds,
	}
}

// artifactKey is the response field carrying a flow's artifact: study_guide or quiz.
func artifactKey(flow documents.Flow) string {
	return strings.ToLower(string(flow))
}

// POST /api/documents/:id/study-guide
// POST /api/documents/:id/quiz
func (h *GenerationHandler) Create(flow documents.Flow) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.begin(c, flow, false)
	}
}

// POST /api/documents/:id/study-guide/retry
// POST /api/documents/:id/quiz/retry
func (h *GenerationHandler) Retry(flow documents.Flow) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.begin(c, flow, true)
	}
}

func (h *GenerationHandler) begin(c *gin.Context, flow documents.Flow, retry bool) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	ctx := c.Request.Context()
	userID := ctxutil.UserID(ctx)

	var res generation.Response
	if retry {
		res, err = h.gen.Retry(ctx, userID, documentID, flow)
	} else {
		res, err = h.gen.Create(ctx, userID, documentID, flow)
	}
	if err != nil {
		h.respondErr(c, err, documentID, flow)
		return
	}
	if res.Cached {
		response.RespondOK(c, gin.H{
			"status":          res.Status,
			"cached":          true,
			artifactKey(flow): res.Artifact,
		})
		return
	}
	body := gin.H{"status": res.Status}
	if res.Retry {
		body["retry"] = true
	}
	response.RespondStatus(c, http.StatusAccepted, body)
}

type statusResponse struct {
	DocumentID   uuid.UUID            `json:"document_id"`
	Flow         documents.Flow       `json:"flow"`
	Status       documents.FlowStatus `json:"status"`
	ErrorCode    string               `json:"error_code,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	Attempts     int                  `json:"attempts"`
	UpdatedAt    *time.Time           `json:"updated_at,omitempty"`
}

// GET /api/documents/:id/study-guide
// GET /api/documents/:id/quiz
func (h *GenerationHandler) Status(flow documents.Flow) gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
			return
		}
		ctx := c.Request.Context()
		v, err := h.gen.Status(ctx, ctxutil.UserID(ctx), documentID, flow)
		if err != nil {
			h.respondErr(c, err, documentID, flow)
			return
		}
		body := statusResponse{
			DocumentID:   v.DocumentID,
			Flow:         v.Flow,
			Status:       v.Status,
			ErrorCode:    v.ErrorCode,
			ErrorMessage: v.ErrorMessage,
			Attempts:     v.Attempts,
			UpdatedAt:    v.UpdatedAt,
		}
		if v.Artifact == nil {
			response.RespondOK(c, body)
			return
		}
		response.RespondOK(c, withArtifact(body, artifactKey(flow), v.Artifact))
	}
}

// withArtifact flattens the artifact next to the status fields.
func withArtifact(body statusResponse, key string, artifact json.RawMessage) gin.H {
	out := gin.H{
		"document_id": body.DocumentID,
		"flow":        body.Flow,
		"status":      body.Status,
		"attempts":    body.Attempts,
		key:           artifact,
	}
	if body.UpdatedAt != nil {
		out["updated_at"] = body.UpdatedAt
	}
	return out
}

func (h *GenerationHandler) respondErr(c *gin.Context, err error, documentID uuid.UUID, flow documents.Flow) {
	ae := toAPIError(err, h.retryAfter)
	if ae.Status >= http.StatusInternalServerError {
		h.log.Error("generation request failed", "document_id", documentID, "flow", flow, "error", err)
	}
	response.RespondAPIError(c, ae)
}
