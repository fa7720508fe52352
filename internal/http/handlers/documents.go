package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/dipteshhh/learnease-backend/internal/domain"
	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	"github.com/dipteshhh/learnease-backend/internal/http/response"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation"
	"github.com/dipteshhh/learnease-backend/internal/platform/ctxutil"
	"github.com/dipteshhh/learnease-backend/internal/services"
)

type DocumentHandler struct {
	docs services.DocumentService
}

func NewDocumentHandler(docs services.DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

type flowSummary struct {
	Status       documents.FlowStatus `json:"status"`
	ErrorCode    string               `json:"error_code,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	Attempts     int                  `json:"attempts"`
	UpdatedAt    *time.Time           `json:"updated_at,omitempty"`
}

type documentView struct {
	ID               uuid.UUID   `json:"id"`
	OriginalFilename string      `json:"original_filename"`
	FileType         string      `json:"file_type"`
	DocumentType     string      `json:"document_type"`
	PageCount        int         `json:"page_count"`
	ParagraphCount   int         `json:"paragraph_count"`
	StudyGuide       flowSummary `json:"study_guide"`
	Quiz             flowSummary `json:"quiz"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func summarize(doc *types.Document, flow documents.Flow) flowSummary {
	v := generation.NewStatusView(doc.ID, doc.Flow(flow))
	return flowSummary{
		Status:       v.Status,
		ErrorCode:    v.ErrorCode,
		ErrorMessage: v.ErrorMessage,
		Attempts:     v.Attempts,
		UpdatedAt:    v.UpdatedAt,
	}
}

func viewDocument(doc *types.Document) documentView {
	return documentView{
		ID:               doc.ID,
		OriginalFilename: doc.OriginalFilename,
		FileType:         doc.FileType,
		DocumentType:     doc.DocumentType,
		PageCount:        doc.PageCount,
		ParagraphCount:   doc.ParagraphCount,
		StudyGuide:       summarize(doc, documents.FlowStudyGuide),
		Quiz:             summarize(doc, documents.FlowQuiz),
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}

// POST /api/documents
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var in services.CreateDocumentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	doc, err := h.docs.Create(c.Request.Context(), ctxutil.UserID(c.Request.Context()), in)
	if err != nil {
		respondErr(c, err, 0)
		return
	}
	response.RespondStatus(c, http.StatusCreated, gin.H{"document": viewDocument(doc)})
}

// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", errInvalidLimit)
			return
		}
		limit = n
	}
	rows, err := h.docs.List(c.Request.Context(), ctxutil.UserID(c.Request.Context()), limit)
	if err != nil {
		respondErr(c, err, 0)
		return
	}
	out := make([]documentView, 0, len(rows))
	for _, doc := range rows {
		out = append(out, viewDocument(doc))
	}
	response.RespondOK(c, gin.H{"documents": out})
}

// GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	doc, err := h.docs.Get(c.Request.Context(), ctxutil.UserID(c.Request.Context()), documentID)
	if err != nil {
		respondErr(c, err, 0)
		return
	}
	response.RespondOK(c, gin.H{"document": viewDocument(doc)})
}

// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	if err := h.docs.Delete(c.Request.Context(), ctxutil.UserID(c.Request.Context()), documentID); err != nil {
		respondErr(c, err, 0)
		return
	}
	c.Status(http.StatusNoContent)
}
