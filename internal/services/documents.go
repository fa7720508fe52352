package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dipteshhh/learnease-backend/internal/data/repos"
	types "github.com/dipteshhh/learnease-backend/internal/domain"
	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/flowstate"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/generr"
	"github.com/dipteshhh/learnease-backend/internal/pkg/dbctx"
	"github.com/dipteshhh/learnease-backend/internal/platform/apierr"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

// CreateDocumentInput is a document whose text was already extracted by the ingestion service.
type CreateDocumentInput struct {
	OriginalFilename string `json:"original_filename" binding:"required,max=255"`
	FileType         string `json:"file_type" binding:"required,oneof=PDF DOCX"`
	DocumentType     string `json:"document_type" binding:"required,oneof=LECTURE HOMEWORK UNSUPPORTED"`
	ExtractedText    string `json:"extracted_text" binding:"required"`
	PageCount        int    `json:"page_count" binding:"gte=0"`
	ParagraphCount   int    `json:"paragraph_count" binding:"gte=0"`
}

type DocumentService interface {
	Create(ctx context.Context, userID uuid.UUID, in CreateDocumentInput) (*types.Document, error)
	Get(ctx context.Context, userID, documentID uuid.UUID) (*types.Document, error)
	List(ctx context.Context, userID uuid.UUID, limit int) ([]*types.Document, error)
	Delete(ctx context.Context, userID, documentID uuid.UUID) error
}

type documentService struct {
	log   *logger.Logger
	repo  repos.DocumentRepo
	flows *flowstate.Machine
}

func NewDocumentService(baseLog *logger.Logger, repo repos.DocumentRepo, flows *flowstate.Machine) DocumentService {
	return &documentService{
		log:   baseLog.With("service", "DocumentService"),
		repo:  repo,
		flows: flows,
	}
}

func (s *documentService) Create(ctx context.Context, userID uuid.UUID, in CreateDocumentInput) (*types.Document, error) {
	if userID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", errors.New("missing user"))
	}
	if err := checkLocators(in); err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_document", err)
	}
	doc := &types.Document{
		OwnerUserID:      userID,
		OriginalFilename: strings.TrimSpace(in.OriginalFilename),
		FileType:         in.FileType,
		DocumentType:     in.DocumentType,
		ExtractedText:    in.ExtractedText,
		PageCount:        in.PageCount,
		ParagraphCount:   in.ParagraphCount,
	}
	// Page counts mean nothing for DOCX and paragraph counts nothing for PDF.
	if doc.FileType == documents.FileTypeDOCX {
		doc.PageCount = 0
	} else {
		doc.ParagraphCount = 0
	}
	created, err := s.repo.Create(dbctx.Context{Ctx: ctx}, doc)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	s.log.Info("document registered",
		"document_id", created.ID,
		"user_id", userID,
		"file_type", created.FileType,
		"document_type", created.DocumentType,
		"locators", created.LocatorCount(),
	)
	return created, nil
}

func checkLocators(in CreateDocumentInput) error {
	if strings.TrimSpace(in.ExtractedText) == "" {
		return errors.New("extracted_text is empty")
	}
	switch in.FileType {
	case documents.FileTypePDF:
		if in.PageCount < 1 {
			return errors.New("page_count must be at least 1 for PDF documents")
		}
	case documents.FileTypeDOCX:
		if in.ParagraphCount < 1 {
			return errors.New("paragraph_count must be at least 1 for DOCX documents")
		}
	default:
		return fmt.Errorf("unsupported file_type %q", in.FileType)
	}
	return nil
}

// Get returns the caller's document with any orphaned flow reconciled.
func (s *documentService) Get(ctx context.Context, userID, documentID uuid.UUID) (*types.Document, error) {
	doc, err := s.repo.GetByOwner(dbctx.Context{Ctx: ctx}, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return nil, generr.NewBusiness(generr.CodeDocumentNotFound, "document not found")
	}
	return s.reconcile(ctx, doc)
}

// List returns the caller's newest documents without their extracted text.
func (s *documentService) List(ctx context.Context, userID uuid.UUID, limit int) ([]*types.Document, error) {
	rows, err := s.repo.ListByOwner(dbctx.Context{Ctx: ctx}, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	for i, doc := range rows {
		fresh, err := s.reconcile(ctx, doc)
		if err != nil {
			return nil, err
		}
		if fresh != doc {
			fresh.ExtractedText = ""
			rows[i] = fresh
		}
	}
	return rows, nil
}

func (s *documentService) reconcile(ctx context.Context, doc *types.Document) (*types.Document, error) {
	var err error
	for _, flow := range documents.AllFlows {
		if doc, _, err = s.flows.Observe(ctx, doc, flow); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (s *documentService) Delete(ctx context.Context, userID, documentID uuid.UUID) error {
	ok, err := s.repo.SoftDelete(dbctx.Context{Ctx: ctx}, userID, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if !ok {
		return generr.NewBusiness(generr.CodeDocumentNotFound, "document not found")
	}
	s.log.Info("document deleted", "document_id", documentID, "user_id", userID)
	return nil
}
