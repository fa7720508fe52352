package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/dipteshhh/learnease-backend/internal/domain"
	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
)

// LectureText is the extracted text of the default three-page lecture PDF.
const LectureText = "Photosynthesis converts light energy into chemi-\ncal energy.\n\nThe Calvin cycle fixes carbon dioxide.\n\nChlorophyll absorbs mostly blue and red light."

type DocumentOption func(*types.Document)

func WithDocumentType(kind string) DocumentOption {
	return func(d *types.Document) { d.DocumentType = kind }
}

func WithDocx(paragraphs int) DocumentOption {
	return func(d *types.Document) {
		d.FileType = documents.FileTypeDOCX
		d.OriginalFilename = "notes.docx"
		d.PageCount = 0
		d.ParagraphCount = paragraphs
	}
}

func WithText(text string) DocumentOption {
	return func(d *types.Document) { d.ExtractedText = text }
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, opts ...DocumentOption) *types.Document {
	tb.Helper()
	if ownerID == uuid.Nil {
		ownerID = uuid.New()
	}
	d := &types.Document{
		ID:               uuid.New(),
		OwnerUserID:      ownerID,
		OriginalFilename: "lecture.pdf",
		FileType:         documents.FileTypePDF,
		DocumentType:     documents.DocumentTypeLecture,
		ExtractedText:    LectureText,
		PageCount:        3,
		StudyGuideStatus: documents.StatusIdle,
		QuizStatus:       documents.StatusIdle,
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}
