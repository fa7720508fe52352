package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	FileTypePDF  = "PDF"
	FileTypeDOCX = "DOCX"
)

const (
	DocumentTypeLecture     = "LECTURE"
	DocumentTypeHomework    = "HOMEWORK"
	DocumentTypeUnsupported = "UNSUPPORTED"
)

// Document is an uploaded file whose text has already been extracted.
// Each flow owns its own column group; see FlowColumns.
type Document struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	OriginalFilename string    `gorm:"column:original_filename;not null;default:''" json:"original_filename"`
	FileType         string    `gorm:"column:file_type;not null" json:"file_type"`
	DocumentType     string    `gorm:"column:document_type;not null;index" json:"document_type"`
	ExtractedText    string    `gorm:"column:extracted_text;type:text;not null" json:"-"`
	PageCount        int       `gorm:"column:page_count;not null;default:0" json:"page_count"`
	ParagraphCount   int       `gorm:"column:paragraph_count;not null;default:0" json:"paragraph_count"`

	StudyGuideStatus       FlowStatus     `gorm:"column:study_guide_status;not null;default:'idle';index" json:"study_guide_status"`
	StudyGuideErrorCode    *string        `gorm:"column:study_guide_error_code" json:"-"`
	StudyGuideErrorMessage *string        `gorm:"column:study_guide_error_message" json:"-"`
	StudyGuide             datatypes.JSON `gorm:"column:study_guide" json:"-"`
	StudyGuideRunID        *uuid.UUID     `gorm:"type:uuid;column:study_guide_run_id" json:"-"`
	StudyGuideAttempts     int            `gorm:"column:study_guide_attempts;not null;default:0" json:"-"`
	StudyGuideUpdatedAt    *time.Time     `gorm:"column:study_guide_updated_at" json:"-"`

	QuizStatus       FlowStatus     `gorm:"column:quiz_status;not null;default:'idle';index" json:"quiz_status"`
	QuizErrorCode    *string        `gorm:"column:quiz_error_code" json:"-"`
	QuizErrorMessage *string        `gorm:"column:quiz_error_message" json:"-"`
	Quiz             datatypes.JSON `gorm:"column:quiz" json:"-"`
	QuizRunID        *uuid.UUID     `gorm:"type:uuid;column:quiz_run_id" json:"-"`
	QuizAttempts     int            `gorm:"column:quiz_attempts;not null;default:0" json:"-"`
	QuizUpdatedAt    *time.Time     `gorm:"column:quiz_updated_at" json:"-"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }

// Flow returns the record for f without touching the other flow's fields.
func (d *Document) Flow(f Flow) FlowRecord {
	switch f {
	case FlowStudyGuide:
		return FlowRecord{
			Flow:         f,
			Status:       d.StudyGuideStatus,
			ErrorCode:    d.StudyGuideErrorCode,
			ErrorMessage: d.StudyGuideErrorMessage,
			Artifact:     d.StudyGuide,
			RunID:        d.StudyGuideRunID,
			Attempts:     d.StudyGuideAttempts,
			UpdatedAt:    d.StudyGuideUpdatedAt,
		}
	case FlowQuiz:
		return FlowRecord{
			Flow:         f,
			Status:       d.QuizStatus,
			ErrorCode:    d.QuizErrorCode,
			ErrorMessage: d.QuizErrorMessage,
			Artifact:     d.Quiz,
			RunID:        d.QuizRunID,
			Attempts:     d.QuizAttempts,
			UpdatedAt:    d.QuizUpdatedAt,
		}
	default:
		return FlowRecord{Flow: f}
	}
}

// LocatorCount is the page count for PDFs and the paragraph count for DOCX files.
func (d *Document) LocatorCount() int {
	if d.FileType == FileTypeDOCX {
		return d.ParagraphCount
	}
	return d.PageCount
}

// SourceKind maps the file type onto the citation source_type vocabulary.
func (d *Document) SourceKind() SourceKind {
	if d.FileType == FileTypeDOCX {
		return SourceDOCX
	}
	return SourcePDF
}
