package domain

import (
	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
)

type Document = documents.Document
type Flow = documents.Flow
type FlowStatus = documents.FlowStatus
type FlowRecord = documents.FlowRecord
type StudyGuide = documents.StudyGuide
type Quiz = documents.Quiz
type Citation = documents.Citation

const (
	FlowStudyGuide = documents.FlowStudyGuide
	FlowQuiz       = documents.FlowQuiz

	StatusIdle       = documents.StatusIdle
	StatusProcessing = documents.StatusProcessing
	StatusReady      = documents.StatusReady
	StatusFailed     = documents.StatusFailed
)

// Models lists every table owned by the service, in migration order.
func Models() []any {
	return []any{
		&documents.Document{},
	}
}
