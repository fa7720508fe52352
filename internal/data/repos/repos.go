package repos

import (
	"gorm.io/gorm"

	"github.com/dipteshhh/learnease-backend/internal/data/repos/documents"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

type DocumentRepo = documents.DocumentRepo
type FlowTransition = documents.FlowTransition

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return documents.NewDocumentRepo(db, baseLog)
}
