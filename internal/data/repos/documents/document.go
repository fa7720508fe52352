package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/dipteshhh/learnease-backend/internal/domain"
	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	"github.com/dipteshhh/learnease-backend/internal/pkg/dbctx"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

// FlowTransition is a conditional write to one flow's column group.
// It only applies while the flow's status is in From and, when ExpectRunID is set,
// while the stored run id matches. ExpectNoRunID guards on a NULL run id instead.
// Artifact, RunID and Attempts are written only when non-nil.
type FlowTransition struct {
	DocumentID    uuid.UUID
	Flow          documents.Flow
	From          []documents.FlowStatus
	ExpectRunID   *uuid.UUID
	ExpectNoRunID bool

	To           documents.FlowStatus
	ErrorCode    *string
	ErrorMessage *string
	Artifact     datatypes.JSON
	RunID        *uuid.UUID
	Attempts     *int
}

type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.Document) (*types.Document, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	GetByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, id uuid.UUID) (*types.Document, error)
	ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, limit int) ([]*types.Document, error)
	SoftDelete(dbc dbctx.Context, ownerUserID uuid.UUID, id uuid.UUID) (bool, error)
	TransitionFlow(dbc dbctx.Context, t FlowTransition) (bool, error)
	ListProcessing(dbc dbctx.Context, flow documents.Flow, limit int) ([]*types.Document, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{
		db:  db,
		log: baseLog.With("repo", "DocumentRepo"),
	}
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.Document) (*types.Document, error) {
	if doc == nil {
		return nil, nil
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.StudyGuideStatus == "" {
		doc.StudyGuideStatus = documents.StatusIdle
	}
	if doc.QuizStatus == "" {
		doc.QuizStatus = documents.StatusIdle
	}
	if err := dbc.Conn(r.db).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var doc types.Document
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&doc).Error; err != nil {
		return nil, err
	}
	if doc.ID == uuid.Nil {
		return nil, nil
	}
	return &doc, nil
}

func (r *documentRepo) GetByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, id uuid.UUID) (*types.Document, error) {
	if ownerUserID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var doc types.Document
	if err := dbc.Conn(r.db).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		Limit(1).
		Find(&doc).Error; err != nil {
		return nil, err
	}
	if doc.ID == uuid.Nil {
		return nil, nil
	}
	return &doc, nil
}

func (r *documentRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, limit int) ([]*types.Document, error) {
	var out []*types.Document
	if ownerUserID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if err := dbc.Conn(r.db).
		Omit("extracted_text").
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) SoftDelete(dbc dbctx.Context, ownerUserID uuid.UUID, id uuid.UUID) (bool, error) {
	if ownerUserID == uuid.Nil || id == uuid.Nil {
		return false, nil
	}
	res := dbc.Conn(r.db).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		Delete(&types.Document{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// TransitionFlow is a single conditional UPDATE; it reports whether this call won.
func (r *documentRepo) TransitionFlow(dbc dbctx.Context, t FlowTransition) (bool, error) {
	if t.DocumentID == uuid.Nil || !t.Flow.Valid() || len(t.From) == 0 {
		return false, nil
	}
	cols := t.Flow.Columns()
	now := time.Now().UTC()

	updates := map[string]interface{}{
		cols.Status:       string(t.To),
		cols.ErrorCode:    t.ErrorCode,
		cols.ErrorMessage: t.ErrorMessage,
		cols.UpdatedAt:    now,
		"updated_at":      now,
	}
	if t.Artifact != nil {
		updates[cols.Artifact] = t.Artifact
	}
	if t.RunID != nil {
		updates[cols.RunID] = *t.RunID
	}
	if t.Attempts != nil {
		updates[cols.Attempts] = *t.Attempts
	}

	from := make([]string, 0, len(t.From))
	for _, s := range t.From {
		from = append(from, string(s))
	}

	q := dbc.Conn(r.db).
		Model(&types.Document{}).
		Where("id = ?", t.DocumentID).
		Where(cols.Status+" IN ?", from)
	if t.ExpectRunID != nil {
		q = q.Where(cols.RunID+" = ?", *t.ExpectRunID)
	} else if t.ExpectNoRunID {
		q = q.Where(cols.RunID + " IS NULL")
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *documentRepo) ListProcessing(dbc dbctx.Context, flow documents.Flow, limit int) ([]*types.Document, error) {
	var out []*types.Document
	if !flow.Valid() {
		return out, nil
	}
	if limit <= 0 {
		limit = 500
	}
	cols := flow.Columns()
	if err := dbc.Conn(r.db).
		Omit("extracted_text").
		Where(cols.Status+" = ?", string(documents.StatusProcessing)).
		Order(cols.UpdatedAt + " ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
