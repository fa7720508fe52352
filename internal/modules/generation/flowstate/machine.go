// Package flowstate owns the status of each generation flow on a document.
package flowstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/dipteshhh/learnease-backend/internal/data/repos"
	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/generr"
	"github.com/dipteshhh/learnease-backend/internal/observability"
	"github.com/dipteshhh/learnease-backend/internal/pkg/dbctx"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

// ErrClaimLost means the run no longer owns the flow, usually because it was reconciled.
var ErrClaimLost = errors.New("flowstate: run no longer owns the flow")

// Claim identifies the run that moved a flow into processing.
type Claim struct {
	DocumentID  uuid.UUID
	OwnerUserID uuid.UUID
	Flow        documents.Flow
	RunID       uuid.UUID
}

// Outcome of Start or Retry: either a claimed run or the cached artifact.
type Outcome struct {
	Claim  *Claim
	Cached datatypes.JSON
}

// Transition describes a committed status change.
type Transition struct {
	DocumentID  uuid.UUID
	OwnerUserID uuid.UUID
	Flow        documents.Flow
	Status      documents.FlowStatus
	ErrorCode   string
	RunID       uuid.UUID
	At          time.Time
}

// Listener is called after every committed transition.
type Listener func(ctx context.Context, t Transition)

type Machine struct {
	log      *logger.Logger
	repo     repos.DocumentRepo
	metrics  *observability.Metrics
	listener Listener

	mu   sync.Mutex
	live map[uuid.UUID]struct{}
}

type Option func(*Machine)

func WithMetrics(m *observability.Metrics) Option {
	return func(sm *Machine) { sm.metrics = m }
}

func WithListener(fn Listener) Option {
	return func(sm *Machine) { sm.listener = fn }
}

func New(log *logger.Logger, repo repos.DocumentRepo, opts ...Option) *Machine {
	m := &Machine{
		log:  log.With("service", "FlowStateMachine"),
		repo: repo,
		live: make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type op int

const (
	opStart op = iota
	opRetry
)

// Start claims an idle flow, or returns the cached artifact when the flow is ready.
func (m *Machine) Start(ctx context.Context, doc *documents.Document, flow documents.Flow) (Outcome, error) {
	return m.begin(ctx, opStart, doc, flow)
}

// Retry claims a failed flow.
func (m *Machine) Retry(ctx context.Context, doc *documents.Document, flow documents.Flow) (Outcome, error) {
	return m.begin(ctx, opRetry, doc, flow)
}

func (m *Machine) begin(ctx context.Context, o op, doc *documents.Document, flow documents.Flow) (Outcome, error) {
	if doc == nil {
		return Outcome{}, notFound()
	}
	if !flow.Valid() {
		return Outcome{}, fmt.Errorf("flowstate: unknown flow %q", flow)
	}

	doc, rec, err := m.Observe(ctx, doc, flow)
	if err != nil {
		return Outcome{}, err
	}
	from, cached, err := admit(o, rec)
	if err != nil {
		m.reject(flow, err)
		return Outcome{}, err
	}
	if cached != nil {
		return Outcome{Cached: cached}, nil
	}

	runID := uuid.New()
	m.register(runID)
	marker := flow.InProgressMarker()
	zero := 0
	ok, err := m.repo.TransitionFlow(dbctx.Context{Ctx: ctx}, repos.FlowTransition{
		DocumentID: doc.ID,
		Flow:       flow,
		From:       []documents.FlowStatus{from},
		To:         documents.StatusProcessing,
		ErrorCode:  &marker,
		RunID:      &runID,
		Attempts:   &zero,
	})
	if err != nil {
		m.release(runID)
		return Outcome{}, fmt.Errorf("claim %s: %w", flow, err)
	}
	if !ok {
		m.release(runID)
		return m.lostRace(ctx, o, doc.ID, flow)
	}

	claim := &Claim{DocumentID: doc.ID, OwnerUserID: doc.OwnerUserID, Flow: flow, RunID: runID}
	m.log.Debug("flow claimed", "document_id", doc.ID, "flow", flow, "run_id", runID, "from", from)
	m.notify(ctx, Transition{
		DocumentID:  doc.ID,
		OwnerUserID: doc.OwnerUserID,
		Flow:        flow,
		Status:      documents.StatusProcessing,
		ErrorCode:   marker,
		RunID:       runID,
	})
	return Outcome{Claim: claim}, nil
}

// lostRace re-reads the row after a failed CAS and reports what it now shows.
func (m *Machine) lostRace(ctx context.Context, o op, documentID uuid.UUID, flow documents.Flow) (Outcome, error) {
	fresh, err := m.repo.GetByID(dbctx.Context{Ctx: ctx}, documentID)
	if err != nil {
		return Outcome{}, err
	}
	if fresh == nil {
		return Outcome{}, notFound()
	}
	rec := fresh.Flow(flow)
	_, cached, err := admit(o, rec)
	if err == nil && cached == nil {
		err = &generr.StateError{Code: generr.CodeAlreadyProcessing, Flow: flow, Status: rec.Status}
	}
	if err != nil {
		m.reject(flow, err)
		return Outcome{}, err
	}
	return Outcome{Cached: cached}, nil
}

func admit(o op, rec documents.FlowRecord) (documents.FlowStatus, datatypes.JSON, error) {
	reject := func(code string) error {
		return &generr.StateError{Code: code, Flow: rec.Flow, Status: rec.Status}
	}
	switch rec.Status {
	case documents.StatusProcessing:
		return "", nil, reject(generr.CodeAlreadyProcessing)
	case documents.StatusIdle, "":
		if o == opStart {
			return documents.StatusIdle, nil, nil
		}
	case documents.StatusReady:
		if o == opStart && rec.HasArtifact() {
			return "", rec.Artifact, nil
		}
	case documents.StatusFailed:
		if o == opRetry {
			return documents.StatusFailed, nil, nil
		}
	}
	return "", nil, reject(generr.CodeIllegalRetryState)
}

// Complete stores the artifact and marks the flow ready. Only the owning run may complete.
func (m *Machine) Complete(ctx context.Context, c Claim, artifact datatypes.JSON, attempts int) error {
	defer m.release(c.RunID)
	if len(artifact) == 0 {
		return fmt.Errorf("flowstate: complete %s with empty artifact", c.Flow)
	}
	ok, err := m.repo.TransitionFlow(dbctx.Context{Ctx: ctx}, repos.FlowTransition{
		DocumentID:  c.DocumentID,
		Flow:        c.Flow,
		From:        []documents.FlowStatus{documents.StatusProcessing},
		ExpectRunID: &c.RunID,
		To:          documents.StatusReady,
		Artifact:    artifact,
		Attempts:    &attempts,
	})
	if err != nil {
		return fmt.Errorf("complete %s: %w", c.Flow, err)
	}
	if !ok {
		return ErrClaimLost
	}
	m.notify(ctx, Transition{
		DocumentID:  c.DocumentID,
		OwnerUserID: c.OwnerUserID,
		Flow:        c.Flow,
		Status:      documents.StatusReady,
		RunID:       c.RunID,
	})
	return nil
}

// Fail marks the flow failed with a flow-namespaced code. Only the owning run may fail it.
func (m *Machine) Fail(ctx context.Context, c Claim, code, message string, attempts int) error {
	defer m.release(c.RunID)
	if code == "" {
		code = generr.CodeGenerationFailed
	}
	stored := c.Flow.Namespace(documents.StripNamespace(code))
	ok, err := m.repo.TransitionFlow(dbctx.Context{Ctx: ctx}, repos.FlowTransition{
		DocumentID:   c.DocumentID,
		Flow:         c.Flow,
		From:         []documents.FlowStatus{documents.StatusProcessing},
		ExpectRunID:  &c.RunID,
		To:           documents.StatusFailed,
		ErrorCode:    &stored,
		ErrorMessage: &message,
		Attempts:     &attempts,
	})
	if err != nil {
		return fmt.Errorf("fail %s: %w", c.Flow, err)
	}
	if !ok {
		return ErrClaimLost
	}
	m.notify(ctx, Transition{
		DocumentID:  c.DocumentID,
		OwnerUserID: c.OwnerUserID,
		Flow:        c.Flow,
		Status:      documents.StatusFailed,
		ErrorCode:   stored,
		RunID:       c.RunID,
	})
	return nil
}

// Observe returns the flow record, first failing a processing row whose run is not live.
// The returned document is re-read when a reconcile was attempted.
func (m *Machine) Observe(ctx context.Context, doc *documents.Document, flow documents.Flow) (*documents.Document, documents.FlowRecord, error) {
	rec := doc.Flow(flow)
	if !m.stale(rec) {
		return doc, rec, nil
	}
	if _, err := m.reconcile(ctx, doc, rec); err != nil {
		return nil, documents.FlowRecord{}, err
	}
	fresh, err := m.repo.GetByID(dbctx.Context{Ctx: ctx}, doc.ID)
	if err != nil {
		return nil, documents.FlowRecord{}, err
	}
	if fresh == nil {
		return nil, documents.FlowRecord{}, notFound()
	}
	return fresh, fresh.Flow(flow), nil
}

// ReconcileAll fails every processing flow without a live run and reports how many it changed.
func (m *Machine) ReconcileAll(ctx context.Context) (int, error) {
	total := 0
	for _, flow := range documents.AllFlows {
		rows, err := m.repo.ListProcessing(dbctx.Context{Ctx: ctx}, flow, 0)
		if err != nil {
			return total, fmt.Errorf("list processing %s: %w", flow, err)
		}
		for _, doc := range rows {
			rec := doc.Flow(flow)
			if !m.stale(rec) {
				continue
			}
			ok, err := m.reconcile(ctx, doc, rec)
			if err != nil {
				return total, err
			}
			if ok {
				total++
			}
		}
	}
	if total > 0 {
		m.log.Info("reconciled interrupted generation runs", "count", total)
	}
	return total, nil
}

func (m *Machine) stale(rec documents.FlowRecord) bool {
	if rec.Status != documents.StatusProcessing {
		return false
	}
	return rec.RunID == nil || !m.Live(*rec.RunID)
}

func (m *Machine) reconcile(ctx context.Context, doc *documents.Document, rec documents.FlowRecord) (bool, error) {
	code := rec.Flow.Namespace(generr.CodeGenerationInterrupted)
	msg := "generation run ended without a result"
	t := repos.FlowTransition{
		DocumentID:   doc.ID,
		Flow:         rec.Flow,
		From:         []documents.FlowStatus{documents.StatusProcessing},
		To:           documents.StatusFailed,
		ErrorCode:    &code,
		ErrorMessage: &msg,
	}
	if rec.RunID != nil {
		t.ExpectRunID = rec.RunID
	} else {
		t.ExpectNoRunID = true
	}
	ok, err := m.repo.TransitionFlow(dbctx.Context{Ctx: ctx}, t)
	if err != nil {
		return false, fmt.Errorf("reconcile %s: %w", rec.Flow, err)
	}
	if !ok {
		return false, nil
	}
	m.metrics.IncFlowReconciled(string(rec.Flow))
	m.log.Warn("reconciled interrupted generation run", "document_id", doc.ID, "flow", rec.Flow, "run_id", rec.RunID)

	var runID uuid.UUID
	if rec.RunID != nil {
		runID = *rec.RunID
	}
	m.notify(ctx, Transition{
		DocumentID:  doc.ID,
		OwnerUserID: doc.OwnerUserID,
		Flow:        rec.Flow,
		Status:      documents.StatusFailed,
		ErrorCode:   code,
		RunID:       runID,
	})
	return true, nil
}

// Live reports whether runID belongs to a task running in this process.
func (m *Machine) Live(runID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[runID]
	return ok
}

func (m *Machine) register(runID uuid.UUID) {
	m.mu.Lock()
	m.live[runID] = struct{}{}
	m.mu.Unlock()
}

func (m *Machine) release(runID uuid.UUID) {
	m.mu.Lock()
	delete(m.live, runID)
	m.mu.Unlock()
}

func (m *Machine) reject(flow documents.Flow, err error) {
	m.metrics.IncFlowRejection(string(flow), generr.Code(err))
}

func (m *Machine) notify(ctx context.Context, t Transition) {
	if m.listener == nil {
		return
	}
	t.At = time.Now().UTC()
	m.listener(ctx, t)
}

func notFound() error {
	return generr.NewBusiness(generr.CodeDocumentNotFound, "document not found")
}
