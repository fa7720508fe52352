// Package generation turns documents into grounded study guides and quizzes.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/dipteshhh/learnease-backend/internal/data/repos"
	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/artifacts"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/flowstate"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/generr"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/grounding"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/prompts"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/reliability"
	"github.com/dipteshhh/learnease-backend/internal/observability"
	"github.com/dipteshhh/learnease-backend/internal/pkg/dbctx"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

const (
	finalizeTimeout   = 15 * time.Second
	maxStoredErrorLen = 1000
)

// Response is what Create and Retry report synchronously.
type Response struct {
	Status   documents.FlowStatus
	Cached   bool
	Retry    bool
	Artifact json.RawMessage
}

// StatusView is a flow's status with the error sanitized for end users.
type StatusView struct {
	DocumentID   uuid.UUID
	Flow         documents.Flow
	Status       documents.FlowStatus
	ErrorCode    string
	ErrorMessage string
	Artifact     json.RawMessage
	Attempts     int
	UpdatedAt    *time.Time
}

type Orchestrator struct {
	log     *logger.Logger
	repo    repos.DocumentRepo
	flows   *flowstate.Machine
	policy  *reliability.Policy
	prompts *prompts.Set
	metrics *observability.Metrics

	baseCtx context.Context
	wg      sync.WaitGroup
}

type Option func(*Orchestrator)

// WithBaseContext sets the context background runs derive from; cancel it at shutdown.
func WithBaseContext(ctx context.Context) Option {
	return func(o *Orchestrator) { o.baseCtx = ctx }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func NewOrchestrator(
	log *logger.Logger,
	repo repos.DocumentRepo,
	flows *flowstate.Machine,
	policy *reliability.Policy,
	promptSet *prompts.Set,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		log:     log.With("service", "GenerationOrchestrator"),
		repo:    repo,
		flows:   flows,
		policy:  policy,
		prompts: promptSet,
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create starts generation for flow, or returns the cached artifact when it already exists.
func (o *Orchestrator) Create(ctx context.Context, userID, documentID uuid.UUID, flow documents.Flow) (Response, error) {
	return o.begin(ctx, false, userID, documentID, flow)
}

// Retry restarts a failed flow.
func (o *Orchestrator) Retry(ctx context.Context, userID, documentID uuid.UUID, flow documents.Flow) (Response, error) {
	return o.begin(ctx, true, userID, documentID, flow)
}

func (o *Orchestrator) begin(ctx context.Context, retry bool, userID, documentID uuid.UUID, flow documents.Flow) (Response, error) {
	ctx, span := observability.Tracer().Start(ctx, "generation.begin", trace.WithAttributes(
		attribute.String("flow", string(flow)),
		attribute.String("document_id", documentID.String()),
		attribute.Bool("retry", retry),
	))
	defer span.End()

	if !flow.Valid() {
		return Response{}, fmt.Errorf("generation: unknown flow %q", flow)
	}
	doc, err := o.load(ctx, userID, documentID)
	if err != nil {
		return Response{}, err
	}
	if err := checkRules(doc, flow); err != nil {
		o.metrics.IncFlowRejection(string(flow), generr.Code(err))
		span.SetStatus(codes.Error, generr.Code(err))
		return Response{}, err
	}

	var out flowstate.Outcome
	if retry {
		out, err = o.flows.Retry(ctx, doc, flow)
	} else {
		out, err = o.flows.Start(ctx, doc, flow)
	}
	if err != nil {
		span.SetStatus(codes.Error, generr.Code(err))
		return Response{}, err
	}
	if out.Cached != nil {
		span.SetAttributes(attribute.Bool("cached", true))
		return Response{Status: documents.StatusReady, Cached: true, Artifact: json.RawMessage(out.Cached)}, nil
	}

	claim := *out.Claim
	span.SetAttributes(attribute.String("run_id", claim.RunID.String()))
	o.log.Info("generation accepted", "document_id", doc.ID, "flow", flow, "run_id", claim.RunID, "retry", retry)

	o.wg.Add(1)
	go o.run(claim, doc)
	return Response{Status: documents.StatusProcessing, Retry: retry}, nil
}

// Status reconciles an orphaned run before reporting the flow.
func (o *Orchestrator) Status(ctx context.Context, userID, documentID uuid.UUID, flow documents.Flow) (StatusView, error) {
	if !flow.Valid() {
		return StatusView{}, fmt.Errorf("generation: unknown flow %q", flow)
	}
	doc, err := o.load(ctx, userID, documentID)
	if err != nil {
		return StatusView{}, err
	}
	_, rec, err := o.flows.Observe(ctx, doc, flow)
	if err != nil {
		return StatusView{}, err
	}
	return NewStatusView(documentID, rec), nil
}

// Wait blocks until every background run has finalized.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// NewStatusView sanitizes rec for end users: the flow prefix is stripped and the message is generic.
func NewStatusView(documentID uuid.UUID, rec documents.FlowRecord) StatusView {
	v := StatusView{
		DocumentID: documentID,
		Flow:       rec.Flow,
		Status:     rec.Status,
		Attempts:   rec.Attempts,
		UpdatedAt:  rec.UpdatedAt,
	}
	if v.Status == "" {
		v.Status = documents.StatusIdle
	}
	switch rec.Status {
	case documents.StatusFailed:
		v.ErrorCode = documents.StripNamespace(rec.ErrorCodeValue())
		v.ErrorMessage = generr.UserMessage(v.ErrorCode)
	case documents.StatusReady:
		if rec.HasArtifact() {
			v.Artifact = json.RawMessage(rec.Artifact)
		}
	}
	return v
}

func (o *Orchestrator) load(ctx context.Context, userID, documentID uuid.UUID) (*documents.Document, error) {
	doc, err := o.repo.GetByOwner(dbctx.Context{Ctx: ctx}, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return nil, generr.NewBusiness(generr.CodeDocumentNotFound, "document not found")
	}
	return doc, nil
}

func checkRules(doc *documents.Document, flow documents.Flow) error {
	if doc.DocumentType == documents.DocumentTypeUnsupported {
		return generr.NewBusiness(generr.CodeDocumentUnsupported, "document type is not supported")
	}
	if flow == documents.FlowQuiz && doc.DocumentType != documents.DocumentTypeLecture {
		return generr.NewBusiness(generr.CodeQuizNotAvailable, "quizzes require a lecture document")
	}
	return nil
}

func (o *Orchestrator) run(claim flowstate.Claim, doc *documents.Document) {
	defer o.wg.Done()

	flow := string(claim.Flow)
	started := time.Now()
	o.metrics.GenerationInflightAdd(flow, 1)
	defer o.metrics.GenerationInflightAdd(flow, -1)

	ctx, span := observability.Tracer().Start(o.baseCtx, "generation.run", trace.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("document_id", claim.DocumentID.String()),
		attribute.String("run_id", claim.RunID.String()),
	))
	defer span.End()

	var (
		res reliability.Result
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panic: %v", r)
			o.log.Error("generation run panicked", "document_id", claim.DocumentID, "flow", flow, "panic", r, "stack", string(debug.Stack()))
		}
		o.finalize(ctx, span, claim, res, err, time.Since(started))
	}()

	prompt, err := o.prompts.Render(claim.Flow, doc)
	if err != nil {
		return
	}
	res, err = o.policy.Execute(ctx, reliability.Request{
		Flow:   claim.Flow,
		Prompt: prompt,
		Accept: acceptor(claim.Flow, doc),
	})
}

// finalize writes exactly one of Complete or Fail for the claim.
func (o *Orchestrator) finalize(runCtx context.Context, span trace.Span, claim flowstate.Claim, res reliability.Result, runErr error, dur time.Duration) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), finalizeTimeout)
	defer cancel()
	flow := string(claim.Flow)

	if runErr == nil {
		err := o.flows.Complete(ctx, claim, datatypes.JSON(res.Artifact), res.Attempts)
		switch {
		case err == nil:
			o.metrics.ObserveGenerationRun(flow, string(documents.StatusReady), "", dur)
			o.log.Info("generation ready", "document_id", claim.DocumentID, "flow", flow, "attempts", res.Attempts, "model", res.Model, "duration_ms", dur.Milliseconds())
			return
		case errors.Is(err, flowstate.ErrClaimLost):
			o.log.Warn("generation result discarded; run no longer owns the flow", "document_id", claim.DocumentID, "flow", flow, "run_id", claim.RunID)
			return
		default:
			runErr = err
		}
	}

	code := o.failureCode(runErr)
	span.RecordError(runErr)
	span.SetStatus(codes.Error, code)
	err := o.flows.Fail(ctx, claim, code, clip(runErr.Error(), maxStoredErrorLen), res.Attempts)
	switch {
	case err == nil:
		o.metrics.ObserveGenerationRun(flow, string(documents.StatusFailed), code, dur)
		o.log.Warn("generation failed", "document_id", claim.DocumentID, "flow", flow, "code", code, "attempts", res.Attempts, "error", runErr.Error())
	case errors.Is(err, flowstate.ErrClaimLost):
		o.log.Warn("generation failure discarded; run no longer owns the flow", "document_id", claim.DocumentID, "flow", flow, "run_id", claim.RunID)
	default:
		// The row stays processing with a dead run id and is reconciled on the next read.
		o.log.Error("failed to record generation failure", "document_id", claim.DocumentID, "flow", flow, "error", err)
	}
}

func (o *Orchestrator) failureCode(err error) string {
	if errors.Is(err, context.Canceled) && o.baseCtx.Err() != nil {
		return generr.CodeGenerationInterrupted
	}
	var ve *generr.ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return generr.CodeGenerationFailed
}

// acceptor decodes provider output, proves it is grounded in doc and returns the JSON to store.
func acceptor(flow documents.Flow, doc *documents.Document) reliability.Acceptor {
	return func(content string) (json.RawMessage, error) {
		a, err := artifacts.Decode(flow, content)
		if err != nil {
			return nil, err
		}
		if err := grounding.Validate(a.Claims(), doc); err != nil {
			return nil, err
		}
		return json.Marshal(a)
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
