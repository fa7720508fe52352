package reliability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/generr"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/prompts"
	"github.com/dipteshhh/learnease-backend/internal/observability"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
	"github.com/dipteshhh/learnease-backend/internal/platform/openai"
)

const maxHintDetails = 20

type Config struct {
	PrimaryModel         string
	FallbackModel        string
	FallbackStartAttempt int
	MaxAttempts          int
	TransientBackoffBase time.Duration
	TransientBackoffMax  time.Duration
	BaseTimeout          time.Duration
	MaxTimeout           time.Duration
	RetryMultiplier      float64
}

// Acceptor turns raw provider output into the artifact to persist, or rejects it.
type Acceptor func(content string) (json.RawMessage, error)

type Request struct {
	Flow   documents.Flow
	Prompt prompts.Prompt
	Accept Acceptor
}

type Result struct {
	Artifact json.RawMessage
	Attempts int
	Model    string
}

type Policy struct {
	log      *logger.Logger
	cfg      Config
	provider openai.Client
	breaker  *Breaker
	metrics  *observability.Metrics
	jitter   func() float64
	sleep    func(ctx context.Context, d time.Duration) error
}

type PolicyOption func(*Policy)

// WithJitter replaces the uniform [0,1) jitter source.
func WithJitter(fn func() float64) PolicyOption {
	return func(p *Policy) { p.jitter = fn }
}

// WithSleep replaces the context-aware backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) PolicyOption {
	return func(p *Policy) { p.sleep = fn }
}

func WithPolicyMetrics(m *observability.Metrics) PolicyOption {
	return func(p *Policy) { p.metrics = m }
}

func NewPolicy(log *logger.Logger, provider openai.Client, breaker *Breaker, cfg Config, opts ...PolicyOption) *Policy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	p := &Policy{
		log:      log.With("service", "ReliabilityPolicy"),
		cfg:      cfg,
		provider: provider,
		breaker:  breaker,
		jitter:   rand.Float64,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Policy) Config() Config { return p.cfg }

// Execute runs the attempt loop. On failure the returned error is the last attempt's error
// and Result still reports the attempts used.
func (p *Policy) Execute(ctx context.Context, req Request) (Result, error) {
	ctx, span := observability.Tracer().Start(ctx, "generation.policy",
		trace.WithAttributes(attribute.String("flow", string(req.Flow))))
	defer span.End()

	var (
		res     Result
		prev    Bucket
		hint    string
		lastErr error
	)
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		model := SelectModel(p.cfg, attempt, prev)
		timeout := AttemptTimeout(attempt, p.cfg.BaseTimeout, p.cfg.MaxTimeout, p.cfg.RetryMultiplier)
		res.Attempts = attempt
		res.Model = model

		artifact, err := p.attempt(ctx, req, attempt, model, timeout, hint)
		if err == nil {
			p.metrics.IncGenerationAttempt(string(req.Flow), model, "success")
			res.Artifact = artifact
			span.SetAttributes(attribute.Int("attempts", attempt))
			return res, nil
		}
		lastErr = err

		if errors.Is(err, errBreakerOpen) {
			p.metrics.IncGenerationAttempt(string(req.Flow), model, "breaker_open")
			p.log.Warn("generation attempt refused by circuit breaker", "flow", req.Flow, "attempt", attempt)
			lastErr = errors.Unwrap(err)
			break
		}

		bucket := Classify(err)
		p.metrics.IncGenerationAttempt(string(req.Flow), model, string(bucket))
		p.log.Warn("generation attempt failed",
			"flow", req.Flow,
			"attempt", attempt,
			"max_attempts", p.cfg.MaxAttempts,
			"model", model,
			"bucket", bucket,
			"code", generr.Code(err),
			"error", err.Error(),
		)
		if bucket == Terminal || attempt == p.cfg.MaxAttempts {
			break
		}

		switch bucket {
		case Repairable:
			hint = RepairHint(err)
		case Transient:
			wait := ComputeBackoff(attempt, p.cfg.TransientBackoffBase, p.cfg.TransientBackoffMax, p.jitter())
			if serr := p.sleep(ctx, wait); serr != nil {
				lastErr = serr
				span.RecordError(serr)
				span.SetStatus(codes.Error, "backoff interrupted")
				return res, lastErr
			}
		}
		prev = bucket
	}

	span.SetAttributes(attribute.Int("attempts", res.Attempts))
	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, generr.Code(lastErr))
	}
	return res, lastErr
}

var errBreakerOpen = errors.New("circuit breaker open")

type breakerRejection struct{ err error }

func (r *breakerRejection) Error() string        { return r.err.Error() }
func (r *breakerRejection) Unwrap() error        { return r.err }
func (r *breakerRejection) Is(target error) bool { return target == errBreakerOpen }

func (p *Policy) attempt(ctx context.Context, req Request, attempt int, model string, timeout time.Duration, hint string) (json.RawMessage, error) {
	ctx, span := observability.Tracer().Start(ctx, "generation.attempt", trace.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.String("model", model),
		attribute.Int64("timeout_ms", timeout.Milliseconds()),
		attribute.Bool("repair_hint", hint != ""),
	))
	defer span.End()

	ticket, err := p.breaker.Allow()
	if err != nil {
		span.SetStatus(codes.Error, "breaker open")
		return nil, &breakerRejection{err: err}
	}
	span.SetAttributes(attribute.Bool("probe", ticket.Probe()))

	prompt := req.Prompt.WithRepairHint(hint)
	resp, err := p.complete(ctx, ticket, openai.ChatRequest{
		Model: model,
		Messages: []openai.Message{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		JSONResponse: true,
		MaxTokens:    prompt.MaxTokens,
		Temperature:  &prompt.Temperature,
		Timeout:      timeout,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(Classify(err)))
		return nil, err
	}

	artifact, err := req.Accept(resp.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, generr.Code(err))
		return nil, err
	}
	return artifact, nil
}

var errProviderPanic = errors.New("generation provider panicked")

// complete calls the provider and always reports the outcome to the breaker.
// A panic is recorded as a failure so a half-open probe slot is released, then re-raised.
func (p *Policy) complete(ctx context.Context, ticket Ticket, creq openai.ChatRequest) (openai.ChatResponse, error) {
	recorded := false
	defer func() {
		if !recorded {
			p.breaker.Record(ticket, errProviderPanic)
		}
	}()
	resp, err := p.provider.ChatCompletion(ctx, creq)
	recorded = true
	p.breaker.Record(ticket, err)
	return resp, err
}

// RepairHint describes a rejected attempt for the next prompt. Only validation errors carry a hint.
func RepairHint(err error) string {
	var ve *generr.ValidationError
	if !errors.As(err, &ve) {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your previous response was rejected (%s): %s.\n", ve.Code, ve.Message)
	if len(ve.Details) > 0 {
		b.WriteString("Problems:\n")
		for i, d := range ve.Details {
			if i == maxHintDetails {
				fmt.Fprintf(&b, "- and %d more\n", len(ve.Details)-maxHintDetails)
				break
			}
			b.WriteString("- ")
			b.WriteString(d)
			b.WriteString("\n")
		}
	}
	b.WriteString("Return a corrected JSON object. Copy every supporting_quote and excerpt verbatim from the document and keep citations inside the document.")
	return b.String()
}
