package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dipteshhh/learnease-backend/internal/data/repos"
	"github.com/dipteshhh/learnease-backend/internal/data/repos/testutil"
	httpH "github.com/dipteshhh/learnease-backend/internal/http/handlers"
	httpMW "github.com/dipteshhh/learnease-backend/internal/http/middleware"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/flowstate"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/prompts"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/reliability"
	"github.com/dipteshhh/learnease-backend/internal/observability"
	"github.com/dipteshhh/learnease-backend/internal/platform/openai"
	"github.com/dipteshhh/learnease-backend/internal/realtime"
	"github.com/dipteshhh/learnease-backend/internal/realtime/bus"
	"github.com/dipteshhh/learnease-backend/internal/services"
)

const testSecret = "router-test-secret"

const guideOutput = `{
  "title": "Photosynthesis",
  "overview": "How plants store light energy.",
  "sections": [{"id": "s1", "heading": "Energy", "items": [{
    "id": "i1", "label": "Energy conversion", "kind": "concept",
    "supporting_quote": "converts light energy into chemical energy",
    "citations": [{"source_type": "pdf", "page": 1, "excerpt": "The Calvin cycle fixes carbon dioxide."}]
  }]}]
}`

const quizOutput = `{
  "questions": [{
    "id": "q1", "prompt": "What does the Calvin cycle fix?",
    "options": ["Oxygen", "Carbon dioxide"], "answer_index": 1,
    "explanation": "It fixes carbon dioxide.",
    "supporting_quote": "fixes carbon dioxide",
    "citations": [{"source_type": "pdf", "page": 2, "excerpt": "Calvin cycle"}]
  }]
}`

// gatedProvider answers by flow; quiz calls block until release is closed.
type gatedProvider struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	once    sync.Once
}

func (p *gatedProvider) open() {
	p.once.Do(func() { close(p.release) })
}

func (p *gatedProvider) ChatCompletion(ctx context.Context, req openai.ChatRequest) (openai.ChatResponse, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if strings.Contains(req.Messages[0].Content, "multiple-choice") {
		select {
		case <-p.release:
		case <-ctx.Done():
			return openai.ChatResponse{}, ctx.Err()
		}
		return openai.ChatResponse{Content: quizOutput, Model: req.Model}, nil
	}
	return openai.ChatResponse{Content: guideOutput, Model: req.Model}, nil
}

func (p *gatedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type apiHarness struct {
	t        *testing.T
	router   *gin.Engine
	orch     *generation.Orchestrator
	provider *gatedProvider
	hub      *realtime.Hub
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	metrics := observability.NewMetrics()

	repo := repos.NewDocumentRepo(db, log)
	hub := realtime.NewHub(log)
	eventBus := bus.NewLocalBus()
	fwdCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := eventBus.StartForwarder(fwdCtx, hub.Broadcast); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	machine := flowstate.New(log, repo, flowstate.WithListener(generation.EventPublisher(log, eventBus, metrics)))

	provider := &gatedProvider{release: make(chan struct{})}
	breaker := reliability.NewBreaker(reliability.BreakerConfig{FailureThreshold: 5, Cooldown: time.Minute, HalfOpenProbeLimit: 1})
	policy := reliability.NewPolicy(log, provider, breaker, reliability.Config{
		PrimaryModel:         "primary",
		FallbackModel:        "fallback",
		FallbackStartAttempt: 3,
		MaxAttempts:          3,
		TransientBackoffBase: time.Millisecond,
		TransientBackoffMax:  time.Millisecond,
		BaseTimeout:          5 * time.Second,
		MaxTimeout:           5 * time.Second,
		RetryMultiplier:      1,
	})
	t.Setenv("GENERATION_PROMPTS_YAML", "")
	promptSet, err := prompts.Load(log)
	if err != nil {
		t.Fatalf("prompts.Load: %v", err)
	}
	orch := generation.NewOrchestrator(log, repo, machine, policy, promptSet, generation.WithMetrics(metrics))
	t.Cleanup(func() {
		provider.open()
		orch.Wait()
	})

	router := NewRouter(RouterConfig{
		Log:               log,
		Metrics:           metrics,
		AuthMiddleware:    httpMW.NewAuthMiddleware(log, testSecret),
		HealthHandler:     httpH.NewHealthHandler(log, db),
		DocumentHandler:   httpH.NewDocumentHandler(services.NewDocumentService(log, repo, machine)),
		GenerationHandler: httpH.NewGenerationHandler(log, orch, 5),
		RealtimeHandler:   httpH.NewRealtimeHandler(log, hub),
	})
	return &apiHarness{t: t, router: router, orch: orch, provider: provider, hub: hub}
}

func token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (h *apiHarness) do(method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+token(h.t, userID))
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env, _ := decode(t, w)["error"].(map[string]any)
	code, _ := env["code"].(string)
	return code
}

func (h *apiHarness) createDocument(userID uuid.UUID, documentType string) string {
	h.t.Helper()
	w := h.do(http.MethodPost, "/api/documents", userID, map[string]any{
		"original_filename": "lecture.pdf",
		"file_type":         "PDF",
		"document_type":     documentType,
		"extracted_text":    testutil.LectureText,
		"page_count":        3,
	})
	if w.Code != http.StatusCreated {
		h.t.Fatalf("create document: %d %s", w.Code, w.Body.String())
	}
	doc, _ := decode(h.t, w)["document"].(map[string]any)
	id, _ := doc["id"].(string)
	if id == "" {
		h.t.Fatalf("missing document id: %s", w.Body.String())
	}
	return id
}

func TestRequiresAuth(t *testing.T) {
	h := newAPIHarness(t)
	w := h.do(http.MethodGet, "/api/documents", uuid.Nil, nil)
	if w.Code != http.StatusUnauthorized || errorCode(t, w) != "unauthorized" {
		t.Fatalf("expected 401 unauthorized, got %d %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newAPIHarness(t)
	if w := h.do(http.MethodGet, "/healthcheck", uuid.Nil, nil); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthcheck: %d %q", w.Code, w.Body.String())
	}
	w := h.do(http.MethodGet, "/metrics", uuid.Nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "learnease_api_requests_total") {
		t.Fatalf("metrics: %d", w.Code)
	}
}

func TestDocumentValidation(t *testing.T) {
	h := newAPIHarness(t)
	user := uuid.New()
	w := h.do(http.MethodPost, "/api/documents", user, map[string]any{
		"original_filename": "slides.pptx",
		"file_type":         "PPTX",
		"document_type":     "LECTURE",
		"extracted_text":    "text",
		"page_count":        1,
	})
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "invalid_request" {
		t.Fatalf("expected invalid_request, got %d %s", w.Code, w.Body.String())
	}
	w = h.do(http.MethodPost, "/api/documents", user, map[string]any{
		"original_filename": "lecture.pdf",
		"file_type":         "PDF",
		"document_type":     "LECTURE",
		"extracted_text":    "text",
	})
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "invalid_document" {
		t.Fatalf("expected invalid_document, got %d %s", w.Code, w.Body.String())
	}
	if w := h.do(http.MethodGet, "/api/documents/not-a-uuid", user, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", w.Code)
	}
}

func TestStudyGuideLifecycle(t *testing.T) {
	h := newAPIHarness(t)
	user := uuid.New()
	id := h.createDocument(user, "LECTURE")
	path := "/api/documents/" + id + "/study-guide"

	w := h.do(http.MethodPost, path, user, nil)
	if w.Code != http.StatusAccepted || decode(t, w)["status"] != "processing" {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	h.orch.Wait()

	w = h.do(http.MethodGet, path, user, nil)
	body := decode(t, w)
	if w.Code != http.StatusOK || body["status"] != "ready" || body["study_guide"] == nil {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}

	w = h.do(http.MethodPost, path, user, nil)
	body = decode(t, w)
	if w.Code != http.StatusOK || body["cached"] != true || body["study_guide"] == nil {
		t.Fatalf("cached create: %d %s", w.Code, w.Body.String())
	}
	if n := h.provider.callCount(); n != 1 {
		t.Fatalf("expected 1 provider call, got %d", n)
	}

	w = h.do(http.MethodPost, path+"/retry", user, nil)
	if w.Code != http.StatusConflict || errorCode(t, w) != "ILLEGAL_RETRY_STATE" {
		t.Fatalf("retry on ready: %d %s", w.Code, w.Body.String())
	}

	w = h.do(http.MethodGet, "/api/documents/"+id, user, nil)
	doc, _ := decode(t, w)["document"].(map[string]any)
	guide, _ := doc["study_guide"].(map[string]any)
	quiz, _ := doc["quiz"].(map[string]any)
	if guide["status"] != "ready" || quiz["status"] != "idle" {
		t.Fatalf("document view: %s", w.Body.String())
	}
	if _, leaked := doc["extracted_text"]; leaked {
		t.Fatalf("document view leaked extracted text")
	}
}

func TestQuizAlreadyProcessing(t *testing.T) {
	h := newAPIHarness(t)
	user := uuid.New()
	id := h.createDocument(user, "LECTURE")
	path := "/api/documents/" + id + "/quiz"

	if w := h.do(http.MethodPost, path, user, nil); w.Code != http.StatusAccepted {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	w := h.do(http.MethodPost, path, user, nil)
	if w.Code != http.StatusConflict || errorCode(t, w) != "ALREADY_PROCESSING" {
		t.Fatalf("second create: %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Retry-After"); got != "5" {
		t.Fatalf("expected Retry-After 5, got %q", got)
	}
	if w := h.do(http.MethodGet, path, user, nil); decode(t, w)["status"] != "processing" {
		t.Fatalf("live run must stay processing: %s", w.Body.String())
	}

	h.provider.open()
	h.orch.Wait()
	if w := h.do(http.MethodGet, path, user, nil); decode(t, w)["quiz"] == nil {
		t.Fatalf("expected quiz artifact: %s", w.Body.String())
	}
}

func TestBusinessRulesAndOwnership(t *testing.T) {
	h := newAPIHarness(t)
	user := uuid.New()
	homework := h.createDocument(user, "HOMEWORK")
	unsupported := h.createDocument(user, "UNSUPPORTED")

	w := h.do(http.MethodPost, "/api/documents/"+homework+"/quiz", user, nil)
	if w.Code != http.StatusUnprocessableEntity || errorCode(t, w) != "QUIZ_NOT_AVAILABLE" {
		t.Fatalf("homework quiz: %d %s", w.Code, w.Body.String())
	}
	w = h.do(http.MethodPost, "/api/documents/"+unsupported+"/study-guide", user, nil)
	if w.Code != http.StatusUnprocessableEntity || errorCode(t, w) != "DOCUMENT_UNSUPPORTED" {
		t.Fatalf("unsupported: %d %s", w.Code, w.Body.String())
	}

	stranger := uuid.New()
	for _, path := range []string{"/api/documents/" + homework, "/api/documents/" + homework + "/study-guide"} {
		if w := h.do(http.MethodGet, path, stranger, nil); w.Code != http.StatusNotFound {
			t.Fatalf("%s as stranger: %d", path, w.Code)
		}
	}
	if w := h.do(http.MethodDelete, "/api/documents/"+homework, stranger, nil); w.Code != http.StatusNotFound {
		t.Fatalf("delete as stranger: %d", w.Code)
	}
	if w := h.do(http.MethodDelete, "/api/documents/"+homework, user, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if w := h.do(http.MethodGet, "/api/documents/"+homework, user, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", w.Code)
	}

	w = h.do(http.MethodGet, "/api/documents", user, nil)
	docs, _ := decode(t, w)["documents"].([]any)
	if len(docs) != 1 {
		t.Fatalf("expected 1 remaining document, got %d", len(docs))
	}
}

func TestEventStreamDeliversFlowTransitions(t *testing.T) {
	h := newAPIHarness(t)
	user := uuid.New()
	id := h.createDocument(user, "LECTURE")

	srv := httptest.NewServer(h.router)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?token="+token(t, user), nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("stream: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.hub.Subscribers(realtime.UserChannel(user)) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if w := h.do(http.MethodPost, "/api/documents/"+id+"/study-guide", user, nil); w.Code != http.StatusAccepted {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}

	var statuses []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() && len(statuses) < 2 {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg struct {
			Event string             `json:"event"`
			Data  realtime.FlowStatus `json:"data"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if msg.Data.DocumentID.String() != id || msg.Data.Flow != "STUDY_GUIDE" {
			t.Fatalf("unexpected event: %+v", msg)
		}
		statuses = append(statuses, msg.Data.Status)
	}
	if strings.Join(statuses, ",") != "processing,ready" {
		t.Fatalf("expected processing then ready, got %v (scan err %v)", statuses, scanner.Err())
	}
}
