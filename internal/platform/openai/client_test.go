package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dipteshhh/learnease-backend/internal/pkg/httpx"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, url string, noTemp string) Client {
	t.Helper()
	c, err := NewClient(logger.NewNop(), nil, Config{BaseURL: url, APIKey: "sk-test", NoTemperatureModels: noTemp})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func f64(v float64) *float64 { return &v }

func TestChatCompletionSuccess(t *testing.T) {
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing auth header")
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"content":"{\"questions\":[]}"}}],"usage":{"prompt_tokens":12,"completion_tokens":5}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	resp, err := c.ChatCompletion(context.Background(), ChatRequest{
		Model:        "gpt-4o-mini",
		Messages:     []Message{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}},
		JSONResponse: true,
		MaxTokens:    100,
		Temperature:  f64(0.2),
		Timeout:      time.Second,
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if resp.Content != `{"questions":[]}` || resp.InputTokens != 12 || resp.OutputTokens != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Fatalf("expected json_object response format, got %+v", got.ResponseFormat)
	}
	if got.Temperature == nil || *got.Temperature != 0.2 || got.MaxTokens != 100 || len(got.Messages) != 2 {
		t.Fatalf("unexpected request body: %+v", got)
	}
}

func TestChatCompletionOmitsTemperatureForDeniedModels(t *testing.T) {
	var sawTemp atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		sawTemp.Store(body["temperature"] != nil)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "o3-*")
	if _, err := c.ChatCompletion(context.Background(), ChatRequest{Model: "o3-mini", Temperature: f64(0.5)}); err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if sawTemp.Load() {
		t.Fatalf("temperature should be omitted for o3 models")
	}
}

func TestChatCompletionTypedErrors(t *testing.T) {
	var calls, status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		code := int(status.Load())
		if code == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "3")
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, "")

	_, err := c.ChatCompletion(context.Background(), ChatRequest{Model: "m"})
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %T %v", err, err)
	}
	if rl.RetryAfter != 3*time.Second || httpx.StatusCode(err) != 429 {
		t.Fatalf("unexpected rate limit error: %+v", rl)
	}

	status.Store(http.StatusBadRequest)
	_, err = c.ChatCompletion(context.Background(), ChatRequest{Model: "m"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Fatalf("expected 400 APIError, got %v", err)
	}

	if n := calls.Load(); n != 2 {
		t.Fatalf("expected exactly one HTTP call per invocation, got %d calls", n)
	}
}

func TestChatCompletionMalformedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, "")

	_, err := c.ChatCompletion(context.Background(), ChatRequest{Model: "m"})
	var me *MalformedResponseError
	if !errors.As(err, &me) {
		t.Fatalf("expected MalformedResponseError, got %T %v", err, err)
	}
	if httpx.StatusCode(err) != 0 {
		t.Fatalf("malformed 200 must not carry a status code, got %d", httpx.StatusCode(err))
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	s := strings.Repeat("é", 10) // 20 bytes
	got := truncate(s, 5)
	if !utf8.ValidString(got) || got != "éé" {
		t.Fatalf("truncate split a rune: %q", got)
	}
	if got := truncate("ok\xffbody", 64); got != "okbody" {
		t.Fatalf("invalid bytes should be dropped, got %q", got)
	}
	if got := truncate("short", 64); got != "short" {
		t.Fatalf("short input changed: %q", got)
	}
}

func TestChatCompletionTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, "")
	_, err := c.ChatCompletion(context.Background(), ChatRequest{Model: "m", Timeout: 50 * time.Millisecond})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %T %v", err, err)
	}
}

func TestChatCompletionParentCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	c := newTestClient(t, srv.URL, "")
	_, err := c.ChatCompletion(ctx, ChatRequest{Model: "m", Timeout: 5 * time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %T %v", err, err)
	}
}

func TestChatCompletionConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, "")
	_, err := c.ChatCompletion(context.Background(), ChatRequest{Model: "m", Timeout: time.Second})
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectionError, got %T %v", err, err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.NewNop(), nil, Config{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
