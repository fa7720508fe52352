package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dipteshhh/learnease-backend/internal/observability"
	"github.com/dipteshhh/learnease-backend/internal/pkg/httpx"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

const maxErrorBody = 2048

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one chat completion. Timeout bounds the whole HTTP exchange.
type ChatRequest struct {
	Model        string
	Messages     []Message
	JSONResponse bool
	MaxTokens    int
	Temperature  *float64
	Timeout      time.Duration
}

type ChatResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Client makes exactly one HTTP call per ChatCompletion; retries belong to the caller.
type Client interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	// NoTemperatureModels is a comma-separated list; a trailing "*" matches by prefix.
	NoTemperatureModels string
	HTTPClient          *http.Client
}

type client struct {
	log            *logger.Logger
	metrics        *observability.Metrics
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	noTempModels   map[string]bool
	noTempPrefixes []string
}

func NewClient(log *logger.Logger, metrics *observability.Metrics, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	noTempModels, noTempPrefixes := parseNoTempModelRules(cfg.NoTemperatureModels)
	return &client{
		log:            log.With("service", "OpenAIClient"),
		metrics:        metrics,
		baseURL:        baseURL,
		apiKey:         apiKey,
		httpClient:     httpClient,
		noTempModels:   noTempModels,
		noTempPrefixes: noTempPrefixes,
	}, nil
}

func normalizeModelKey(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}

// parseNoTempModelRules accepts e.g. "o1-*, o3-*, gpt-5".
func parseNoTempModelRules(raw string) (map[string]bool, []string) {
	m := map[string]bool{}
	var prefixes []string
	for _, part := range strings.Split(raw, ",") {
		s := normalizeModelKey(part)
		if s == "" {
			continue
		}
		if strings.HasSuffix(s, "*") {
			p := strings.TrimSpace(strings.TrimRight(strings.TrimSuffix(s, "*"), "-_./:"))
			if p != "" {
				prefixes = append(prefixes, p)
			}
			continue
		}
		m[s] = true
	}
	return m, prefixes
}

func (c *client) modelIsNoTemp(model string) bool {
	m := normalizeModelKey(model)
	if m == "" {
		return false
	}
	if c.noTempModels[m] {
		return true
	}
	for _, p := range c.noTempPrefixes {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	return false
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *client) ChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body := chatCompletionRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	}
	if req.JSONResponse {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	if req.Temperature != nil && !c.modelIsNoTemp(req.Model) {
		body.Temperature = req.Temperature
	}

	callCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, raw, err := c.doOnce(callCtx, http.MethodPost, "/v1/chat/completions", body)
	if err != nil {
		err = c.classifyTransportError(ctx, callCtx, req.Timeout, resp, raw, err)
		c.metrics.ObserveProviderRequest(req.Model, statusFromErr(err), time.Since(start), 0, 0)
		return ChatResponse{}, err
	}

	var out chatCompletionResponse
	if uErr := json.Unmarshal(raw, &out); uErr != nil {
		c.metrics.ObserveProviderRequest(req.Model, "decode_error", time.Since(start), 0, 0)
		return ChatResponse{}, &MalformedResponseError{Err: uErr}
	}
	c.metrics.ObserveProviderRequest(req.Model, strconv.Itoa(resp.StatusCode), time.Since(start), out.Usage.PromptTokens, out.Usage.CompletionTokens)

	result := ChatResponse{
		Model:        out.Model,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}
	if len(out.Choices) > 0 {
		result.Content = out.Choices[0].Message.Content
	}
	c.log.Debug("chat completion finished",
		"model", req.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
	)
	return result, nil
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}
	return resp, raw, nil
}

// classifyTransportError maps a failed exchange onto the typed provider errors.
// Cancellation of the caller's context is returned as is.
func (c *client) classifyTransportError(parent, callCtx context.Context, timeout time.Duration, resp *http.Response, raw []byte, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return &RateLimitError{
				RetryAfter: httpx.RetryAfterDuration(resp, 0, 0),
				Body:       truncate(string(raw), maxErrorBody),
			}
		}
		return apiErr
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || httpx.IsNetTimeout(err) {
		return &TimeoutError{Timeout: timeout, Err: err}
	}
	return &ConnectionError{Err: err}
}

func statusFromErr(err error) string {
	if code := httpx.StatusCode(err); code > 0 {
		return strconv.Itoa(code)
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "error"
}

// truncate cuts s to at most n bytes on a rune boundary and drops invalid UTF-8.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
