package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/candidate-intel-backend/internal/observability"
	"github.com/yungbote/candidate-intel-backend/internal/platform/ctxutil"
	"github.com/yungbote/candidate-intel-backend/internal/platform/envutil"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
)

// Message is one entry of a Responses API input list.
type Message struct {
	Role    string
	Content string
}

// Client is the model provider used by the summary generator, the search
// service and the chat orchestrator.
type Client interface {
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)

	// GenerateJSON asks for a strict json_schema structured output and returns
	// the raw JSON text the model produced.
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (json.RawMessage, error)

	// StreamChat streams output_text deltas for the given message list. It only
	// returns a nil error when the provider signalled completion.
	StreamChat(ctx context.Context, messages []Message, onDelta func(delta string) error) (string, error)

	// EmbedModel and Model identify the configured models.
	EmbedModel() string
	Model() string
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	httpClient *http.Client
	// streamClient has no overall timeout; streams are bounded by ctx.
	streamClient *http.Client

	maxRetries int
	backoff    time.Duration

	temperature *float64

	noTempMu   sync.RWMutex
	noTempSeen map[string]time.Time
	noTempTTL  time.Duration
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := envutil.String("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimRight(envutil.String("OPENAI_BASE_URL", "https://api.openai.com"), "/")
	timeoutSec := envutil.PositiveInt("OPENAI_TIMEOUT_SECONDS", 180)

	maxRetries := envutil.Int("OPENAI_MAX_RETRIES", 4)
	if maxRetries < 0 {
		maxRetries = 0
	}

	var temp *float64
	switch strings.ToLower(envutil.String("OPENAI_TEMPERATURE", "")) {
	case "off", "none", "nil", "false":
	default:
		t := envutil.Float("OPENAI_TEMPERATURE", 0.2)
		temp = &t
	}

	return &client{
		log:          log.With("service", "OpenAIClient"),
		baseURL:      baseURL,
		apiKey:       apiKey,
		model:        envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		embedModel:   envutil.String("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		httpClient:   &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		streamClient: &http.Client{},
		maxRetries:   maxRetries,
		backoff:      time.Second,
		temperature:  temp,
		noTempSeen:   map[string]time.Time{},
		noTempTTL:    24 * time.Hour,
	}, nil
}

func (c *client) Model() string      { return c.model }
func (c *client) EmbedModel() string { return c.embedModel }

type openAIHTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, nil, err
	}
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
		return resp, raw, &openAIHTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp, raw, nil
}

// do sends body as JSON and decodes a 2xx response into out, retrying
// transient failures with exponential backoff.
func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	ctx = ctxutil.Default(ctx)
	backoff := c.backoff
	start := time.Now()
	model := modelOf(body)

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			in, outTok := extractUsageFromRaw(raw)
			observability.Current().ObserveLLMRequest(model, path, statusFromResp(resp), time.Since(start), in, outTok)
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}
		if !isRetryable(ctx, err) || attempt == c.maxRetries {
			observability.Current().ObserveLLMRequest(model, path, statusFromRespErr(resp, err), time.Since(start), 0, 0)
			return err
		}

		sleepFor := jitter(retryDelay(err, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := sleepCtx(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

func (c *client) applyTemperature(req *responsesRequest) {
	if req == nil || c.temperature == nil || c.modelIsNoTemp(req.Model) {
		return
	}
	req.Temperature = c.temperature
}

func (c *client) modelIsNoTemp(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	c.noTempMu.RLock()
	ts, ok := c.noTempSeen[m]
	c.noTempMu.RUnlock()
	return ok && time.Since(ts) < c.noTempTTL
}

func (c *client) noteNoTempModel(model string) {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return
	}
	c.noTempMu.Lock()
	c.noTempSeen[m] = time.Now().UTC()
	c.noTempMu.Unlock()
}

func isUnsupportedTemperatureMessage(s string) bool {
	msg := strings.ToLower(s)
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, marker := range []string{"unsupported parameter", "unknown parameter", "not supported", "does not support", "only the default", "unsupported_value"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// doResponses retries exactly once without temperature when the model rejects it.
func (c *client) doResponses(ctx context.Context, req *responsesRequest, out any) error {
	err := c.do(ctx, http.MethodPost, "/v1/responses", req, out)
	if err == nil || req.Temperature == nil || !isUnsupportedTemperatureMessage(err.Error()) {
		return err
	}
	c.noteNoTempModel(req.Model)
	req.Temperature = nil
	return c.do(ctx, http.MethodPost, "/v1/responses", req, out)
}

func modelOf(body any) string {
	switch v := body.(type) {
	case *responsesRequest:
		if v != nil {
			return v.Model
		}
	case *embeddingsRequest:
		if v != nil {
			return v.Model
		}
	}
	return ""
}

func extractUsageFromRaw(raw []byte) (int, int) {
	if len(raw) == 0 {
		return 0, 0
	}
	var payload struct {
		Usage struct {
			InputTokens      int `json:"input_tokens"`
			OutputTokens     int `json:"output_tokens"`
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, 0
	}
	u := payload.Usage
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		return u.PromptTokens, u.CompletionTokens
	}
	return u.InputTokens, u.OutputTokens
}

func statusFromResp(resp *http.Response) string {
	if resp == nil {
		return "unknown"
	}
	return strconv.Itoa(resp.StatusCode)
}

func statusFromRespErr(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	var httpErr *openAIHTTPError
	if errors.As(err, &httpErr) {
		return strconv.Itoa(httpErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func estimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len([]rune(text))) / 4.0))
}
