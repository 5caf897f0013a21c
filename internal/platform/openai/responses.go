package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/candidate-intel-backend/internal/observability"
)

var (
	// ErrStreamIncomplete means the event stream ended before response.completed.
	ErrStreamIncomplete = errors.New("openai stream ended without completion")
	// ErrRefused is returned when the model produced a refusal instead of output.
	ErrRefused = errors.New("model refused")
)

type inputItem struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type responsesRequest struct {
	Model string      `json:"model"`
	Input []inputItem `json:"input"`

	Text struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type    string `json:"type"`
			Text    string `json:"text,omitempty"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func extractOutputText(resp responsesResponse) (string, string) {
	var out strings.Builder
	refusal := strings.TrimSpace(resp.Refusal)
	for _, item := range resp.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, c := range item.Content {
			switch c.Type {
			case "output_text":
				out.WriteString(c.Text)
			case "refusal":
				if refusal == "" {
					refusal = strings.TrimSpace(c.Refusal)
				}
			}
		}
	}
	return out.String(), refusal
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (json.RawMessage, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}
	req := &responsesRequest{
		Model: c.model,
		Input: []inputItem{
			{Role: "system", Content: strings.TrimSpace(system)},
			{Role: "user", Content: user},
		},
	}
	c.applyTemperature(req)
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	var resp responsesResponse
	if err := c.doResponses(ctx, req, &resp); err != nil {
		return nil, err
	}
	text, refusal := extractOutputText(resp)
	if refusal != "" {
		return nil, fmt.Errorf("%w: %s", ErrRefused, refusal)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("no output_text found in response")
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("model returned invalid JSON")
	}
	return json.RawMessage(text), nil
}

// StreamChat opens a streamed response and forwards every output_text delta
// to onDelta in order. The full text is returned only after a
// response.completed event; anything else ends in an error.
func (c *client) StreamChat(ctx context.Context, messages []Message, onDelta func(delta string) error) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("messages required")
	}
	body := &responsesRequest{Model: c.model, Stream: true}
	inputTokens := 0
	for _, m := range messages {
		body.Input = append(body.Input, inputItem{Role: m.Role, Content: m.Content})
		inputTokens += estimateTokens(m.Content)
	}
	c.applyTemperature(body)
	start := time.Now()

	resp, err := c.openStream(ctx, body)
	if err != nil {
		var httpErr *openAIHTTPError
		if body.Temperature != nil && errors.As(err, &httpErr) && isUnsupportedTemperatureMessage(httpErr.Body) {
			c.noteNoTempModel(body.Model)
			body.Temperature = nil
			resp, err = c.openStream(ctx, body)
		}
	}
	if err != nil {
		observability.Current().ObserveLLMRequest(body.Model, "/v1/responses", statusFromRespErr(nil, err), time.Since(start), inputTokens, 0)
		return "", err
	}
	defer resp.Body.Close()

	full, err := consumeResponseStream(resp.Body, onDelta)
	if err != nil && ctx != nil && ctx.Err() != nil {
		err = fmt.Errorf("openai stream: %w", ctx.Err())
	}
	status := statusFromResp(resp)
	if err != nil {
		status = statusFromRespErr(nil, err)
	}
	observability.Current().ObserveLLMRequest(body.Model, "/v1/responses", status, time.Since(start), inputTokens, estimateTokens(full))
	if err != nil {
		return "", err
	}
	return full, nil
}

func (c *client) openStream(ctx context.Context, body *responsesRequest) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/responses", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return nil, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
}

// consumeResponseStream reads Responses API stream events until EOF.
func consumeResponseStream(r io.Reader, onDelta func(string) error) (string, error) {
	var (
		full      strings.Builder
		completed bool
	)
	err := streamSSE(r, func(event string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			return nil
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(data), &obj); err != nil {
			return nil
		}
		evt := strings.TrimSpace(event)
		if t, ok := obj["type"].(string); ok && strings.TrimSpace(t) != "" {
			evt = strings.TrimSpace(t)
		}

		switch evt {
		case "response.completed":
			completed = true
			return nil
		case "response.failed", "response.incomplete":
			return fmt.Errorf("openai stream %s: %s", strings.TrimPrefix(evt, "response."), describeResponseError(obj))
		case "error":
			return fmt.Errorf("openai stream error: %s", describeResponseError(obj))
		case "response.refusal.delta", "response.refusal.done":
			return ErrRefused
		}
		if strings.HasSuffix(evt, "output_text.delta") {
			d, _ := obj["delta"].(string)
			d = strings.TrimRight(d, "\u0000")
			if d == "" {
				return nil
			}
			full.WriteString(d)
			if onDelta != nil {
				if err := onDelta(d); err != nil {
					return fmt.Errorf("forward delta: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return full.String(), err
	}
	if !completed {
		return full.String(), ErrStreamIncomplete
	}
	return full.String(), nil
}

func describeResponseError(obj map[string]any) string {
	if e, ok := obj["error"]; ok && e != nil {
		b, _ := json.Marshal(e)
		return string(b)
	}
	if r, ok := obj["response"].(map[string]any); ok {
		if e, ok := r["error"]; ok && e != nil {
			b, _ := json.Marshal(e)
			return string(b)
		}
		if d, ok := r["incomplete_details"]; ok && d != nil {
			b, _ := json.Marshal(d)
			return string(b)
		}
	}
	return "unknown"
}
