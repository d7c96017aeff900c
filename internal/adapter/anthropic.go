package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clads-dev/clads-gateway/internal/store/models"
)

const anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
const anthropicVersion = "2023-06-01"

// anthropicAdapter splits OpenAI's flat messages[] into Anthropic's
// system + messages[] shape and recombines the reply, adapted from the
// claude.go mappers (GeminiToClaude/ClaudeToGemini) retargeted at
// the real Anthropic Messages API instead of Gemini.
type anthropicAdapter struct {
	httpClient *http.Client
}

func newAnthropicAdapter(httpClient *http.Client) *anthropicAdapter {
	return &anthropicAdapter{httpClient: httpClient}
}

func (a *anthropicAdapter) ServiceType() models.ServiceType { return models.ServiceAnthropic }

func (a *anthropicAdapter) baseURL(cfg models.UpstreamConfig) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	return anthropicDefaultBaseURL
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream,omitempty"`
}

type openAIChatRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

func (a *anthropicAdapter) ListModels(ctx context.Context, cfg models.UpstreamConfig, apiKey string) ([]string, error) {
	// Anthropic has no public models-list endpoint; the configured model is
	// the only one a config can route to.
	return []string{cfg.ModelName}, nil
}

func (a *anthropicAdapter) Health(ctx context.Context, cfg models.UpstreamConfig, apiKey string) (bool, int64, error) {
	start := time.Now()
	probe := anthropicRequest{
		Model:     cfg.ModelName,
		Messages:  []anthropicMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}
	body, err := json.Marshal(probe)
	if err != nil {
		return false, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL(cfg)+"/messages", bytes.NewReader(body))
	if err != nil {
		return false, 0, err
	}
	setAnthropicHeaders(req, apiKey)
	resp, err := a.httpClient.Do(req)
	rtt := time.Since(start).Milliseconds()
	if err != nil {
		return false, rtt, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return false, rtt, fmt.Errorf("anthropic health probe returned %d", resp.StatusCode)
	}
	return true, rtt, nil
}

func (a *anthropicAdapter) TranslateRequest(ctx context.Context, cfg models.UpstreamConfig, apiKey string, openAIPayload []byte, stream bool) (*http.Request, error) {
	var in openAIChatRequest
	if err := json.Unmarshal(openAIPayload, &in); err != nil {
		return nil, fmt.Errorf("anthropic: decode openai payload: %w", err)
	}

	out := anthropicRequest{
		Model:     cfg.ModelName,
		Stream:    stream,
		MaxTokens: in.MaxTokens,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 4096
	}
	for _, m := range in.Messages {
		if m.Role == "system" {
			if out.System != "" {
				out.System += "\n"
			}
			out.System += m.Content
			continue
		}
		out.Messages = append(out.Messages, m)
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode upstream payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL(cfg)+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: build request: %w", err)
	}
	setAnthropicHeaders(req, apiKey)
	return req, nil
}

func setAnthropicHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	ID      string                  `json:"id"`
	Model   string                  `json:"model"`
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// TranslateResponse recombines an Anthropic Messages reply into an
// OpenAI chat/completions body, estimating usage when absent via the
// shared char-count/4 fallback.
func (a *anthropicAdapter) TranslateResponse(body []byte, cfg models.UpstreamConfig) ([]byte, error) {
	var in anthropicResponse
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("anthropic: decode upstream response: %w", err)
	}

	var text strings.Builder
	for _, block := range in.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	inputTokens, outputTokens := in.Usage.InputTokens, in.Usage.OutputTokens
	if outputTokens == 0 {
		outputTokens = EstimateTokens(text.String())
	}

	out := map[string]interface{}{
		"id":     in.ID,
		"object": "chat.completion",
		"model":  cfg.PublicName,
		"choices": []map[string]interface{}{{
			"index": 0,
			"message": map[string]string{
				"role":    "assistant",
				"content": text.String(),
			},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{
			"prompt_tokens":     inputTokens,
			"completion_tokens": outputTokens,
			"total_tokens":      inputTokens + outputTokens,
		},
	}
	return json.Marshal(out)
}

// TranslateResponseChunk rewrites one Anthropic streaming event into an
// OpenAI-shaped chat.completion.chunk frame. Anthropic's
// content_block_delta carries the incremental text; other event types
// (message_start, ping, message_stop) yield no client-visible frame.
func (a *anthropicAdapter) TranslateResponseChunk(chunk []byte, cfg models.UpstreamConfig) ([]byte, error) {
	line := strings.TrimSpace(string(chunk))
	if !strings.HasPrefix(line, "data:") {
		return nil, nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" {
		return nil, nil
	}

	var event struct {
		Type  string `json:"type"`
		Delta struct {
			Text string `json:"text"`
		} `json:"delta"`
	}
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, nil
	}
	if event.Type != "content_block_delta" || event.Delta.Text == "" {
		return nil, nil
	}

	out := map[string]interface{}{
		"object": "chat.completion.chunk",
		"model":  cfg.PublicName,
		"choices": []map[string]interface{}{{
			"index": 0,
			"delta": map[string]string{"content": event.Delta.Text},
		}},
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return []byte("data: " + string(body)), nil
}
