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

// compatAdapter forwards chat/completions requests to any upstream that
// speaks the OpenAI wire format (OpenAI itself, OpenRouter, LM Studio, and
// the generic "openai_compatible" catch-all), generalizing
// openaicompat.Provider.ForwardChatCompletions into one reusable adapter
// parameterized by service_type and default base URL. A non-empty API key is
// always sent as an Authorization: Bearer header.
type compatAdapter struct {
	serviceType    models.ServiceType
	defaultBaseURL string
	httpClient     *http.Client
}

func newOpenAIAdapter(httpClient *http.Client) *compatAdapter {
	return newOpenAICompatAdapter(models.ServiceOpenAI, "https://api.openai.com/v1", httpClient)
}

func newOpenAICompatAdapter(st models.ServiceType, defaultBaseURL string, httpClient *http.Client) *compatAdapter {
	return &compatAdapter{serviceType: st, defaultBaseURL: defaultBaseURL, httpClient: httpClient}
}

func (a *compatAdapter) ServiceType() models.ServiceType { return a.serviceType }

func (a *compatAdapter) baseURL(cfg models.UpstreamConfig) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	return a.defaultBaseURL
}

func (a *compatAdapter) ListModels(ctx context.Context, cfg models.UpstreamConfig, apiKey string) ([]string, error) {
	base := a.baseURL(cfg)
	if base == "" {
		return nil, fmt.Errorf("%s: no base_url configured", a.serviceType)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/models", nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: models list returned %d", a.serviceType, resp.StatusCode)
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode models list: %w", err)
	}
	ids := make([]string, 0, len(listing.Data))
	for _, m := range listing.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (a *compatAdapter) Health(ctx context.Context, cfg models.UpstreamConfig, apiKey string) (bool, int64, error) {
	start := time.Now()
	_, err := a.ListModels(ctx, cfg, apiKey)
	rtt := time.Since(start).Milliseconds()
	if err != nil {
		return false, rtt, err
	}
	return true, rtt, nil
}

func (a *compatAdapter) TranslateRequest(ctx context.Context, cfg models.UpstreamConfig, apiKey string, openAIPayload []byte, stream bool) (*http.Request, error) {
	rewritten, err := rewriteJSONField(openAIPayload, "model", cfg.ModelName)
	if err != nil {
		return nil, fmt.Errorf("%s: rewrite model field: %w", a.serviceType, err)
	}

	base := a.baseURL(cfg)
	if base == "" {
		return nil, fmt.Errorf("%s: no base_url configured", a.serviceType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(rewritten))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return req, nil
}

func (a *compatAdapter) TranslateResponseChunk(chunk []byte, cfg models.UpstreamConfig) ([]byte, error) {
	return rewriteSSEModelField(chunk, cfg.PublicName)
}

func (a *compatAdapter) TranslateResponse(body []byte, cfg models.UpstreamConfig) ([]byte, error) {
	withUsage, err := ensureUsage(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.serviceType, err)
	}
	return rewriteJSONField(withUsage, "model", cfg.PublicName)
}

// ensureUsage fills in a char-count/4 best-effort completion-token estimate
// when the upstream's usage object is missing or reports zero completion
// tokens, matching the fallback anthropicAdapter and geminiAdapter apply when
// their own native usage fields are absent — openai_compatible/LM
// Studio/OpenRouter upstreams frequently omit or zero out usage entirely.
func ensureUsage(body []byte) ([]byte, error) {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	if parsed.Usage.CompletionTokens > 0 {
		return body, nil
	}

	var text strings.Builder
	for _, c := range parsed.Choices {
		text.WriteString(c.Message.Content)
	}
	completion := EstimateTokens(text.String())

	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	obj["usage"] = map[string]int{
		"prompt_tokens":     parsed.Usage.PromptTokens,
		"completion_tokens": completion,
		"total_tokens":      parsed.Usage.PromptTokens + completion,
	}
	return json.Marshal(obj)
}

// rewriteJSONField sets a single top-level string field on a JSON object,
// leaving every other field (including ones this adapter doesn't know about)
// untouched.
func rewriteJSONField(payload []byte, field, value string) ([]byte, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, err
	}
	obj[field] = value
	return json.Marshal(obj)
}

// rewriteSSEModelField rewrites the "model" field inside a single `data: {...}`
// SSE frame. Non-JSON frames (like the literal `[DONE]` terminator) pass
// through unchanged.
func rewriteSSEModelField(frame []byte, publicName string) ([]byte, error) {
	line := strings.TrimSpace(string(frame))
	if !strings.HasPrefix(line, "data:") {
		return frame, nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "[DONE]" || payload == "" {
		return frame, nil
	}

	rewritten, err := rewriteJSONField([]byte(payload), "model", publicName)
	if err != nil {
		return frame, nil // pass through frames we can't parse rather than dropping them
	}
	return []byte("data: " + string(rewritten)), nil
}
