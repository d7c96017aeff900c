package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clads-dev/clads-gateway/internal/store/models"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiAdapter talks to the Google AI Studio REST surface (generateContent),
// not Vertex — Vertex is out of scope here even though the upstream client
// this was built from targeted Cloud Code/Vertex. role: system is translated
// into systemInstruction, following the shape of mappers.ClaudeToGemini
// generalized from Cloud-Code-internal fields to plain AI-Studio
// generateContent.
type geminiAdapter struct {
	httpClient *http.Client
}

func newGeminiAdapter(httpClient *http.Client) *geminiAdapter {
	return &geminiAdapter{httpClient: httpClient}
}

func (a *geminiAdapter) ServiceType() models.ServiceType { return models.ServiceGemini }

func (a *geminiAdapter) baseURL(cfg models.UpstreamConfig) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	return geminiDefaultBaseURL
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

func (a *geminiAdapter) ListModels(ctx context.Context, cfg models.UpstreamConfig, apiKey string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL(cfg)+"/models?key="+url.QueryEscape(apiKey), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini: models list returned %d", resp.StatusCode)
	}

	var listing struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("gemini: decode models list: %w", err)
	}
	ids := make([]string, 0, len(listing.Models))
	for _, m := range listing.Models {
		ids = append(ids, strings.TrimPrefix(m.Name, "models/"))
	}
	return ids, nil
}

func (a *geminiAdapter) Health(ctx context.Context, cfg models.UpstreamConfig, apiKey string) (bool, int64, error) {
	start := time.Now()
	_, err := a.ListModels(ctx, cfg, apiKey)
	rtt := time.Since(start).Milliseconds()
	if err != nil {
		return false, rtt, err
	}
	return true, rtt, nil
}

func (a *geminiAdapter) TranslateRequest(ctx context.Context, cfg models.UpstreamConfig, apiKey string, openAIPayload []byte, stream bool) (*http.Request, error) {
	var in openAIChatRequest
	if err := json.Unmarshal(openAIPayload, &in); err != nil {
		return nil, fmt.Errorf("gemini: decode openai payload: %w", err)
	}

	out := geminiRequest{}
	for _, m := range in.Messages {
		if m.Role == "system" {
			out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		out.Contents = append(out.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode upstream payload: %w", err)
	}

	method := "generateContent"
	query := "key=" + url.QueryEscape(apiKey)
	if stream {
		method = "streamGenerateContent"
		query += "&alt=sse"
	}
	target := fmt.Sprintf("%s/models/%s:%s?%s", a.baseURL(cfg), cfg.ModelName, method, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata geminiUsage `json:"usageMetadata"`
}

func (a *geminiAdapter) TranslateResponse(body []byte, cfg models.UpstreamConfig) ([]byte, error) {
	var in geminiResponse
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("gemini: decode upstream response: %w", err)
	}

	text := geminiCandidateText(in)
	promptTokens, completionTokens := in.UsageMetadata.PromptTokenCount, in.UsageMetadata.CandidatesTokenCount
	if completionTokens == 0 {
		completionTokens = EstimateTokens(text)
	}

	out := map[string]interface{}{
		"object": "chat.completion",
		"model":  cfg.PublicName,
		"choices": []map[string]interface{}{{
			"index": 0,
			"message": map[string]string{
				"role":    "assistant",
				"content": text,
			},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
	return json.Marshal(out)
}

func (a *geminiAdapter) TranslateResponseChunk(chunk []byte, cfg models.UpstreamConfig) ([]byte, error) {
	line := strings.TrimSpace(string(chunk))
	if !strings.HasPrefix(line, "data:") {
		return nil, nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" {
		return nil, nil
	}

	var in geminiResponse
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		return nil, nil
	}
	text := geminiCandidateText(in)
	if text == "" {
		return nil, nil
	}

	out := map[string]interface{}{
		"object": "chat.completion.chunk",
		"model":  cfg.PublicName,
		"choices": []map[string]interface{}{{
			"index": 0,
			"delta": map[string]string{"content": text},
		}},
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return []byte("data: " + string(body)), nil
}

func geminiCandidateText(in geminiResponse) string {
	if len(in.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range in.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}
