// Package adapter implements the capability-table registry of upstream
// provider translators: one Adapter per service_type, selected by a plain
// map instead of an inheritance hierarchy, following the
// one-package-per-provider dispatch style of
// internal/upstream/{openaicompat,geminikey,vertexkey,codex}.
package adapter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/clads-dev/clads-gateway/internal/store/models"
)

// Adapter is the uniform capability set every upstream provider implements,
// unchanged from the one enumerated for the registry: list_models, health,
// translate_request, translate_response_chunk, translate_response.
type Adapter interface {
	ServiceType() models.ServiceType

	// ListModels probes the upstream for its advertised model identifiers.
	// Best-effort: callers treat an error as "unknown", not fatal.
	ListModels(ctx context.Context, cfg models.UpstreamConfig, apiKey string) ([]string, error)

	// Health runs a cheap probe (a models list or a minimal completion) and
	// reports round-trip time in milliseconds.
	Health(ctx context.Context, cfg models.UpstreamConfig, apiKey string) (ok bool, rttMs int64, err error)

	// TranslateRequest rewrites an OpenAI-shaped chat/completions payload
	// into an authenticated *http.Request targeting cfg.base_url (or the
	// adapter's default), with model rewritten to cfg.model_name.
	TranslateRequest(ctx context.Context, cfg models.UpstreamConfig, apiKey string, openAIPayload []byte, stream bool) (*http.Request, error)

	// TranslateResponseChunk rewrites one upstream SSE/JSONL frame into an
	// OpenAI-shaped chunk with model rewritten to cfg.public_name. Returns
	// nil bytes for frames that carry nothing the client should see.
	TranslateResponseChunk(chunk []byte, cfg models.UpstreamConfig) ([]byte, error)

	// TranslateResponse performs the same rewrite for a buffered, non-streaming body.
	TranslateResponse(body []byte, cfg models.UpstreamConfig) ([]byte, error)
}

// Registry dispatches by service_type, mirroring a per-provider package
// split collapsed into one lookup table.
type Registry struct {
	byType map[models.ServiceType]Adapter
}

// NewRegistry wires every known adapter implementation.
func NewRegistry(httpClient *http.Client) *Registry {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	r := &Registry{byType: make(map[models.ServiceType]Adapter)}
	for _, a := range []Adapter{
		newOpenAIAdapter(httpClient),
		newAnthropicAdapter(httpClient),
		newGeminiAdapter(httpClient),
		newOpenAICompatAdapter(models.ServiceOpenRouter, "https://openrouter.ai/api/v1", httpClient),
		newOpenAICompatAdapter(models.ServiceLMStudio, "http://localhost:1234/v1", httpClient),
		newOpenAICompatAdapter(models.ServiceOpenAICompatible, "", httpClient),
		newVSCodeProxyAdapter(httpClient),
		newNoneAdapter(),
	} {
		r.byType[a.ServiceType()] = a
	}
	return r
}

// For looks up the adapter for a config's service_type. The service_type
// column is validated closed-set on write (configsvc), so a miss here means
// the registry itself is missing an implementation, not bad data.
func (r *Registry) For(st models.ServiceType) (Adapter, error) {
	a, ok := r.byType[st]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for service_type %q", st)
	}
	return a, nil
}

const defaultTimeout = 180 * time.Second

// EstimateTokens is the char-count/4 fallback used when an upstream omits
// usage accounting, generalizing the usageMetadata pull-out in
// client.consumeAndMergeSSE/GeminiToClaude into an estimator any adapter can call.
func EstimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		n = 1
	}
	return n
}
