package adapter

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clads-dev/clads-gateway/internal/store/models"
)

// vscodeProxyAdapter forwards to a trusted local relay (such as a VS Code
// Copilot-style proxy) that performs its own authentication out of band: no
// Authorization header is forwarded, and the target model is pinned to
// cfg.model_name rather than negotiated per request. Generalizes the
// trusted-local-forward shape implied by the keyproxy/openaicompat split
// (header stripping, static routing) to a no-auth-header case.
type vscodeProxyAdapter struct {
	httpClient *http.Client
}

func newVSCodeProxyAdapter(httpClient *http.Client) *vscodeProxyAdapter {
	return &vscodeProxyAdapter{httpClient: httpClient}
}

func (a *vscodeProxyAdapter) ServiceType() models.ServiceType { return models.ServiceVSCodeProxy }

func (a *vscodeProxyAdapter) ListModels(ctx context.Context, cfg models.UpstreamConfig, apiKey string) ([]string, error) {
	return []string{cfg.ModelName}, nil
}

func (a *vscodeProxyAdapter) Health(ctx context.Context, cfg models.UpstreamConfig, apiKey string) (bool, int64, error) {
	if cfg.BaseURL == "" {
		return false, 0, fmt.Errorf("vscode_proxy: no base_url configured")
	}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(cfg.BaseURL, "/")+"/models", nil)
	if err != nil {
		return false, 0, err
	}
	resp, err := a.httpClient.Do(req)
	rtt := time.Since(start).Milliseconds()
	if err != nil {
		return false, rtt, err
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500, rtt, nil
}

func (a *vscodeProxyAdapter) TranslateRequest(ctx context.Context, cfg models.UpstreamConfig, apiKey string, openAIPayload []byte, stream bool) (*http.Request, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("vscode_proxy: no base_url configured")
	}
	rewritten, err := rewriteJSONField(openAIPayload, "model", cfg.ModelName)
	if err != nil {
		return nil, fmt.Errorf("vscode_proxy: rewrite model field: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(rewritten))
	if err != nil {
		return nil, fmt.Errorf("vscode_proxy: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (a *vscodeProxyAdapter) TranslateResponseChunk(chunk []byte, cfg models.UpstreamConfig) ([]byte, error) {
	return rewriteSSEModelField(chunk, cfg.PublicName)
}

func (a *vscodeProxyAdapter) TranslateResponse(body []byte, cfg models.UpstreamConfig) ([]byte, error) {
	return rewriteJSONField(body, "model", cfg.PublicName)
}
