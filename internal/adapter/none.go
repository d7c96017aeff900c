package adapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/clads-dev/clads-gateway/internal/store/models"
)

// noneAdapter backs service_type "none": a placeholder config row (reserved
// or disabled on purpose) that must never actually be dispatched to. Every
// method returns an explicit error so a routing bug surfaces immediately
// instead of silently forwarding to nowhere.
type noneAdapter struct{}

func newNoneAdapter() *noneAdapter { return &noneAdapter{} }

func (a *noneAdapter) ServiceType() models.ServiceType { return models.ServiceNone }

func (a *noneAdapter) ListModels(ctx context.Context, cfg models.UpstreamConfig, apiKey string) ([]string, error) {
	return nil, fmt.Errorf("config %d has service_type none: not routable", cfg.ID)
}

func (a *noneAdapter) Health(ctx context.Context, cfg models.UpstreamConfig, apiKey string) (bool, int64, error) {
	return false, 0, fmt.Errorf("config %d has service_type none: not routable", cfg.ID)
}

func (a *noneAdapter) TranslateRequest(ctx context.Context, cfg models.UpstreamConfig, apiKey string, openAIPayload []byte, stream bool) (*http.Request, error) {
	return nil, fmt.Errorf("config %d has service_type none: not routable", cfg.ID)
}

func (a *noneAdapter) TranslateResponseChunk(chunk []byte, cfg models.UpstreamConfig) ([]byte, error) {
	return nil, fmt.Errorf("config %d has service_type none: not routable", cfg.ID)
}

func (a *noneAdapter) TranslateResponse(body []byte, cfg models.UpstreamConfig) ([]byte, error) {
	return nil, fmt.Errorf("config %d has service_type none: not routable", cfg.ID)
}
