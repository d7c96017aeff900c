package adapter

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clads-dev/clads-gateway/internal/store/models"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestCompatAdapterTranslateRequest_RewritesModelAndInjectsAuth(t *testing.T) {
	a := newOpenAICompatAdapter(models.ServiceOpenRouter, "https://openrouter.ai/api/v1", &http.Client{})
	cfg := models.UpstreamConfig{ModelName: "openai/gpt-4o-mini", PublicName: "fast"}

	req, err := a.TranslateRequest(context.Background(), cfg, "server-key",
		[]byte(`{"model":"whatever","messages":[{"role":"user","content":"hi"}]}`), false)
	require.NoError(t, err)
	require.Equal(t, "Bearer server-key", req.Header.Get("Authorization"))

	body, _ := io.ReadAll(req.Body)
	require.Contains(t, string(body), `"model":"openai/gpt-4o-mini"`)
}

func TestCompatAdapterTranslateResponse_RewritesModelToPublicName(t *testing.T) {
	a := newOpenAICompatAdapter(models.ServiceOpenAICompatible, "", &http.Client{})
	cfg := models.UpstreamConfig{PublicName: "my-local-model"}

	out, err := a.TranslateResponse([]byte(`{"id":"x","model":"upstream-internal-name"}`), cfg)
	require.NoError(t, err)
	require.Contains(t, string(out), `"model":"my-local-model"`)
}

func TestCompatAdapterTranslateResponseChunk_PassesThroughDone(t *testing.T) {
	a := newOpenAICompatAdapter(models.ServiceOpenAI, "https://api.openai.com/v1", &http.Client{})
	cfg := models.UpstreamConfig{PublicName: "gpt-4o"}

	out, err := a.TranslateResponseChunk([]byte("data: [DONE]"), cfg)
	require.NoError(t, err)
	require.Equal(t, "data: [DONE]", string(out))
}

func TestCompatAdapterListModels_UsesConfiguredBaseURL(t *testing.T) {
	var capturedURL string
	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		capturedURL = r.URL.String()
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"data":[{"id":"m1"},{"id":"m2"}]}`)),
		}, nil
	})}
	a := newOpenAICompatAdapter(models.ServiceLMStudio, "http://localhost:1234/v1", client)
	cfg := models.UpstreamConfig{BaseURL: "http://custom-host:9999/v1"}

	ids, err := a.ListModels(context.Background(), cfg, "")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(capturedURL, "http://custom-host:9999/v1"))
	require.Equal(t, []string{"m1", "m2"}, ids)
}

func TestRegistryDispatchesByServiceType(t *testing.T) {
	reg := NewRegistry(nil)
	for _, st := range models.ValidServiceTypes() {
		a, err := reg.For(st)
		require.NoError(t, err, "expected adapter for %s", st)
		require.Equal(t, st, a.ServiceType())
	}
}
