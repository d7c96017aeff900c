// Package proxyrt is the Proxy Runtime: the two client-facing HTTP
// listeners (general/special) that translate OpenAI-shaped requests through
// the adapter registry and relay upstream responses back, metering every
// request into the usage recorder. Router construction follows the
// cmd/nexus/main.go chi setup this module was built from, generalized to run
// twice — once per endpoint kind — against one shared handler set instead of
// a single-listener, single-purpose router.
package proxyrt

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/clads-dev/clads-gateway/internal/adapter"
	"github.com/clads-dev/clads-gateway/internal/configsvc"
	"github.com/clads-dev/clads-gateway/internal/usage"
)

// errTTFBExceeded is returned by doWithTTFB when the TTFB deadline elapses
// before the upstream call's headers arrive, distinct from the Total
// deadline (surfaced instead via the request context's own DeadlineExceeded).
var errTTFBExceeded = errors.New("upstream time-to-first-byte exceeded")

// Runtime holds everything both listeners share: the config snapshot
// source, the adapter registry, the usage recorder, and the two upstream
// call timeouts.
type Runtime struct {
	Config   *configsvc.Service
	Adapters *adapter.Registry
	Recorder *usage.Recorder
	DB       *gorm.DB
	Client   *http.Client
	TTFB     time.Duration
	Total    time.Duration
	inFlight atomic.Int64
}

// New builds a Runtime. ttfb bounds time-to-first-byte on upstream calls —
// exceeding it surfaces as a timeout before a single response byte arrives.
// total separately bounds the entire call, including streaming/buffered body
// reads, so a slow-but-live upstream isn't cut off the instant ttfb elapses.
func New(cfg *configsvc.Service, registry *adapter.Registry, recorder *usage.Recorder, db *gorm.DB, ttfb, total time.Duration) *Runtime {
	if ttfb <= 0 {
		ttfb = 30 * time.Second
	}
	if total <= 0 {
		total = 120 * time.Second
	}
	return &Runtime{
		Config:   cfg,
		Adapters: registry,
		Recorder: recorder,
		DB:       db,
		Client:   &http.Client{Timeout: 0}, // per-request deadline is set via context, not a fixed client timeout
		TTFB:     ttfb,
		Total:    total,
	}
}

// doWithTTFB issues req and enforces rt.TTFB against the wait for response
// headers independently of req's own context deadline (which bounds the
// Total call budget instead). When TTFB elapses first, totalCancel is called
// to unblock the backgrounded Do so its goroutine doesn't outlive the
// request.
func (rt *Runtime) doWithTTFB(req *http.Request, totalCancel func()) (*http.Response, error) {
	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := rt.Client.Do(req)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-time.After(rt.TTFB):
		totalCancel()
		return nil, errTTFBExceeded
	}
}

// Router builds the chi router for one endpoint kind (general or special).
// Both listeners expose the same routes against the same Runtime; only the
// configs visible to GET /v1/models and POST /v1/chat/completions differ,
// filtered by configsvc.Snapshot.VisibleOn(kind).
func (rt *Runtime) Router(kind configsvc.EndpointKind) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/v1/models", rt.handleListModels(kind))
	r.Post("/v1/chat/completions", rt.handleChatCompletions(kind))
	r.Post("/v1/completions", rt.handleLegacyCompletions(kind))
	r.Get("/health", rt.handleHealth())

	return r
}
