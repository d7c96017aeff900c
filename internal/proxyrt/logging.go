package proxyrt

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/clads-dev/clads-gateway/internal/logging"
)

// requestMetrics accumulates the fields only known deep inside a handler
// (which upstream config served the request, how many tokens it cost) so
// requestLogger can fold them into its one request-completion log line
// without the handler logging separately. The handler mutates the pointer
// in place; requestLogger reads it only after next.ServeHTTP returns.
type requestMetrics struct {
	PublicName string
	Tokens     int
}

type metricsKey struct{}

func withMetrics(ctx context.Context) (context.Context, *requestMetrics) {
	m := &requestMetrics{}
	return context.WithValue(ctx, metricsKey{}, m), m
}

func metricsFrom(ctx context.Context) *requestMetrics {
	m, _ := ctx.Value(metricsKey{}).(*requestMetrics)
	return m
}

// requestLogger writes one structured INFO line per request (method, path,
// status, response_time_ms, client_ip, request_id, public_name, tokens).
// Uses log/slog for per-request logs, keeping plain log.Printf for
// startup/lifecycle lines (see cmd/gateway). Every request is stamped with a
// request ID up front so upstream call failures logged deeper in the
// handler chain can be correlated back to it; public_name/tokens are filled
// in by the handler via requestMetrics since the router has no visibility
// into which config or token count a request resolved to.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := logging.GenerateRequestID()
		ctx := logging.WithRequestID(r.Context(), reqID)
		ctx, metrics := withMetrics(ctx)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-Id", reqID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"response_time_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP(r),
			"request_id", reqID,
			"public_name", metrics.PublicName,
			"tokens", metrics.Tokens,
		)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
