package proxyrt

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clads-dev/clads-gateway/internal/apierr"
	"github.com/clads-dev/clads-gateway/internal/configsvc"
	"github.com/clads-dev/clads-gateway/internal/logging"
	"github.com/clads-dev/clads-gateway/internal/store/models"
	"github.com/clads-dev/clads-gateway/internal/upstream"
	"github.com/clads-dev/clads-gateway/internal/util"
)

type modelsResponse struct {
	Object string      `json:"object"`
	Data   []modelItem `json:"data"`
}

type modelItem struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// handleListModels returns every enabled config visible on this endpoint,
// following the OpenAIModelsListHandler shape (plain {object, data: [...]}
// listing) but sourced from the snapshot instead of a declared-models config
// row.
func (rt *Runtime) handleListModels(kind configsvc.EndpointKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := rt.Config.Snapshot().VisibleOn(kind)
		out := modelsResponse{Object: "list"}
		for _, e := range entries {
			out.Data = append(out.Data, modelItem{ID: e.Config.PublicName, Object: "model", OwnedBy: string(e.Config.ServiceType)})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

type incomingChatRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// handleLegacyCompletions translates a legacy /v1/completions {prompt: "..."}
// body into a single-user-message chat completion and dispatches it through
// the same path as handleChatCompletions — none of the wired adapters expose
// a legacy completions endpoint worth preserving end to end.
func (rt *Runtime) handleLegacyCompletions(kind configsvc.EndpointKind) http.HandlerFunc {
	chat := rt.handleChatCompletions(kind)
	return func(w http.ResponseWriter, r *http.Request) {
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			apierr.Write(w, apierr.New(apierr.KindInvalidRequest, "failed to read request body"))
			return
		}
		var legacy struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
			Stream bool   `json:"stream"`
		}
		if err := json.Unmarshal(bodyBytes, &legacy); err != nil {
			apierr.Write(w, apierr.New(apierr.KindInvalidRequest, "invalid request body: "+err.Error()))
			return
		}
		rewritten, err := json.Marshal(map[string]interface{}{
			"model":    legacy.Model,
			"stream":   legacy.Stream,
			"messages": []map[string]string{{"role": "user", "content": legacy.Prompt}},
		})
		if err != nil {
			apierr.Write(w, apierr.New(apierr.KindInternal, "failed to translate legacy request"))
			return
		}
		r.Body = io.NopCloser(strings.NewReader(string(rewritten)))
		r.ContentLength = int64(len(rewritten))
		chat(w, r)
	}
}

// handleChatCompletions is the core relay: config lookup → endpoint
// visibility filter → adapter dispatch → upstream call → response translation
// → usage metering. Streaming follows handlers.handleOpenAIStreaming's shape
// (bufio.Scanner over the upstream body, http.Flusher) almost verbatim,
// adapted to the generic Adapter.TranslateResponseChunk contract instead of
// a Gemini-specific unwrap.
func (rt *Runtime) handleChatCompletions(kind configsvc.EndpointKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt.inFlight.Add(1)
		defer rt.inFlight.Add(-1)

		start := time.Now()
		clientIP := clientIP(r)

		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			apierr.Write(w, apierr.New(apierr.KindInvalidRequest, "failed to read request body"))
			return
		}

		var in incomingChatRequest
		if err := json.Unmarshal(bodyBytes, &in); err != nil {
			apierr.Write(w, apierr.New(apierr.KindInvalidRequest, "invalid request body: "+err.Error()))
			return
		}

		snapshot := rt.Config.Snapshot()
		entry, ok := snapshot.Lookup(in.Model)
		if !ok {
			rt.recordOutcome(r.Context(), clientIP, in.Model, nil, models.StatusClientError, start, "")
			apierr.Write(w, apierr.New(apierr.KindModelNotFound, "Model '"+in.Model+"' not found").WithParam("model"))
			return
		}
		if (kind == configsvc.EndpointGeneral && !entry.Config.AvailableOnGeneral) ||
			(kind == configsvc.EndpointSpecial && !entry.Config.AvailableOnSpecial) {
			rt.recordOutcome(r.Context(), clientIP, in.Model, &entry.Config.ID, models.StatusClientError, start, "")
			apierr.Write(w, apierr.New(apierr.KindPermissionDenied, "Model '"+in.Model+"' is not available on this endpoint"))
			return
		}

		a, err := rt.Adapters.For(entry.Config.ServiceType)
		if err != nil {
			rt.recordOutcome(r.Context(), clientIP, in.Model, &entry.Config.ID, models.StatusUpstreamError, start, err.Error())
			apierr.Write(w, apierr.New(apierr.KindInternal, "no adapter available for this model"))
			return
		}

		// Total bounds the whole call — dispatch plus the full body read — via
		// the request context, so net/http aborts a body Read the same way it
		// aborts a pending Do. TTFB bounds only the wait for the first
		// response byte and is enforced independently below, since it has to
		// fire before the body even starts arriving.
		ctx, cancel := context.WithTimeout(r.Context(), rt.Total)
		defer cancel()

		upstreamReq, err := a.TranslateRequest(ctx, entry.Config, entry.APIKey, bodyBytes, in.Stream)
		if err != nil {
			rt.recordOutcome(r.Context(), clientIP, in.Model, &entry.Config.ID, models.StatusUpstreamError, start, err.Error())
			apierr.Write(w, apierr.New(apierr.KindUpstreamError, "failed to build upstream request"))
			return
		}

		resp, err := rt.doWithTTFB(upstreamReq, cancel)
		if err != nil {
			if errors.Is(err, errTTFBExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				rt.recordOutcome(r.Context(), clientIP, in.Model, &entry.Config.ID, models.StatusTimeout, start, "upstream timed out")
				apierr.Write(w, apierr.New(apierr.KindTimeout, "upstream request timed out"))
				return
			}
			rt.recordOutcome(r.Context(), clientIP, in.Model, &entry.Config.ID, models.StatusUpstreamError, start, err.Error())
			apierr.Write(w, apierr.New(apierr.KindUpstreamError, "upstream request failed"))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			rt.recordOutcome(r.Context(), clientIP, in.Model, &entry.Config.ID, models.StatusUpstreamError, start, "upstream authentication failed")
			apierr.Write(w, apierr.New(apierr.KindAuthentication, "upstream authentication failed"))
			return
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := upstream.ParseRetryDelay(resp)
			rt.recordOutcome(r.Context(), clientIP, in.Model, &entry.Config.ID, models.StatusUpstreamError, start, "upstream rate limited")
			apierr.Write(w, apierr.New(apierr.KindRateLimit, "upstream rate limit exceeded").WithRetryAfter(retryAfter))
			return
		}
		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			slog.Warn("upstream returned 5xx",
				"request_id", logging.GetRequestID(r.Context()),
				"config_id", entry.Config.ID,
				"status", resp.StatusCode,
				"body", util.TruncateBytes(body),
			)
			rt.recordOutcome(r.Context(), clientIP, in.Model, &entry.Config.ID, models.StatusUpstreamError, start, "upstream returned 5xx")
			apierr.Write(w, apierr.New(apierr.KindUpstreamError, "upstream returned an error"))
			return
		}

		if in.Stream {
			rt.relayStreaming(r.Context(), w, resp, a, entry, clientIP, in.Model, start, estimateFromChars(len(bodyBytes)))
			return
		}
		rt.relayBuffered(r.Context(), w, resp, a, entry, clientIP, in.Model, start)
	}
}

func (rt *Runtime) relayBuffered(ctx context.Context, w http.ResponseWriter, resp *http.Response, a interface {
	TranslateResponse(body []byte, cfg models.UpstreamConfig) ([]byte, error)
}, entry configsvc.Entry, clientIP, requestedModel string, start time.Time) {
	upstreamBody, err := io.ReadAll(resp.Body)
	if err != nil {
		status, kind := classifyBodyReadErr(err)
		rt.recordOutcome(ctx, clientIP, requestedModel, &entry.Config.ID, status, start, err.Error())
		apierr.Write(w, apierr.New(kind, "failed to read upstream response"))
		return
	}

	translated, err := a.TranslateResponse(upstreamBody, entry.Config)
	if err != nil {
		rt.recordOutcome(ctx, clientIP, requestedModel, &entry.Config.ID, models.StatusUpstreamError, start, err.Error())
		apierr.Write(w, apierr.New(apierr.KindUpstreamError, "failed to translate upstream response"))
		return
	}

	inputTokens, outputTokens := extractUsage(translated)
	w.Header().Set("Content-Type", "application/json")
	w.Write(translated)

	if m := metricsFrom(ctx); m != nil {
		m.PublicName = entry.Config.PublicName
		m.Tokens = inputTokens + outputTokens
	}

	rec := models.UsageRecord{
		ClientIP:       clientIP,
		PublicName:     requestedModel,
		ConfigID:       &entry.Config.ID,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		Status:         models.StatusSuccess,
	}
	rt.Recorder.Record(rec)
}

func (rt *Runtime) relayStreaming(ctx context.Context, w http.ResponseWriter, resp *http.Response, a interface {
	TranslateResponseChunk(chunk []byte, cfg models.UpstreamConfig) ([]byte, error)
}, entry configsvc.Entry, clientIP, requestedModel string, start time.Time, inputTokens int) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		apierr.Write(w, apierr.New(apierr.KindInternal, "streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	outputChars := 0
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		translated, err := a.TranslateResponseChunk([]byte(line), entry.Config)
		if err != nil || translated == nil {
			continue // recovered locally: drop the unparseable/empty frame, keep streaming
		}
		if strings.Contains(string(translated), "[DONE]") {
			break // the gateway always emits its own terminator below, never the upstream's verbatim
		}
		outputChars += len(extractChunkText(translated))
		w.Write(translated)
		io.WriteString(w, "\n\n")
		flusher.Flush()
	}
	io.WriteString(w, "data: [DONE]\n\n")
	flusher.Flush()

	status := models.StatusSuccess
	errMsg := ""
	if err := scanner.Err(); err != nil {
		status, _ = classifyBodyReadErr(err)
		errMsg = err.Error()
	}

	outputTokens := estimateFromChars(outputChars)
	if m := metricsFrom(ctx); m != nil {
		m.PublicName = entry.Config.PublicName
		m.Tokens = inputTokens + outputTokens
	}

	rec := models.UsageRecord{
		ClientIP:       clientIP,
		PublicName:     requestedModel,
		ConfigID:       &entry.Config.ID,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		ErrorMessage:   errMsg,
		Status:         status,
	}
	rt.Recorder.Record(rec)
}

func (rt *Runtime) recordOutcome(ctx context.Context, clientIP, requestedModel string, configID *uint, status models.UsageStatus, start time.Time, errMsg string) {
	if m := metricsFrom(ctx); m != nil {
		m.PublicName = requestedModel
	}
	rt.Recorder.Record(models.UsageRecord{
		ClientIP:       clientIP,
		PublicName:     requestedModel,
		ConfigID:       configID,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		Status:         status,
		ErrorMessage:   errMsg,
	})
}

// classifyBodyReadErr distinguishes a body read aborted by our own Total
// deadline (timeout) from one aborted by the client disconnecting
// (client_error) from any other upstream read failure (upstream_error). ctx
// is a child of the client's request context, so either cause surfaces as a
// context error on the read.
func classifyBodyReadErr(err error) (models.UsageStatus, apierr.Kind) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.StatusTimeout, apierr.KindTimeout
	case errors.Is(err, context.Canceled):
		return models.StatusClientError, apierr.KindUpstreamError
	default:
		return models.StatusUpstreamError, apierr.KindUpstreamError
	}
}

func estimateFromChars(n int) int {
	tokens := n / 4
	if tokens == 0 && n > 0 {
		tokens = 1
	}
	return tokens
}

func extractUsage(body []byte) (int, int) {
	var parsed struct {
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, 0
	}
	return parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens
}

func extractChunkText(chunk []byte) string {
	line := strings.TrimSpace(string(chunk))
	line = strings.TrimPrefix(line, "data:")
	line = strings.TrimSpace(line)
	if line == "" || line == "[DONE]" {
		return ""
	}
	var parsed struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(line), &parsed); err != nil || len(parsed.Choices) == 0 {
		return ""
	}
	return parsed.Choices[0].Delta.Content
}
