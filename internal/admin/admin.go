// Package admin is the management surface: config CRUD, snapshot reload,
// and liveness/readiness probes, mounted on its own port separate from the
// two client-facing proxy listeners. Modeled on the chi router in
// cmd/nexus/main.go, including its optionalAdminAuth Basic-Auth wrapper,
// generalized into a small router of its own instead of being inlined into
// main.
package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/clads-dev/clads-gateway/internal/apierr"
	"github.com/clads-dev/clads-gateway/internal/configsvc"
	"github.com/clads-dev/clads-gateway/internal/dashboard"
	"github.com/clads-dev/clads-gateway/internal/usage"
)

// Router holds everything the admin surface needs: the config service for
// CRUD and reload, the dashboard query for leaderboards/time buckets, the
// usage recorder for health's queue_depth, and the raw db for health's db
// check.
type Router struct {
	Config    *configsvc.Service
	Dashboard *dashboard.Query
	Recorder  *usage.Recorder
	DB        *gorm.DB

	// Password, when non-empty, requires HTTP Basic Auth (any username,
	// this password) on every route except /health*. Empty disables auth,
	// matching optionalAdminAuth's "no NEXUS_ADMIN_PASSWORD set" behavior.
	Password string
}

func (ar *Router) optionalAdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ar.Password == "" {
			next.ServeHTTP(w, r)
			return
		}
		_, pass, ok := r.BasicAuth()
		if !ok || pass != ar.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="gateway admin"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler builds the admin chi router.
func (ar *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", ar.handleHealth)
	r.Get("/health/live", ar.handleLive)
	r.Get("/health/ready", ar.handleReady)

	r.Group(func(r chi.Router) {
		r.Use(ar.optionalAdminAuth)
		r.Post("/admin/reload", ar.handleReload)

		r.Get("/admin/configs", ar.handleListConfigs)
		r.Post("/admin/configs", ar.handleCreateConfig)
		r.Get("/admin/configs/{id}", ar.handleGetConfig)
		r.Put("/admin/configs/{id}", ar.handleUpdateConfig)
		r.Delete("/admin/configs/{id}", ar.handleDeleteConfig)

		r.Get("/admin/dashboard/leaderboard/clients", ar.handleClientLeaderboard)
		r.Get("/admin/dashboard/leaderboard/models", ar.handleModelLeaderboard)
	})

	return r
}

// handleLive always reports ok: it answers "is the process still running",
// never touching the database.
func (ar *Router) handleLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReady reports ok only once the first config snapshot has loaded.
func (ar *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if ar.Config.Snapshot() == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not_ready"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleHealth reports {status, checks: {db, queue_depth, in_flight}}; the
// admin surface has no request traffic of its own, so in_flight is always 0.
func (ar *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := ar.DB.DB()
	dbOK := err == nil && sqlDB.Ping() == nil

	status := "ok"
	if !dbOK {
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if !dbOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": map[string]interface{}{
			"db":          dbOK,
			"queue_depth": ar.Recorder.Stats().QueueDepth,
			"in_flight":   0,
		},
	})
}

// handleReload triggers an immediate snapshot rebuild and reports how many
// configs loaded plus any skipped for a bad API key, mirroring
// ResetModelRoutesHandler's "force a fresh read" shape generalized from a
// full reset to a plain reload.
func (ar *Router) handleReload(w http.ResponseWriter, r *http.Request) {
	failed, err := ar.Config.Reload()
	if err != nil {
		apierr.Write(w, apierr.New(apierr.KindInternal, "reload failed: "+err.Error()))
		return
	}
	if failed == nil {
		failed = []configsvc.ReloadFailure{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"loaded": len(ar.Config.Snapshot().VisibleOn(configsvc.EndpointGeneral)),
		"failed": failed,
	})
}

func (ar *Router) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := ar.Config.List()
	if err != nil {
		apierr.Write(w, apierr.New(apierr.KindInternal, "failed to list configs"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(configs)
}

func (ar *Router) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		apierr.Write(w, apierr.New(apierr.KindInvalidRequest, "invalid config id"))
		return
	}
	reveal := r.URL.Query().Get("reveal") == "true"
	masked, plaintext, err := ar.Config.Get(id, reveal)
	if err != nil {
		apierr.Write(w, apierr.New(apierr.KindInvalidRequest, "config not found"))
		return
	}
	out := map[string]interface{}{"config": masked}
	if reveal {
		out["api_key"] = plaintext
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (ar *Router) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var in configsvc.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apierr.Write(w, apierr.New(apierr.KindInvalidRequest, "invalid request body"))
		return
	}
	cfg, err := ar.Config.Create(in)
	if err != nil {
		apierr.Write(w, apierr.New(apierr.KindInvalidRequest, err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(cfg.Masked(""))
}

func (ar *Router) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		apierr.Write(w, apierr.New(apierr.KindInvalidRequest, "invalid config id"))
		return
	}
	var in configsvc.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apierr.Write(w, apierr.New(apierr.KindInvalidRequest, "invalid request body"))
		return
	}
	cfg, err := ar.Config.Update(id, in)
	if err != nil {
		apierr.Write(w, apierr.New(apierr.KindInvalidRequest, err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg.Masked(""))
}

func (ar *Router) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		apierr.Write(w, apierr.New(apierr.KindInvalidRequest, "invalid config id"))
		return
	}
	if err := ar.Config.Delete(id); err != nil {
		apierr.Write(w, apierr.New(apierr.KindInternal, "delete failed: "+err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ar *Router) handleClientLeaderboard(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r)
	if err != nil {
		apierr.Write(w, apierr.New(apierr.KindInvalidRequest, err.Error()))
		return
	}
	rows, err := ar.Dashboard.ClientLeaderboard(start, end)
	if err != nil {
		apierr.Write(w, apierr.New(apierr.KindInternal, "leaderboard query failed"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

func (ar *Router) handleModelLeaderboard(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r)
	if err != nil {
		apierr.Write(w, apierr.New(apierr.KindInvalidRequest, err.Error()))
		return
	}
	rows, err := ar.Dashboard.ModelLeaderboard(start, end)
	if err != nil {
		apierr.Write(w, apierr.New(apierr.KindInternal, "leaderboard query failed"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

func parseID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	return uint(id), err
}

// parseRange reads ?start=&end= as RFC3339 timestamps, defaulting to the
// trailing 24 hours when either is omitted.
func parseRange(r *http.Request) (start, end time.Time, err error) {
	end = time.Now().UTC()
	start = end.Add(-24 * time.Hour)

	if v := r.URL.Query().Get("start"); v != "" {
		start, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		end, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
		}
	}
	return start, end, nil
}
