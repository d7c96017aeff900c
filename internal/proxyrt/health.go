package proxyrt

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status string       `json:"status"`
	Checks healthChecks `json:"checks"`
}

type healthChecks struct {
	DB         bool  `json:"db"`
	QueueDepth int   `json:"queue_depth"`
	InFlight   int64 `json:"in_flight"`
}

// handleHealth reports {status, checks: {db, queue_depth, in_flight}}.
func (rt *Runtime) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := rt.DB.DB()
		dbOK := err == nil && sqlDB.Ping() == nil

		status := "ok"
		if !dbOK {
			status = "degraded"
		}

		resp := healthResponse{
			Status: status,
			Checks: healthChecks{
				DB:         dbOK,
				QueueDepth: rt.Recorder.Stats().QueueDepth,
				InFlight:   rt.inFlight.Load(),
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if !dbOK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
