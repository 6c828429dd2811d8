package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wonny/pickem/backend/pkg/database"
)

// Pinger is anything with a liveness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// DetailedChecker reports pool level detail on top of liveness
type DetailedChecker interface {
	HealthCheck(ctx context.Context) (*database.HealthStatus, error)
}

// HealthHandler reports dependency health
type HealthHandler struct {
	deps map[string]Pinger
}

// NewHealthHandler checks each named dependency on every request.
// Dependencies that also implement DetailedChecker get their detail reported.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// GetHealth returns 200 when every dependency answers, 503 otherwise
// GET /health
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.deps))
	details := make(map[string]*database.HealthStatus)
	status := http.StatusOK
	for name, dep := range h.deps {
		var err error
		if dc, ok := dep.(DetailedChecker); ok {
			var detail *database.HealthStatus
			detail, err = dc.HealthCheck(ctx)
			if detail != nil {
				details[name] = detail
			}
		} else {
			err = dep.Ping(ctx)
		}

		if err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	body := map[string]interface{}{
		"status":  overall,
		"service": "pickem-settlement",
		"checks":  checks,
	}
	if len(details) > 0 {
		body["details"] = details
	}
	respondJSON(w, status, body)
}
