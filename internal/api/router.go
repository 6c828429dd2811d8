package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/pickem/backend/internal/api/handlers"
	"github.com/wonny/pickem/backend/internal/metrics"
	"github.com/wonny/pickem/backend/pkg/logger"
)

// Routes groups everything the router mounts. WebSocket and Metrics may be nil.
type Routes struct {
	Settlement *handlers.SettlementHandler
	Health     *handlers.HealthHandler
	WebSocket  http.HandlerFunc
	Metrics    http.Handler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(routes Routes, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	if routes.Health != nil {
		r.HandleFunc("/health", routes.Health.GetHealth).Methods("GET")
	} else {
		r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	}

	if routes.Metrics != nil {
		r.Handle("/metrics", routes.Metrics).Methods("GET")
	}
	if routes.WebSocket != nil {
		r.HandleFunc("/ws", routes.WebSocket).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Settlement endpoints
	s := routes.Settlement
	api.HandleFunc("/games/{code}/leaderboard", s.GetLeaderboard).Methods("GET")
	api.HandleFunc("/games/{code}/players/{playerId}/result", s.GetPlayerResult).Methods("GET")
	api.HandleFunc("/games/{code}/settle", s.ForceSettle).Methods("POST")
	api.HandleFunc("/users/{userId}/stats", s.GetUserStats).Methods("GET")

	// Apply middleware
	r.Use(metrics.Middleware)
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler is the static fallback when no dependencies are wired
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "pickem-settlement",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
