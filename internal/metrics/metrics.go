// Package metrics provides Prometheus instrumentation for the settlement backend.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SettlementsTotal counts settlement attempts by outcome
	// (settled, already_ended, already_settled, failed).
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickem_settlements_total",
		Help: "Settlement attempts by outcome",
	}, []string{"outcome"})

	// SettlementDuration tracks one game's settlement latency.
	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pickem_settlement_duration_seconds",
		Help:    "Time to settle a single game",
		Buckets: prometheus.DefBuckets,
	})

	// PricesResolved counts resolved final prices by source.
	PricesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickem_prices_resolved_total",
		Help: "Final prices resolved, by source",
	}, []string{"source"})

	// StatsFailures counts best-effort user statistics updates that failed.
	StatsFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickem_stats_update_failures_total",
		Help: "User statistics updates that failed after settlement",
	})

	// DueGames reports how many games the last trigger tick found due.
	DueGames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pickem_due_games",
		Help: "Games found due by the last settlement tick",
	})

	// WebSocketClients tracks connected notification clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pickem_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickem_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pickem_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by the mux route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
