// Package metrics provides Prometheus instrumentation for the simulation
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fortunevalley/sim-engine/internal/event"
)

var (
	// TicksTotal counts simulated in-game days.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_ticks_total",
		Help: "Total simulated in-game days",
	})

	// SessionsStarted counts game sessions started.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_sessions_started_total",
		Help: "Total game sessions started",
	})

	// SessionsEnded counts finished sessions, partitioned by winner.
	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_sessions_ended_total",
		Help: "Total finished sessions by winner",
	}, []string{"winner"})

	// TradesTotal counts position opens and closes.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_trades_total",
		Help: "Total position opens and closes",
	}, []string{"side"})

	// LotPurchasesTotal counts lot purchases by owner.
	LotPurchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_lot_purchases_total",
		Help: "Total lot purchases by owner",
	}, []string{"owner"})

	// ClockSpeed tracks the current session's speed multiplier.
	ClockSpeed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fv_clock_speed",
		Help: "Current session speed multiplier",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fv_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fv_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Observe maps domain events onto the counters above. Register it with
// Engine.OnEvent so every session feeds the same metrics.
func Observe(e event.Event) {
	switch e.Type {
	case event.Tick:
		TicksTotal.Inc()
	case event.GameStarted:
		SessionsStarted.Inc()
		ClockSpeed.Set(1)
	case event.GameEnded:
		if data, ok := e.Data.(event.EndData); ok {
			SessionsEnded.WithLabelValues(data.Winner).Inc()
		}
	case event.SpeedChanged:
		if data, ok := e.Data.(event.SpeedData); ok {
			ClockSpeed.Set(data.Multiplier)
		}
	case event.PositionOpened:
		TradesTotal.WithLabelValues("open").Inc()
	case event.PositionClosed:
		TradesTotal.WithLabelValues("close").Inc()
	case event.LotPurchased:
		if data, ok := e.Data.(event.LotData); ok {
			LotPurchasesTotal.WithLabelValues(data.Owner).Inc()
		}
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the route surface is small and
		// the only parameterized segment is the lot ID.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
