// Package metrics exposes Prometheus instrumentation for the platform
// server on a side HTTP listener.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the platform updates.
type Metrics struct {
	registry *prometheus.Registry

	ActiveConnections  prometheus.Gauge
	ActiveSessions     prometheus.Gauge
	RunningGameServers prometheus.Gauge

	RequestsTotal   *prometheus.CounterVec
	UploadedBytes   prometheus.Counter
	DownloadedBytes prometheus.Counter
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playhub_active_connections",
			Help: "Currently open client connections",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playhub_active_sessions",
			Help: "Currently authenticated sessions",
		}),
		RunningGameServers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playhub_running_game_servers",
			Help: "Game-server subprocesses currently tracked",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playhub_requests_total",
			Help: "Requests handled, by action and response status",
		}, []string{"action", "status"}),
		UploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playhub_uploaded_bytes_total",
			Help: "Bundle bytes received from developers",
		}),
		DownloadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playhub_downloaded_bytes_total",
			Help: "Bundle bytes streamed to players",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ActiveConnections,
		m.ActiveSessions,
		m.RunningGameServers,
		m.RequestsTotal,
		m.UploadedBytes,
		m.DownloadedBytes,
	)
	return m
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the /metrics endpoint until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
