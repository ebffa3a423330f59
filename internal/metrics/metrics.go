// Package metrics exposes server counters over a private Prometheus registry.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the server updates.
type Metrics struct {
	registry *prometheus.Registry

	ActiveConnections   prometheus.Gauge
	AcceptedConnections prometheus.Counter
	DeniedConnections   prometheus.Counter
	Commands            *prometheus.CounterVec
	BroadcastMessages   prometheus.Counter
	Mutes               prometheus.Counter
}

// New constructs the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,
		ActiveConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "lobbyd_active_connections",
			Help: "Currently served client connections",
		}),
		AcceptedConnections: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lobbyd_accepted_connections_total",
			Help: "Connections admitted into service",
		}),
		DeniedConnections: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lobbyd_denied_connections_total",
			Help: "Connections rejected at the admission ceiling",
		}),
		Commands: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lobbyd_commands_total",
			Help: "Dispatched protocol commands by name",
		}, []string{"command"}),
		BroadcastMessages: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lobbyd_broadcast_messages_total",
			Help: "Channel messages broadcast to members",
		}),
		Mutes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lobbyd_mutes_total",
			Help: "Mutes installed by the antispam engine",
		}),
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
