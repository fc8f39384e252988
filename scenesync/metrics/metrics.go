// Package metrics implements scenesync.MetricsSink on top of a Prometheus
// registry, grounded on the sptp exporter's manual register/collect pattern
// (facebook-time/ptp/sptp/stats/prom_exporter.go) rather than promauto, since
// this sink's metric set is fixed rather than discovered at scrape time.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Sink implements scenesync.MetricsSink.
type Sink struct {
	registry *prometheus.Registry

	ticksServer    prometheus.Counter
	ticksClient    prometheus.Counter
	rewinds        prometheus.Counter
	rewoundObjects prometheus.Histogram
	snapshotBytes  prometheus.Histogram
}

// New creates a Sink backed by its own prometheus.Registry.
func New() *Sink {
	s := &Sink{
		registry: prometheus.NewRegistry(),
		ticksServer: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scenesync_ticks_server_total",
			Help: "Ticks processed while running as the authoritative server.",
		}),
		ticksClient: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scenesync_ticks_client_total",
			Help: "Ticks processed while running as a reconciling client.",
		}),
		rewinds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scenesync_rewinds_total",
			Help: "Reconciliation passes that triggered a rewind.",
		}),
		rewoundObjects: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scenesync_rewind_object_count",
			Help:    "Objects replayed per rewind.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
		snapshotBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scenesync_snapshot_bytes",
			Help:    "Encoded size of each state message sent to a peer.",
			Buckets: prometheus.ExponentialBuckets(16, 2, 10),
		}),
	}
	s.registry.MustRegister(s.ticksServer, s.ticksClient, s.rewinds, s.rewoundObjects, s.snapshotBytes)
	return s
}

// TickProcessed implements scenesync.MetricsSink.
func (s *Sink) TickProcessed(isServer bool) {
	if isServer {
		s.ticksServer.Inc()
	} else {
		s.ticksClient.Inc()
	}
}

// RewindTriggered implements scenesync.MetricsSink.
func (s *Sink) RewindTriggered(objectCount int) {
	s.rewinds.Inc()
	s.rewoundObjects.Observe(float64(objectCount))
}

// SnapshotBytes implements scenesync.MetricsSink.
func (s *Sink) SnapshotBytes(n int) {
	s.snapshotBytes.Observe(float64(n))
}

// Handler returns the http.Handler that serves this sink's registry at
// /metrics, mirroring the sptp exporter's promhttp wiring.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ListenAndServe blocks serving the registry's /metrics endpoint on port.
func (s *Sink) ListenAndServe(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	log.Infof("scenesync metrics listening on :%d/metrics", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
