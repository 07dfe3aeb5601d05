package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/wricardo/bridge/bridge/service"
)

const namespace = "bridge"

// Source is the bridge state the collector reads on every scrape
type Source interface {
	Stats() service.Stats
	ClientStatusList() []service.ClientStatus
}

// Collector exports bridge lifecycle and session gauges
type Collector struct {
	source Source

	active       *prometheus.Desc
	liveSessions *prometheus.Desc
	identities   *prometheus.Desc
	clients      *prometheus.Desc
	restarts     *prometheus.Desc
	bindFailures *prometheus.Desc
	boundAt      *prometheus.Desc
}

// NewCollector creates a collector reading from source
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		active: prometheus.NewDesc(namespace+"_acceptor_active",
			"Whether the acceptor is bound and accepting (1) or not (0).", nil, nil),
		liveSessions: prometheus.NewDesc(namespace+"_live_sessions",
			"Sessions in the acceptor's live table.", nil, nil),
		identities: prometheus.NewDesc(namespace+"_registered_identities",
			"Entries in the identity registry, including stale ones.", nil, nil),
		clients: prometheus.NewDesc(namespace+"_connected_clients",
			"Identified clients with a live session.", nil, nil),
		restarts: prometheus.NewDesc(namespace+"_acceptor_restarts_total",
			"Acceptor restarts requested.", nil, nil),
		bindFailures: prometheus.NewDesc(namespace+"_bind_failures_total",
			"Failed attempts to bind the acceptor.", nil, nil),
		boundAt: prometheus.NewDesc(namespace+"_acceptor_bound_timestamp_seconds",
			"Unix time the current acceptor was bound, 0 when there is none.", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.liveSessions
	ch <- c.identities
	ch <- c.clients
	ch <- c.restarts
	ch <- c.bindFailures
	ch <- c.boundAt
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()

	active := 0.0
	if stats.State == service.StateActive {
		active = 1
	}
	boundAt := 0.0
	if !stats.BoundAt.IsZero() {
		boundAt = float64(stats.BoundAt.UnixNano()) / 1e9
	}

	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, active)
	ch <- prometheus.MustNewConstMetric(c.liveSessions, prometheus.GaugeValue, float64(stats.LiveSessions))
	ch <- prometheus.MustNewConstMetric(c.identities, prometheus.GaugeValue, float64(stats.RegisteredIdentities))
	ch <- prometheus.MustNewConstMetric(c.clients, prometheus.GaugeValue, float64(len(c.source.ClientStatusList())))
	ch <- prometheus.MustNewConstMetric(c.restarts, prometheus.CounterValue, float64(stats.Restarts))
	ch <- prometheus.MustNewConstMetric(c.bindFailures, prometheus.CounterValue, float64(stats.BindFailures))
	ch <- prometheus.MustNewConstMetric(c.boundAt, prometheus.GaugeValue, boundAt)
}

// Frames counts client frames by type
type Frames struct {
	received *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

// NewFrames creates the frame counters
func NewFrames() *Frames {
	return &Frames{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Client frames received, by type.",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rejected_total",
			Help:      "Client frames answered with an error, by type.",
		}, []string{"type"}),
	}
}

// RecordReceived counts one received frame
func (f *Frames) RecordReceived(frameType string) {
	f.received.WithLabelValues(frameType).Inc()
}

// RecordRejected counts one frame answered with an error
func (f *Frames) RecordRejected(frameType string) {
	f.rejected.WithLabelValues(frameType).Inc()
}

// NewRegistry returns a registry holding the Go runtime, process and bridge
// collectors. frames may be nil.
func NewRegistry(source Source, frames *Frames) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		NewCollector(source),
	}
	if frames != nil {
		cs = append(cs, frames.received, frames.rejected)
	}

	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
