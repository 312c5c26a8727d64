// Package api provides the observability surfaces of a replica: Prometheus
// metrics, the metrics HTTP server and the gRPC health server.
package api

import (
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fabric labels
const (
	FabricClient  = "client"
	FabricReplica = "replica"
)

// Metrics holds all Prometheus metrics for a replica. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// Transport metrics
	FramesIn        *prometheus.CounterVec
	FramesOut       *prometheus.CounterVec
	DecodeErrors    *prometheus.CounterVec
	ConnectionsOpen *prometheus.GaugeVec
	DroppedMessages *prometheus.CounterVec
	DialAttempts    prometheus.Counter

	// Engine metrics
	TransactionsPooled prometheus.Counter
	MempoolSize        prometheus.Gauge
	BlocksCommitted    prometheus.Counter
	BlockSize          prometheus.Histogram
	BlockLatency       prometheus.Histogram
	ProposalsReceived  prometheus.Counter
}

// NewMetrics registers a fresh metric set under namespace in its own
// registry, together with the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		FramesIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames decoded per fabric",
		}, []string{"fabric"}),
		FramesOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written per fabric",
		}, []string{"fabric"}),
		DecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Connections closed on a malformed frame, per fabric",
		}, []string{"fabric"}),
		ConnectionsOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Currently open connections per fabric",
		}, []string{"fabric"}),
		DroppedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Outbound messages dropped, by fabric and reason",
		}, []string{"fabric", "reason"}),
		DialAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_attempts_total",
			Help:      "Outbound dial attempts to peer replicas",
		}),

		TransactionsPooled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_pooled_total",
			Help:      "Client transactions accepted into the pool",
		}),
		MempoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool_size",
			Help:      "Current number of pending transactions",
		}),
		BlocksCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_committed_total",
			Help:      "Blocks produced and delivered",
		}),
		BlockSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_size",
			Help:      "Number of transactions per block",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		BlockLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_latency_seconds",
			Help:      "Time from first pooled transaction to block delivery",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		ProposalsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_received_total",
			Help:      "Proposals received from peer replicas",
		}),
	}
}

// RecordFrameIn counts a decoded frame.
func (m *Metrics) RecordFrameIn(fabric string) {
	if m == nil {
		return
	}
	m.FramesIn.WithLabelValues(fabric).Inc()
}

// RecordFrameOut counts a written frame.
func (m *Metrics) RecordFrameOut(fabric string) {
	if m == nil {
		return
	}
	m.FramesOut.WithLabelValues(fabric).Inc()
}

// RecordDecodeError counts a connection lost to a bad frame.
func (m *Metrics) RecordDecodeError(fabric string) {
	if m == nil {
		return
	}
	m.DecodeErrors.WithLabelValues(fabric).Inc()
}

// ConnOpened increments the open connection gauge.
func (m *Metrics) ConnOpened(fabric string) {
	if m == nil {
		return
	}
	m.ConnectionsOpen.WithLabelValues(fabric).Inc()
}

// ConnClosed decrements the open connection gauge.
func (m *Metrics) ConnClosed(fabric string) {
	if m == nil {
		return
	}
	m.ConnectionsOpen.WithLabelValues(fabric).Dec()
}

// RecordDrop counts a dropped outbound message.
func (m *Metrics) RecordDrop(fabric, reason string) {
	if m == nil {
		return
	}
	m.DroppedMessages.WithLabelValues(fabric, reason).Inc()
}

// RecordDial counts a dial attempt.
func (m *Metrics) RecordDial() {
	if m == nil {
		return
	}
	m.DialAttempts.Inc()
}

// RecordPooled counts an accepted transaction and updates the pool gauge.
func (m *Metrics) RecordPooled(poolSize int) {
	if m == nil {
		return
	}
	m.TransactionsPooled.Inc()
	m.MempoolSize.Set(float64(poolSize))
}

// RecordBlock records a produced block.
func (m *Metrics) RecordBlock(size, poolSize int, latency time.Duration) {
	if m == nil {
		return
	}
	m.BlocksCommitted.Inc()
	m.BlockSize.Observe(float64(size))
	m.BlockLatency.Observe(latency.Seconds())
	m.MempoolSize.Set(float64(poolSize))
}

// RecordProposal counts a proposal from a peer.
func (m *Metrics) RecordProposal() {
	if m == nil {
		return
	}
	m.ProposalsReceived.Inc()
}

// MetricsServer runs an HTTP server exposing /metrics and /health.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a metrics server on addr serving reg.
func NewMetricsServer(addr string, reg *prometheus.Registry) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's HTTP handler.
func (s *MetricsServer) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	return s.server.ListenAndServe()
}

// Serve serves on an existing listener (blocking).
func (s *MetricsServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop stops the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}
