package stats

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	Namespace = "SeaweedFS"
)

var (
	Gather = prometheus.NewRegistry()

	VolumeServerRamTierBytesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "volumeServer",
			Name:      "ram_tier_bytes",
			Help:      "RAM tier capacity, used and reserved bytes per volume.",
		}, []string{"volume", "type"})

	VolumeServerRamTierReservationDeniedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "volumeServer",
			Name:      "ram_tier_reservation_denied_total",
			Help:      "Counter of RAM tier reservations denied for lack of space.",
		}, []string{"volume"})

	VolumeServerReplicaGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "volumeServer",
			Name:      "replicas",
			Help:      "Number of tracked replicas by state.",
		}, []string{"state"})

	VolumeServerLazyPersistCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "volumeServer",
			Name:      "lazy_persist_total",
			Help:      "Counter of lazy writer persist and eviction outcomes.",
		}, []string{"type"})

	VolumeServerLazyWriterHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "volumeServer",
			Name:      "lazy_writer_cycle_seconds",
			Help:      "Bucketed histogram of lazy writer cycle time.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 24),
		}, []string{"type"})

	VolumeServerBlockRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "volumeServer",
			Name:      "block_request_total",
			Help:      "Counter of block reads and writes by medium.",
		}, []string{"type", "medium"})

	MasterReceivedHeartbeatCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "master",
			Name:      "received_heartbeats",
			Help:      "Counter of master received heartbeat.",
		}, []string{"type"})

	MasterDeadDataNodeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "master",
			Name:      "dead_data_nodes",
			Help:      "Number of data nodes currently considered dead.",
		})

	MasterUnderReplicatedBlockGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "master",
			Name:      "under_replicated_blocks",
			Help:      "Number of blocks queued for re-replication.",
		})

	MasterLazyPersistScrubberCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "master",
			Name:      "lazy_persist_scrubber_total",
			Help:      "Counter of lazy persist scrubber outcomes.",
		}, []string{"type"})

	MasterWriteGateDeniedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "master",
			Name:      "write_gate_denied_total",
			Help:      "Counter of mutating operations denied on lazy persist files.",
		}, []string{"op"})
)

func init() {
	Gather.MustRegister(VolumeServerRamTierBytesGauge)
	Gather.MustRegister(VolumeServerRamTierReservationDeniedCounter)
	Gather.MustRegister(VolumeServerReplicaGauge)
	Gather.MustRegister(VolumeServerLazyPersistCounter)
	Gather.MustRegister(VolumeServerLazyWriterHistogram)
	Gather.MustRegister(VolumeServerBlockRequestCounter)

	Gather.MustRegister(MasterReceivedHeartbeatCounter)
	Gather.MustRegister(MasterDeadDataNodeGauge)
	Gather.MustRegister(MasterUnderReplicatedBlockGauge)
	Gather.MustRegister(MasterLazyPersistScrubberCounter)
	Gather.MustRegister(MasterWriteGateDeniedCounter)

	Gather.MustRegister(collectors.NewGoCollector())
	Gather.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

func JoinHostPort(host string, port int) string {
	portStr := strconv.Itoa(port)
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host + ":" + portStr
	}
	return net.JoinHostPort(host, portStr)
}

func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Gather, promhttp.HandlerOpts{})
}

func StartMetricsServer(ip string, port int) {
	if port == 0 {
		return
	}
	glog.V(0).Infof("metrics listening on %s", JoinHostPort(ip, port))
	glog.Fatal(http.ListenAndServe(JoinHostPort(ip, port), metricsServerHandler()))
}

// metricsServerHandler reports panics of the metrics endpoint to sentry.
func metricsServerHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	return sentryhttp.New(sentryhttp.Options{}).Handle(mux)
}
