package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "live2d",
		Subsystem: "gateway",
		Name:      "connections_total",
		Help:      "Connections admitted since start.",
	})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "live2d",
		Subsystem: "gateway",
		Name:      "active_connections",
		Help:      "Currently registered connections.",
	})

	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "live2d",
		Subsystem: "gateway",
		Name:      "evictions_total",
		Help:      "Connections evicted to admit a newer client.",
	})

	handshakeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "live2d",
		Subsystem: "gateway",
		Name:      "handshake_failures_total",
		Help:      "Rejected handshakes by protocol error code.",
	}, []string{"code"})

	packetsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "live2d",
		Subsystem: "gateway",
		Name:      "packets_received_total",
		Help:      "Inbound packets by op namespace.",
	}, []string{"namespace"})

	packetsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "live2d",
		Subsystem: "gateway",
		Name:      "packets_sent_total",
		Help:      "Outbound packets written to clients.",
	})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "live2d",
		Subsystem: "gateway",
		Name:      "dispatch_seconds",
		Help:      "Packet dispatch duration by op namespace.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"namespace"})

	dispatchPanics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "live2d",
		Subsystem: "gateway",
		Name:      "dispatch_panics_total",
		Help:      "Handler panics recovered during dispatch.",
	})
)
