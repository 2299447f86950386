package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmerrifield20/gridledger/internal/node"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	blocksMinedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridledger_blocks_mined_total",
		Help: "Mining cycles by result (mined, timeout, canceled, rejected, error).",
	}, []string{"result"})

	miningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridledger_mining_duration_seconds",
		Help:    "Duration of mining cycles in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	chainLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridledger_chain_length",
		Help: "Number of committed blocks including genesis.",
	})

	pendingTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridledger_pending_transactions",
		Help: "Transactions waiting to be mined.",
	})

	chainReplacementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridledger_chain_replacements_total",
		Help: "Times the local chain was replaced by a longer peer chain.",
	})

	peerSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridledger_peer_sync_total",
		Help: "Peer chain pulls by result.",
	}, []string{"result"})

	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridledger_rate_limited_total",
		Help: "Requests rejected with 429 by limit scope.",
	}, []string{"scope"})

	blockAnnouncementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridledger_block_announcements_total",
		Help: "Block announcements to peers by delivery status.",
	}, []string{"status"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// NodeMetrics returns node callbacks backed by the package's collectors.
func NodeMetrics() node.Metrics {
	return node.Metrics{
		BlockMined: func(result string, took time.Duration) {
			blocksMinedTotal.WithLabelValues(result).Inc()
			miningDuration.Observe(took.Seconds())
		},
		ChainLength:   func(n int) { chainLength.Set(float64(n)) },
		PendingTxs:    func(n int) { pendingTransactions.Set(float64(n)) },
		ChainReplaced: chainReplacementsTotal.Inc,
	}
}

// RecordPeerSync records the result of one peer chain pull.
func RecordPeerSync(success bool) {
	if success {
		peerSyncTotal.WithLabelValues("success").Inc()
	} else {
		peerSyncTotal.WithLabelValues("failure").Inc()
	}
}

// RecordBlockAnnouncement records a block announcement attempt.
func RecordBlockAnnouncement(success bool) {
	if success {
		blockAnnouncementsTotal.WithLabelValues("success").Inc()
	} else {
		blockAnnouncementsTotal.WithLabelValues("failure").Inc()
	}
}
