package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "syscontrol",
			Subsystem: "ipc",
			Name:      "transactions_total",
			Help:      "Total transactions handled.",
		},
		[]string{"side", "service", "code", "status"},
	)
	transactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "syscontrol",
			Subsystem: "ipc",
			Name:      "transaction_duration_seconds",
			Help:      "Transaction duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"side", "service", "code", "status"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "syscontrol",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "syscontrol",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(transactions, transactionDuration, httpRequests, httpDuration)
	})
}

// RecordTransaction counts one transaction. side is "server" or "client";
// code is the opcode name when known.
func RecordTransaction(side, service, code, status string, duration time.Duration) {
	RegisterMetrics()
	transactions.WithLabelValues(side, service, code, status).Inc()
	transactionDuration.WithLabelValues(side, service, code, status).Observe(duration.Seconds())
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
