package observability

import (
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// OperationMetrics counts loyalty operations the API turned away, either with
// a domain error code or by throttling the caller.
type OperationMetrics struct {
	rejections *prometheus.CounterVec
	throttles  *prometheus.CounterVec
}

var (
	operationMetricsOnce sync.Once
	operationRegistry    *OperationMetrics
)

// Operations returns the process-wide operation metrics, registering them on
// first use.
func Operations() *OperationMetrics {
	operationMetricsOnce.Do(func() {
		operationRegistry = &OperationMetrics{
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loyalty",
				Subsystem: "api",
				Name:      "rejections_total",
				Help:      "Failed loyalty operations segmented by envelope error code and HTTP status.",
			}, []string{"code", "status"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loyalty",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Requests rejected by a rate limit before reaching the ledger.",
			}, []string{"limit", "reason"}),
		}
		prometheus.MustRegister(operationRegistry.rejections, operationRegistry.throttles)
	})
	return operationRegistry
}

// Reject records a failed operation under its envelope error code, for
// example INSUFFICIENT_BALANCE or MODULE_PAUSED.
func (m *OperationMetrics) Reject(code string, status int) {
	if m == nil {
		return
	}
	code = strings.TrimSpace(code)
	if code == "" {
		code = "UNKNOWN"
	}
	m.rejections.WithLabelValues(code, strconv.Itoa(status)).Inc()
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *OperationMetrics) RecordThrottle(limit, reason string) {
	if m == nil {
		return
	}
	if limit == "" {
		limit = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(limit, reason).Inc()
}
