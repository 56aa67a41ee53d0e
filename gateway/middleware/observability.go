package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type ObservabilityConfig struct {
	ServiceName   string
	MetricsPrefix string
	LogRequests   bool
	Enabled       bool
}

// Observability records per-route request counts and latencies, annotates the
// active span, and optionally logs each request.
type Observability struct {
	cfg       ObservabilityConfig
	logger    *slog.Logger
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	registry  *prometheus.Registry

	// OTLP instruments; no-ops unless a meter provider is installed.
	otelRequests metric.Int64Counter
	otelLatency  metric.Float64Histogram
}

func NewObservability(cfg ObservabilityConfig, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "loyaltyd"
	}
	if cfg.MetricsPrefix == "" {
		cfg.MetricsPrefix = "loyalty_http"
	}
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.MetricsPrefix,
		Name:      "requests_total",
		Help:      "Total HTTP requests processed by the API.",
	}, []string{"route", "method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.MetricsPrefix,
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	registry.MustRegister(requests, durations)
	o := &Observability{
		cfg:       cfg,
		logger:    logger,
		requests:  requests,
		durations: durations,
		registry:  registry,
	}
	meter := otel.Meter(cfg.ServiceName)
	var err error
	if o.otelRequests, err = meter.Int64Counter("http.server.requests",
		metric.WithDescription("HTTP requests processed by the API.")); err != nil {
		logger.Warn("otel request counter unavailable", "error", err)
	}
	if o.otelLatency, err = meter.Float64Histogram("http.server.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of HTTP requests.")); err != nil {
		logger.Warn("otel latency histogram unavailable", "error", err)
	}
	return o
}

// Middleware labels metrics with the matched chi route pattern.
func (o *Observability) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !o.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routePattern(r)
		elapsed := time.Since(start)
		span := trace.SpanFromContext(r.Context())
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", recorder.status),
		)
		o.requests.WithLabelValues(route, r.Method, http.StatusText(recorder.status)).Inc()
		o.durations.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
		attrs := metric.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("http.method", r.Method),
			attribute.Int("http.status_code", recorder.status),
		)
		if o.otelRequests != nil {
			o.otelRequests.Add(r.Context(), 1, attrs)
		}
		if o.otelLatency != nil {
			o.otelLatency.Record(r.Context(), elapsed.Seconds(), attrs)
		}
		if o.cfg.LogRequests {
			o.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration_ms", float64(elapsed.Microseconds())/1000)
		}
	})
}

// MetricsHandler serves the request metrics together with the process-wide
// default registry.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers{o.registry, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack lets websocket upgrades pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
