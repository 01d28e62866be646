package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics counts and times control-surface requests.
type HTTPMetrics struct {
	gatherer prometheus.Gatherer

	Requests     *prometheus.CounterVec
	ResponseTime *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP metrics against reg, defaulting to the
// global registry when reg is nil. Registering twice returns the existing vectors.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests handled by the control surface.",
	}, []string{"method", "path", "status"}))
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_response_time_seconds",
		Help:      "HTTP response time in seconds.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "path"}))
	if err != nil {
		return nil, err
	}
	return &HTTPMetrics{gatherer: gatherer, Requests: requests, ResponseTime: durations}, nil
}

// Observe records one handled request.
func (m *HTTPMetrics) Observe(method, path string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, path, fmt.Sprint(status)).Inc()
	m.ResponseTime.WithLabelValues(method, path).Observe(seconds)
}

// Handler exposes the registry the metrics were registered with.
func (m *HTTPMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Register adds the snapshot collector to reg.
func Register(reg prometheus.Registerer, c *Collector) error {
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("registering snapshot collector: %w", err)
	}
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("http counter already registered with incompatible type")
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("http histogram already registered with incompatible type")
		}
		return nil, err
	}
	return vec, nil
}
