// v1
// internal/observability/metrics.go
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/circuitbreaker"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/telemetry"
)

const namespace = "coldstore"

type Metrics struct {
	registry *prometheus.Registry

	ticksTotal        prometheus.Counter
	publishTotal      *prometheus.CounterVec
	publishDuration   prometheus.Histogram
	lastFailure       prometheus.Gauge
	zoneTemperature   *prometheus.GaugeVec
	zoneHumidity      *prometheus.GaugeVec
	zoneOutOfRange    *prometheus.GaugeVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	cbState           *prometheus.GaugeVec
}

// NewMetrics registers every collector on a private registry so that
// several instances can coexist in one process.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total simulation ticks performed.",
		}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Snapshot publishes by result.",
		}, []string{"result"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Histogram of sink publish durations.",
			Buckets:   prometheus.DefBuckets,
		}),
		lastFailure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_publish_failure_timestamp_seconds",
			Help:      "Unix time of the most recent failed publish.",
		}),
		zoneTemperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "zone_temperature_celsius",
			Help:      "Latest simulated temperature per zone.",
		}, []string{"zone"}),
		zoneHumidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "zone_humidity_percent",
			Help:      "Latest simulated relative humidity per zone.",
		}, []string{"zone"}),
		zoneOutOfRange: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "zone_out_of_range",
			Help:      "1 when the zone is classified Out of Range, else 0.",
		}, []string{"zone"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cb_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"target"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticksTotal,
		m.publishTotal,
		m.publishDuration,
		m.lastFailure,
		m.zoneTemperature,
		m.zoneHumidity,
		m.zoneOutOfRange,
		m.httpRequestsTotal,
		m.httpDuration,
		m.cbState,
	)
	m.publishTotal.WithLabelValues("ok").Add(0)
	m.publishTotal.WithLabelValues("error").Add(0)

	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		duration := time.Since(start).Seconds()
		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(duration)
		}
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTick records the readings of a tick.
func (m *Metrics) ObserveTick(_ time.Time, snap telemetry.Snapshot) {
	if m == nil {
		return
	}
	m.ticksTotal.Inc()
	for zone, r := range snap {
		m.zoneTemperature.WithLabelValues(zone).Set(r.Temperature)
		m.zoneHumidity.WithLabelValues(zone).Set(r.Humidity)
		oor := 0.0
		if r.Status == telemetry.OutOfRange {
			oor = 1
		}
		m.zoneOutOfRange.WithLabelValues(zone).Set(oor)
	}
}

// ObservePublish records the outcome of a publish.
func (m *Metrics) ObservePublish(at time.Time, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.publishDuration.Observe(took.Seconds())
	if err != nil {
		m.publishTotal.WithLabelValues("error").Inc()
		m.lastFailure.Set(float64(at.Unix()))
		return
	}
	m.publishTotal.WithLabelValues("ok").Inc()
}

func (m *Metrics) SetCircuitBreakerState(target string, state circuitbreaker.State) {
	if m == nil {
		return
	}
	v := 0.0
	switch state {
	case circuitbreaker.HalfOpen:
		v = 1
	case circuitbreaker.Open:
		v = 2
	}
	m.cbState.WithLabelValues(target).Set(v)
}
