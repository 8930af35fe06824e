package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"exchange-rate-watcher/internal/domain/model"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeForced  = "forced"
)

// Metrics holds every collector exported by the watcher. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	FetchTotal        *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	FallbackTotal     *prometheus.CounterVec
	TicksDroppedTotal prometheus.Counter
	XMLRecoveredTotal prometheus.Counter
	SnapshotRecords   prometheus.Gauge
	ActiveStrategy    *prometheus.GaugeVec
	StreamClients     prometheus.Gauge
}

// NewMetrics registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),

		FetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_fetch_total",
				Help: "Total number of rate fetches by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),

		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rates_fetch_duration_seconds",
				Help:    "Rate fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),

		FallbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_fallback_total",
				Help: "Total number of strategy fallbacks",
			},
			[]string{"from", "to"},
		),

		TicksDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rates_ticks_dropped_total",
				Help: "Poll ticks dropped because a fetch was still in flight",
			},
		),

		XMLRecoveredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rates_xml_recovered_total",
				Help: "XML responses recovered from a transport error",
			},
		),

		SnapshotRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rates_snapshot_records",
				Help: "Number of records in the latest snapshot",
			},
		),

		ActiveStrategy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rates_active_strategy",
				Help: "1 for the strategy currently used by the poller, 0 otherwise",
			},
			[]string{"strategy"},
		),

		StreamClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rates_stream_clients",
				Help: "Number of connected event stream clients",
			},
		),
	}
}

func (m *Metrics) ObserveFetch(strategy model.StrategyIdentity, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(strategy.String(), outcome).Inc()
	m.FetchDuration.WithLabelValues(strategy.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveFallback(from, to model.StrategyIdentity) {
	if m == nil {
		return
	}
	m.FallbackTotal.WithLabelValues(from.String(), to.String()).Inc()
}

func (m *Metrics) ObserveSnapshot(snapshot *model.Snapshot) {
	if m == nil {
		return
	}
	m.SnapshotRecords.Set(float64(snapshot.Len()))
}

func (m *Metrics) SetActiveStrategy(active model.StrategyIdentity) {
	if m == nil {
		return
	}
	for _, s := range model.SupportedStrategies {
		value := 0.0
		if s == active {
			value = 1
		}
		m.ActiveStrategy.WithLabelValues(s.String()).Set(value)
	}
}

func (m *Metrics) TickDropped() {
	if m == nil {
		return
	}
	m.TicksDroppedTotal.Inc()
}

func (m *Metrics) XMLRecovered() {
	if m == nil {
		return
	}
	m.XMLRecoveredTotal.Inc()
}

func (m *Metrics) StreamClientConnected() {
	if m == nil {
		return
	}
	m.StreamClients.Inc()
}

func (m *Metrics) StreamClientDisconnected() {
	if m == nil {
		return
	}
	m.StreamClients.Dec()
}

func (m *Metrics) ObserveHTTPRequest(path, method string, statusCode int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(path, method).Observe(elapsed.Seconds())
	m.HTTPRequestsTotal.WithLabelValues(path, method, strconv.Itoa(statusCode/100)+"xx").Inc()
}
