package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one player process. It satisfies
// control.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	decisionsTotal     *prometheus.CounterVec
	selectedBandwidth  prometheus.Gauge
	bytesReceived      prometheus.Counter
	segmentsCompleted  prometheus.Counter
	segmentSize        prometheus.Histogram
	segmentFetchTime   prometheus.Histogram
	bufferLevel        prometheus.Gauge
	pendingActions     prometheus.Gauge
	segmentsStored     prometheus.Gauge
	bytesStored        prometheus.Gauge
	requestsTotal      *prometheus.CounterVec
	downloadErrorTotal prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashplayer_decisions_total",
			Help: "Adaptation decisions by reason",
		}, []string{"reason"}),
		selectedBandwidth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashplayer_selected_bandwidth_bps",
			Help: "Bandwidth of the representation chosen by the last decision",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashplayer_bytes_received_total",
			Help: "Segment bytes stored",
		}),
		segmentsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashplayer_segments_completed_total",
			Help: "Segments fully downloaded",
		}),
		segmentSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dashplayer_segment_size_bytes",
			Help:    "Size of completed segments",
			Buckets: prometheus.ExponentialBuckets(10240, 2, 12), // 10KB to ~20MB
		}),
		segmentFetchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dashplayer_segment_fetch_seconds",
			Help:    "Time from request to last byte of a segment",
			Buckets: prometheus.DefBuckets,
		}),
		bufferLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashplayer_buffer_level_seconds",
			Help: "Downloaded but unplayed media",
		}),
		pendingActions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashplayer_pending_actions",
			Help: "Download actions not yet acknowledged",
		}),
		segmentsStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashplayer_segments_stored",
			Help: "Segments held in storage",
		}),
		bytesStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashplayer_bytes_stored",
			Help: "Bytes held in storage",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashplayer_http_requests_total",
			Help: "HTTP requests served by status class",
		}, []string{"code"}),
		downloadErrorTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashplayer_download_errors_total",
			Help: "Downloads that failed after all retries",
		}),
	}

	m.registry.MustRegister(
		m.decisionsTotal,
		m.selectedBandwidth,
		m.bytesReceived,
		m.segmentsCompleted,
		m.segmentSize,
		m.segmentFetchTime,
		m.bufferLevel,
		m.pendingActions,
		m.segmentsStored,
		m.bytesStored,
		m.requestsTotal,
		m.downloadErrorTotal,
	)
	return m
}

// DecisionMade counts a decision and records the bandwidth it selected.
func (m *Metrics) DecisionMade(reason string, bandwidth int64) {
	m.decisionsTotal.WithLabelValues(reason).Inc()
	m.selectedBandwidth.Set(float64(bandwidth))
}

func (m *Metrics) BytesReceived(n int) {
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) SegmentCompleted(bytes int64, elapsed time.Duration) {
	m.segmentsCompleted.Inc()
	m.segmentSize.Observe(float64(bytes))
	m.segmentFetchTime.Observe(elapsed.Seconds())
}

func (m *Metrics) BufferLevel(seconds float64) {
	m.bufferLevel.Set(seconds)
}

func (m *Metrics) PendingActions(n int) {
	m.pendingActions.Set(float64(n))
}

// SetStorage records the current storage occupancy.
func (m *Metrics) SetStorage(segments int, bytes int64) {
	m.segmentsStored.Set(float64(segments))
	m.bytesStored.Set(float64(bytes))
}

// IncDownloadErrors counts a download that failed for good.
func (m *Metrics) IncDownloadErrors() {
	m.downloadErrorTotal.Inc()
}

// Handler returns an http.Handler that serves the registry.
// updateGauges is called before each scrape to refresh sampled gauges.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
