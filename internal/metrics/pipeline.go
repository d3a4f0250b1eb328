package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch outcomes recorded per adapter call.
const (
	OutcomeFetched  = "fetched"
	OutcomeCacheHit = "cache_hit"
	OutcomeFallback = "fallback"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
)

// PipelineCollector records ingestion, quality and delivery metrics. All
// methods are safe on a nil receiver so components can run uninstrumented.
type PipelineCollector struct {
	fetchTotal       *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	issuesTotal      *prometheus.CounterVec
	queueWait        prometheus.Histogram
	browserLaunches  prometheus.Counter
	browserTeardowns *prometheus.CounterVec
	deliveryTotal    *prometheus.CounterVec
}

// NewPipelineCollector registers the pipeline metrics on registry.
func NewPipelineCollector(registry prometheus.Registerer) (*PipelineCollector, error) {
	c := &PipelineCollector{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "fetch_total",
			Help:      "Adapter fetch calls by outcome.",
		}, []string{"source", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream fetch latency per adapter.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"source"}),
		issuesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quality",
			Name:      "issues_total",
			Help:      "Data quality issues raised by source and type.",
		}, []string{"source", "type"}),
		queueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "browser",
			Name:      "queue_wait_seconds",
			Help:      "Time spent waiting for the shared browser.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		browserLaunches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "browser",
			Name:      "launches_total",
			Help:      "Headless browser instances created.",
		}),
		browserTeardowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "browser",
			Name:      "teardowns_total",
			Help:      "Headless browser instances discarded, by reason.",
		}, []string{"reason"}),
		deliveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "events_total",
			Help:      "Delivery filter decisions by mode.",
		}, []string{"mode", "decision"}),
	}

	for _, collector := range []prometheus.Collector{
		c.fetchTotal, c.fetchDuration, c.issuesTotal, c.queueWait,
		c.browserLaunches, c.browserTeardowns, c.deliveryTotal,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveFetch records one adapter call. A zero duration skips the histogram.
func (c *PipelineCollector) ObserveFetch(source, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.fetchTotal.WithLabelValues(source, outcome).Inc()
	if d > 0 {
		c.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
	}
}

// IssueRaised counts one data quality issue.
func (c *PipelineCollector) IssueRaised(source, issueType string) {
	if c == nil {
		return
	}
	c.issuesTotal.WithLabelValues(source, issueType).Inc()
}

// BrowserQueueWait records how long a caller waited for its turn.
func (c *PipelineCollector) BrowserQueueWait(d time.Duration) {
	if c == nil {
		return
	}
	c.queueWait.Observe(d.Seconds())
}

// BrowserLaunched counts a new browser instance.
func (c *PipelineCollector) BrowserLaunched() {
	if c == nil {
		return
	}
	c.browserLaunches.Inc()
}

// BrowserTornDown counts a discarded browser instance.
func (c *PipelineCollector) BrowserTornDown(reason string) {
	if c == nil {
		return
	}
	c.browserTeardowns.WithLabelValues(reason).Inc()
}

// DeliveryDecisions records how many events one filter run delivered and skipped.
func (c *PipelineCollector) DeliveryDecisions(mode string, delivered, skipped int) {
	if c == nil {
		return
	}
	c.deliveryTotal.WithLabelValues(mode, "deliver").Add(float64(delivered))
	c.deliveryTotal.WithLabelValues(mode, "skip").Add(float64(skipped))
}
