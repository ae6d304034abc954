// Package observe provides application-wide observability primitives for
// voxmux: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxmux/voxmux/pkg/speech"
)

// meterName is the instrumentation scope name used for all voxmux metrics.
const meterName = "github.com/voxmux/voxmux"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Message counters (attribute: priority) ---

	// Submissions counts every message accepted by the scheduler.
	Submissions metric.Int64Counter

	// Completions counts messages synthesized to completion.
	Completions metric.Int64Counter

	// Cancellations counts messages dropped before completion.
	Cancellations metric.Int64Counter

	// Postponements counts speaking messages interrupted by a higher class
	// and requeued.
	Postponements metric.Int64Counter

	// --- Latency histograms ---

	// QueueWait tracks the time between submission and the first audio.
	QueueWait metric.Float64Histogram

	// SpeakingDuration tracks how long a message held the speaking slot,
	// from first audio to its terminal disposition.
	SpeakingDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// waitBuckets defines histogram bucket boundaries (in seconds) for queue
// waiting time.
var waitBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// speakingBuckets defines histogram bucket boundaries (in seconds) for
// utterance durations.
var speakingBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.Submissions, err = m.Int64Counter("voxmux.messages.submitted",
		metric.WithDescription("Total messages accepted by the scheduler, by priority."),
	); err != nil {
		return nil, err
	}
	if met.Completions, err = m.Int64Counter("voxmux.messages.spoken",
		metric.WithDescription("Total messages synthesized to completion, by priority."),
	); err != nil {
		return nil, err
	}
	if met.Cancellations, err = m.Int64Counter("voxmux.messages.canceled",
		metric.WithDescription("Total messages dropped before completion, by priority."),
	); err != nil {
		return nil, err
	}
	if met.Postponements, err = m.Int64Counter("voxmux.messages.postponed",
		metric.WithDescription("Total speaking messages preempted by a higher class and requeued, by priority."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.QueueWait, err = m.Float64Histogram("voxmux.queue.wait",
		metric.WithDescription("Time between message submission and first audio."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(waitBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakingDuration, err = m.Float64Histogram("voxmux.speaking.duration",
		metric.WithDescription("Time a message held the speaking slot."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(speakingBuckets...),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxmux.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RegisterSchedulerGauges registers observable gauges for scheduler
// occupancy, sourced from stats on every collection. The returned
// registration should be unregistered on shutdown.
func RegisterSchedulerGauges(mp metric.MeterProvider, stats func() speech.Stats) (metric.Registration, error) {
	m := mp.Meter(meterName)

	clients, err := m.Int64ObservableUpDownCounter("voxmux.clients.connected",
		metric.WithDescription("Number of open client connections."),
	)
	if err != nil {
		return nil, err
	}
	queued, err := m.Int64ObservableUpDownCounter("voxmux.messages.queued",
		metric.WithDescription("Number of pending messages across all clients."),
	)
	if err != nil {
		return nil, err
	}

	return m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := stats()
		o.ObserveInt64(clients, int64(st.Clients))
		o.ObserveInt64(queued, int64(st.Queued))
		return nil
	}, clients, queued)
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Collector feeds scheduler lifecycle notifications into [Metrics].
// Register it on the scheduler with speech.WithObserver.
type Collector struct {
	m *Metrics

	mu    sync.Mutex
	began map[speech.MessageID]time.Time
}

// Compile-time interface check.
var _ speech.Observer = (*Collector)(nil)

// NewCollector creates a Collector recording into m.
func NewCollector(m *Metrics) *Collector {
	return &Collector{m: m, began: make(map[speech.MessageID]time.Time)}
}

func priorityAttr(p speech.Priority) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("priority", p.String()))
}

// MessageSubmitted increments the submission counter.
func (c *Collector) MessageSubmitted(m speech.Message) {
	c.m.Submissions.Add(context.Background(), 1, priorityAttr(m.Priority))
}

// MessageBegan records the queue wait and remembers when synthesis started.
func (c *Collector) MessageBegan(m speech.Message, at time.Time) {
	c.m.QueueWait.Record(context.Background(), at.Sub(m.SubmittedAt).Seconds(), priorityAttr(m.Priority))
	c.mu.Lock()
	c.began[m.ID] = at
	c.mu.Unlock()
}

// MessagePostponed increments the postponement counter.
func (c *Collector) MessagePostponed(m speech.Message, at time.Time) {
	c.m.Postponements.Add(context.Background(), 1, priorityAttr(m.Priority))
}

// MessageFinished increments the terminal counter for the disposition and,
// when the message produced audio, records its speaking duration.
func (c *Collector) MessageFinished(m speech.Message, outcome speech.Outcome, at time.Time) {
	c.mu.Lock()
	beganAt, ok := c.began[m.ID]
	delete(c.began, m.ID)
	c.mu.Unlock()

	switch outcome {
	case speech.OutcomeSpoken:
		c.m.Completions.Add(context.Background(), 1, priorityAttr(m.Priority))
	default:
		c.m.Cancellations.Add(context.Background(), 1, priorityAttr(m.Priority))
	}
	if ok {
		c.m.SpeakingDuration.Record(context.Background(), at.Sub(beganAt).Seconds(), priorityAttr(m.Priority))
	}
}
