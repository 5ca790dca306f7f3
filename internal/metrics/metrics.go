// Package metrics exposes Prometheus collectors for function registration,
// batch invocation and the managed runtime's attachment and reference tables.
//
// Collectors live on Registry rather than the default registerer so an
// embedding engine decides whether and where they are served:
//
//	http.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every adhesive collector.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// Registrations counts CREATE FUNCTION outcomes.
	Registrations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adhesive",
			Name:      "registrations_total",
			Help:      "Function registrations by definition kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// Invocations counts batch evaluations.
	Invocations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adhesive",
			Name:      "invocations_total",
			Help:      "Batch invocations by function and outcome",
		},
		[]string{"function", "outcome"},
	)

	// InvocationLatency observes one batch round trip into the runtime.
	InvocationLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adhesive",
			Name:      "invocation_duration_seconds",
			Help:      "Batch invocation latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"function"},
	)

	// InvocationRows counts rows evaluated.
	InvocationRows = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adhesive",
			Name:      "invocation_rows_total",
			Help:      "Rows evaluated by function",
		},
		[]string{"function"},
	)

	// CompileLatency observes dynamic compilation.
	CompileLatency = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "adhesive",
			Name:      "compile_duration_seconds",
			Help:      "Source compilation latency",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
	)

	// AttachedThreads tracks thread contexts registered with the runtime.
	AttachedThreads = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "adhesive",
			Name:      "attached_threads",
			Help:      "Thread contexts attached to the managed runtime",
		},
	)

	// GlobalRefs tracks live durable references.
	GlobalRefs = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "adhesive",
			Name:      "global_refs",
			Help:      "Durable references held by bound functions",
		},
	)

	// ManagedExceptions counts exceptions raised inside the runtime by name.
	ManagedExceptions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adhesive",
			Name:      "managed_exceptions_total",
			Help:      "Exceptions raised by managed code",
		},
		[]string{"name"},
	)
)

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Outcome maps err to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// Timer measures an operation's duration
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time in o and returns it.
func (t *Timer) ObserveDuration(o prometheus.Observer) time.Duration {
	d := time.Since(t.start)
	o.Observe(d.Seconds())
	return d
}
