package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineCollector exposes metrics for the compute path and the result
// fan-out behind it.
type PipelineCollector struct {
	gatherer prometheus.Gatherer

	ComputeDuration   prometheus.Histogram
	WatchSubscribers  prometheus.Gauge
	DroppedResults    prometheus.Counter
	JournalWriteError prometheus.Counter
}

// NewPipelineCollector registers pipeline metrics against the provided registerer.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	compute := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attitude_compute_duration_seconds",
		Help:    "Duration of a single orientation computation, validation to quaternion.",
		Buckets: []float64{0.000005, 0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.005},
	})
	compute, err := registerHistogram(reg, compute, "attitude_compute_duration_seconds")
	if err != nil {
		return nil, err
	}

	subscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attitude_watch_subscribers",
		Help: "Number of consumers currently attached to the result broadcaster.",
	})
	subscribers, err = registerGauge(reg, subscribers, "attitude_watch_subscribers")
	if err != nil {
		return nil, err
	}

	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attitude_watch_dropped_total",
		Help: "Results dropped because a consumer's buffer was full.",
	})
	dropped, err = registerCounter(reg, dropped, "attitude_watch_dropped_total")
	if err != nil {
		return nil, err
	}

	journalErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attitude_journal_write_errors_total",
		Help: "Results that could not be written to the journal.",
	})
	journalErrors, err = registerCounter(reg, journalErrors, "attitude_journal_write_errors_total")
	if err != nil {
		return nil, err
	}

	return &PipelineCollector{
		gatherer:          gatherer,
		ComputeDuration:   compute,
		WatchSubscribers:  subscribers,
		DroppedResults:    dropped,
		JournalWriteError: journalErrors,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *PipelineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveCompute records one computation's duration.
func (c *PipelineCollector) ObserveCompute(d time.Duration) {
	if c == nil || c.ComputeDuration == nil {
		return
	}
	c.ComputeDuration.Observe(d.Seconds())
}

// SetSubscribers updates the subscriber gauge.
func (c *PipelineCollector) SetSubscribers(count int) {
	if c == nil || c.WatchSubscribers == nil {
		return
	}
	c.WatchSubscribers.Set(float64(count))
}

// IncDropped counts a result dropped for a slow consumer.
func (c *PipelineCollector) IncDropped() {
	if c == nil || c.DroppedResults == nil {
		return
	}
	c.DroppedResults.Inc()
}

// IncJournalErrors counts a failed journal write.
func (c *PipelineCollector) IncJournalErrors() {
	if c == nil || c.JournalWriteError == nil {
		return
	}
	c.JournalWriteError.Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
