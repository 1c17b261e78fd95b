package channel

import (
	"github.com/officina-hr/jobengine/internal/domain"
)

// MetricsSink is the subset of metrics the bus reports.
type MetricsSink interface {
	RunEventDropped()
}

type noopMetrics struct{}

func (noopMetrics) RunEventDropped() {}

// RunEventBus carries completed-run events from the orchestrator to
// analytics consumers. Emitting never blocks job execution: when the
// buffer is full the event is dropped and counted.
type RunEventBus struct {
	ch      chan domain.RunEvent
	metrics MetricsSink
}

type Option func(*RunEventBus)

// WithMetrics attaches a metrics sink to the bus.
func WithMetrics(m MetricsSink) Option {
	return func(b *RunEventBus) {
		b.metrics = m
	}
}

func NewRunEventBus(buffer int, opts ...Option) *RunEventBus {
	b := &RunEventBus{
		ch:      make(chan domain.RunEvent, buffer),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit publishes an event without blocking. It reports whether the
// event was accepted.
func (b *RunEventBus) Emit(event domain.RunEvent) bool {
	select {
	case b.ch <- event:
		return true
	default:
		b.metrics.RunEventDropped()
		return false
	}
}

func (b *RunEventBus) Channel() <-chan domain.RunEvent {
	return b.ch
}

// Close stops the bus. Callers must not Emit after Close.
func (b *RunEventBus) Close() {
	close(b.ch)
}
