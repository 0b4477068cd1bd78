package aggregates

import (
	"strings"
	"time"

	"github.com/yungbote/membernode/internal/observability"
)

// Hooks receives the outcome of every aggregate write. status is "success"
// or the error code the write failed with.
type Hooks interface {
	ObserveOperation(op, status string, dur time.Duration)
	IncConflict(op string)
	IncRetry(op string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}

type metricsHooks struct {
	m *observability.Metrics
}

// NewObservabilityHooks reports write outcomes to Prometheus. Nil metrics
// drop everything.
func NewObservabilityHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return noopHooks{}
	}
	return metricsHooks{m: metrics}
}

func (h metricsHooks) ObserveOperation(op, status string, dur time.Duration) {
	h.m.ObserveAggregateOperation(strings.TrimSpace(op), status, dur)
}

func (h metricsHooks) IncConflict(op string) { h.m.IncAggregateConflict(strings.TrimSpace(op)) }

func (h metricsHooks) IncRetry(op string) { h.m.IncAggregateRetry(strings.TrimSpace(op)) }
