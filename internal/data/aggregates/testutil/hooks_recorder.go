package testutil

import (
	"sync"
	"time"

	"github.com/yungbote/membernode/internal/data/aggregates"
)

// HooksRecorder keeps every hook call for assertions. It is safe for
// concurrent writers.
type HooksRecorder struct {
	mu sync.Mutex

	Operations []OperationEvent
	Conflicts  []string
	Retries    []string
}

type OperationEvent struct {
	Name     string
	Status   string
	Duration time.Duration
}

var _ aggregates.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) ObserveOperation(op, status string, dur time.Duration) {
	h.mu.Lock()
	h.Operations = append(h.Operations, OperationEvent{Name: op, Status: status, Duration: dur})
	h.mu.Unlock()
}

func (h *HooksRecorder) IncConflict(op string) {
	h.mu.Lock()
	h.Conflicts = append(h.Conflicts, op)
	h.mu.Unlock()
}

func (h *HooksRecorder) IncRetry(op string) {
	h.mu.Lock()
	h.Retries = append(h.Retries, op)
	h.mu.Unlock()
}

// Last returns the most recent operation.
func (h *HooksRecorder) Last() (OperationEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Operations) == 0 {
		return OperationEvent{}, false
	}
	return h.Operations[len(h.Operations)-1], true
}

// Statuses lists the recorded statuses of op in call order.
func (h *HooksRecorder) Statuses(op string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, ev := range h.Operations {
		if ev.Name == op {
			out = append(out, ev.Status)
		}
	}
	return out
}
