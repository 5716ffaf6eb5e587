package dispatch

import (
	"sync"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// DefaultHistoryCapacity bounds the in-memory execution history.
const DefaultHistoryCapacity = 10

// History is the bounded, most-recent-first execution history. It also
// tracks in-flight instruction ids so duplicates are caught while the first
// submission is still executing.
type History struct {
	mu       sync.Mutex
	capacity int
	results  []*domain.ExecutionResult
	inFlight map[string]struct{}
}

// NewHistory creates a history bounded to capacity entries.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		capacity: capacity,
		inFlight: make(map[string]struct{}),
	}
}

// Begin reserves an instruction id for execution. It returns the cached
// result when the id already completed within the retained window, or
// domain.ErrDuplicateInstruction when the id is currently in flight.
func (h *History) Begin(instructionID string) (*domain.ExecutionResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.results {
		if r.InstructionID == instructionID {
			return r, nil
		}
	}
	if _, ok := h.inFlight[instructionID]; ok {
		return nil, domain.ErrDuplicateInstruction
	}
	h.inFlight[instructionID] = struct{}{}
	return nil, nil
}

// Complete records a terminal result and releases the in-flight reservation.
// Insert and evict happen as one locked step.
func (h *History) Complete(result *domain.ExecutionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inFlight, result.InstructionID)
	h.results = append([]*domain.ExecutionResult{result}, h.results...)
	if len(h.results) > h.capacity {
		h.results = h.results[:h.capacity]
	}
	historySize.Set(float64(len(h.results)))
}

// Recent returns up to limit results, most recent first. limit <= 0 returns
// everything retained.
func (h *History) Recent(limit int) []*domain.ExecutionResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.results)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*domain.ExecutionResult, limit)
	copy(out, h.results[:limit])
	return out
}

// Len returns the number of retained results.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}
