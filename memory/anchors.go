// Package memory writes compact execution summaries to keyed memory anchors.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// AnchorStore is a keyed append target. The sqlite store satisfies this.
type AnchorStore interface {
	AppendToAnchor(ctx context.Context, anchorID string, note []byte) error
}

// Summary is the compact record appended to an anchor after an execution.
type Summary struct {
	InstructionID string                 `json:"instructionId"`
	AgentID       string                 `json:"agentId"`
	Status        domain.ExecutionStatus `json:"status"`
	Operation     domain.OperationType   `json:"operation"`
	Action        string                 `json:"action"`
	Timestamp     time.Time              `json:"timestamp"`
}

// AppendExecutionSummary writes the summary for a terminal execution result.
func AppendExecutionSummary(ctx context.Context, store AnchorStore, anchorID string, result *domain.ExecutionResult, op domain.Operation) error {
	note, err := json.Marshal(Summary{
		InstructionID: result.InstructionID,
		AgentID:       result.AgentID,
		Status:        result.Status,
		Operation:     op.Type,
		Action:        op.Action,
		Timestamp:     result.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal anchor summary: %w", err)
	}
	if err := store.AppendToAnchor(ctx, anchorID, note); err != nil {
		return fmt.Errorf("append to anchor %s: %w", anchorID, err)
	}
	return nil
}

// InMemoryStore is an AnchorStore for tests.
type InMemoryStore struct {
	mu    sync.Mutex
	notes map[string][][]byte
}

// NewInMemoryStore creates an empty in-memory anchor store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{notes: make(map[string][][]byte)}
}

func (s *InMemoryStore) AppendToAnchor(ctx context.Context, anchorID string, note []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(note))
	copy(copied, note)
	s.notes[anchorID] = append(s.notes[anchorID], copied)
	return nil
}

// Notes returns the appended notes for an anchor in order.
func (s *InMemoryStore) Notes(anchorID string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.notes[anchorID]))
	copy(out, s.notes[anchorID])
	return out
}
