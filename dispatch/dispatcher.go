// Package dispatch validates, authorizes, and routes signed instructions to
// operation backends, recording every decision in the governance log.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/backends"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/bus"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/governance"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/memory"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/policy"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/registry"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/signature"
)

// Governance entries default to the core orchestration phase when the
// instruction carries no project context.
const (
	DefaultPhaseID = "OF-PRE-GH.0.6.2-core"
	DefaultStepID  = "instruction-execution"
)

var (
	instructionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wt_instructions_total",
			Help: "Instructions processed by operation type and terminal status.",
		},
		[]string{"type", "status"},
	)
	historySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wt_execution_history_size",
			Help: "Execution results currently retained in the bounded history.",
		},
	)
)

func init() {
	prometheus.MustRegister(instructionsTotal, historySize)
}

// Dispatcher runs the instruction pipeline: agent lookup, duplicate check,
// signature verification, policy evaluation, governance logging, backend
// execution, and result bookkeeping.
type Dispatcher struct {
	agents    *registry.Registry
	validator *signature.Validator
	policy    *policy.Engine
	handlers  *backends.Registry
	gov       governance.Logger
	anchors   memory.AnchorStore
	events    *bus.Bus
	history   *History
	log       *logrus.Logger
	timeout   time.Duration
}

// New creates a dispatcher. The policy engine, anchor store, and event bus
// may be nil; the corresponding steps are skipped.
func New(agents *registry.Registry, validator *signature.Validator, policyEngine *policy.Engine, handlers *backends.Registry, gov governance.Logger, anchors memory.AnchorStore, events *bus.Bus, log *logrus.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}
	return &Dispatcher{
		agents:    agents,
		validator: validator,
		policy:    policyEngine,
		handlers:  handlers,
		gov:       gov,
		anchors:   anchors,
		events:    events,
		history:   NewHistory(DefaultHistoryCapacity),
		log:       log,
		timeout:   timeout,
	}
}

// Recent returns up to limit retained execution results, most recent first.
func (d *Dispatcher) Recent(limit int) []*domain.ExecutionResult {
	return d.history.Recent(limit)
}

// Execute runs one instruction to a terminal result. Resubmitting an
// instruction id that completed within the retained history returns the
// recorded result without re-executing; an id still in flight returns
// domain.ErrDuplicateInstruction.
func (d *Dispatcher) Execute(ctx context.Context, instr domain.Instruction) (*domain.ExecutionResult, error) {
	start := time.Now()

	agent, ok := d.agents.Lookup(instr.AgentID)
	if !ok {
		return d.reject(ctx, instr, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, instr.AgentID))
	}
	if !agent.Active {
		return d.reject(ctx, instr, fmt.Errorf("%w: %s", domain.ErrAgentInactive, instr.AgentID))
	}

	if cached, err := d.history.Begin(instr.InstructionID); err != nil {
		return nil, err
	} else if cached != nil {
		return cached, nil
	}

	if err := d.validator.Verify(ctx, instr); err != nil {
		return d.fail(ctx, instr, start, "", domain.ErrInvalidSignature), nil
	}

	if d.policy != nil {
		decision, reason, err := d.policy.Evaluate(ctx, policyInput(agent, instr.Operation))
		if err != nil {
			return d.fail(ctx, instr, start, "", fmt.Errorf("evaluate policy: %w", err)), nil
		}
		if decision != "allow" {
			return d.fail(ctx, instr, start, "", fmt.Errorf("instruction denied by policy: %s", reason)), nil
		}
	}

	govLogID := d.logExecution(ctx, instr)

	params, err := domain.DecodeParams(instr.Operation.Type, instr.Operation.Parameters)
	if err != nil {
		return d.fail(ctx, instr, start, govLogID, fmt.Errorf("decode parameters: %w", err)), nil
	}

	execCtx, cancel := context.WithTimeout(ctx, d.timeout)
	res, err := d.handlers.Execute(execCtx, instr.Operation.Type, instr.Operation.Action, params)
	cancel()
	if err != nil {
		return d.fail(ctx, instr, start, govLogID, fmt.Errorf("%w: %v", domain.ErrBackendExecution, err)), nil
	}

	result := &domain.ExecutionResult{
		InstructionID:   instr.InstructionID,
		AgentID:         instr.AgentID,
		Status:          domain.ExecutionStatusSuccess,
		Output:          res.Output,
		Artifacts:       res.Artifacts,
		GovernanceLogID: govLogID,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Timestamp:       time.Now().UTC(),
	}

	if d.anchors != nil && instr.Context != nil && instr.Context.MemoryAnchor != "" {
		if err := memory.AppendExecutionSummary(ctx, d.anchors, instr.Context.MemoryAnchor, result, instr.Operation); err != nil {
			d.log.WithFields(logrus.Fields{
				"instruction_id": instr.InstructionID,
				"anchor":         instr.Context.MemoryAnchor,
			}).WithError(err).Warn("failed to append execution summary to memory anchor")
		}
	}

	d.finish(instr, result)
	return result, nil
}

// reject handles instructions refused before they enter the pipeline: the
// agent is unknown or inactive. No history slot is consumed and the signature
// is never inspected.
func (d *Dispatcher) reject(ctx context.Context, instr domain.Instruction, cause error) (*domain.ExecutionResult, error) {
	if d.gov != nil {
		if _, err := d.gov.Append(ctx, governance.EntryInstructionRejected, map[string]any{
			"instructionId": instr.InstructionID,
			"agentId":       instr.AgentID,
			"operationType": instr.Operation.Type,
			"action":        instr.Operation.Action,
			"reason":        cause.Error(),
		}); err != nil {
			d.log.WithError(err).Warn("failed to write rejection governance entry")
		}
	}
	instructionsTotal.WithLabelValues(string(instr.Operation.Type), string(domain.ExecutionStatusFailed)).Inc()
	return &domain.ExecutionResult{
		InstructionID: instr.InstructionID,
		AgentID:       instr.AgentID,
		Status:        domain.ExecutionStatusFailed,
		Error:         cause.Error(),
		Timestamp:     time.Now().UTC(),
	}, nil
}

// fail produces the terminal failed result for an instruction that had
// already reserved a history slot, and writes the error governance entry
// carrying the full instruction payload.
func (d *Dispatcher) fail(ctx context.Context, instr domain.Instruction, start time.Time, govLogID string, cause error) *domain.ExecutionResult {
	if d.gov != nil {
		if _, err := d.gov.Append(ctx, governance.EntryInstructionError, map[string]any{
			"instruction": instructionPayload(instr),
			"error":       cause.Error(),
		}); err != nil {
			d.log.WithError(err).Warn("failed to write error governance entry")
		}
	}
	result := &domain.ExecutionResult{
		InstructionID:   instr.InstructionID,
		AgentID:         instr.AgentID,
		Status:          domain.ExecutionStatusFailed,
		Error:           cause.Error(),
		GovernanceLogID: govLogID,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Timestamp:       time.Now().UTC(),
	}
	d.finish(instr, result)
	return result
}

// finish records the terminal result in the history, counts it, and publishes
// the events consumed by the monitor: an error event for failed executions,
// then the completion event either way.
func (d *Dispatcher) finish(instr domain.Instruction, result *domain.ExecutionResult) {
	d.history.Complete(result)
	instructionsTotal.WithLabelValues(string(instr.Operation.Type), string(result.Status)).Inc()
	if d.events == nil {
		return
	}
	if result.Status == domain.ExecutionStatusFailed {
		d.events.Publish(domain.AgentEvent{
			AgentID:   instr.AgentID,
			Kind:      domain.EventError,
			Timestamp: result.Timestamp,
			Message:   result.Error,
		})
	}
	d.events.Publish(domain.AgentEvent{
		AgentID:         instr.AgentID,
		Kind:            domain.EventTaskCompleted,
		Timestamp:       result.Timestamp,
		ExecutionTimeMs: float64(result.ExecutionTimeMs),
		Success:         result.Status == domain.ExecutionStatusSuccess,
	})
}

// logExecution writes the pre-dispatch governance entry and returns its id.
// Instructions without project context are attributed to the core phase.
func (d *Dispatcher) logExecution(ctx context.Context, instr domain.Instruction) string {
	if d.gov == nil {
		return ""
	}
	payload := map[string]any{
		"instructionId": instr.InstructionID,
		"agentId":       instr.AgentID,
		"operationType": instr.Operation.Type,
		"action":        instr.Operation.Action,
		"phaseId":       DefaultPhaseID,
		"stepId":        DefaultStepID,
	}
	if c := instr.Context; c != nil {
		if c.ProjectID != "" {
			payload["projectId"] = c.ProjectID
		}
		if c.PhaseID != "" {
			payload["phaseId"] = c.PhaseID
		}
		if c.StepID != "" {
			payload["stepId"] = c.StepID
		}
		if c.MemoryAnchor != "" {
			payload["memoryAnchor"] = c.MemoryAnchor
		}
	}
	id, err := d.gov.Append(ctx, governance.EntryInstructionExecution, payload)
	if err != nil {
		d.log.WithField("instruction_id", instr.InstructionID).WithError(err).Warn("failed to write execution governance entry")
		return ""
	}
	return id
}

func policyInput(agent domain.Agent, op domain.Operation) map[string]any {
	return map[string]any{
		"agent": map[string]any{
			"id":           agent.ID,
			"active":       agent.Active,
			"capabilities": agent.Capabilities,
		},
		"operation": map[string]any{
			"type":   string(op.Type),
			"action": op.Action,
		},
	}
}

// instructionPayload renders the instruction in its wire shape for governance
// error entries.
func instructionPayload(instr domain.Instruction) map[string]any {
	data, err := json.Marshal(instr)
	if err != nil {
		return map[string]any{"instructionId": instr.InstructionID}
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return map[string]any{"instructionId": instr.InstructionID}
	}
	return payload
}
