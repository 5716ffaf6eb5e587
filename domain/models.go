// Package domain defines the core domain models for the orchestration core.
package domain

import (
	"encoding/json"
	"time"
)

// OperationType identifies the backend an instruction dispatches to.
type OperationType string

const (
	OperationVersionControl        OperationType = "version-control"
	OperationFilesystem            OperationType = "filesystem"
	OperationContinuousIntegration OperationType = "continuous-integration"
	OperationCloudProvisioning     OperationType = "cloud-provisioning"
	OperationDatabase              OperationType = "database"
)

// ExecutionStatus represents the status of an instruction execution.
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// HealthState is the coarse classification of an agent's operational state.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthWarning  HealthState = "warning"
	HealthCritical HealthState = "critical"
	HealthOffline  HealthState = "offline"
)

// AlertType categorizes a raised alert.
type AlertType string

const (
	AlertTypePerformance AlertType = "performance"
	AlertTypeError       AlertType = "error"
	AlertTypeHealth      AlertType = "health"
	AlertTypeConfig      AlertType = "config"
)

// AlertSeverity grades alerts and agent errors.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// EventKind is the type of a lifecycle/performance event observed by the
// monitoring service.
type EventKind string

const (
	EventStarted           EventKind = "started"
	EventStopped           EventKind = "stopped"
	EventError             EventKind = "error"
	EventTaskCompleted     EventKind = "task-completed"
	EventPerformanceUpdate EventKind = "performance-update"
)

// ChannelKind selects the outbound delivery mechanism for a message.
type ChannelKind string

const (
	ChannelQueue      ChannelKind = "queue"
	ChannelCITrigger  ChannelKind = "ci-trigger"
	ChannelGovernance ChannelKind = "governance"
)

// Agent is a registered agent from the catalog.
type Agent struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Active       bool     `json:"active" yaml:"active"`
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// HasCapability reports whether the agent may execute the operation type.
func (a Agent) HasCapability(t OperationType) bool {
	for _, c := range a.Capabilities {
		if c == string(t) {
			return true
		}
	}
	return false
}

// Operation names the backend action an instruction requests. Parameters are
// kept raw until the dispatcher resolves them into a typed record.
type Operation struct {
	Type       OperationType   `json:"type"`
	Action     string          `json:"action"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// InstructionContext ties an instruction to project/phase/step bookkeeping.
type InstructionContext struct {
	ProjectID    string `json:"projectId,omitempty"`
	PhaseID      string `json:"phaseId,omitempty"`
	StepID       string `json:"stepId,omitempty"`
	MemoryAnchor string `json:"memoryAnchor,omitempty"`
}

// Instruction is a signed request from an agent. Immutable after submission.
type Instruction struct {
	InstructionID string              `json:"instructionId"`
	AgentID       string              `json:"agentId"`
	Timestamp     time.Time           `json:"timestamp"`
	Operation     Operation           `json:"operation"`
	Context       *InstructionContext `json:"context,omitempty"`
	Signature     string              `json:"signature,omitempty"`
}

// ExecutionResult is the terminal outcome of one instruction execution.
type ExecutionResult struct {
	InstructionID   string          `json:"instructionId"`
	AgentID         string          `json:"agentId"`
	Status          ExecutionStatus `json:"status"`
	Output          map[string]any  `json:"output,omitempty"`
	Artifacts       []string        `json:"artifacts,omitempty"`
	Error           string          `json:"error,omitempty"`
	GovernanceLogID string          `json:"governanceLogId,omitempty"`
	ExecutionTimeMs int64           `json:"executionTimeMs"`
	Timestamp       time.Time       `json:"timestamp"`
}

// PerformanceMetrics holds the running per-agent performance figures.
type PerformanceMetrics struct {
	TasksCompleted      int64   `json:"tasksCompleted"`
	AverageTaskTimeMs   float64 `json:"averageTaskTimeMs"`
	SuccessRate         float64 `json:"successRate"`
	ThroughputPerMinute float64 `json:"throughputPerMinute"`
	MemoryMB            float64 `json:"memoryMB"`
	CPUPercent          float64 `json:"cpuPercent"`
}

// AgentError is one entry in an agent's bounded error list.
type AgentError struct {
	Timestamp time.Time     `json:"timestamp"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
}

// AgentStatus is the monitored state of one agent.
type AgentStatus struct {
	ID            string             `json:"id"`
	Active        bool               `json:"active"`
	Health        HealthState        `json:"health"`
	LastHeartbeat time.Time          `json:"lastHeartbeat"`
	UptimeSeconds float64            `json:"uptimeSeconds"`
	Performance   PerformanceMetrics `json:"performance"`
	Errors        []AgentError       `json:"errors,omitempty"`
}

// Alert is a discrete notification raised by a threshold or rule breach.
// Acknowledged and resolved are one-way latches.
type Alert struct {
	ID           string        `json:"id"`
	AgentID      string        `json:"agentId"`
	Type         AlertType     `json:"type"`
	Severity     AlertSeverity `json:"severity"`
	Message      string        `json:"message"`
	Timestamp    time.Time     `json:"timestamp"`
	Acknowledged bool          `json:"acknowledged"`
	ResolvedAt   *time.Time    `json:"resolvedAt,omitempty"`
}

// SystemHealth summarizes health across all monitored agents.
type SystemHealth struct {
	Overall      HealthState `json:"overall"`
	AgentCount   int         `json:"agentCount"`
	ActiveCount  int         `json:"activeCount"`
	HealthyCount int         `json:"healthyCount"`
	Timestamp    time.Time   `json:"timestamp"`
}

// OutboundMessage is one row in the durable outbound queue.
type OutboundMessage struct {
	MessageID   string          `json:"messageId"`
	AgentID     string          `json:"agentId"`
	Channel     ChannelKind     `json:"channel"`
	Priority    string          `json:"priority"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	DeliveredAt *time.Time      `json:"deliveredAt,omitempty"`
}

// AnchorNote is one appended memory-anchor record.
type AnchorNote struct {
	ID        int64           `json:"id"`
	AnchorID  string          `json:"anchorId"`
	Note      json.RawMessage `json:"note"`
	CreatedAt time.Time       `json:"createdAt"`
}

// AgentEvent is a lifecycle/performance event published on the event bus.
// Fields beyond Kind/AgentID/Timestamp are kind-dependent.
type AgentEvent struct {
	AgentID         string    `json:"agentId"`
	Kind            EventKind `json:"kind"`
	Timestamp       time.Time `json:"timestamp"`
	Message         string    `json:"message,omitempty"`
	ExecutionTimeMs float64   `json:"executionTimeMs,omitempty"`
	Success         bool      `json:"success,omitempty"`
	MemoryMB        float64   `json:"memoryMB,omitempty"`
	CPUPercent      float64   `json:"cpuPercent,omitempty"`
}
