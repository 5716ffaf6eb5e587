package domain

import "errors"

// Error taxonomy surfaced to callers. Handlers and services wrap these with
// fmt.Errorf("...: %w", ...) so errors.Is works at the API boundary.
var (
	// ErrUnauthorized rejects a call before any instruction processing.
	// Leaves no governance trace.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidSignature is a terminal validation failure. The message text
	// is part of the contract with agents and must not change.
	ErrInvalidSignature = errors.New("Invalid instruction signature")

	// ErrUnknownOperationType rejects an operation type outside the fixed set.
	ErrUnknownOperationType = errors.New("unknown operation type")

	// ErrUnknownAction rejects an action the matched backend does not support.
	ErrUnknownAction = errors.New("unknown action")

	// ErrBackendExecution wraps any downstream handler failure, including
	// handler timeouts.
	ErrBackendExecution = errors.New("backend execution error")

	// ErrAgentNotFound rejects a reference to an agent absent from the registry.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentInactive rejects a reference to a registered but inactive agent.
	ErrAgentInactive = errors.New("agent is not active")

	// ErrChannelDelivery wraps outbound channel I/O failures. Not retried.
	ErrChannelDelivery = errors.New("channel delivery failed")

	// ErrDuplicateInstruction rejects a resubmitted instructionId that is
	// still in flight.
	ErrDuplicateInstruction = errors.New("duplicate instruction")
)
