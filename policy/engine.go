// Package policy evaluates instruction authorization with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine gating instruction execution.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.instruction_policy.result"),
		rego.Module("instruction_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the instruction policy. Input carries the agent record and
// the operation (type, action). Returns decision ("allow" or "deny") and a
// reason.
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "deny", "policy produced no result", nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return "deny", "policy produced unexpected result type", nil
	}
	decision, _ := obj["decision"].(string)
	reason, _ := obj["reason"].(string)
	if decision == "" {
		decision = "deny"
	}
	return decision, reason, nil
}

// DefaultPolicy allows an operation only when the agent is active and carries
// a capability matching the operation type.
const DefaultPolicy = `
package instruction_policy

default result = {"decision": "deny", "reason": "no capability for operation type"}

result = {"decision": "allow", "reason": "capability match"} {
	input.agent.active
	input.operation.type == input.agent.capabilities[_]
}

result = {"decision": "deny", "reason": "agent inactive"} {
	not input.agent.active
}
`
