// Package comms routes orchestrator-to-agent messages over pluggable
// channels, logging each attempt and delivery to the governance log.
package comms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/governance"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/registry"
)

// DefaultPriority is assumed when a send request carries no priority.
const DefaultPriority = "normal"

var messagesRouted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wt_messages_routed_total",
		Help: "Outbound messages by channel and routing result.",
	},
	[]string{"channel", "result"},
)

func init() {
	prometheus.MustRegister(messagesRouted)
}

// SendRequest asks the router to deliver a message to one agent.
type SendRequest struct {
	TargetAgentID string                     `json:"targetAgentId"`
	Message       json.RawMessage            `json:"message"`
	Channel       domain.ChannelKind         `json:"channel,omitempty"`
	Priority      string                     `json:"priority,omitempty"`
	Context       *domain.InstructionContext `json:"context,omitempty"`
}

// SendResult reports the routing outcome. Success false carries the error
// text; the router never retries a failed delivery.
type SendResult struct {
	Success         bool               `json:"success"`
	AgentID         string             `json:"agentId"`
	ResponseChannel domain.ChannelKind `json:"responseChannel"`
	ResponseID      string             `json:"responseId,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// Router delivers messages to agents over registered channels.
type Router struct {
	agents   *registry.Registry
	gov      governance.Logger
	channels map[domain.ChannelKind]Channel
	log      *logrus.Logger
}

// NewRouter creates a router with no channels registered.
func NewRouter(agents *registry.Registry, gov governance.Logger, log *logrus.Logger) *Router {
	if log == nil {
		log = logrus.New()
	}
	return &Router{
		agents:   agents,
		gov:      gov,
		channels: make(map[domain.ChannelKind]Channel),
		log:      log,
	}
}

// Register adds a channel for a kind.
func (r *Router) Register(kind domain.ChannelKind, ch Channel) error {
	if kind == "" {
		return fmt.Errorf("channel kind is required")
	}
	if ch == nil {
		return fmt.Errorf("channel is required")
	}
	if _, exists := r.channels[kind]; exists {
		return fmt.Errorf("channel already registered for %s", kind)
	}
	r.channels[kind] = ch
	return nil
}

// MustRegister adds a channel or panics.
func (r *Router) MustRegister(kind domain.ChannelKind, ch Channel) {
	if err := r.Register(kind, ch); err != nil {
		panic(err)
	}
}

// Send routes one message. The error return covers malformed requests only;
// every routed outcome, including delivery failure, is reported in the
// result. The communication attempt is logged before the channel write and
// the delivery after it, correlated by the generated request id.
func (r *Router) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.TargetAgentID == "" {
		return nil, fmt.Errorf("target agent id is required")
	}

	kind := req.Channel
	if kind == "" {
		kind = domain.ChannelQueue
	}
	result := &SendResult{AgentID: req.TargetAgentID, ResponseChannel: kind}

	ch, ok := r.channels[kind]
	if !ok {
		return r.failed(result, fmt.Errorf("no channel registered for %q", kind)), nil
	}

	agent, ok := r.agents.Lookup(req.TargetAgentID)
	if !ok {
		return r.failed(result, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, req.TargetAgentID)), nil
	}
	if !agent.Active {
		return r.failed(result, fmt.Errorf("%w: %s", domain.ErrAgentInactive, req.TargetAgentID)), nil
	}

	priority := req.Priority
	if priority == "" {
		priority = DefaultPriority
	}
	delivery := Delivery{
		RequestID: uuid.New().String(),
		AgentID:   req.TargetAgentID,
		Priority:  priority,
		Message:   req.Message,
		Context:   req.Context,
		SentAt:    time.Now().UTC(),
	}

	if err := r.logAttempt(ctx, kind, delivery); err != nil {
		return r.failed(result, fmt.Errorf("record communication attempt: %w", err)), nil
	}

	if err := ch.Deliver(ctx, delivery); err != nil {
		r.log.WithFields(logrus.Fields{
			"agent_id": req.TargetAgentID,
			"channel":  kind,
		}).WithError(err).Warn("channel delivery failed")
		return r.failed(result, fmt.Errorf("%w: %v", domain.ErrChannelDelivery, err)), nil
	}

	if r.gov != nil {
		if _, err := r.gov.Append(ctx, governance.EntryCommunicationDelivered, map[string]any{
			"requestId": delivery.RequestID,
			"agentId":   delivery.AgentID,
			"channel":   kind,
		}); err != nil {
			r.log.WithError(err).Warn("failed to write delivery governance entry")
		}
	}

	messagesRouted.WithLabelValues(string(kind), "delivered").Inc()
	result.Success = true
	result.ResponseID = delivery.RequestID
	return result, nil
}

func (r *Router) failed(result *SendResult, cause error) *SendResult {
	messagesRouted.WithLabelValues(string(result.ResponseChannel), "failed").Inc()
	result.Success = false
	result.Error = cause.Error()
	return result
}

// logAttempt writes the pre-delivery governance entry.
func (r *Router) logAttempt(ctx context.Context, kind domain.ChannelKind, d Delivery) error {
	if r.gov == nil {
		return nil
	}
	payload := map[string]any{
		"requestId": d.RequestID,
		"agentId":   d.AgentID,
		"channel":   kind,
		"priority":  d.Priority,
	}
	if c := d.Context; c != nil {
		if c.ProjectID != "" {
			payload["projectId"] = c.ProjectID
		}
		if c.PhaseID != "" {
			payload["phaseId"] = c.PhaseID
		}
		if c.MemoryAnchor != "" {
			payload["memoryAnchor"] = c.MemoryAnchor
		}
	}
	_, err := r.gov.Append(ctx, governance.EntryCommunicationAttempt, payload)
	return err
}
