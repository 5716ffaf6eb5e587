package comms

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/governance"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/store"
)

// Delivery is one outbound message handed to a channel.
type Delivery struct {
	RequestID string                     `json:"requestId"`
	AgentID   string                     `json:"agentId"`
	Priority  string                     `json:"priority"`
	Message   json.RawMessage            `json:"message"`
	Context   *domain.InstructionContext `json:"context,omitempty"`
	SentAt    time.Time                  `json:"sentAt"`
}

// Channel writes a delivery to one transport. Implementations do not retry;
// the router records the failure and surfaces it to the caller.
type Channel interface {
	Deliver(ctx context.Context, d Delivery) error
}

// QueueChannel persists deliveries to the durable outbound queue. Agents poll
// their pending messages and acknowledge with MarkDelivered.
type QueueChannel struct {
	store store.Store
}

// NewQueueChannel creates a queue channel over the given store.
func NewQueueChannel(st store.Store) *QueueChannel {
	return &QueueChannel{store: st}
}

func (c *QueueChannel) Deliver(ctx context.Context, d Delivery) error {
	msg := &domain.OutboundMessage{
		MessageID: d.RequestID,
		AgentID:   d.AgentID,
		Channel:   domain.ChannelQueue,
		Priority:  d.Priority,
		Payload:   d.Message,
	}
	if err := c.store.EnqueueMessage(ctx, msg); err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}

// RedisQueueChannel pushes deliveries onto a per-agent Redis list for agents
// that consume over Redis instead of the durable queue.
type RedisQueueChannel struct {
	client *redis.Client
	prefix string
}

// NewRedisQueueChannel creates a Redis-backed queue channel.
func NewRedisQueueChannel(client *redis.Client) *RedisQueueChannel {
	return &RedisQueueChannel{client: client, prefix: "wt:agent-queue:"}
}

func (c *RedisQueueChannel) Deliver(ctx context.Context, d Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	if err := c.client.LPush(ctx, c.prefix+d.AgentID, data).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// TriggerFileChannel drops one JSON file per delivery into a watched
// directory. File-driven agents pick these up on their own schedule.
type TriggerFileChannel struct {
	dir string
}

// NewTriggerFileChannel creates the channel, ensuring dir exists.
func NewTriggerFileChannel(dir string) (*TriggerFileChannel, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trigger dir: %w", err)
	}
	return &TriggerFileChannel{dir: dir}, nil
}

func (c *TriggerFileChannel) Deliver(ctx context.Context, d Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	// Temp file plus rename so a watcher never reads a partial trigger.
	path := filepath.Join(c.dir, fmt.Sprintf("%s-%s.json", d.AgentID, d.RequestID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write trigger file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish trigger file: %w", err)
	}
	return nil
}

// GovernanceChannel records the message as a governance annotation instead of
// transporting it anywhere.
type GovernanceChannel struct {
	gov governance.Logger
}

// NewGovernanceChannel creates a governance annotation channel.
func NewGovernanceChannel(gov governance.Logger) *GovernanceChannel {
	return &GovernanceChannel{gov: gov}
}

func (c *GovernanceChannel) Deliver(ctx context.Context, d Delivery) error {
	payload := map[string]any{
		"requestId": d.RequestID,
		"agentId":   d.AgentID,
		"priority":  d.Priority,
		"message":   json.RawMessage(d.Message),
	}
	if d.Context != nil {
		if d.Context.ProjectID != "" {
			payload["projectId"] = d.Context.ProjectID
		}
		if d.Context.MemoryAnchor != "" {
			payload["memoryAnchor"] = d.Context.MemoryAnchor
		}
	}
	if _, err := c.gov.Append(ctx, governance.EntryAgentMessage, payload); err != nil {
		return fmt.Errorf("append agent message: %w", err)
	}
	return nil
}
