// Package store provides durable persistence for the outbound message queue
// and memory anchors.
package store

import (
	"context"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// Store defines the persistence interface for the orchestration core.
type Store interface {
	// Outbound queue
	EnqueueMessage(ctx context.Context, msg *domain.OutboundMessage) error
	PendingMessages(ctx context.Context, agentID string, limit int) ([]domain.OutboundMessage, error)
	MarkDelivered(ctx context.Context, messageID string) error

	// Memory anchors
	AppendToAnchor(ctx context.Context, anchorID string, note []byte) error
	AnchorNotes(ctx context.Context, anchorID string) ([]domain.AnchorNote, error)

	Close() error
}
