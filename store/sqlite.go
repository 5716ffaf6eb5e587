package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// Message queue row statuses.
const (
	MessageStatusPending   = "pending"
	MessageStatusDelivered = "delivered"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS outbox (
			message_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'normal',
			payload TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			delivered_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_agent ON outbox(agent_id, status, created_at)`,
		`CREATE TABLE IF NOT EXISTS memory_anchors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			anchor_id TEXT NOT NULL,
			note TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anchors_anchor ON memory_anchors(anchor_id, id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// EnqueueMessage appends a message to the outbound queue.
func (s *SQLiteStore) EnqueueMessage(ctx context.Context, msg *domain.OutboundMessage) error {
	if msg.Status == "" {
		msg.Status = MessageStatusPending
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (message_id, agent_id, channel, priority, payload, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.MessageID, msg.AgentID, msg.Channel, msg.Priority, string(msg.Payload), msg.Status, msg.CreatedAt)
	return err
}

// PendingMessages returns undelivered messages for an agent, oldest first.
func (s *SQLiteStore) PendingMessages(ctx context.Context, agentID string, limit int) ([]domain.OutboundMessage, error) {
	query := `SELECT message_id, agent_id, channel, priority, payload, status, created_at, delivered_at
		FROM outbox WHERE agent_id = ? AND status = ? ORDER BY created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, agentID, MessageStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.OutboundMessage
	for rows.Next() {
		var msg domain.OutboundMessage
		var payload string
		var deliveredAt sql.NullTime
		if err := rows.Scan(&msg.MessageID, &msg.AgentID, &msg.Channel, &msg.Priority, &payload, &msg.Status, &msg.CreatedAt, &deliveredAt); err != nil {
			return nil, err
		}
		msg.Payload = json.RawMessage(payload)
		if deliveredAt.Valid {
			msg.DeliveredAt = &deliveredAt.Time
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkDelivered flags a queued message as delivered.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, delivered_at = ? WHERE message_id = ?`,
		MessageStatusDelivered, time.Now(), messageID)
	return err
}

// AppendToAnchor appends a note to a memory anchor.
func (s *SQLiteStore) AppendToAnchor(ctx context.Context, anchorID string, note []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_anchors (anchor_id, note, created_at) VALUES (?, ?, ?)`,
		anchorID, string(note), time.Now())
	return err
}

// AnchorNotes returns all notes for an anchor in append order.
func (s *SQLiteStore) AnchorNotes(ctx context.Context, anchorID string) ([]domain.AnchorNote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, anchor_id, note, created_at FROM memory_anchors WHERE anchor_id = ? ORDER BY id ASC`,
		anchorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []domain.AnchorNote
	for rows.Next() {
		var n domain.AnchorNote
		var note string
		if err := rows.Scan(&n.ID, &n.AnchorID, &note, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Note = json.RawMessage(note)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
