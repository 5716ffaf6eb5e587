// Package governance records append-only audit entries for every externally
// significant state transition in the orchestration core. The core only ever
// appends; it never reads the log back.
package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EntryType categorizes a governance record.
type EntryType string

const (
	EntryCommunicationAttempt   EntryType = "communication_attempt"
	EntryCommunicationDelivered EntryType = "communication_delivered"
	EntryInstructionExecution   EntryType = "instruction_execution"
	EntryInstructionError       EntryType = "instruction_error"
	EntryInstructionRejected    EntryType = "instruction_rejected"
	EntryAgentMessage           EntryType = "agent_message"
	EntryAlertRaised            EntryType = "alert_raised"
)

// Logger appends structured records to the governance log. Append returns
// the generated entry id so callers can correlate results with the trail.
type Logger interface {
	Append(ctx context.Context, entryType EntryType, payload map[string]any) (string, error)
}

// logger implements Logger over a Writer, one JSON record per line.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewLogger creates a Logger writing to the given writer. The writer is
// serialized by an internal mutex.
func NewLogger(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w}
}

func (l *logger) Append(ctx context.Context, entryType EntryType, payload map[string]any) (string, error) {
	record := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		record[k] = v
	}
	id := uuid.New().String()
	record["id"] = id
	record["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	record["entryType"] = entryType

	line, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal governance entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.writer.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("append governance entry: %w", err)
	}
	return id, nil
}

// FileLogger is a Logger backed by an append-only file.
type FileLogger struct {
	Logger
	f *os.File
}

// Open creates the log file (and parent directory) if needed and returns a
// FileLogger appending to it.
func Open(path string) (*FileLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create governance log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open governance log: %w", err)
	}
	return &FileLogger{Logger: NewLogger(f), f: f}, nil
}

// Close closes the underlying file.
func (l *FileLogger) Close() error {
	return l.f.Close()
}
