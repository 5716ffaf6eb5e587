package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// CIHandler triggers continuous-integration pipelines by dropping trigger
// files and, when configured, notifying a CI webhook.
type CIHandler struct {
	dir     string
	webhook string
	client  *http.Client
}

// NewCIHandler creates a handler dropping trigger files into dir. webhookURL
// may be empty; client may be nil for http.DefaultClient.
func NewCIHandler(dir, webhookURL string, client *http.Client) (*CIHandler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trigger dir: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &CIHandler{dir: dir, webhook: webhookURL, client: client}, nil
}

func (h *CIHandler) Execute(ctx context.Context, action string, params domain.OperationParams) (*Result, error) {
	p, ok := params.(domain.ContinuousIntegrationParams)
	if !ok {
		return nil, fmt.Errorf("continuous-integration: unexpected params type %T", params)
	}
	if p.Pipeline == "" {
		return nil, fmt.Errorf("continuous-integration: pipeline is required")
	}

	switch action {
	case "trigger":
		payload := map[string]any{
			"pipeline":    p.Pipeline,
			"ref":         p.Ref,
			"inputs":      p.Inputs,
			"requestedAt": time.Now().UTC().Format(time.RFC3339),
		}
		file := filepath.Join(h.dir, fmt.Sprintf("%s-%s.json", p.Pipeline, uuid.New().String()))
		if err := writeJSONAtomic(file, payload); err != nil {
			return nil, fmt.Errorf("ci trigger: %w", err)
		}

		output := map[string]any{"pipeline": p.Pipeline, "triggerFile": file}
		if h.webhook != "" {
			status, err := h.notify(ctx, payload)
			if err != nil {
				return nil, fmt.Errorf("ci webhook: %w", err)
			}
			output["webhookStatus"] = status
		}
		return &Result{Output: output, Artifacts: []string{file}}, nil

	case "status":
		matches, err := filepath.Glob(filepath.Join(h.dir, p.Pipeline+"-*.json"))
		if err != nil {
			return nil, fmt.Errorf("ci status: %w", err)
		}
		return &Result{
			Output: map[string]any{"pipeline": p.Pipeline, "pending": len(matches)},
		}, nil

	default:
		return nil, fmt.Errorf("%w: continuous-integration %q", domain.ErrUnknownAction, action)
	}
}

func (h *CIHandler) notify(ctx context.Context, payload map[string]any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.webhook, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// writeJSONAtomic writes payload to path via a temp file and rename so a
// trigger consumer never observes a partial file.
func writeJSONAtomic(path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
