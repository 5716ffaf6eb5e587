package backends

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// FilesystemHandler executes file operations inside a sandbox root. Paths
// resolving outside the root are rejected.
type FilesystemHandler struct {
	root string
}

// NewFilesystemHandler creates a handler rooted at the given directory.
func NewFilesystemHandler(root string) (*FilesystemHandler, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	return &FilesystemHandler{root: abs}, nil
}

func (h *FilesystemHandler) Execute(ctx context.Context, action string, params domain.OperationParams) (*Result, error) {
	p, ok := params.(domain.FilesystemParams)
	if !ok {
		return nil, fmt.Errorf("filesystem: unexpected params type %T", params)
	}
	if p.Path == "" {
		return nil, fmt.Errorf("filesystem: path is required")
	}
	path, err := h.resolve(p.Path)
	if err != nil {
		return nil, err
	}

	switch action {
	case "write":
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("filesystem write: %w", err)
		}
		if err := os.WriteFile(path, []byte(p.Content), 0o644); err != nil {
			return nil, fmt.Errorf("filesystem write: %w", err)
		}
		return &Result{
			Output:    map[string]any{"path": path, "bytes": len(p.Content)},
			Artifacts: []string{path},
		}, nil

	case "read":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("filesystem read: %w", err)
		}
		return &Result{
			Output: map[string]any{"path": path, "content": string(data)},
		}, nil

	case "delete":
		remove := os.Remove
		if p.Recursive {
			remove = os.RemoveAll
		}
		if err := remove(path); err != nil {
			return nil, fmt.Errorf("filesystem delete: %w", err)
		}
		return &Result{
			Output: map[string]any{"path": path, "deleted": true},
		}, nil

	case "mkdir":
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("filesystem mkdir: %w", err)
		}
		return &Result{
			Output: map[string]any{"path": path},
		}, nil

	case "list":
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("filesystem list: %w", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return &Result{
			Output: map[string]any{"path": path, "entries": names},
		}, nil

	default:
		return nil, fmt.Errorf("%w: filesystem %q", domain.ErrUnknownAction, action)
	}
}

// resolve joins the path onto the sandbox root and rejects escapes.
func (h *FilesystemHandler) resolve(rel string) (string, error) {
	path := filepath.Clean(filepath.Join(h.root, rel))
	if path != h.root && !strings.HasPrefix(path, h.root+string(filepath.Separator)) {
		return "", fmt.Errorf("filesystem: path %q escapes sandbox", rel)
	}
	return path, nil
}
