package backends

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// GitClient runs version-control commands. Injected so tests can fake it.
type GitClient interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// CLIGit is the default GitClient shelling out to the git binary.
type CLIGit struct {
	Dir string
}

func (g *CLIGit) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// VersionControlHandler executes repository operations through a GitClient.
type VersionControlHandler struct {
	git GitClient
}

// NewVersionControlHandler creates a handler over the given client.
func NewVersionControlHandler(git GitClient) *VersionControlHandler {
	return &VersionControlHandler{git: git}
}

func (h *VersionControlHandler) Execute(ctx context.Context, action string, params domain.OperationParams) (*Result, error) {
	p, ok := params.(domain.VersionControlParams)
	if !ok {
		return nil, fmt.Errorf("version-control: unexpected params type %T", params)
	}

	switch action {
	case "clone":
		if p.RemoteURL == "" || p.Repository == "" {
			return nil, fmt.Errorf("version-control clone: remoteUrl and repository are required")
		}
		if _, err := h.git.Run(ctx, "clone", p.RemoteURL, p.Repository); err != nil {
			return nil, err
		}
		return &Result{
			Output: map[string]any{"repository": p.Repository, "remoteUrl": p.RemoteURL},
		}, nil

	case "create-branch":
		if p.Branch == "" {
			return nil, fmt.Errorf("version-control create-branch: branch is required")
		}
		if _, err := h.git.Run(ctx, "checkout", "-b", p.Branch); err != nil {
			return nil, err
		}
		return &Result{
			Output: map[string]any{"branch": p.Branch},
		}, nil

	case "commit":
		if p.Message == "" {
			return nil, fmt.Errorf("version-control commit: message is required")
		}
		addArgs := []string{"add"}
		if len(p.Files) == 0 {
			addArgs = append(addArgs, "-A")
		} else {
			addArgs = append(addArgs, p.Files...)
		}
		if _, err := h.git.Run(ctx, addArgs...); err != nil {
			return nil, err
		}
		if _, err := h.git.Run(ctx, "commit", "-m", p.Message); err != nil {
			return nil, err
		}
		return &Result{
			Output:    map[string]any{"message": p.Message, "files": len(p.Files)},
			Artifacts: p.Files,
		}, nil

	case "push":
		branch := p.Branch
		if branch == "" {
			branch = "HEAD"
		}
		if _, err := h.git.Run(ctx, "push", "origin", branch); err != nil {
			return nil, err
		}
		return &Result{
			Output: map[string]any{"branch": branch},
		}, nil

	case "status":
		out, err := h.git.Run(ctx, "status", "--porcelain")
		if err != nil {
			return nil, err
		}
		return &Result{
			Output: map[string]any{"status": out, "clean": strings.TrimSpace(out) == ""},
		}, nil

	default:
		return nil, fmt.Errorf("%w: version-control %q", domain.ErrUnknownAction, action)
	}
}
