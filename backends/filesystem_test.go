package backends

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

func newTestFS(t *testing.T) *FilesystemHandler {
	t.Helper()
	h, err := NewFilesystemHandler(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemHandler failed: %v", err)
	}
	return h
}

func TestFilesystemWriteReadDelete(t *testing.T) {
	h := newTestFS(t)
	ctx := context.Background()

	res, err := h.Execute(ctx, "write", domain.FilesystemParams{Path: "out/x.json", Content: `{"ok":true}`})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	path, _ := res.Output["path"].(string)
	if !strings.HasSuffix(path, "x.json") {
		t.Fatalf("expected path ending in x.json, got %q", path)
	}
	if res.Output["bytes"] != len(`{"ok":true}`) {
		t.Fatalf("unexpected bytes: %v", res.Output["bytes"])
	}

	res, err = h.Execute(ctx, "read", domain.FilesystemParams{Path: "out/x.json"})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if res.Output["content"] != `{"ok":true}` {
		t.Fatalf("unexpected content: %v", res.Output["content"])
	}

	res, err = h.Execute(ctx, "list", domain.FilesystemParams{Path: "out"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	entries, _ := res.Output["entries"].([]string)
	if len(entries) != 1 || entries[0] != "x.json" {
		t.Fatalf("unexpected entries: %v", entries)
	}

	if _, err := h.Execute(ctx, "delete", domain.FilesystemParams{Path: "out/x.json"}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := h.Execute(ctx, "read", domain.FilesystemParams{Path: "out/x.json"}); err == nil {
		t.Fatal("expected read of deleted file to fail")
	}
}

func TestFilesystemRejectsSandboxEscape(t *testing.T) {
	h := newTestFS(t)
	_, err := h.Execute(context.Background(), "write", domain.FilesystemParams{Path: "../escape.txt", Content: "x"})
	if err == nil || !strings.Contains(err.Error(), "escapes sandbox") {
		t.Fatalf("expected sandbox escape error, got %v", err)
	}
}

func TestFilesystemUnknownAction(t *testing.T) {
	h := newTestFS(t)
	_, err := h.Execute(context.Background(), "chmod", domain.FilesystemParams{Path: "x"})
	if !errors.Is(err, domain.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestFilesystemWrongParamsType(t *testing.T) {
	h := newTestFS(t)
	_, err := h.Execute(context.Background(), "write", domain.DatabaseParams{Statement: "SELECT 1"})
	if err == nil {
		t.Fatal("expected params type error")
	}
}
