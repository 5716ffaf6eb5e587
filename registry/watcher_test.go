package registry

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

const updatedCatalog = `agents:
  - id: claude-dispatcher
    name: Claude Dispatcher
    active: true
    capabilities: [filesystem, version-control]
  - id: gizmo-builder
    name: Gizmo Builder
    active: true
    capabilities: [continuous-integration]
  - id: side-quest
    name: Side Quest
    active: true
    capabilities: [database]
`

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	w, err := NewWatcher(r, path, quietLog(), nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	if err := os.WriteFile(path, []byte(updatedCatalog), 0o644); err != nil {
		t.Fatalf("overwrite catalog: %v", err)
	}
	waitFor(t, "catalog reload after write", func() bool {
		_, ok := r.Lookup("side-quest")
		return ok
	})
	a, _ := r.Lookup("gizmo-builder")
	if !a.Active {
		t.Fatal("expected reloaded gizmo-builder active")
	}
}

func TestWatcherSeesRenameReplace(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	w, err := NewWatcher(r, path, quietLog(), nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// Editors save via temp file + rename; the watcher covers the parent
	// directory so the final rename onto the catalog path is observed.
	tmp := filepath.Join(filepath.Dir(path), "agents.yaml.tmp")
	if err := os.WriteFile(tmp, []byte(updatedCatalog), 0o644); err != nil {
		t.Fatalf("write temp catalog: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename catalog: %v", err)
	}
	waitFor(t, "catalog reload after rename", func() bool {
		_, ok := r.Lookup("side-quest")
		return ok
	})
}

func TestWatcherKeepsCatalogOnBadReload(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	errs := make(chan error, 1)
	w, err := NewWatcher(r, path, quietLog(), func(err error) {
		select {
		case errs <- err:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	if err := os.WriteFile(path, []byte("agents: [not: valid: yaml"), 0o644); err != nil {
		t.Fatalf("overwrite catalog: %v", err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("reload error callback received nil")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload error never reported")
	}

	if _, ok := r.Lookup("claude-dispatcher"); !ok {
		t.Fatal("previous catalog lost after failed reload")
	}
}
