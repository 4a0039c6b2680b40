package resources

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/flydevtools/flyserve/internal/logstore"
	"github.com/flydevtools/flyserve/internal/protocol"
)

func newTestRegistry(t *testing.T) (*Registry, string, *logstore.Store) {
	t.Helper()
	sandbox, root := newTestSandbox(t, SandboxRules{})
	workspace, err := NewWorkspaceStrategy(sandbox)
	if err != nil {
		t.Fatal(err)
	}
	runStore := logstore.NewStore()
	runLogs, err := NewRunLogStrategy(runStore)
	if err != nil {
		t.Fatal(err)
	}

	registry := NewRegistry()
	for _, strategy := range []Strategy{workspace, runLogs} {
		if err := registry.Register(strategy); err != nil {
			t.Fatal(err)
		}
	}
	return registry, root, runStore
}

func TestRegistry_DispatchByPrefix(t *testing.T) {
	registry, root, runStore := newTestRegistry(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("file"), 0o644); err != nil {
		t.Fatal(err)
	}
	runStore.Append("r1", "log line")

	fileResult, err := registry.Read(context.Background(), protocol.ReadResourceParams{URI: "workspace://a.txt"})
	if err != nil {
		t.Fatalf("workspace read: %v", err)
	}
	if fileResult.Content != "file" {
		t.Errorf("workspace content = %q", fileResult.Content)
	}

	logResult, err := registry.Read(context.Background(), protocol.ReadResourceParams{URI: "logs://run/r1"})
	if err != nil {
		t.Fatalf("run log read: %v", err)
	}
	if logResult.Content != "log line\n" {
		t.Errorf("log content = %q", logResult.Content)
	}
}

func TestRegistry_UnprefixedFallsBackToWorkspace(t *testing.T) {
	registry, root, _ := newTestRegistry(t)
	if err := os.WriteFile(filepath.Join(root, "b.txt"), []byte("fallback"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := registry.Read(context.Background(), protocol.ReadResourceParams{URI: "b.txt"})
	if err != nil {
		t.Fatalf("fallback read: %v", err)
	}
	if result.Content != "fallback" {
		t.Errorf("content = %q", result.Content)
	}
}
