// Package fly registers the built-in tools exposed by the flyserve
// protocol server. Handlers are thin: project scaffolding itself is the
// CLI's job, the server only exposes environment and workspace helpers.
package fly

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/flydevtools/flyserve/internal/tools"
)

func mustSchema(schema map[string]any) json.RawMessage {
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

var emptyObjectSchema = mustSchema(map[string]any{
	"type":       "object",
	"properties": map[string]any{},
})

// Version returns the fly.version tool definition.
func Version(serverName, version string) *tools.Definition {
	return &tools.Definition{
		Name:        "fly.version",
		Description: "Report the server name and version.",
		InputSchema: emptyObjectSchema,
		OutputSchema: mustSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":    map[string]any{"type": "string"},
				"version": map[string]any{"type": "string"},
			},
			"required": []string{"name", "version"},
		}),
		ReadOnly:   true,
		Idempotent: true,
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			return map[string]any{"name": serverName, "version": version}, nil
		},
	}
}

// Doctor returns the fly.doctor tool definition: a read-only check of
// the toolchain binaries the scaffolding CLI depends on.
func Doctor() *tools.Definition {
	return &tools.Definition{
		Name:        "fly.doctor",
		Description: "Check that the Dart and Flutter toolchains are available.",
		InputSchema: emptyObjectSchema,
		ReadOnly:    true,
		Idempotent:  true,
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			checks := make([]map[string]any, 0, 2)
			for _, binary := range []string{"dart", "flutter"} {
				path, err := exec.LookPath(binary)
				checks = append(checks, map[string]any{
					"binary": binary,
					"found":  err == nil,
					"path":   path,
				})
			}
			return map[string]any{"checks": checks}, nil
		},
	}
}

// SchemaExport returns the fly.schema_export tool definition, which
// reports the schemas of every registered tool.
func SchemaExport(registry *tools.Registry) *tools.Definition {
	return &tools.Definition{
		Name:        "fly.schema_export",
		Description: "Export the input and output schemas of all registered tools.",
		InputSchema: emptyObjectSchema,
		ReadOnly:    true,
		Idempotent:  true,
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			summaries := registry.List()
			payload, err := json.Marshal(summaries)
			if err != nil {
				return nil, fmt.Errorf("encode schemas: %w", err)
			}
			var decoded []any
			if err := json.Unmarshal(payload, &decoded); err != nil {
				return nil, fmt.Errorf("decode schemas: %w", err)
			}
			return map[string]any{"tools": decoded}, nil
		},
	}
}

// cleanTargets are the generated directories fly.clean_workspace removes.
var cleanTargets = []string{"build", ".dart_tool"}

// CleanWorkspace returns the fly.clean_workspace tool definition. It
// deletes generated build directories under the workspace root, so it is
// flagged as writing to disk and requiring confirmation.
func CleanWorkspace(workspaceRoot string) *tools.Definition {
	return &tools.Definition{
		Name:        "fly.clean_workspace",
		Description: "Delete generated build artifacts (build/, .dart_tool/) from the workspace.",
		InputSchema: mustSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"confirm": map[string]any{
					"type":        "boolean",
					"description": "Must be true to actually delete files.",
				},
			},
		}),
		WritesToDisk:         true,
		RequiresConfirmation: true,
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			removed := make([]string, 0, len(cleanTargets))
			for i, target := range cleanTargets {
				if inv.Cancel.Cancelled() {
					return map[string]any{"removed": removed, "cancelled": true}, nil
				}
				inv.Progress.Notify(fmt.Sprintf("removing %s", target), float64(i)/float64(len(cleanTargets)))

				path := filepath.Join(workspaceRoot, target)
				if _, err := os.Stat(path); os.IsNotExist(err) {
					continue
				}
				if err := os.RemoveAll(path); err != nil {
					return nil, fmt.Errorf("remove %s: %w", target, err)
				}
				removed = append(removed, target)
			}
			inv.Progress.Notify("clean complete", 1)
			return map[string]any{"removed": removed, "cancelled": false}, nil
		},
	}
}
