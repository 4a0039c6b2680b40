package fly

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flydevtools/flyserve/internal/logstore"
	"github.com/flydevtools/flyserve/internal/resources"
	"github.com/flydevtools/flyserve/internal/tools"
)

// cancelPollInterval is how often a running command checks the cancel
// token. The context deadline kills the process independently.
const cancelPollInterval = 100 * time.Millisecond

var commandOutputSchema = mustSchema(map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":        map[string]any{"type": "string"},
		"uri":       map[string]any{"type": "string"},
		"exitCode":  map[string]any{"type": "integer"},
		"cancelled": map[string]any{"type": "boolean"},
	},
	"required": []string{"id", "uri", "exitCode", "cancelled"},
})

// Run returns the fly.run tool definition. It launches `dart run` in
// the workspace and streams the process output into the run-log store,
// readable afterwards as a logs://run/ resource.
func Run(workspaceRoot string, logs *logstore.Store) *tools.Definition {
	return &tools.Definition{
		Name:        "fly.run",
		Description: "Run `dart run` in the workspace, capturing output under logs://run/.",
		InputSchema: mustSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"args": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Extra arguments appended to `dart run`.",
				},
			},
		}),
		OutputSchema: commandOutputSchema,
		Handler:      commandHandler(workspaceRoot, logs, resources.RunLogPrefix, "dart", []string{"run"}, nil),
	}
}

// Build returns the fly.build tool definition. It launches
// `flutter build <target>` in the workspace and streams the process
// output into the build-log store.
func Build(workspaceRoot string, logs *logstore.Store) *tools.Definition {
	return &tools.Definition{
		Name:        "fly.build",
		Description: "Run `flutter build` for a target, capturing output under logs://build/.",
		InputSchema: mustSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target": map[string]any{
					"type":        "string",
					"description": "Build target, e.g. apk, ios, web.",
				},
				"args": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Extra arguments appended to the build command.",
				},
			},
			"required": []string{"target"},
		}),
		OutputSchema: commandOutputSchema,
		WritesToDisk: true,
		Handler: commandHandler(workspaceRoot, logs, resources.BuildLogPrefix, "flutter", []string{"build"}, func(args map[string]any) ([]string, error) {
			target, _ := args["target"].(string)
			if target == "" {
				return nil, fmt.Errorf("target is required")
			}
			return []string{target}, nil
		}),
	}
}

// commandHandler builds a handler that runs binary with baseArgs (plus
// any leading args produced by lead and trailing "args" from the
// request) inside the workspace, capturing output line by line under a
// fresh ID.
func commandHandler(workspaceRoot string, logs *logstore.Store, uriPrefix, binary string, baseArgs []string, lead func(map[string]any) ([]string, error)) tools.Handler {
	return func(ctx context.Context, inv *tools.Invocation) (any, error) {
		args := append([]string(nil), baseArgs...)
		if lead != nil {
			extra, err := lead(inv.Arguments)
			if err != nil {
				return nil, err
			}
			args = append(args, extra...)
		}
		if raw, ok := inv.Arguments["args"].([]any); ok {
			for _, entry := range raw {
				value, ok := entry.(string)
				if !ok {
					return nil, fmt.Errorf("args entries must be strings")
				}
				args = append(args, value)
			}
		}

		id := uuid.NewString()
		inv.Progress.Notify(fmt.Sprintf("running %s", binary), -1)

		exitCode, cancelled, err := captureCommand(ctx, inv.Cancel, logs, id, workspaceRoot, binary, args)
		if err != nil {
			return nil, err
		}

		inv.Progress.Notify("command finished", 1)
		return map[string]any{
			"id":        id,
			"uri":       uriPrefix + id,
			"exitCode":  exitCode,
			"cancelled": cancelled,
		}, nil
	}
}

// captureCommand runs the command with its combined output streamed
// into the store under id, polling the cancel token while it runs. A
// set token kills the process; the context deadline does the same
// through exec.CommandContext.
func captureCommand(ctx context.Context, cancel *tools.CancelToken, store *logstore.Store, id, dir, binary string, args []string) (exitCode int, cancelled bool, err error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	sink := &lineSink{store: store, id: id}
	cmd.Stdout = sink
	cmd.Stderr = sink

	store.Append(id, fmt.Sprintf("$ %s", cmd.String()))
	if err := cmd.Start(); err != nil {
		return 0, false, fmt.Errorf("start %s: %w", binary, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	for {
		select {
		case waitErr := <-done:
			sink.flush()
			return exitStatus(waitErr), false, nil
		case <-time.After(cancelPollInterval):
			if cancel != nil && cancel.Cancelled() {
				_ = cmd.Process.Kill()
				<-done
				sink.flush()
				store.Append(id, "cancelled")
				return -1, true, nil
			}
		}
	}
}

func exitStatus(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// lineSink appends complete output lines to the store, buffering
// partial writes until their newline arrives.
type lineSink struct {
	store *logstore.Store
	id    string

	mu  sync.Mutex
	buf []byte
}

func (w *lineSink) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.store.Append(w.id, string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *lineSink) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.store.Append(w.id, string(w.buf))
		w.buf = nil
	}
}
