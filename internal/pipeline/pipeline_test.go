package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flydevtools/flyserve/internal/limits"
	"github.com/flydevtools/flyserve/internal/observability"
	"github.com/flydevtools/flyserve/internal/protocol"
	"github.com/flydevtools/flyserve/internal/tools"
)

func newTestPipeline(t *testing.T, registry *tools.Registry, opts Options) *Pipeline {
	t.Helper()
	opts.Registry = registry
	opts.Logger = observability.Discard()
	return New(opts)
}

func errorKind(t *testing.T, result *protocol.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("expected a result, got nil")
	}
	if !result.IsError {
		t.Fatalf("expected an error result, got %+v", result)
	}
	kind, _ := result.StructuredContent["errorKind"].(string)
	if kind == "" {
		t.Fatalf("error result carries no errorKind: %+v", result.StructuredContent)
	}
	return kind
}

func TestExecuteOpaqueResult(t *testing.T) {
	registry := tools.NewRegistry()
	if err := registry.Register(&tools.Definition{
		Name: "echo",
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			return inv.Arguments["message"], nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p := newTestPipeline(t, registry, Options{})
	result, err := p.Execute(context.Background(), protocol.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"message": "hello"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hello" {
		t.Errorf("content = %+v, want single text item %q", result.Content, "hello")
	}
}

func TestExecuteToolNotFound(t *testing.T) {
	p := newTestPipeline(t, tools.NewRegistry(), Options{})
	result, err := p.Execute(context.Background(), protocol.CallToolParams{Name: "missing"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if kind := errorKind(t, result); kind != string(KindToolNotFound) {
		t.Errorf("errorKind = %q, want %q", kind, KindToolNotFound)
	}
}

func TestExecuteConfirmationRequired(t *testing.T) {
	var ran bool
	registry := tools.NewRegistry()
	if err := registry.Register(&tools.Definition{
		Name:                 "wipe",
		WritesToDisk:         true,
		RequiresConfirmation: true,
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			ran = true
			return "done", nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	p := newTestPipeline(t, registry, Options{})

	result, err := p.Execute(context.Background(), protocol.CallToolParams{Name: "wipe"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if kind := errorKind(t, result); kind != string(KindConfirmationRequired) {
		t.Errorf("errorKind = %q, want %q", kind, KindConfirmationRequired)
	}
	if ran {
		t.Error("handler ran without confirmation")
	}

	result, err = p.Execute(context.Background(), protocol.CallToolParams{
		Name:      "wipe",
		Arguments: map[string]any{"confirm": true},
	})
	if err != nil {
		t.Fatalf("execute confirmed: %v", err)
	}
	if result.IsError {
		t.Fatalf("confirmed call failed: %+v", result)
	}
	if !ran {
		t.Error("handler did not run after confirmation")
	}
}

func TestExecuteConcurrencyLimit(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	registry := tools.NewRegistry()
	if err := registry.Register(&tools.Definition{
		Name: "slow",
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			close(started)
			<-release
			return "done", nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p := newTestPipeline(t, registry, Options{
		Limiter: limits.NewLimiter(limits.LimiterConfig{PerTool: map[string]int{"slow": 1}}),
	})

	type outcome struct {
		result *protocol.CallToolResult
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		result, err := p.Execute(context.Background(), protocol.CallToolParams{Name: "slow"})
		first <- outcome{result, err}
	}()
	<-started

	rejected, err := p.Execute(context.Background(), protocol.CallToolParams{Name: "slow"})
	if err != nil {
		t.Fatalf("execute second: %v", err)
	}
	if kind := errorKind(t, rejected); kind != string(KindConcurrencyLimit) {
		t.Errorf("errorKind = %q, want %q", kind, KindConcurrencyLimit)
	}
	if limit, _ := rejected.StructuredContent["limit"].(int); limit != 1 {
		t.Errorf("limit = %v, want 1", rejected.StructuredContent["limit"])
	}

	close(release)
	got := <-first
	if got.err != nil {
		t.Fatalf("execute first: %v", got.err)
	}
	if got.result.IsError {
		t.Fatalf("first call failed: %+v", got.result)
	}
}

func TestExecuteTimeout(t *testing.T) {
	var (
		mu    sync.Mutex
		token *tools.CancelToken
	)
	registry := tools.NewRegistry()
	if err := registry.Register(&tools.Definition{
		Name: "sleepy",
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			mu.Lock()
			token = inv.Cancel
			mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return "done", nil
			}
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p := newTestPipeline(t, registry, Options{
		Config: Config{
			DefaultTimeout: time.Minute,
			ToolTimeouts:   map[string]time.Duration{"sleepy": 50 * time.Millisecond},
			Sizes:          DefaultSizeConfig(),
		},
	})

	start := time.Now()
	result, err := p.Execute(context.Background(), protocol.CallToolParams{Name: "sleepy"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v, want about 50ms", elapsed)
	}
	if kind := errorKind(t, result); kind != string(KindTimeout) {
		t.Errorf("errorKind = %q, want %q", kind, KindTimeout)
	}

	mu.Lock()
	defer mu.Unlock()
	if token == nil || !token.Cancelled() {
		t.Error("cancel token not set after timeout")
	}
}

func TestExecuteParameterSizeLimit(t *testing.T) {
	registry := tools.NewRegistry()
	if err := registry.Register(&tools.Definition{
		Name: "echo",
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			return "ok", nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p := newTestPipeline(t, registry, Options{
		Config: Config{
			DefaultTimeout: time.Minute,
			Sizes:          SizeConfig{MaxParameterBytes: 64, MaxResultBytes: 1 << 20},
		},
	})
	result, err := p.Execute(context.Background(), protocol.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"payload": strings.Repeat("x", 256)},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if kind := errorKind(t, result); kind != string(KindSizeLimit) {
		t.Errorf("errorKind = %q, want %q", kind, KindSizeLimit)
	}
}

func TestExecuteResultSizeLimit(t *testing.T) {
	registry := tools.NewRegistry()
	if err := registry.Register(&tools.Definition{
		Name: "bloat",
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			return strings.Repeat("x", 4096), nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p := newTestPipeline(t, registry, Options{
		Config: Config{
			DefaultTimeout: time.Minute,
			Sizes:          SizeConfig{MaxParameterBytes: 1 << 20, MaxResultBytes: 128},
		},
	})
	result, err := p.Execute(context.Background(), protocol.CallToolParams{Name: "bloat"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if kind := errorKind(t, result); kind != string(KindSizeLimit) {
		t.Errorf("errorKind = %q, want %q", kind, KindSizeLimit)
	}
	if measured, _ := result.StructuredContent["measured"].(int); measured <= 128 {
		t.Errorf("measured = %v, want more than 128", result.StructuredContent["measured"])
	}
}

func TestExecuteStructuredResult(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)

	registry := tools.NewRegistry()
	if err := registry.Register(&tools.Definition{
		Name:         "describe",
		OutputSchema: schema,
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			return map[string]any{"name": "flyserve"}, nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p := newTestPipeline(t, registry, Options{})
	result, err := p.Execute(context.Background(), protocol.CallToolParams{Name: "describe"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if got, _ := result.StructuredContent["name"].(string); got != "flyserve" {
		t.Errorf("structuredContent name = %q, want %q", got, "flyserve")
	}
}

func TestExecuteSchemaValidationFailure(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)

	registry := tools.NewRegistry()
	if err := registry.Register(&tools.Definition{
		Name:         "describe",
		OutputSchema: schema,
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			return map[string]any{"version": 3}, nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p := newTestPipeline(t, registry, Options{})
	result, err := p.Execute(context.Background(), protocol.CallToolParams{Name: "describe"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if kind := errorKind(t, result); kind != string(KindSchemaValidation) {
		t.Errorf("errorKind = %q, want %q", kind, KindSchemaValidation)
	}
	violations, _ := result.StructuredContent["violations"].([]string)
	if len(violations) == 0 {
		t.Errorf("expected violations, got %+v", result.StructuredContent["violations"])
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	registry := tools.NewRegistry()
	if err := registry.Register(&tools.Definition{
		Name: "boom",
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			panic("handler exploded")
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p := newTestPipeline(t, registry, Options{})
	result, err := p.Execute(context.Background(), protocol.CallToolParams{Name: "boom"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if kind := errorKind(t, result); kind != string(KindUnknown) {
		t.Errorf("errorKind = %q, want %q", kind, KindUnknown)
	}
	if text := result.Content[0].Text; !strings.Contains(text, "handler exploded") {
		t.Errorf("error text %q does not mention the panic", text)
	}
}

func TestExecuteForwardsProgress(t *testing.T) {
	type event struct {
		token    string
		message  string
		fraction float64
	}
	var (
		mu     sync.Mutex
		events []event
	)

	registry := tools.NewRegistry()
	if err := registry.Register(&tools.Definition{
		Name: "worker",
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			inv.Progress.Notify("halfway", 0.5)
			return "done", nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p := newTestPipeline(t, registry, Options{
		Sink: func(token, message string, fraction float64) {
			mu.Lock()
			events = append(events, event{token, message, fraction})
			mu.Unlock()
		},
	})
	result, err := p.Execute(context.Background(), protocol.CallToolParams{
		Name:          "worker",
		ProgressToken: "tok-1",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("got %d progress events, want 1", len(events))
	}
	if events[0].token != "tok-1" || events[0].message != "halfway" || events[0].fraction != 0.5 {
		t.Errorf("event = %+v", events[0])
	}
}

// eventRecorder turns log output and handler activity into one ordered
// event stream, so tests can assert where records fall relative to
// execution.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) Write(p []byte) (int, error) {
	line := string(p)
	if strings.Contains(line, "tool call started") {
		r.add("started")
	}
	if strings.Contains(line, "tool call completed") {
		r.add("completed")
	}
	if strings.Contains(line, "tool call failed") {
		r.add("failed")
	}
	return len(p), nil
}

func (r *eventRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestLoggingBracketsExecution(t *testing.T) {
	recorder := &eventRecorder{}

	registry := tools.NewRegistry()
	if err := registry.Register(&tools.Definition{
		Name: "traced",
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			recorder.add("handler")
			return "done", nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p := New(Options{
		Registry: registry,
		Logger: observability.NewLogger(observability.LogConfig{
			Level:  "info",
			Format: "json",
			Output: recorder,
		}),
	})
	result, err := p.Execute(context.Background(), protocol.CallToolParams{Name: "traced"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}

	want := []string{"started", "handler", "completed"}
	got := recorder.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestFailingCallStillLogsStarted(t *testing.T) {
	recorder := &eventRecorder{}

	registry := tools.NewRegistry()
	if err := registry.Register(&tools.Definition{
		Name: "broken",
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			return nil, context.Canceled
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p := New(Options{
		Registry: registry,
		Logger: observability.NewLogger(observability.LogConfig{
			Level:  "info",
			Format: "json",
			Output: recorder,
		}),
	})
	if _, err := p.Execute(context.Background(), protocol.CallToolParams{Name: "broken"}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got := recorder.snapshot()
	if len(got) != 2 || got[0] != "started" || got[1] != "failed" {
		t.Fatalf("events = %v, want [started failed]", got)
	}
}

func TestHandlerErrorBecomesErrorResult(t *testing.T) {
	registry := tools.NewRegistry()
	if err := registry.Register(&tools.Definition{
		Name: "fails",
		Handler: func(ctx context.Context, inv *tools.Invocation) (any, error) {
			return nil, context.Canceled
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p := newTestPipeline(t, registry, Options{})
	result, err := p.Execute(context.Background(), protocol.CallToolParams{Name: "fails"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if kind := errorKind(t, result); kind != string(KindCancelled) {
		t.Errorf("errorKind = %q, want %q", kind, KindCancelled)
	}
}
