// Package tools holds tool definitions and the registry that dispatches
// invocations by name.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/flydevtools/flyserve/internal/protocol"
)

// ErrNotFound indicates a requested tool is not registered.
var ErrNotFound = errors.New("tool not found")

// Handler executes a tool invocation. Handlers are expected to honor
// context cancellation and poll the invocation's cancel token at safe
// points; neither is enforced preemptively.
type Handler func(ctx context.Context, inv *Invocation) (any, error)

// Invocation carries the per-call collaborators handed to a handler.
type Invocation struct {
	// Arguments are the request arguments, decoded from JSON.
	Arguments map[string]any

	// Cancel is the cooperative cancellation token for this call.
	Cancel *CancelToken

	// Progress emits out-of-band progress events for this call. Never
	// nil; a no-op sink when the client supplied no progress token.
	Progress *ProgressNotifier
}

// Definition describes a registered tool. Immutable once registered.
type Definition struct {
	Name        string
	Description string

	// InputSchema is the JSON schema for the tool's arguments.
	InputSchema json.RawMessage

	// OutputSchema, when set, is validated against the raw handler
	// result before it is returned as structured content.
	OutputSchema json.RawMessage

	// Safety flags advertised to the client.
	ReadOnly             bool
	WritesToDisk         bool
	RequiresConfirmation bool
	Idempotent           bool

	Handler Handler
}

// Summary returns the external-facing metadata for the definition.
func (d *Definition) Summary() protocol.ToolSummary {
	schema := d.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return protocol.ToolSummary{
		Name:         d.Name,
		Description:  d.Description,
		InputSchema:  schema,
		OutputSchema: d.OutputSchema,
		Annotations: protocol.ToolAnnotations{
			ReadOnly:             d.ReadOnly,
			WritesToDisk:         d.WritesToDisk,
			RequiresConfirmation: d.RequiresConfirmation,
			Idempotent:           d.Idempotent,
		},
	}
}

// Registry manages tool definitions with thread-safe registration and
// lookup. Registries are written at startup and read thereafter.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Definition
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Definition)}
}

// Register inserts a definition by name, overwriting any existing
// definition with the same name. The original registration position is
// kept on overwrite.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s requires a handler", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

// Get returns a definition by name, or false when absent.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// List returns the external-facing metadata of all registered tools in
// registration order.
func (r *Registry) List() []protocol.ToolSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	summaries := make([]protocol.ToolSummary, 0, len(r.order))
	for _, name := range r.order {
		if def, ok := r.tools[name]; ok {
			summaries = append(summaries, def.Summary())
		}
	}
	return summaries
}

// Call looks up a tool by name and invokes its handler, propagating the
// handler's result or failure unchanged.
func (r *Registry) Call(ctx context.Context, name string, inv *Invocation) (any, error) {
	def, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if inv == nil {
		inv = &Invocation{}
	}
	if inv.Progress == nil {
		inv.Progress = NopProgress()
	}
	if inv.Cancel == nil {
		inv.Cancel = NewCancelToken()
	}
	return def.Handler(ctx, inv)
}
