package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/flydevtools/flyserve/internal/protocol"
	"github.com/flydevtools/flyserve/internal/tools"
)

// CallContext is the per-invocation record threaded through the
// middleware chain. It is mutable by replacement only: every With
// method returns a derived copy, and no stage may modify a context it
// received in place.
type CallContext struct {
	// Request is the original tool-call request.
	Request protocol.CallToolParams

	// CallID correlates logs and events for this call.
	CallID string

	// StartedAt is when the pipeline accepted the request.
	StartedAt time.Time

	// Tool is the resolved definition, populated by the validation
	// stage.
	Tool *tools.Definition

	// Cancel, Progress, and Timeout are populated by the setup stage.
	Cancel   *tools.CancelToken
	Progress *tools.ProgressNotifier
	Timeout  time.Duration

	// raw carries the handler's return value outward through the
	// unwinding chain. It is the one cell shared by all derived
	// copies: the terminal writes it, the conversion stage reads it.
	raw *resultSlot
}

type resultSlot struct {
	value any
	set   bool
}

// NewCallContext creates the initial context for a request with a fresh
// correlation ID.
func NewCallContext(req protocol.CallToolParams) *CallContext {
	return &CallContext{
		Request:   req,
		CallID:    uuid.NewString(),
		StartedAt: time.Now(),
		raw:       &resultSlot{},
	}
}

// WithTool returns a copy with the resolved tool definition attached.
func (c *CallContext) WithTool(def *tools.Definition) *CallContext {
	derived := *c
	derived.Tool = def
	return &derived
}

// WithRuntime returns a copy with the cancellation token, progress
// notifier, and effective timeout attached.
func (c *CallContext) WithRuntime(cancel *tools.CancelToken, progress *tools.ProgressNotifier, timeout time.Duration) *CallContext {
	derived := *c
	derived.Cancel = cancel
	derived.Progress = progress
	derived.Timeout = timeout
	return &derived
}

// StoreResult records the raw handler result for the unwinding chain.
func (c *CallContext) StoreResult(value any) {
	c.raw.value = value
	c.raw.set = true
}

// Result returns the raw handler result and whether one was stored.
func (c *CallContext) Result() (any, bool) {
	return c.raw.value, c.raw.set
}

// Elapsed returns the time since the pipeline accepted the request.
func (c *CallContext) Elapsed() time.Duration {
	return time.Since(c.StartedAt)
}
