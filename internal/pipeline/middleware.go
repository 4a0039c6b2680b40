package pipeline

import (
	"context"
	"sort"

	"github.com/flydevtools/flyserve/internal/protocol"
)

// Next delegates to the remainder of the chain. A stage calls it at
// most once; returning without calling it short-circuits the chain.
type Next func(ctx context.Context, call *CallContext) (*protocol.CallToolResult, error)

// Middleware is one stage of the tool-call chain. Priority orders the
// default chain: a lower value is positioned earlier (outer). The error
// handling stage is the exception and always wraps the whole chain,
// whatever its nominal priority.
type Middleware interface {
	Priority() int
	Handle(ctx context.Context, call *CallContext, next Next) (*protocol.CallToolResult, error)
}

// compose folds the stages, sorted by ascending priority, around the
// terminal. The first stage in the sorted order is the outermost.
func compose(stages []Middleware, terminal Next) Next {
	ordered := make([]Middleware, len(stages))
	copy(ordered, stages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	next := terminal
	for i := len(ordered) - 1; i >= 0; i-- {
		stage := ordered[i]
		inner := next
		next = func(ctx context.Context, call *CallContext) (*protocol.CallToolResult, error) {
			return stage.Handle(ctx, call, inner)
		}
	}
	return next
}
