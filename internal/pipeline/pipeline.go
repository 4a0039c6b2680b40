package pipeline

import (
	"context"

	"github.com/flydevtools/flyserve/internal/limits"
	"github.com/flydevtools/flyserve/internal/observability"
	"github.com/flydevtools/flyserve/internal/protocol"
	"github.com/flydevtools/flyserve/internal/tools"
)

// Options configures a Pipeline. Registry and Logger are required;
// everything else has a working default.
type Options struct {
	Registry *tools.Registry
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Limiter  *limits.Limiter
	Sink     tools.ProgressSink
	Config   Config
	Extra    []Middleware
}

// Pipeline executes tool calls through the middleware chain. The chain
// is composed once at construction; Execute is safe for concurrent use.
type Pipeline struct {
	chain Next
}

// New builds a pipeline from the default stages plus any extras, wrapped
// outermost by the error handling stage.
func New(opts Options) *Pipeline {
	if opts.Limiter == nil {
		opts.Limiter = limits.NewLimiter(limits.DefaultLimiterConfig())
	}
	if opts.Config.DefaultTimeout == 0 && opts.Config.ToolTimeouts == nil && opts.Config.Sizes == (SizeConfig{}) {
		opts.Config = DefaultConfig()
	}
	validator := NewSizeValidator(opts.Config.Sizes)

	stages := []Middleware{
		&validationStage{registry: opts.Registry, validator: validator},
		&confirmationStage{},
		&setupStage{config: opts.Config, sink: opts.Sink},
		&concurrencyStage{limiter: opts.Limiter, metrics: opts.Metrics},
		&timeoutStage{},
		&executionStage{},
		newConversionStage(),
		&loggingStage{logger: opts.Logger, metrics: opts.Metrics},
	}
	stages = append(stages, opts.Extra...)

	// The terminal invokes the registry handler, so every stage wraps
	// actual execution. The raw result is size-checked here, before any
	// stage sees it, and handed outward through the call context.
	terminal := func(ctx context.Context, call *CallContext) (*protocol.CallToolResult, error) {
		raw, err := opts.Registry.Call(ctx, call.Request.Name, &tools.Invocation{
			Arguments: call.Request.Arguments,
			Cancel:    call.Cancel,
			Progress:  call.Progress,
		})
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateResult(call.Request.Name, raw); err != nil {
			return nil, err
		}
		call.StoreResult(raw)
		return nil, nil
	}

	inner := compose(stages, terminal)
	errHandler := &errorStage{logger: opts.Logger, metrics: opts.Metrics}
	chain := func(ctx context.Context, call *CallContext) (*protocol.CallToolResult, error) {
		return errHandler.Handle(ctx, call, inner)
	}

	return &Pipeline{chain: chain}
}

// Execute runs one tool call through the chain. The returned result is
// never nil: failures come back as structured error results with
// IsError set, and the error return is reserved for transport-level
// problems (currently always nil).
func (p *Pipeline) Execute(ctx context.Context, req protocol.CallToolParams) (*protocol.CallToolResult, error) {
	call := NewCallContext(req)
	ctx = observability.WithCallID(ctx, call.CallID)
	return p.chain(ctx, call)
}
