package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flydevtools/flyserve/internal/limits"
	"github.com/flydevtools/flyserve/internal/observability"
	"github.com/flydevtools/flyserve/internal/protocol"
	"github.com/flydevtools/flyserve/internal/tools"
)

// Default stage priorities. Lower runs earlier (outer). The error
// handling stage carries the highest number but is forced outermost by
// the chain assembly; its priority is only a nominal tie-breaker.
const (
	PriorityValidation    = 10
	PriorityConfirmation  = 20
	PrioritySetup         = 30
	PriorityConcurrency   = 40
	PriorityTimeout       = 50
	PriorityExecution     = 60
	PriorityConversion    = 70
	PriorityLogging       = 80
	PriorityErrorHandling = 100
)

// validationStage size-validates the request and resolves the tool
// definition onto the context.
type validationStage struct {
	registry  *tools.Registry
	validator *SizeValidator
}

func (s *validationStage) Priority() int { return PriorityValidation }

func (s *validationStage) Handle(ctx context.Context, call *CallContext, next Next) (*protocol.CallToolResult, error) {
	if err := s.validator.ValidateParameters(call.Request.Name, call.Request.Arguments); err != nil {
		return nil, err
	}
	def, ok := s.registry.Get(call.Request.Name)
	if !ok {
		return nil, &CallError{
			Kind:    KindToolNotFound,
			Tool:    call.Request.Name,
			Message: fmt.Sprintf("tool not found: %s", call.Request.Name),
		}
	}
	return next(ctx, call.WithTool(def))
}

// confirmationStage rejects calls to destructive tools that lack an
// explicit affirmative confirm argument.
type confirmationStage struct{}

func (s *confirmationStage) Priority() int { return PriorityConfirmation }

func (s *confirmationStage) Handle(ctx context.Context, call *CallContext, next Next) (*protocol.CallToolResult, error) {
	if call.Tool != nil && call.Tool.RequiresConfirmation {
		confirmed, _ := call.Request.Arguments["confirm"].(bool)
		if !confirmed {
			return nil, &CallError{
				Kind:    KindConfirmationRequired,
				Tool:    call.Tool.Name,
				Message: fmt.Sprintf("%s requires confirmation: re-run with \"confirm\": true", call.Tool.Name),
			}
		}
	}
	return next(ctx, call)
}

// setupStage allocates the cancellation token, builds the progress
// notifier, and resolves the effective timeout onto the context.
type setupStage struct {
	config Config
	sink   tools.ProgressSink
}

func (s *setupStage) Priority() int { return PrioritySetup }

func (s *setupStage) Handle(ctx context.Context, call *CallContext, next Next) (*protocol.CallToolResult, error) {
	cancel := tools.NewCancelToken()
	progress := tools.NewProgressNotifier(call.Request.ProgressToken, s.sink)

	timeout := s.config.DefaultTimeout
	if override, ok := s.config.ToolTimeouts[call.Request.Name]; ok {
		timeout = override
	}

	return next(ctx, call.WithRuntime(cancel, progress, timeout))
}

// concurrencyStage brackets the remainder of the chain in the limiter,
// rejecting calls that would exceed a cap.
type concurrencyStage struct {
	limiter *limits.Limiter
	metrics *observability.Metrics
}

func (s *concurrencyStage) Priority() int { return PriorityConcurrency }

func (s *concurrencyStage) Handle(ctx context.Context, call *CallContext, next Next) (*protocol.CallToolResult, error) {
	var result *protocol.CallToolResult
	err := s.limiter.Execute(ctx, call.Request.Name, func(ctx context.Context) error {
		if s.metrics != nil {
			s.metrics.ToolCallsInFlight.Inc()
			defer s.metrics.ToolCallsInFlight.Dec()
		}
		var innerErr error
		result, innerErr = next(ctx, call)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// timeoutStage races the remainder of the chain against the context's
// effective timeout. Expiry also sets the cancel token so the handler
// can stop cooperatively; the pipeline stops waiting either way.
type timeoutStage struct{}

func (s *timeoutStage) Priority() int { return PriorityTimeout }

func (s *timeoutStage) Handle(ctx context.Context, call *CallContext, next Next) (*protocol.CallToolResult, error) {
	var result *protocol.CallToolResult
	operation := fmt.Sprintf("tool call %s", call.Request.Name)
	err := limits.WithTimeout(ctx, call.Timeout, operation, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = next(ctx, call)
		return innerErr
	})
	if err != nil {
		var timeoutErr *limits.TimeoutError
		if errors.As(err, &timeoutErr) && call.Cancel != nil {
			call.Cancel.Cancel()
		}
		return nil, err
	}
	return result, nil
}

// executionStage guards the handoff to the terminal: a call whose
// cancel token is already set never reaches the handler. The handler
// itself runs in the terminal, inside every remaining stage.
type executionStage struct{}

func (s *executionStage) Priority() int { return PriorityExecution }

func (s *executionStage) Handle(ctx context.Context, call *CallContext, next Next) (*protocol.CallToolResult, error) {
	if call.Cancel != nil && call.Cancel.Cancelled() {
		return nil, &CallError{
			Kind:    KindCancelled,
			Tool:    call.Request.Name,
			Message: "call cancelled before execution",
		}
	}
	return next(ctx, call)
}

// loggingStage brackets handler execution: "started" is emitted before
// delegating to the terminal, "completed" after it returns clean. A
// failing handler leaves only the started record here; the outermost
// error handling stage owns the failure record.
type loggingStage struct {
	logger  *observability.Logger
	metrics *observability.Metrics
}

func (s *loggingStage) Priority() int { return PriorityLogging }

func (s *loggingStage) Handle(ctx context.Context, call *CallContext, next Next) (*protocol.CallToolResult, error) {
	s.logger.Info(ctx, "tool call started",
		"tool", call.Request.Name,
	)
	result, err := next(ctx, call)
	if err != nil {
		return nil, err
	}

	elapsed := call.Elapsed()
	s.logger.Info(ctx, "tool call completed",
		"tool", call.Request.Name,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	if s.metrics != nil {
		s.metrics.ToolCallCounter.WithLabelValues(call.Request.Name, "success").Inc()
		s.metrics.ToolCallDuration.WithLabelValues(call.Request.Name).Observe(elapsed.Seconds())
	}
	return result, nil
}

// errorStage is the terminal safety net. It is always composed as the
// outermost wrapper: any error or panic surfacing from the inner chain
// becomes a structured error result tagged by kind, logged with the
// call's correlation ID, and never escapes to the transport.
type errorStage struct {
	logger  *observability.Logger
	metrics *observability.Metrics
}

func (s *errorStage) Priority() int { return PriorityErrorHandling }

func (s *errorStage) Handle(ctx context.Context, call *CallContext, next Next) (result *protocol.CallToolResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = s.fail(ctx, call, &CallError{
				Kind:    KindUnknown,
				Tool:    call.Request.Name,
				Message: fmt.Sprintf("tool call panicked: %v", recovered),
			})
			err = nil
		}
	}()

	result, innerErr := next(ctx, call)
	if innerErr != nil {
		return s.fail(ctx, call, AsCallError(innerErr)), nil
	}
	if result == nil {
		result = &protocol.CallToolResult{
			Content: []protocol.ToolResultContent{protocol.TextContent("")},
		}
	}
	return result, nil
}

func (s *errorStage) fail(ctx context.Context, call *CallContext, callErr *CallError) *protocol.CallToolResult {
	if callErr.Tool == "" {
		callErr.Tool = call.Request.Name
	}

	elapsed := call.Elapsed()
	s.logger.Error(ctx, "tool call failed",
		"tool", call.Request.Name,
		"kind", string(callErr.Kind),
		"error", callErr.Error(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	if s.metrics != nil {
		s.metrics.ToolCallCounter.WithLabelValues(call.Request.Name, "error").Inc()
		s.metrics.ErrorCounter.WithLabelValues(string(callErr.Kind)).Inc()
	}

	structured := map[string]any{
		"errorKind": string(callErr.Kind),
		"tool":      callErr.Tool,
	}
	switch callErr.Kind {
	case KindConcurrencyLimit:
		structured["current"] = callErr.Current
		structured["limit"] = callErr.Limit
	case KindSizeLimit:
		structured["measured"] = callErr.Measured
		structured["limit"] = callErr.SizeLimit
	case KindTimeout:
		structured["operation"] = callErr.Operation
		structured["timeoutMs"] = callErr.Duration.Milliseconds()
	case KindSchemaValidation:
		structured["violations"] = callErr.Violations
	}

	return &protocol.CallToolResult{
		IsError:           true,
		Content:           []protocol.ToolResultContent{protocol.TextContent(callErr.Error())},
		StructuredContent: structured,
	}
}

// Config holds the pipeline's tunable behavior.
type Config struct {
	// DefaultTimeout applies to tools without an override. Zero means
	// no deadline.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// ToolTimeouts overrides the default per tool name.
	ToolTimeouts map[string]time.Duration `yaml:"tool_timeouts"`

	// Sizes bounds request and response payloads.
	Sizes SizeConfig `yaml:"sizes"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		Sizes:          DefaultSizeConfig(),
	}
}
