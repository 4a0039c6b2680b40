// Package server dispatches protocol requests to the tool pipeline and
// the resource and prompt registries over a transport.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/flydevtools/flyserve/internal/observability"
	"github.com/flydevtools/flyserve/internal/pipeline"
	"github.com/flydevtools/flyserve/internal/prompts"
	"github.com/flydevtools/flyserve/internal/protocol"
	"github.com/flydevtools/flyserve/internal/resources"
	"github.com/flydevtools/flyserve/internal/tools"
)

// Options configures a Server. Transport, Logger, and Pipeline are
// required; registries may be empty but not nil.
type Options struct {
	Transport protocol.Transport
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Info      protocol.ServerInfo
	Tools     *tools.Registry
	Resources *resources.Registry
	Prompts   *prompts.Registry
	Pipeline  *pipeline.Pipeline
}

// Server owns the serve loop: it reads requests from the transport,
// dispatches each on its own goroutine, and writes the correlated
// response. Tool calls go through the pipeline; list and read methods
// hit the registries directly.
type Server struct {
	transport protocol.Transport
	logger    *observability.Logger
	metrics   *observability.Metrics
	info      protocol.ServerInfo
	tools     *tools.Registry
	resources *resources.Registry
	prompts   *prompts.Registry
	pipeline  *pipeline.Pipeline

	initialized atomic.Bool
	wg          sync.WaitGroup
}

// New builds a server from the given options.
func New(opts Options) (*Server, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("server requires a transport")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("server requires a logger")
	}
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("server requires a pipeline")
	}
	if opts.Tools == nil {
		opts.Tools = tools.NewRegistry()
	}
	if opts.Resources == nil {
		opts.Resources = resources.NewRegistry()
	}
	if opts.Prompts == nil {
		opts.Prompts = prompts.NewRegistry()
	}
	return &Server{
		transport: opts.Transport,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		info:      opts.Info,
		tools:     opts.Tools,
		resources: opts.Resources,
		prompts:   opts.Prompts,
		pipeline:  opts.Pipeline,
	}, nil
}

// ProgressSink returns a sink that forwards tool progress events to the
// client as notifications/progress. Delivery failures are logged and
// dropped; progress is advisory.
func ProgressSink(transport protocol.Transport, logger *observability.Logger) tools.ProgressSink {
	return func(token, message string, fraction float64) {
		params := protocol.ProgressParams{
			ProgressToken: token,
			Message:       message,
			Progress:      fraction,
		}
		if err := transport.Notify(context.Background(), "notifications/progress", params); err != nil {
			logger.Warn(context.Background(), "progress notification dropped",
				"progress_token", token,
				"error", err.Error(),
			)
		}
	}
}

// Serve runs the request loop until the client disconnects or the
// context ends. In-flight requests are drained before returning.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info(ctx, "server started",
		"name", s.info.Name,
		"version", s.info.Version,
	)
	for {
		req, err := s.transport.Receive(ctx)
		if err != nil {
			s.wg.Wait()
			if errors.Is(err, io.EOF) {
				s.logger.Info(ctx, "client disconnected")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receive request: %w", err)
		}

		// The handshake runs inline so the initialized flag is set
		// before any request queued behind it is dispatched.
		if req.Method == "initialize" {
			s.handle(ctx, req)
			continue
		}

		s.wg.Add(1)
		go func(req *protocol.JSONRPCRequest) {
			defer s.wg.Done()
			s.handle(ctx, req)
		}(req)
	}
}

func (s *Server) handle(ctx context.Context, req *protocol.JSONRPCRequest) {
	result, rpcErr := s.dispatch(ctx, req)
	if req.ID == nil {
		// Notification: nothing to write back.
		return
	}
	if err := s.transport.Respond(ctx, req.ID, result, rpcErr); err != nil {
		s.logger.Error(ctx, "response write failed",
			"method", req.Method,
			"error", err.Error(),
		)
	}
}

func (s *Server) dispatch(ctx context.Context, req *protocol.JSONRPCRequest) (any, *protocol.JSONRPCError) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(ctx, req.Params)
	case "notifications/initialized":
		return nil, nil
	case "ping":
		return map[string]any{}, nil
	}

	if !s.initialized.Load() {
		return nil, &protocol.JSONRPCError{
			Code:    protocol.ErrCodeInvalidRequest,
			Message: "server not initialized",
		}
	}

	switch req.Method {
	case "tools/list":
		return protocol.ListToolsResult{Tools: s.tools.List()}, nil
	case "tools/call":
		return s.handleToolCall(ctx, req.Params)
	case "resources/list":
		return s.handleResourcesList(ctx, req.Params)
	case "resources/read":
		return s.handleResourcesRead(ctx, req.Params)
	case "prompts/list":
		return protocol.ListPromptsResult{Prompts: s.prompts.List()}, nil
	case "prompts/get":
		return s.handlePromptsGet(ctx, req.Params)
	default:
		return nil, &protocol.JSONRPCError{
			Code:    protocol.ErrCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		}
	}
}

func (s *Server) handleInitialize(ctx context.Context, raw json.RawMessage) (any, *protocol.JSONRPCError) {
	var params protocol.InitializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, invalidParams(err)
		}
	}
	s.initialized.Store(true)
	s.logger.Info(ctx, "client initialized",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", params.ProtocolVersion,
	)
	return protocol.InitializeResult{
		ProtocolVersion: protocol.Version,
		Capabilities: protocol.Capabilities{
			Tools:     &protocol.ToolsCapability{},
			Resources: &protocol.ResourcesCapability{},
			Prompts:   &protocol.PromptsCapability{},
		},
		ServerInfo: s.info,
	}, nil
}

func (s *Server) handleToolCall(ctx context.Context, raw json.RawMessage) (any, *protocol.JSONRPCError) {
	var params protocol.CallToolParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err)
	}
	if params.Name == "" {
		return nil, invalidParams(fmt.Errorf("tool name is required"))
	}

	// The pipeline converts every failure into a structured error
	// result, so the error return is transport-level only.
	result, err := s.pipeline.Execute(ctx, params)
	if err != nil {
		return nil, &protocol.JSONRPCError{
			Code:    protocol.ErrCodeInternalError,
			Message: err.Error(),
		}
	}
	return result, nil
}

func (s *Server) handleResourcesList(ctx context.Context, raw json.RawMessage) (any, *protocol.JSONRPCError) {
	var params protocol.ListResourcesParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, invalidParams(err)
		}
	}
	result, err := s.resources.List(ctx, params)
	if err != nil {
		return nil, resourceError(err)
	}
	return result, nil
}

func (s *Server) handleResourcesRead(ctx context.Context, raw json.RawMessage) (any, *protocol.JSONRPCError) {
	var params protocol.ReadResourceParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err)
	}
	if params.URI == "" {
		return nil, invalidParams(fmt.Errorf("uri is required"))
	}
	result, err := s.resources.Read(ctx, params)
	s.countResourceRead(params.URI, err)
	if err != nil {
		return nil, resourceError(err)
	}
	return result, nil
}

func (s *Server) countResourceRead(uri string, err error) {
	if s.metrics == nil {
		return
	}
	scheme := uri
	if i := strings.Index(uri, "://"); i >= 0 {
		scheme = uri[:i]
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.ResourceReadCounter.WithLabelValues(scheme, status).Inc()
}

func (s *Server) handlePromptsGet(ctx context.Context, raw json.RawMessage) (any, *protocol.JSONRPCError) {
	var params protocol.GetPromptParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err)
	}
	result, err := s.prompts.Get(params.ID, params.Arguments)
	if err != nil {
		if errors.Is(err, prompts.ErrNotFound) {
			return nil, &protocol.JSONRPCError{
				Code:    protocol.ErrCodeInvalidParams,
				Message: fmt.Sprintf("prompt not found: %s", params.ID),
			}
		}
		return nil, invalidParams(err)
	}
	return result, nil
}

func invalidParams(err error) *protocol.JSONRPCError {
	return &protocol.JSONRPCError{
		Code:    protocol.ErrCodeInvalidParams,
		Message: err.Error(),
	}
}

func resourceError(err error) *protocol.JSONRPCError {
	switch {
	case errors.Is(err, resources.ErrNotFound):
		return &protocol.JSONRPCError{
			Code:    protocol.ErrCodeResourceNotFound,
			Message: err.Error(),
		}
	case errors.Is(err, resources.ErrOutOfSandbox):
		return &protocol.JSONRPCError{
			Code:    protocol.ErrCodeInvalidParams,
			Message: err.Error(),
		}
	default:
		return &protocol.JSONRPCError{
			Code:    protocol.ErrCodeInternalError,
			Message: err.Error(),
		}
	}
}
