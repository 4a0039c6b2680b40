package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/flydevtools/flyserve/internal/protocol"
	"github.com/flydevtools/flyserve/internal/tools"
)

// conversionStage turns the raw handler result into the protocol result
// shape. Tools with an output schema get a structured result validated
// against it; anything else becomes opaque text content.
//
// The stage delegates inward first: the handler runs in the terminal
// and its raw result comes back through the call context, so conversion
// happens on the unwind, after the logging stage has bracketed the
// execution.
type conversionStage struct {
	schemas *schemaCache
}

func newConversionStage() *conversionStage {
	return &conversionStage{schemas: newSchemaCache()}
}

func (s *conversionStage) Priority() int { return PriorityConversion }

func (s *conversionStage) Handle(ctx context.Context, call *CallContext, next Next) (*protocol.CallToolResult, error) {
	if _, err := next(ctx, call); err != nil {
		return nil, err
	}
	raw, _ := call.Result()
	if call.Tool != nil && len(call.Tool.OutputSchema) > 0 {
		return s.convertStructured(call, raw)
	}
	return s.convertOpaque(call, raw)
}

func (s *conversionStage) convertStructured(call *CallContext, raw any) (*protocol.CallToolResult, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, &CallError{
			Kind:    KindUnknown,
			Tool:    call.Tool.Name,
			Message: fmt.Sprintf("serialize result: %v", err),
			Cause:   err,
		}
	}

	schema, err := s.schemas.compile(call.Tool)
	if err != nil {
		return nil, &CallError{
			Kind:    KindSchemaValidation,
			Tool:    call.Tool.Name,
			Message: fmt.Sprintf("compile output schema: %v", err),
			Cause:   err,
		}
	}

	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return nil, &CallError{
			Kind:    KindUnknown,
			Tool:    call.Tool.Name,
			Message: fmt.Sprintf("decode result for validation: %v", err),
			Cause:   err,
		}
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, &CallError{
			Kind:       KindSchemaValidation,
			Tool:       call.Tool.Name,
			Message:    "result does not match output schema",
			Cause:      err,
			Violations: flattenViolations(err),
		}
	}

	structured, _ := decoded.(map[string]any)
	return &protocol.CallToolResult{
		Content:           []protocol.ToolResultContent{protocol.TextContent(string(encoded))},
		StructuredContent: structured,
	}, nil
}

func (s *conversionStage) convertOpaque(call *CallContext, raw any) (*protocol.CallToolResult, error) {
	var text string
	switch raw := raw.(type) {
	case nil:
		text = ""
	case string:
		text = raw
	default:
		encoded, err := json.MarshalIndent(raw, "", "  ")
		if err != nil {
			return nil, &CallError{
				Kind:    KindUnknown,
				Tool:    call.Request.Name,
				Message: fmt.Sprintf("serialize result: %v", err),
				Cause:   err,
			}
		}
		text = string(encoded)
	}
	return &protocol.CallToolResult{
		Content: []protocol.ToolResultContent{protocol.TextContent(text)},
	}, nil
}

// schemaCache compiles each tool's output schema once and reuses the
// compiled form across calls.
type schemaCache struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{compiled: make(map[string]*jsonschema.Schema)}
}

func (c *schemaCache) compile(def *tools.Definition) (*jsonschema.Schema, error) {
	c.mu.RLock()
	schema, ok := c.compiled[def.Name]
	c.mu.RUnlock()
	if ok {
		return schema, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if schema, ok := c.compiled[def.Name]; ok {
		return schema, nil
	}

	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("flyserve:///tools/%s/output", def.Name)
	if err := compiler.AddResource(url, bytes.NewReader(def.OutputSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	c.compiled[def.Name] = schema
	return schema, nil
}

// flattenViolations renders a jsonschema validation error as one line
// per leaf cause.
func flattenViolations(err error) []string {
	validationErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}

	var out []string
	var walk func(ve *jsonschema.ValidationError)
	walk = func(ve *jsonschema.ValidationError) {
		if len(ve.Causes) == 0 {
			location := ve.InstanceLocation
			if location == "" {
				location = "/"
			}
			out = append(out, fmt.Sprintf("%s: %s", location, ve.Message))
			return
		}
		for _, cause := range ve.Causes {
			walk(cause)
		}
	}
	walk(validationErr)
	return out
}
