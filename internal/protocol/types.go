// Package protocol defines the wire types for the assistant-facing
// protocol: JSON-RPC 2.0 framing plus the tool, resource, and prompt
// request/response shapes exchanged with the client.
package protocol

import (
	"encoding/json"
)

// Version is the protocol revision advertised during the handshake.
const Version = "2024-11-05"

// JSONRPCRequest is a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCNotification is a JSON-RPC 2.0 notification (no ID).
type JSONRPCNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCError is a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Server error codes
const (
	ErrCodeResourceNotFound = -32002
)

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerInfo identifies this server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities advertises what the server supports.
type Capabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
}

// ToolsCapability describes tool-related capabilities.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability describes resource-related capabilities.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability describes prompt-related capabilities.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeParams holds the parameters of the initialize method.
type InitializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ClientInfo      ClientInfo   `json:"clientInfo"`
}

// InitializeResult holds the result of the initialize method.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// ToolSummary is the external-facing metadata of a registered tool.
type ToolSummary struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
	Annotations  ToolAnnotations `json:"annotations"`
}

// ToolAnnotations carries the safety flags advertised for a tool.
type ToolAnnotations struct {
	ReadOnly             bool `json:"readOnlyHint"`
	WritesToDisk         bool `json:"writesToDisk"`
	RequiresConfirmation bool `json:"requiresConfirmation"`
	Idempotent           bool `json:"idempotentHint"`
}

// ListToolsResult holds the result of tools/list.
type ListToolsResult struct {
	Tools []ToolSummary `json:"tools"`
}

// CallToolParams holds parameters for tools/call.
type CallToolParams struct {
	Name          string         `json:"name"`
	Arguments     map[string]any `json:"arguments,omitempty"`
	ProgressToken string         `json:"progressToken,omitempty"`
}

// ToolResultContent is one piece of content in a tool call result.
type ToolResultContent struct {
	Type string `json:"type"` // text | resource
	Text string `json:"text,omitempty"`
}

// TextContent builds a text content item.
func TextContent(text string) ToolResultContent {
	return ToolResultContent{Type: "text", Text: text}
}

// CallToolResult is the structured result of a tool invocation.
type CallToolResult struct {
	Content           []ToolResultContent `json:"content"`
	StructuredContent map[string]any      `json:"structuredContent,omitempty"`
	IsError           bool                `json:"isError,omitempty"`
}

// ProgressParams is the payload of a notifications/progress event.
type ProgressParams struct {
	ProgressToken string  `json:"progressToken"`
	Message       string  `json:"message,omitempty"`
	Progress      float64 `json:"progress,omitempty"`
}

// ListResourcesParams holds parameters for resources/list.
type ListResourcesParams struct {
	URI      string `json:"uri,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
}

// ResourceItem describes one listable resource.
type ResourceItem struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesResult holds the result of resources/list.
type ListResourcesResult struct {
	Items []ResourceItem `json:"items"`
	Total int            `json:"total"`
}

// ReadResourceParams holds parameters for resources/read.
type ReadResourceParams struct {
	URI    string `json:"uri"`
	Start  int64  `json:"start,omitempty"`
	Length int64  `json:"length,omitempty"`
}

// ReadResourceResult holds the result of resources/read.
type ReadResourceResult struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	Start    int64  `json:"start"`
	Length   int64  `json:"length"`
	Total    int64  `json:"total"`
}

// PromptSummary is the external-facing metadata of a prompt.
type PromptSummary struct {
	ID          string           `json:"id"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes a variable accepted by a prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ListPromptsResult holds the result of prompts/list.
type ListPromptsResult struct {
	Prompts []PromptSummary `json:"prompts"`
}

// GetPromptParams holds parameters for prompts/get.
type GetPromptParams struct {
	ID        string            `json:"id"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// PromptMessage is one message in a resolved prompt.
type PromptMessage struct {
	Role    string         `json:"role"` // user | assistant
	Content MessageContent `json:"content"`
}

// MessageContent holds the content of a prompt message.
type MessageContent struct {
	Type string `json:"type"` // text
	Text string `json:"text,omitempty"`
}

// GetPromptResult holds the result of prompts/get.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}
