package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema is the published contract of a tool: its name, what it does and
// a JSON Schema for its parameters.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult is the text handed back to the calling agent. IsRetryable marks
// transient failures the caller may retry unchanged.
type ToolResult struct {
	Content     string `json:"content"`
	IsError     bool   `json:"is_error"`
	IsRetryable bool   `json:"is_retryable,omitempty"`
}

// Tool is one agent-callable operation over the web researcher.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolCatalog lists the tools a transport publishes.
type ToolCatalog interface {
	List() []Tool
}
