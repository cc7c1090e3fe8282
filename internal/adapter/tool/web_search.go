package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"webscout/internal/domain"
	"webscout/internal/infra/tracer"
)

// WebSearchTool runs a free-text web search through a WebResearcher.
type WebSearchTool struct {
	researcher domain.WebResearcher
	logger     *slog.Logger
}

// NewWebSearchTool creates the web_search tool.
func NewWebSearchTool(researcher domain.WebResearcher, logger *slog.Logger) *WebSearchTool {
	return &WebSearchTool{researcher: researcher, logger: logger}
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Search the web and return ranked results with title, URL and snippet"
}

func (t *WebSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "minLength": 1, "maxLength": 500, "description": "The search query"},
				"max_results": {"type": "integer", "minimum": 1, "maximum": 20, "description": "Number of results (default: 5)"}
			},
			"required": ["query"]
		}`),
	}
}

type webSearchParams struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

func (t *WebSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.web_search", t.logger, params,
		func(ctx context.Context, span trace.Span, p webSearchParams) (any, error) {
			if err := ValidateQuery(p.Query); err != nil {
				return ErrResult("%v", err), nil
			}
			span.SetAttributes(tracer.StringAttr("tool.query", p.Query))

			resp := t.researcher.Search(ctx, p.Query, p.MaxResults)
			if resp.Failed() {
				return nil, errors.New(resp.Error)
			}

			t.logger.Debug("web search completed", "query", p.Query, "results", len(resp.Results))
			return FormatSearchResults(p.Query, resp.Results), nil
		},
	)
}

// CodeSearchTool searches programming reference sites only.
type CodeSearchTool struct {
	researcher domain.WebResearcher
	logger     *slog.Logger
}

// NewCodeSearchTool creates the code_search tool.
func NewCodeSearchTool(researcher domain.WebResearcher, logger *slog.Logger) *CodeSearchTool {
	return &CodeSearchTool{researcher: researcher, logger: logger}
}

func (t *CodeSearchTool) Name() string { return "code_search" }
func (t *CodeSearchTool) Description() string {
	return "Search Stack Overflow, GitHub, MDN and the Python docs for programming answers"
}

func (t *CodeSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "minLength": 1, "maxLength": 500, "description": "The programming question or error message"}
			},
			"required": ["query"]
		}`),
	}
}

type codeSearchParams struct {
	Query string `json:"query"`
}

func (t *CodeSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.code_search", t.logger, params,
		func(ctx context.Context, span trace.Span, p codeSearchParams) (any, error) {
			if err := ValidateQuery(p.Query); err != nil {
				return ErrResult("%v", err), nil
			}
			span.SetAttributes(tracer.StringAttr("tool.query", p.Query))

			resp := t.researcher.SearchCode(ctx, p.Query)
			if resp.Failed() {
				return nil, errors.New(resp.Error)
			}
			return FormatSearchResults(p.Query, resp.Results), nil
		},
	)
}

// FormatSearchResults renders results in the compact numbered text format
// handed to language models.
func FormatSearchResults(query string, results []domain.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No search results found for %q.", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n\n", query)
	for _, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   URL: %s\n", r.Position, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Snippet)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
