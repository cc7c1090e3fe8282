package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"webscout/internal/domain"
	"webscout/internal/infra/tracer"
)

// DefaultFetchCallsPerMinute bounds how many uncached pages one caller may
// pull per minute.
const DefaultFetchCallsPerMinute = 30

// WebFetchTool returns the readable text of a single page.
type WebFetchTool struct {
	researcher  domain.WebResearcher
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// NewWebFetchTool creates the web_fetch tool. callsPerMinute <= 0 uses
// DefaultFetchCallsPerMinute.
func NewWebFetchTool(researcher domain.WebResearcher, callsPerMinute int, logger *slog.Logger) *WebFetchTool {
	if callsPerMinute <= 0 {
		callsPerMinute = DefaultFetchCallsPerMinute
	}
	return &WebFetchTool{
		researcher:  researcher,
		rateLimiter: NewRateLimiter(callsPerMinute, time.Minute),
		logger:      logger,
	}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }
func (t *WebFetchTool) Description() string {
	return "Fetch a public web page and return its readable text (private addresses are refused)"
}

func (t *WebFetchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "minLength": 1, "description": "Absolute http(s) URL of the page"}
			},
			"required": ["url"]
		}`),
	}
}

type webFetchParams struct {
	URL string `json:"url"`
}

func (t *WebFetchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.web_fetch", t.logger, params,
		func(ctx context.Context, span trace.Span, p webFetchParams) (any, error) {
			if err := ValidatePageURL(p.URL); err != nil {
				return ErrResult("%v", err), nil
			}
			span.SetAttributes(tracer.StringAttr("tool.url", p.URL))

			if !t.cached(p.URL) && !t.rateLimiter.Allow() {
				return nil, domain.NewDomainError("WebFetchTool.Execute", domain.ErrRateLimit,
					fmt.Sprintf("page fetch quota used up, retry in %s", t.rateLimiter.RetryAfter().Round(time.Second)))
			}

			page := t.researcher.FetchPage(ctx, p.URL)
			if page.Failed() {
				return nil, errors.New(page.Error)
			}

			t.logger.Debug("web fetch completed", "url", p.URL, "chars", len([]rune(page.Content)))
			return FormatPage(page), nil
		},
	)
}

// cached reports whether the researcher can answer rawURL from its cache.
// Cached pages send no request and do not count against the quota.
func (t *WebFetchTool) cached(rawURL string) bool {
	pc, ok := t.researcher.(domain.PageCache)
	return ok && pc.HasPage(rawURL)
}

// FormatPage renders a fetched page as a short header followed by its text.
func FormatPage(page domain.PageContent) string {
	var sb strings.Builder
	if page.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", page.Title)
	}
	fmt.Fprintf(&sb, "URL: %s\n\n", page.URL)
	if strings.TrimSpace(page.Content) == "" {
		sb.WriteString("(no readable content)")
	} else {
		sb.WriteString(page.Content)
	}
	return sb.String()
}
