package tool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webscout/internal/domain"
)

func newTestLogger() *slog.Logger { return slog.Default() }

// --- Registry tests ---

type mockTool struct {
	name string
}

func (m *mockTool) Name() string              { return m.name }
func (m *mockTool) Description() string       { return "mock" }
func (m *mockTool) Schema() domain.ToolSchema { return domain.ToolSchema{Name: m.name} }
func (m *mockTool) Execute(context.Context, json.RawMessage) (*domain.ToolResult, error) {
	return &domain.ToolResult{Content: "ok"}, nil
}

func TestRegistryBasic(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.Register(&mockTool{name: "test"}); err != nil {
		t.Fatal(err)
	}

	tool, err := reg.Get("test")
	if err != nil {
		t.Fatal(err)
	}
	if tool.Name() != "test" {
		t.Errorf("Name = %q, want %q", tool.Name(), "test")
	}

	schemas := reg.Schemas()
	if len(schemas) != 1 {
		t.Errorf("Schemas len = %d, want 1", len(schemas))
	}
}

func TestRegistryNotFound(t *testing.T) {
	reg := NewRegistry(nil)
	_, err := reg.Get("nonexistent")
	if !errors.Is(err, domain.ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(&mockTool{name: "dup"})
	if err := reg.Register(&mockTool{name: "dup"}); err == nil {
		t.Error("expected error on duplicate")
	}
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry(nil)
	for _, n := range []string{"web_search", "code_search", "web_fetch"} {
		reg.Register(&mockTool{name: n})
	}
	var names []string
	for _, tl := range reg.List() {
		names = append(names, tl.Name())
	}
	if got := strings.Join(names, ","); got != "code_search,web_fetch,web_search" {
		t.Errorf("List order = %s", got)
	}
}

func TestNewWebRegistry(t *testing.T) {
	reg, err := NewWebRegistry(&fakeResearcher{}, 0, nopLogger())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"web_search", "code_search", "web_fetch"} {
		tl, err := reg.Get(name)
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		if _, ok := tl.(*SchemaValidatingTool); !ok {
			t.Errorf("%s is not schema-validated (%T)", name, tl)
		}
		var params map[string]any
		if err := json.Unmarshal(tl.Schema().Parameters, &params); err != nil {
			t.Errorf("%s schema is invalid JSON: %v", name, err)
		}
	}
}

// --- Web tool tests ---

// fakeResearcher returns canned values and records the calls it receives.
type fakeResearcher struct {
	mu       sync.Mutex
	search   domain.SearchResponse
	page     domain.PageContent
	queries  []string
	maxes    []int
	codeQs   []string
	pageURLs []string
}

func (f *fakeResearcher) Search(_ context.Context, query string, maxResults int) domain.SearchResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.maxes = append(f.maxes, maxResults)
	return f.search
}

func (f *fakeResearcher) SearchCode(_ context.Context, query string) domain.SearchResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codeQs = append(f.codeQs, query)
	return f.search
}

func (f *fakeResearcher) FetchPage(_ context.Context, rawURL string) domain.PageContent {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageURLs = append(f.pageURLs, rawURL)
	p := f.page
	p.URL = rawURL
	return p
}

var sampleResults = []domain.SearchResult{
	{Title: "The Go Programming Language", URL: "https://go.dev/", Snippet: "Build simple, secure, scalable systems.", Position: 1},
	{Title: "A Tour of Go", URL: "https://go.dev/tour/", Position: 2},
}

func TestWebSearchToolSuccess(t *testing.T) {
	r := &fakeResearcher{search: domain.SearchResponse{Query: "golang", Results: sampleResults}}
	ws := NewWebSearchTool(r, newTestLogger())

	params, _ := json.Marshal(webSearchParams{Query: "golang", MaxResults: 2})
	result, err := ws.Execute(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	for _, want := range []string{
		`Search results for "golang"`,
		"1. The Go Programming Language\n   URL: https://go.dev/\n   Build simple",
		"2. A Tour of Go\n   URL: https://go.dev/tour/\n",
	} {
		if !strings.Contains(result.Content, want) {
			t.Errorf("result missing %q, got: %s", want, result.Content)
		}
	}
	if len(r.maxes) != 1 || r.maxes[0] != 2 {
		t.Errorf("max_results not forwarded: %v", r.maxes)
	}
}

func TestWebSearchToolEmptyQuery(t *testing.T) {
	r := &fakeResearcher{}
	ws := NewWebSearchTool(r, newTestLogger())
	for _, q := range []string{"", "   "} {
		params, _ := json.Marshal(webSearchParams{Query: q})
		result, err := ws.Execute(context.Background(), params)
		if err != nil {
			t.Fatal(err)
		}
		if !result.IsError {
			t.Errorf("expected error for query %q", q)
		}
	}
	if len(r.queries) != 0 {
		t.Errorf("researcher called %d times for empty queries", len(r.queries))
	}
}

func TestWebSearchToolQueryTooLong(t *testing.T) {
	ws := NewWebSearchTool(&fakeResearcher{}, newTestLogger())
	params, _ := json.Marshal(webSearchParams{Query: strings.Repeat("q", maxQueryLength+1)})
	result, _ := ws.Execute(context.Background(), params)
	if !result.IsError || !strings.Contains(result.Content, "exceeds maximum length") {
		t.Errorf("expected length error, got: %+v", result)
	}
}

func TestWebSearchToolNoResults(t *testing.T) {
	r := &fakeResearcher{search: domain.SearchResponse{Query: "zzz", Results: []domain.SearchResult{}}}
	result, _ := NewWebSearchTool(r, newTestLogger()).Execute(context.Background(), json.RawMessage(`{"query":"zzz"}`))
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if result.Content != `No search results found for "zzz".` {
		t.Errorf("unexpected content: %s", result.Content)
	}
}

func TestWebSearchToolFailureIsRetryable(t *testing.T) {
	r := &fakeResearcher{search: domain.SearchResponse{
		Query:   "golang",
		Results: []domain.SearchResult{},
		Error:   "search \"golang\": fetch retries exhausted: HTTP 503",
	}}
	result, err := NewWebSearchTool(r, nopLogger()).Execute(context.Background(), json.RawMessage(`{"query":"golang"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !result.IsRetryable {
		t.Error("expected exhausted fetch to be retryable")
	}
}

func TestCodeSearchTool(t *testing.T) {
	r := &fakeResearcher{search: domain.SearchResponse{Results: sampleResults}}
	cs := NewCodeSearchTool(r, newTestLogger())

	result, err := cs.Execute(context.Background(), json.RawMessage(`{"query":"goroutine leak"}`))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if len(r.codeQs) != 1 || r.codeQs[0] != "goroutine leak" {
		t.Errorf("SearchCode calls = %v", r.codeQs)
	}
	if len(r.queries) != 0 {
		t.Error("code_search should not call Search directly")
	}
	if !strings.Contains(result.Content, `Search results for "goroutine leak"`) {
		t.Errorf("unexpected content: %s", result.Content)
	}
}

func TestWebFetchToolSuccess(t *testing.T) {
	r := &fakeResearcher{page: domain.PageContent{Title: "Example", Content: "Hello world", FetchedAt: time.Now()}}
	wf := NewWebFetchTool(r, 0, newTestLogger())

	result, err := wf.Execute(context.Background(), json.RawMessage(`{"url":"https://example.com/"}`))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	want := "Title: Example\nURL: https://example.com/\n\nHello world"
	if result.Content != want {
		t.Errorf("Content = %q, want %q", result.Content, want)
	}
}

func TestWebFetchToolRejectsBadURL(t *testing.T) {
	r := &fakeResearcher{}
	wf := NewWebFetchTool(r, 0, newTestLogger())

	for _, raw := range []string{`{"url":""}`, `{"url":"ftp://example.com"}`, `{"url":"example.com"}`} {
		result, _ := wf.Execute(context.Background(), json.RawMessage(raw))
		if !result.IsError {
			t.Errorf("expected error for %s", raw)
		}
	}
	if len(r.pageURLs) != 0 {
		t.Errorf("researcher called for invalid URLs: %v", r.pageURLs)
	}
}

func TestWebFetchToolBlockedIsPermanent(t *testing.T) {
	r := &fakeResearcher{page: domain.PageContent{Error: "Blocked private or invalid URL"}}
	result, _ := NewWebFetchTool(r, 0, nopLogger()).Execute(context.Background(), json.RawMessage(`{"url":"http://127.0.0.1/admin"}`))
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if result.IsRetryable {
		t.Error("blocked URL must not be retryable")
	}
	if !strings.Contains(result.Content, "Blocked private or invalid URL") {
		t.Errorf("unexpected content: %s", result.Content)
	}
}

func TestWebFetchToolQuota(t *testing.T) {
	r := &fakeResearcher{page: domain.PageContent{Content: "x"}}
	wf := NewWebFetchTool(r, 2, nopLogger())
	params := json.RawMessage(`{"url":"https://example.com/"}`)

	for i := 0; i < 2; i++ {
		if res, _ := wf.Execute(context.Background(), params); res.IsError {
			t.Fatalf("call %d: %s", i+1, res.Content)
		}
	}
	result, _ := wf.Execute(context.Background(), params)
	if !result.IsError || !result.IsRetryable {
		t.Fatalf("expected retryable quota error, got %+v", result)
	}
	if !strings.Contains(result.Content, "quota") {
		t.Errorf("unexpected content: %s", result.Content)
	}
	if len(r.pageURLs) != 2 {
		t.Errorf("researcher calls = %d, want 2", len(r.pageURLs))
	}
}

// cachingResearcher reports the URLs in cached as already fetched.
type cachingResearcher struct {
	*fakeResearcher
	cached map[string]bool
}

func (c *cachingResearcher) HasPage(rawURL string) bool { return c.cached[rawURL] }

func TestWebFetchToolCachedPagesSkipQuota(t *testing.T) {
	r := &cachingResearcher{
		fakeResearcher: &fakeResearcher{page: domain.PageContent{Content: "x"}},
		cached:         map[string]bool{"https://example.com/cached": true},
	}
	wf := NewWebFetchTool(r, 1, nopLogger())
	cached := json.RawMessage(`{"url":"https://example.com/cached"}`)
	fresh := json.RawMessage(`{"url":"https://example.com/fresh"}`)

	for i := 0; i < 3; i++ {
		res, _ := wf.Execute(context.Background(), cached)
		require.False(t, res.IsError, "cached call %d: %s", i+1, res.Content)
	}
	res, _ := wf.Execute(context.Background(), fresh)
	require.False(t, res.IsError, res.Content)

	res, _ = wf.Execute(context.Background(), fresh)
	assert.True(t, res.IsError)
	assert.True(t, res.IsRetryable)
	assert.Contains(t, res.Content, "quota")
	assert.Len(t, r.pageURLs, 4)
}

func TestFormatPageEmptyContent(t *testing.T) {
	got := FormatPage(domain.PageContent{URL: "https://example.com/"})
	if got != "URL: https://example.com/\n\n(no readable content)" {
		t.Errorf("FormatPage = %q", got)
	}
}
