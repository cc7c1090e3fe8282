package domain

import (
	"context"
	"time"
)

// DefaultMaxResults is the result count used when a query does not specify one.
const DefaultMaxResults = 5

// SearchQuery is a free-text web search request.
type SearchQuery struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

// SearchResult is one ranked hit from a search result page.
// Position is the 1-based rank in document order.
type SearchResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

// SearchResponse is the value returned by a search. On failure Results is
// empty and Error describes what went wrong.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Error   string         `json:"error,omitempty"`
}

// Failed reports whether the search ended in an error.
func (r SearchResponse) Failed() bool { return r.Error != "" }

// PageContent is the readable text of a single fetched page. On failure Title
// and Content are empty and Error is set.
type PageContent struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	FetchedAt time.Time `json:"fetched_at,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// Failed reports whether the fetch ended in an error.
func (p PageContent) Failed() bool { return p.Error != "" }

// WebResearcher is the caller-facing surface of the web subsystem. None of its
// methods return a Go error; failures are carried in the returned value.
type WebResearcher interface {
	Search(ctx context.Context, query string, maxResults int) SearchResponse
	SearchCode(ctx context.Context, query string) SearchResponse
	FetchPage(ctx context.Context, rawURL string) PageContent
}

// PageCache is implemented by researchers that can tell whether FetchPage
// would be answered without any outbound request.
type PageCache interface {
	HasPage(rawURL string) bool
}
