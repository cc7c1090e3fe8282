package websearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"webscout/internal/adapter/web"
	"webscout/internal/domain"
	"webscout/internal/infra/tracer"
	"webscout/internal/security"
)

const (
	// DefaultEndpoint is the script-free DuckDuckGo result page.
	DefaultEndpoint = "https://html.duckduckgo.com/html/"
	// MaxResults caps the number of hits a single search may return.
	MaxResults = 20
	// CodeSearchResults is the fixed result count for code searches.
	CodeSearchResults = 5
	// CodeSearchSuffix narrows a code search to programming reference sites.
	CodeSearchSuffix = " site:stackoverflow.com OR site:github.com OR site:developer.mozilla.org OR site:docs.python.org"
)

// blockedURLMessage is the error text for a page URL the guard rejects.
const blockedURLMessage = "Blocked private or invalid URL"

// PageFetcher retrieves the body of a URL. *web.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Config tunes a Service. Zero values fall back to the package defaults.
type Config struct {
	Endpoint  string
	CacheSize int
	CacheTTL  time.Duration
	// RateLimit is the sustained number of search requests per second sent to
	// the endpoint. Zero disables limiting.
	RateLimit float64
	RateBurst int
	// Audit receives one event per uncached search or page fetch. Nil
	// disables auditing.
	Audit domain.AuditLogger
}

// Service is the caller-facing web research facade. It never returns a Go
// error: every failure is reported inside the returned value.
type Service struct {
	fetcher  PageFetcher
	endpoint string
	searches *web.Cache[domain.SearchResponse]
	pages    *web.Cache[domain.PageContent]
	limiter  *rate.Limiter
	audit    domain.AuditLogger
	logger   *slog.Logger
	now      func() time.Time
}

var (
	_ domain.WebResearcher = (*Service)(nil)
	_ domain.PageCache     = (*Service)(nil)
)

// NewService creates the facade around fetcher. The caches live as long as
// the Service.
func NewService(fetcher PageFetcher, cfg Config, logger *slog.Logger) *Service {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Service{
		fetcher:  fetcher,
		endpoint: cfg.Endpoint,
		searches: web.NewCache[domain.SearchResponse](cfg.CacheSize, cfg.CacheTTL),
		pages:    web.NewCache[domain.PageContent](cfg.CacheSize, cfg.CacheTTL),
		limiter:  limiter,
		audit:    cfg.Audit,
		logger:   logger,
		now:      time.Now,
	}
}

// Search runs a free-text query and returns up to maxResults ranked hits.
// maxResults <= 0 means the default of 5; larger values are capped at 20.
func (s *Service) Search(ctx context.Context, query string, maxResults int) domain.SearchResponse {
	maxResults = clampResults(maxResults)

	ctx, span := tracer.StartSpan(ctx, "websearch.search")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("search.query", query),
		tracer.IntAttr("search.max_results", maxResults),
	)

	if strings.TrimSpace(query) == "" {
		err := domain.NewSubSystemError("search", "Search", domain.ErrInvalidInput, "query must not be empty")
		tracer.RecordError(span, err)
		return failedSearch(query, err)
	}

	key := searchKey(query, maxResults)
	if cached, ok := s.searches.Get(key); ok {
		s.logger.Debug("search cache hit", "query", query, "max_results", maxResults)
		span.SetAttributes(tracer.StringAttr("search.cache", "hit"))
		tracer.SetOK(span)
		return cached
	}

	results, err := s.search(ctx, query, maxResults)
	if err != nil {
		tracer.RecordError(span, err)
		s.logger.Warn("search failed", "query", query, "error", err, "code", domain.ErrorCodeOf(err))
		s.record(ctx, domain.AuditSearch, query, domain.AuditOutcomeError, map[string]string{"code": string(domain.ErrorCodeOf(err))})
		return failedSearch(query, err)
	}

	resp := domain.SearchResponse{Query: query, Results: results}
	s.searches.Set(key, resp)
	span.SetAttributes(tracer.IntAttr("search.results", len(results)))
	tracer.SetOK(span)
	s.logger.Debug("search completed", "query", query, "results", len(results))
	s.record(ctx, domain.AuditSearch, query, domain.AuditOutcomeSuccess, map[string]string{"results": strconv.Itoa(len(results))})
	return resp
}

func (s *Service) search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	endpoint := s.endpoint + "?q=" + url.QueryEscape(query)
	if err := security.ValidateURL(endpoint); err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.NewSubSystemError("search", "Search", domain.ErrRateLimit, err.Error())
	}
	body, err := s.fetcher.Fetch(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return web.ParseResults(body, maxResults), nil
}

// SearchCode searches programming reference sites for query.
func (s *Service) SearchCode(ctx context.Context, query string) domain.SearchResponse {
	if strings.TrimSpace(query) == "" {
		return s.Search(ctx, query, CodeSearchResults)
	}
	return s.Search(ctx, query+CodeSearchSuffix, CodeSearchResults)
}

// HasPage reports whether a fresh copy of rawURL is cached.
func (s *Service) HasPage(rawURL string) bool {
	_, ok := s.pages.Get(pageKey(rawURL))
	return ok
}

// FetchPage downloads rawURL and returns its readable text.
func (s *Service) FetchPage(ctx context.Context, rawURL string) domain.PageContent {
	ctx, span := tracer.StartSpan(ctx, "websearch.fetch_page")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("page.url", rawURL))

	key := pageKey(rawURL)
	if cached, ok := s.pages.Get(key); ok {
		s.logger.Debug("page cache hit", "url", rawURL)
		span.SetAttributes(tracer.StringAttr("page.cache", "hit"))
		tracer.SetOK(span)
		return cached
	}

	if err := security.ValidateURL(rawURL); err != nil {
		tracer.RecordError(span, err)
		s.logger.Warn("page blocked", "url", rawURL, "error", err)
		s.record(ctx, domain.AuditPageFetch, rawURL, domain.AuditOutcomeBlocked, nil)
		return domain.PageContent{URL: rawURL, Error: blockedURLMessage}
	}

	body, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		tracer.RecordError(span, err)
		s.logger.Warn("page fetch failed", "url", rawURL, "error", err, "code", domain.ErrorCodeOf(err))
		s.record(ctx, domain.AuditPageFetch, rawURL, domain.AuditOutcomeError, map[string]string{"code": string(domain.ErrorCodeOf(err))})
		return domain.PageContent{URL: rawURL, Error: errorMessage(err)}
	}

	title, text := web.ExtractContent(body)
	page := domain.PageContent{
		URL:       rawURL,
		Title:     title,
		Content:   text,
		FetchedAt: s.now(),
	}
	s.pages.Set(key, page)
	span.SetAttributes(tracer.IntAttr("page.chars", len([]rune(text))))
	tracer.SetOK(span)
	s.logger.Debug("page fetched", "url", rawURL, "title", title)
	s.record(ctx, domain.AuditPageFetch, rawURL, domain.AuditOutcomeSuccess, map[string]string{"chars": strconv.Itoa(len([]rune(text)))})
	return page
}

// record writes an audit event. Audit failures are logged and never fail the
// operation.
func (s *Service) record(ctx context.Context, typ domain.AuditEventType, resource, outcome string, detail map[string]string) {
	if s.audit == nil {
		return
	}
	event := domain.AuditEvent{Type: typ, Resource: resource, Outcome: outcome, Detail: detail}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.Warn("audit write failed", "type", typ, "error", err)
	}
}

func clampResults(n int) int {
	if n <= 0 {
		return domain.DefaultMaxResults
	}
	return min(n, MaxResults)
}

func searchKey(query string, maxResults int) string {
	return fmt.Sprintf("search:%s:%d", query, maxResults)
}

func pageKey(rawURL string) string { return "page:" + rawURL }

func failedSearch(query string, err error) domain.SearchResponse {
	return domain.SearchResponse{Query: query, Results: []domain.SearchResult{}, Error: errorMessage(err)}
}

// errorMessage renders err for a result value. Cancellation is reported in
// plain words rather than as the wrapped chain.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	}
	return err.Error()
}
