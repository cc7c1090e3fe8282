package web

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"webscout/internal/domain"
)

// SearchEngineDomain is the host whose links are navigation, not results.
const SearchEngineDomain = "duckduckgo.com"

// Selectors for the DuckDuckGo HTML result page.
const (
	resultLinkSelector    = "a.result__a"
	resultSnippetSelector = ".result__snippet"
)

// ParseResults extracts up to maxResults hits from a DuckDuckGo HTML result
// page. Anchors are paired with snippets by position. Links back to the
// engine and entries without a URL or title are skipped and do not count.
// An unrecognised page yields an empty slice.
func ParseResults(markup string, maxResults int) []domain.SearchResult {
	if maxResults <= 0 {
		maxResults = domain.DefaultMaxResults
	}
	results := make([]domain.SearchResult, 0, maxResults)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return results
	}

	snippets := doc.Find(resultSnippetSelector)
	doc.Find(resultLinkSelector).EachWithBreak(func(i int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		link := resolveResultURL(href)
		title := collapseSpace(a.Text())
		if link == "" || title == "" || isEngineLink(link) {
			return true
		}

		var snippet string
		if i < snippets.Length() {
			snippet = collapseSpace(snippets.Eq(i).Text())
		}

		results = append(results, domain.SearchResult{
			Title:    title,
			URL:      link,
			Snippet:  snippet,
			Position: len(results) + 1,
		})
		return len(results) < maxResults
	})

	return results
}

// resolveResultURL unwraps the engine's redirect link (…/l/?uddg=<dest>) and
// returns the destination, or the literal href when it is not wrapped.
func resolveResultURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if dest := u.Query().Get("uddg"); dest != "" {
		return dest
	}
	return href
}

// isEngineLink reports whether link is relative, not http(s), or points at
// the search engine itself.
func isEngineLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return true
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return true
	}
	host := strings.ToLower(u.Hostname())
	return host == SearchEngineDomain || strings.HasSuffix(host, "."+SearchEngineDomain)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
