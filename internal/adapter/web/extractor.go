package web

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Content limits.
const (
	MaxContentChars  = 5000
	TruncationMarker = "\n\n[Content truncated...]"
)

// nonContentSelector lists elements that never carry readable page content.
const nonContentSelector = "script, style, noscript, template, iframe, svg, nav, header, footer, aside"

var (
	contentHintPattern = regexp.MustCompile(`(?i)content|main|article|post`)
	blockTagPattern    = regexp.MustCompile(`(?i)</?(?:p|div|br|hr|li|ul|ol|h[1-6]|tr|table|section|article|main|blockquote|dd|dt|dl|figure|figcaption|form)\b[^>]*>`)
	anyTagPattern      = regexp.MustCompile(`<[^>]*>`)
	spaceRunPattern    = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	lineEdgePattern    = regexp.MustCompile(` *\n *`)
	blankRunPattern    = regexp.MustCompile(`\n{3,}`)
	placeholderPattern = regexp.MustCompile(`\n*WEBSCOUTCODEBLOCK(\d+)END\n*`)
)

// codePlaceholder is the token that stands in for the n-th preserved code block.
func codePlaceholder(n int) string { return fmt.Sprintf("WEBSCOUTCODEBLOCK%dEND", n) }

// ExtractContent reduces an HTML page to its title and readable text.
// Code blocks keep their exact text inside ``` fences, and the text is capped
// at MaxContentChars characters.
func ExtractContent(markup string) (title, text string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", Truncate(strings.TrimSpace(markup))
	}

	title = collapseSpace(doc.Find("title").First().Text())

	doc.Find(nonContentSelector).Remove()
	doc.Find("*").Contents().FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Get(0).Type == html.CommentNode
	}).Remove()
	root := contentRoot(doc)

	var blocks []string
	root.Find("pre, code").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "code" && s.ParentsFiltered("pre").Length() > 0 {
			return
		}
		token := codePlaceholder(len(blocks))
		blocks = append(blocks, strings.Trim(s.Text(), "\n"))
		s.ReplaceWithNodes(&html.Node{Type: html.TextNode, Data: token})
	})

	rendered, err := goquery.OuterHtml(root)
	if err != nil {
		rendered = root.Text()
	}

	text = stripMarkup(rendered)
	text = placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		n, err := strconv.Atoi(placeholderPattern.FindStringSubmatch(m)[1])
		if err != nil || n >= len(blocks) {
			return m
		}
		return "\n\n```\n" + blocks[n] + "\n```\n\n"
	})
	text = strings.TrimSpace(text)

	return title, Truncate(text)
}

// contentRoot picks the element most likely to hold the main content: the
// first <main>, else the first <article>, else the first <div> whose class,
// id or role mentions content/main/article/post, else <body>.
func contentRoot(doc *goquery.Document) *goquery.Selection {
	if s := doc.Find("main").First(); s.Length() > 0 {
		return s
	}
	if s := doc.Find("article").First(); s.Length() > 0 {
		return s
	}
	hinted := doc.Find("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"class", "id", "role"} {
			if v, ok := s.Attr(attr); ok && contentHintPattern.MatchString(v) {
				return true
			}
		}
		return false
	}).First()
	if hinted.Length() > 0 {
		return hinted
	}
	if body := doc.Find("body").First(); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

// stripMarkup removes tags, decodes entities and normalises whitespace.
func stripMarkup(s string) string {
	s = blockTagPattern.ReplaceAllString(s, "\n")
	s = anyTagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceRunPattern.ReplaceAllString(s, " ")
	s = lineEdgePattern.ReplaceAllString(s, "\n")
	s = blankRunPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Truncate caps s at MaxContentChars characters and appends TruncationMarker
// when anything was cut.
func Truncate(s string) string {
	if len(s) <= MaxContentChars {
		return s
	}
	runes := []rune(s)
	if len(runes) <= MaxContentChars {
		return s
	}
	return string(runes[:MaxContentChars]) + TruncationMarker
}
