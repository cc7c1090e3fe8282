package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"webscout/internal/adapter/tool"
	"webscout/internal/domain"
)

const renderWidth = 100

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	urlStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Width(4).Align(lipgloss.Right)
	snippetStyle = lipgloss.NewStyle().PaddingLeft(5).Width(renderWidth)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// printSearch writes a search response. It returns errResultFailed when the
// response carries an error.
func printSearch(w io.Writer, resp domain.SearchResponse, asJSON bool) error {
	if asJSON {
		if err := writeJSON(w, resp); err != nil {
			return err
		}
	} else if resp.Failed() {
		fmt.Fprintln(w, errorStyle.Render("error: ")+resp.Error)
	} else {
		fmt.Fprint(w, styleResults(resp))
	}
	if resp.Failed() {
		return errResultFailed
	}
	return nil
}

func styleResults(resp domain.SearchResponse) string {
	if len(resp.Results) == 0 {
		return tool.FormatSearchResults(resp.Query, resp.Results) + "\n"
	}
	var sb strings.Builder
	for _, r := range resp.Results {
		fmt.Fprintf(&sb, "%s %s\n", rankStyle.Render(fmt.Sprintf("%d.", r.Position)), titleStyle.Render(r.Title))
		fmt.Fprintf(&sb, "     %s\n", urlStyle.Render(r.URL))
		if r.Snippet != "" {
			sb.WriteString(snippetStyle.Render(r.Snippet))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// printPage writes a fetched page, optionally rendering its text as Markdown.
func printPage(w io.Writer, page domain.PageContent, asJSON, render bool) error {
	switch {
	case asJSON:
		if err := writeJSON(w, page); err != nil {
			return err
		}
	case page.Failed():
		fmt.Fprintln(w, errorStyle.Render("error: ")+page.Error)
	case render:
		out, err := renderMarkdown(page)
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		fmt.Fprint(w, out)
	default:
		fmt.Fprintln(w, tool.FormatPage(page))
	}
	if page.Failed() {
		return errResultFailed
	}
	return nil
}

// renderMarkdown renders the page as Markdown. Extracted code blocks are
// already fenced, so the text only needs a heading.
func renderMarkdown(page domain.PageContent) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(renderWidth),
	)
	if err != nil {
		return "", err
	}
	var md strings.Builder
	if page.Title != "" {
		fmt.Fprintf(&md, "# %s\n\n", page.Title)
	}
	fmt.Fprintf(&md, "<%s>\n\n%s\n", page.URL, page.Content)
	return r.Render(md.String())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
