package tool

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxQueryLength bounds a search query in characters.
const maxQueryLength = 500

// ValidateQuery checks a search query before it reaches the researcher: it
// must hold a non-blank value of at most maxQueryLength characters and no
// control characters.
func ValidateQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return fmt.Errorf("'query' is required")
	}
	if n := utf8.RuneCountInString(q); n > maxQueryLength {
		return fmt.Errorf("query exceeds maximum length of %d characters (got %d)", maxQueryLength, n)
	}
	if i := strings.IndexFunc(q, func(r rune) bool { return unicode.IsControl(r) && r != '\t' }); i >= 0 {
		return fmt.Errorf("query contains a control character at byte %d", i)
	}
	return nil
}

// ValidatePageURL checks that raw is an absolute http(s) URL without embedded
// credentials. Whether the host is public is left to the URL guard.
func ValidatePageURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("'url' is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %s", err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("invalid url: scheme must be http or https")
	case u.Host == "":
		return fmt.Errorf("invalid url: missing host")
	case u.User != nil:
		return fmt.Errorf("invalid url: credentials are not allowed")
	}
	return nil
}
