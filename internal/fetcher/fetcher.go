// Package fetcher loads pages for the crawler.
//
// Two implementations are provided: HTTP performs a plain GET and parses the
// body, Browser navigates a headless Chrome tab and parses the rendered DOM.
// Both return a Response holding the status code and a goquery document.
package fetcher

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Default fetcher settings.
const (
	// DefaultUserAgent identifies sitecrawl in HTTP requests.
	DefaultUserAgent = "sitecrawl/1.0 (+https://github.com/nao1215/sitecrawl)"

	// DefaultMaxBodySize limits how much of a response body is read.
	DefaultMaxBodySize = 5 * 1024 * 1024
)

// ErrEmptyURL is returned when Fetch is called without a URL.
var ErrEmptyURL = errors.New("empty URL")

// Response is the result of fetching one page.
type Response struct {
	// StatusCode is the HTTP status of the main document.
	// 0 when the fetcher could not observe it.
	StatusCode int

	// FinalURL is the URL after redirects.
	FinalURL string

	// ContentType is the media type reported by the server.
	ContentType string

	// HTML is the document source the Document was built from.
	// Empty for non-HTML responses.
	HTML string

	// Document is the parsed page, nil for non-HTML responses.
	Document *goquery.Document
}

// isHTML reports whether a Content-Type header value describes an HTML document.
// An empty content type is treated as HTML since many servers omit it.
func isHTML(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return ct == "" ||
		strings.HasPrefix(ct, "text/html") ||
		strings.HasPrefix(ct, "application/xhtml+xml")
}

// parseDocument builds a goquery document from HTML source.
func parseDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
