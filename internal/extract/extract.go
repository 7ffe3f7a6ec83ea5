// Package extract pulls crawl metadata and outbound links out of a rendered
// HTML document.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/sitecrawl/internal/model"
)

// Selectors for the elements the extractor reads. Elements carrying an
// explicit ARIA role are matched alongside their native counterparts.
const (
	titleSelector       = "title"
	descriptionSelector = `meta[name="description"]`
	headingSelector     = "h1"
	imageSelector       = `img, [role="img"]`
	linkSelector        = `a, area, [role="link"]`
	baseSelector        = "base[href]"
)

// Result is everything read from one document.
type Result struct {
	// Title is the text of the first <title> element, nil when absent.
	Title *string

	// Description is the content of <meta name="description">, nil when absent.
	Description *string

	// Heading is the text of the first <h1>, nil when absent.
	Heading *string

	// Images lists image elements that have a src attribute.
	Images []model.Image

	// Links lists every link element in document order, including those
	// without an href. Callers filter with Anchor.HasHref.
	Links []Anchor

	// Keywords is the word frequency table of the body text.
	Keywords []model.KeywordCount

	// Base is the href of the document's <base> element, nil when absent.
	// Relative links resolve against it instead of the page URL.
	Base *string
}

// Anchor is the raw href of one link element.
type Anchor struct {
	Href    string
	HasHref bool
}

// Hrefs returns the href values of anchors that have one.
func (r *Result) Hrefs() []string {
	out := make([]string, 0, len(r.Links))
	for _, a := range r.Links {
		if a.HasHref {
			out = append(out, a.Href)
		}
	}
	return out
}

// Fields converts the result into the post-fetch fields of a page record.
func (r *Result) Fields(statusCode int) model.FetchedFields {
	return model.FetchedFields{
		StatusCode:  model.IntPtr(statusCode),
		Title:       r.Title,
		Description: r.Description,
		Heading:     r.Heading,
		Images:      r.Images,
		Keywords:    r.Keywords,
	}
}

// Extractor reads metadata from documents.
type Extractor struct {
	// keywordLimit caps the keyword table. 0 disables keyword extraction.
	keywordLimit int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithKeywordLimit sets how many keywords are kept per page.
// 0 disables keyword extraction.
func WithKeywordLimit(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.keywordLimit = n
		}
	}
}

// DefaultKeywordLimit is the number of keywords kept per page.
const DefaultKeywordLimit = 20

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{keywordLimit: DefaultKeywordLimit}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads metadata, images, and links from doc.
// It never fails as a whole: an element that cannot be read is skipped.
func (e *Extractor) Extract(doc *goquery.Document) *Result {
	result := &Result{
		Images: make([]model.Image, 0),
		Links:  make([]Anchor, 0),
	}
	if doc == nil {
		return result
	}

	result.Title = firstText(doc.Selection, titleSelector)
	result.Heading = firstText(doc.Selection, headingSelector)
	result.Description = firstAttr(doc.Selection, descriptionSelector, "content")
	result.Base = firstAttr(doc.Selection, baseSelector, "href")

	result.Images = append(result.Images, collect(doc.Selection, imageSelector, readImage)...)
	result.Links = append(result.Links, collect(doc.Selection, linkSelector, readAnchor)...)

	if e.keywordLimit > 0 {
		readElement(func() {
			result.Keywords = TopWords(doc.Find("body").Text(), e.keywordLimit)
		})
	}

	return result
}

// readImage reads an image element. Elements without src, such as inline
// SVG, are not images of the page.
func readImage(s *goquery.Selection) (model.Image, bool) {
	src, ok := s.Attr("src")
	if !ok {
		return model.Image{}, false
	}
	return model.Image{
		Src:   src,
		Title: s.AttrOr("title", ""),
		Alt:   s.AttrOr("alt", ""),
	}, true
}

// readAnchor reads a link element.
func readAnchor(s *goquery.Selection) (Anchor, bool) {
	href, ok := s.Attr("href")
	return Anchor{Href: href, HasHref: ok}, true
}

// collect reads every element matching selector in document order.
// An element whose read panics is skipped and the rest are still read.
func collect[T any](root *goquery.Selection, selector string, read func(*goquery.Selection) (T, bool)) []T {
	var out []T
	root.Find(selector).Each(func(_ int, s *goquery.Selection) {
		readElement(func() {
			if v, ok := read(s); ok {
				out = append(out, v)
			}
		})
	})
	return out
}

// firstText returns the trimmed text of the first element matching selector.
func firstText(root *goquery.Selection, selector string) *string {
	var out *string
	readElement(func() {
		s := root.Find(selector).First()
		if s.Length() == 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		out = &text
	})
	return out
}

// firstAttr returns attribute attr of the first element matching selector.
func firstAttr(root *goquery.Selection, selector, attr string) *string {
	var out *string
	readElement(func() {
		v, ok := root.Find(selector).First().Attr(attr)
		if !ok {
			return
		}
		out = &v
	})
	return out
}

// readElement runs fn and swallows a panic raised while reading one element.
func readElement(fn func()) {
	defer func() {
		_ = recover() //nolint:errcheck // a broken element is skipped
	}()
	fn()
}
