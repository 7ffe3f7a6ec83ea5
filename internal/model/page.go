package model

import (
	"net/url"
	"time"
)

// PageRecord is the ledger entry for one discovered URL.
// A record is created unvisited when its URL is first seen as a link target
// (or as the seed) and becomes visited exactly once, when it is fetched.
//
// Every field below Visited is a post-fetch field. Post-fetch fields are
// written once by the ledger when the page is marked visited and are never
// changed afterwards. Pointer fields distinguish "absent" from "empty":
// a page whose <title> is empty has Title pointing at "", a page without a
// <title> element has Title == nil.
type PageRecord struct {
	// URL is the canonical absolute URL with the fragment removed.
	// It is also the ledger key.
	URL string `json:"url"`

	// Visited is false at discovery and true once the page was fetched.
	Visited bool `json:"visited"`

	// FoundOn is the URL of the page where this URL was first discovered.
	// Empty for the seed.
	FoundOn string `json:"found_on,omitempty"`

	// StatusCode is the HTTP status of the fetch.
	// Nil when the page has not been fetched or the fetch failed before a
	// response arrived (timeout, connection refused).
	StatusCode *int `json:"status_code,omitempty"`

	// Title is the text of the first <title> element.
	Title *string `json:"title,omitempty"`

	// Description is the content attribute of <meta name="description">.
	Description *string `json:"description,omitempty"`

	// Heading is the text of the first <h1> element.
	Heading *string `json:"heading,omitempty"`

	// Images lists every image on the page that has a src attribute.
	Images []Image `json:"images,omitempty"`

	// Keywords is the word frequency table of the page's body text.
	Keywords []KeywordCount `json:"keywords,omitempty"`

	// ContentHash is the BLAKE2b-256 hash of the rendered document.
	// Used to detect content changes between runs.
	ContentHash string `json:"content_hash,omitempty"`

	// FetchError describes why the fetch failed. Empty on success.
	FetchError string `json:"fetch_error,omitempty"`

	// FetchedAt is when the page was marked visited.
	FetchedAt time.Time `json:"fetched_at,omitzero"`
}

// Image is an image element found on a page.
type Image struct {
	Src   string `json:"src"`
	Title string `json:"title,omitempty"`
	Alt   string `json:"alt,omitempty"`
}

// KeywordCount is one row of a word frequency table.
type KeywordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// FetchedFields carries the post-fetch data stamped onto a record when it is
// marked visited. The zero value describes a fetch that failed without a
// response.
type FetchedFields struct {
	StatusCode  *int
	Title       *string
	Description *string
	Heading     *string
	Images      []Image
	Keywords    []KeywordCount
	ContentHash string
	FetchError  string
}

// NewPageRecord creates an unvisited record for u.
func NewPageRecord(u *url.URL, foundOn string) PageRecord {
	return PageRecord{
		URL:     u.String(),
		FoundOn: foundOn,
	}
}

// Failed reports whether the page was fetched but no response was received.
func (p PageRecord) Failed() bool {
	return p.Visited && p.FetchError != ""
}

// Success reports whether the page was fetched with a 2xx status.
func (p PageRecord) Success() bool {
	return p.StatusCode != nil && *p.StatusCode >= 200 && *p.StatusCode < 300
}

// Host returns the hostname of the record's URL, or "" when it cannot be parsed.
func (p PageRecord) Host() string {
	u, err := url.Parse(p.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Clone returns a deep copy so callers cannot mutate ledger state.
func (p PageRecord) Clone() PageRecord {
	c := p
	if p.StatusCode != nil {
		v := *p.StatusCode
		c.StatusCode = &v
	}
	c.Title = cloneString(p.Title)
	c.Description = cloneString(p.Description)
	c.Heading = cloneString(p.Heading)
	if p.Images != nil {
		c.Images = append([]Image(nil), p.Images...)
	}
	if p.Keywords != nil {
		c.Keywords = append([]KeywordCount(nil), p.Keywords...)
	}
	return c
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string {
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
