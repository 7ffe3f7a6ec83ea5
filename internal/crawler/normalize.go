package crawler

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// OutcomeKind classifies what the Normalizer decided for one href.
type OutcomeKind int

const (
	// OutcomeAccept means the URL is new, in scope, and should be queued.
	OutcomeAccept OutcomeKind = iota
	// OutcomeSkip means the link is valid but filtered out.
	OutcomeSkip
	// OutcomeMalformed means the href could not be parsed.
	OutcomeMalformed
)

// String returns the outcome name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccept:
		return "accept"
	case OutcomeSkip:
		return "skip"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// SkipReason says why a link was filtered out.
type SkipReason string

const (
	SkipFragmentOnly SkipReason = "fragment-only"
	SkipMailto       SkipReason = "mailto"
	SkipScheme       SkipReason = "unsupported scheme"
	SkipOtherHost    SkipReason = "other host"
	SkipPattern      SkipReason = "pattern"
	SkipSeen         SkipReason = "already seen"
)

// Outcome is the result of normalizing one href.
type Outcome struct {
	Kind OutcomeKind

	// URL is the canonical absolute URL. Set for Accept, and for skips that
	// happen after resolution.
	URL *url.URL

	// Reason is set for Skip.
	Reason SkipReason

	// Err is set for Malformed and wraps ErrMalformedLink.
	Err error
}

// Normalizer decides whether a discovered link should be queued.
// It holds no per-run state; deduplication is delegated to the seen callback.
type Normalizer struct {
	filter *PatternFilter
}

// NewNormalizer creates a Normalizer. A nil filter allows every path.
func NewNormalizer(filter *PatternFilter) *Normalizer {
	return &Normalizer{filter: filter}
}

// Normalize resolves href against page and applies the scope rules in order:
// fragment-only, parse, fragment removal, scheme, host, patterns, seen.
// scopeHost is compared case-insensitively with the resolved hostname.
// seen reports whether a canonical URL string is already known.
func (n *Normalizer) Normalize(href string, page *url.URL, scopeHost string, seen func(string) bool) Outcome {
	href = strings.TrimSpace(href)
	if href == "#" {
		return Outcome{Kind: OutcomeSkip, Reason: SkipFragmentOnly}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return Outcome{Kind: OutcomeMalformed, Err: fmt.Errorf("%w: %q: %w", ErrMalformedLink, href, err)}
	}
	u := Canonicalize(page.ResolveReference(ref))

	switch u.Scheme {
	case "http", "https":
	case "mailto":
		return Outcome{Kind: OutcomeSkip, URL: u, Reason: SkipMailto}
	default:
		return Outcome{Kind: OutcomeSkip, URL: u, Reason: SkipScheme}
	}

	if !strings.EqualFold(u.Hostname(), scopeHost) {
		return Outcome{Kind: OutcomeSkip, URL: u, Reason: SkipOtherHost}
	}

	if !n.filter.Allow(u) {
		return Outcome{Kind: OutcomeSkip, URL: u, Reason: SkipPattern}
	}

	if seen != nil && seen(u.String()) {
		return Outcome{Kind: OutcomeSkip, URL: u, Reason: SkipSeen}
	}

	return Outcome{Kind: OutcomeAccept, URL: u}
}

// Canonicalize returns a copy of u in ledger key form: fragment removed,
// scheme and host lower-cased, default port dropped, and an empty path
// written as "/".
func Canonicalize(u *url.URL) *url.URL {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)

	if host, port, err := net.SplitHostPort(c.Host); err == nil {
		if (c.Scheme == "http" && port == "80") || (c.Scheme == "https" && port == "443") {
			c.Host = host
			if strings.Contains(host, ":") {
				c.Host = "[" + host + "]"
			}
		}
	}

	if c.Opaque == "" && c.Path == "" && c.Host != "" {
		c.Path = "/"
		c.RawPath = ""
	}
	return &c
}

// ParseSeed validates and canonicalizes the seed URL.
// A seed without a scheme is treated as https.
func ParseSeed(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSeed)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSeed, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidSeed, raw)
	}
	return Canonicalize(u), nil
}
