package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// PatternFilter applies ignore and follow rules to URL paths.
//
// Patterns use glob syntax with '/' as the separator: '*' matches within one
// path segment, '**' matches across segments, '?' matches one character, and
// '{a,b}' matches alternatives. A pattern without '/' is matched against the
// last path segment only, so "*.pdf" skips PDFs at any depth.
//
// Examples:
//   - "/admin/**" matches "/admin/users" and "/admin/users/1"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1"
type PatternFilter struct {
	ignore []pathPattern
	follow []pathPattern
}

type pathPattern struct {
	glob    glob.Glob
	segment bool
}

// NewPatternFilter compiles ignore and follow patterns.
// With no follow patterns every path not ignored is allowed.
func NewPatternFilter(ignore, follow []string) (*PatternFilter, error) {
	f := &PatternFilter{}
	var err error
	if f.ignore, err = compilePatterns(ignore); err != nil {
		return nil, err
	}
	if f.follow, err = compilePatterns(follow); err != nil {
		return nil, err
	}
	return f, nil
}

func compilePatterns(patterns []string) ([]pathPattern, error) {
	out := make([]pathPattern, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, p, err)
		}
		out = append(out, pathPattern{
			glob:    g,
			segment: !strings.Contains(p, "/"),
		})
	}
	return out, nil
}

// Allow reports whether u passes the filter. A nil filter allows everything.
//
// Logic:
//  1. If the path matches any ignore pattern, it is rejected
//  2. If follow patterns are set and none matches, it is rejected
//  3. Otherwise it is allowed
func (f *PatternFilter) Allow(u *url.URL) bool {
	if f == nil {
		return true
	}

	p := u.Path
	if p == "" {
		p = "/"
	}

	for _, pat := range f.ignore {
		if pat.match(p) {
			return false
		}
	}

	if len(f.follow) == 0 {
		return true
	}
	for _, pat := range f.follow {
		if pat.match(p) {
			return true
		}
	}
	return false
}

func (p pathPattern) match(urlPath string) bool {
	if p.segment {
		return p.glob.Match(path.Base(urlPath))
	}
	return p.glob.Match(urlPath)
}
