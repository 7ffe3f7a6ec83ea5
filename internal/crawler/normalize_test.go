package crawler

import (
	"errors"
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", raw, err)
	}
	return u
}

// TestNormalize tests the link decision table.
func TestNormalize(t *testing.T) {
	t.Parallel()

	seen := func(u string) bool {
		return u == "https://ex.test/seen" || u == "https://ex.test/docs/page"
	}

	tests := []struct {
		name   string
		href   string
		kind   OutcomeKind
		reason SkipReason
		want   string
	}{
		{name: "fragment only", href: "#", kind: OutcomeSkip, reason: SkipFragmentOnly},
		{name: "fragment only with spaces", href: "  #  ", kind: OutcomeSkip, reason: SkipFragmentOnly},
		{name: "absolute path", href: "/about", kind: OutcomeAccept, want: "https://ex.test/about"},
		{name: "fragment removed", href: "/about#team", kind: OutcomeAccept, want: "https://ex.test/about"},
		{name: "relative to current page", href: "other", kind: OutcomeAccept, want: "https://ex.test/docs/other"},
		{name: "parent directory", href: "../up", kind: OutcomeAccept, want: "https://ex.test/up"},
		{name: "query kept", href: "/search?q=go", kind: OutcomeAccept, want: "https://ex.test/search?q=go"},
		{name: "host case insensitive", href: "HTTPS://EX.TEST/Case", kind: OutcomeAccept, want: "https://ex.test/Case"},
		{name: "default port dropped", href: "https://ex.test:443/port", kind: OutcomeAccept, want: "https://ex.test/port"},
		{name: "http on same host", href: "http://ex.test/plain", kind: OutcomeAccept, want: "http://ex.test/plain"},
		{name: "mailto", href: "mailto:a@b.com", kind: OutcomeSkip, reason: SkipMailto},
		{name: "javascript", href: "javascript:void(0)", kind: OutcomeSkip, reason: SkipScheme},
		{name: "tel", href: "tel:+123", kind: OutcomeSkip, reason: SkipScheme},
		{name: "other host", href: "https://other.test/", kind: OutcomeSkip, reason: SkipOtherHost},
		{name: "protocol relative other host", href: "//other.test/x", kind: OutcomeSkip, reason: SkipOtherHost},
		{name: "subdomain is another host", href: "https://www.ex.test/", kind: OutcomeSkip, reason: SkipOtherHost},
		{name: "already seen", href: "/seen#x", kind: OutcomeSkip, reason: SkipSeen},
		{name: "empty href is the page itself", href: "", kind: OutcomeSkip, reason: SkipSeen},
		{name: "malformed", href: "http://[::1", kind: OutcomeMalformed},
	}

	page := mustParse(t, "https://ex.test/docs/page")
	n := NewNormalizer(nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := n.Normalize(tt.href, page, "ex.test", seen)
			if got.Kind != tt.kind {
				t.Fatalf("Normalize(%q) kind = %v, want %v (reason %q, err %v)", tt.href, got.Kind, tt.kind, got.Reason, got.Err)
			}
			switch tt.kind {
			case OutcomeAccept:
				if got.URL.String() != tt.want {
					t.Errorf("Normalize(%q) = %q, want %q", tt.href, got.URL, tt.want)
				}
			case OutcomeSkip:
				if got.Reason != tt.reason {
					t.Errorf("Normalize(%q) reason = %q, want %q", tt.href, got.Reason, tt.reason)
				}
			case OutcomeMalformed:
				if !errors.Is(got.Err, ErrMalformedLink) {
					t.Errorf("expected ErrMalformedLink, got %v", got.Err)
				}
			}
		})
	}
}

// TestNormalizeFragmentInsensitivity tests that links differing only in the
// fragment produce the same key.
func TestNormalizeFragmentInsensitivity(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)
	a := n.Normalize("https://x.test/a#foo", mustParse(t, "https://x.test/one"), "x.test", nil)
	b := n.Normalize("/a#bar", mustParse(t, "https://x.test/two"), "x.test", nil)

	if a.Kind != OutcomeAccept || b.Kind != OutcomeAccept {
		t.Fatalf("expected both accepted, got %v and %v", a.Kind, b.Kind)
	}
	if a.URL.String() != "https://x.test/a" || b.URL.String() != "https://x.test/a" {
		t.Errorf("expected https://x.test/a twice, got %q and %q", a.URL, b.URL)
	}
}

// TestNormalizePatterns tests that pattern filtering happens after the host check.
func TestNormalizePatterns(t *testing.T) {
	t.Parallel()

	filter, err := NewPatternFilter([]string{"/admin/**"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n := NewNormalizer(filter)
	page := mustParse(t, "https://ex.test/")

	if got := n.Normalize("/admin/users", page, "ex.test", nil); got.Reason != SkipPattern {
		t.Errorf("expected pattern skip, got %v %q", got.Kind, got.Reason)
	}
	if got := n.Normalize("https://other.test/admin/users", page, "ex.test", nil); got.Reason != SkipOtherHost {
		t.Errorf("expected other host skip, got %v %q", got.Kind, got.Reason)
	}
	if got := n.Normalize("/public", page, "ex.test", nil); got.Kind != OutcomeAccept {
		t.Errorf("expected accept, got %v %q", got.Kind, got.Reason)
	}
}

// TestCanonicalize tests ledger key normalization.
func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://ex.test", "https://ex.test/"},
		{"HTTPS://Ex.Test/Path", "https://ex.test/Path"},
		{"https://ex.test/a#frag", "https://ex.test/a"},
		{"http://ex.test:80/a", "http://ex.test/a"},
		{"http://ex.test:8080/a", "http://ex.test:8080/a"},
		{"https://[::1]:443/a", "https://[::1]/a"},
		{"https://ex.test/a?b=c#d", "https://ex.test/a?b=c"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := Canonicalize(mustParse(t, tt.in)).String(); got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("does not modify input", func(t *testing.T) {
		t.Parallel()
		u := mustParse(t, "https://EX.test/a#x")
		_ = Canonicalize(u)
		if u.Fragment != "x" || u.Host != "EX.test" {
			t.Errorf("input was modified: %v", u)
		}
	})
}

// TestParseSeed tests seed validation.
func TestParseSeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "full URL", in: "https://ex.test/start", want: "https://ex.test/start"},
		{name: "no scheme", in: "ex.test", want: "https://ex.test/"},
		{name: "http kept", in: "http://ex.test", want: "http://ex.test/"},
		{name: "fragment removed", in: "https://ex.test/#top", want: "https://ex.test/"},
		{name: "spaces trimmed", in: "  https://ex.test/  ", want: "https://ex.test/"},
		{name: "empty", in: "", wantErr: true},
		{name: "ftp", in: "ftp://ex.test/", wantErr: true},
		{name: "no host", in: "https:///path", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseSeed(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSeed) {
					t.Errorf("expected ErrInvalidSeed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseSeed(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
