package crawler

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/nao1215/sitecrawl/internal/extract"
	"github.com/nao1215/sitecrawl/internal/fetcher"
	"github.com/nao1215/sitecrawl/internal/ledger"
	"github.com/nao1215/sitecrawl/internal/model"
)

// DefaultFetchTimeout bounds a single page fetch.
const DefaultFetchTimeout = 10 * time.Second

// Fetcher loads one page. Implementations live in package fetcher.
// A returned error means no response was obtained; a non-2xx status is not
// an error.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Response, error)
}

// Spider crawls every in-scope page reachable from a seed.
// One fetch is in flight at a time.
type Spider struct {
	fetcher   Fetcher
	extractor *extract.Extractor

	// budget caps the number of fetches. 0 or less is unbounded.
	budget int

	fetchTimeout time.Duration
	scope        model.Scope

	ignorePatterns []string
	followPatterns []string
	keywordLimit   int

	logger   *slog.Logger
	progress func(model.PageRecord)
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithBudget sets the maximum number of pages fetched in one run.
// 0 or a negative value means no limit.
func WithBudget(budget int) SpiderOption {
	return func(s *Spider) {
		s.budget = budget
	}
}

// WithFetchTimeout sets the per-page fetch timeout.
func WithFetchTimeout(d time.Duration) SpiderOption {
	return func(s *Spider) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithScope selects which host links are compared against.
func WithScope(scope model.Scope) SpiderOption {
	return func(s *Spider) {
		if scope.Valid() {
			s.scope = scope
		}
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/**", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only URLs matching at least one pattern are queued.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithKeywordLimit sets how many keywords are kept per page. 0 disables them.
func WithKeywordLimit(n int) SpiderOption {
	return func(s *Spider) {
		s.keywordLimit = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProgress registers a callback invoked with a copy of each record right
// after it is marked visited.
func WithProgress(fn func(model.PageRecord)) SpiderOption {
	return func(s *Spider) {
		s.progress = fn
	}
}

// NewSpider creates a Spider that loads pages through f.
func NewSpider(f Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:      f,
		fetchTimeout: DefaultFetchTimeout,
		scope:        model.ScopeCurrentPage,
		keywordLimit: extract.DefaultKeywordLimit,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.extractor = extract.New(extract.WithKeywordLimit(s.keywordLimit))
	return s
}

// Crawl visits pages starting from seed until the frontier is empty, the
// budget is spent, or ctx is cancelled. Every discovered URL is recorded in l,
// which may be nil for a fresh ledger.
//
// The returned report is never nil once the seed is valid. On cancellation
// it holds the partial ledger and the error is ctx.Err(). A ledger invariant
// violation aborts the run with an error wrapping ErrLedgerInvariant.
func (s *Spider) Crawl(ctx context.Context, seed string, l *ledger.Ledger) (*model.CrawlReport, error) {
	seedURL, err := ParseSeed(seed)
	if err != nil {
		return nil, err
	}

	filter, err := NewPatternFilter(s.ignorePatterns, s.followPatterns)
	if err != nil {
		return nil, err
	}
	normalizer := NewNormalizer(filter)

	if l == nil {
		l = ledger.New()
	}
	l.InsertUnvisited(seedURL, "")

	report := model.NewCrawlReport(seedURL.String(), s.budget, s.scope)
	s.logger.Info("crawl started", "seed", report.Seed, "budget", s.budget, "scope", string(s.scope))

	runErr := s.run(ctx, l, normalizer, seedURL, report)

	report.Pages = l.All()
	report.FinishedAt = time.Now()
	if runErr != nil {
		report.Error = runErr.Error()
	}

	summary := report.Summary()
	s.logger.Info("crawl finished",
		"seed", report.Seed,
		"stopped", string(report.Stopped),
		"visited", summary.Visited,
		"queued", summary.Queued,
		"duration", report.Duration(),
	)
	return report, runErr
}

// run is the worklist loop.
func (s *Spider) run(ctx context.Context, l *ledger.Ledger, n *Normalizer, seed *url.URL, report *model.CrawlReport) error {
	for {
		if err := ctx.Err(); err != nil {
			report.Stopped = model.StopCancelled
			return err
		}

		if s.budget > 0 && l.VisitedCount() >= s.budget {
			report.Stopped = model.StopBudgetReached
			return nil
		}

		next, ok := l.NextUnvisited()
		if !ok {
			report.Stopped = model.StopFrontierExhausted
			return nil
		}

		if err := s.visit(ctx, l, n, seed, next); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				report.Stopped = model.StopCancelled
				return ctxErr
			}
			report.Stopped = model.StopAborted
			return err
		}
	}
}

// visit fetches one page, records it, and queues its in-scope links.
func (s *Spider) visit(ctx context.Context, l *ledger.Ledger, n *Normalizer, seed *url.URL, rec model.PageRecord) error {
	logger := s.logger.With("url", rec.URL)

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	resp, err := s.fetcher.Fetch(fetchCtx, rec.URL)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			// The run was cancelled mid-fetch; the page stays unvisited.
			return ctx.Err()
		}
		logger.Warn("fetch failed", "error", err)
		if markErr := l.MarkVisited(rec.URL, model.FetchedFields{FetchError: err.Error()}); markErr != nil {
			return fmt.Errorf("%w: %w", ErrLedgerInvariant, markErr)
		}
		s.notify(l, rec.URL)
		return nil
	}

	result := s.extractor.Extract(resp.Document)
	fields := result.Fields(resp.StatusCode)
	if resp.StatusCode == 0 {
		fields.StatusCode = nil
	}
	fields.ContentHash = ContentHash(resp.HTML)

	if err := l.MarkVisited(rec.URL, fields); err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerInvariant, err)
	}

	if resp.StatusCode != 0 && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		logger.Warn("non-success status", "status", resp.StatusCode)
	} else {
		logger.Debug("page fetched", "status", resp.StatusCode)
	}
	s.notify(l, rec.URL)

	page := s.currentPage(rec.URL, resp.FinalURL, result.Base)
	scopeHost := requestedHost(rec.URL)
	if s.scope == model.ScopeSeedHost {
		scopeHost = seed.Hostname()
	}

	var accepted, skipped int
	for _, href := range result.Hrefs() {
		outcome := n.Normalize(href, page, scopeHost, l.Contains)
		switch outcome.Kind {
		case OutcomeAccept:
			if l.InsertUnvisited(outcome.URL, rec.URL) {
				accepted++
			}
		case OutcomeMalformed:
			logger.Info("skipping malformed link", "href", href, "error", outcome.Err)
		case OutcomeSkip:
			skipped++
		}
	}
	logger.Debug("links processed", "accepted", accepted, "skipped", skipped)
	return nil
}

// currentPage returns the URL links on a page resolve against: the final URL
// after redirects, overridden by the document's <base href>.
func (s *Spider) currentPage(requested, final string, base *string) *url.URL {
	page, err := url.Parse(requested)
	if err != nil {
		// ledger keys are produced by url.URL.String
		page = &url.URL{}
	}
	if final != "" {
		if u, err := url.Parse(final); err == nil && u.Host != "" {
			page = u
		}
	}
	if base != nil {
		if b, err := url.Parse(*base); err == nil {
			page = page.ResolveReference(b)
		}
	}
	return page
}

// requestedHost returns the host of a ledger key. Links are scoped to the
// page that was requested, not to where a redirect or <base> points.
func requestedHost(key string) string {
	u, err := url.Parse(key)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// notify hands a copy of the record to the progress callback.
func (s *Spider) notify(l *ledger.Ledger, key string) {
	if s.progress == nil {
		return
	}
	if rec, ok := l.Get(key); ok {
		s.progress(rec)
	}
}

// ContentHash returns the hex BLAKE2b-256 digest of a document's HTML.
// Empty input yields an empty string.
func ContentHash(html string) string {
	if html == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(html))
	return hex.EncodeToString(sum[:])
}
