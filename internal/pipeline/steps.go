package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/crawler"
	"github.com/nao1215/sitecrawl/internal/database"
	"github.com/nao1215/sitecrawl/internal/fetcher"
	"github.com/nao1215/sitecrawl/internal/model"
	"github.com/nao1215/sitecrawl/internal/report"
)

// RunStore persists crawl runs. *database.CrawlDB implements it.
type RunStore interface {
	SaveRun(ctx context.Context, report *model.CrawlReport) (string, error)
	LatestRun(ctx context.Context, seed string) (*model.CrawlReport, error)
}

// CrawlStep crawls the job's seed and stores the report in the job.
// The step owns its fetcher and closes it when the fetcher is an io.Closer.
type CrawlStep struct {
	// fetcher loads pages for the spider.
	fetcher crawler.Fetcher

	// spiderOpts configure the spider built for each run.
	spiderOpts []crawler.SpiderOption

	// maxDuration bounds the whole crawl. 0 means no limit.
	maxDuration time.Duration

	// logger for structured logging.
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithSpiderOptions adds options to the spider.
func WithSpiderOptions(opts ...crawler.SpiderOption) CrawlStepOption {
	return func(s *CrawlStep) {
		s.spiderOpts = append(s.spiderOpts, opts...)
	}
}

// WithMaxDuration bounds the whole crawl. Reaching the limit stops the
// crawl like a cancellation but the step still succeeds.
func WithMaxDuration(d time.Duration) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxDuration = d
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a crawl step that fetches pages with f.
func NewCrawlStep(f crawler.Fetcher, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		fetcher: f,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
func (s *CrawlStep) Do(ctx context.Context, job *Job) error {
	if c, ok := s.fetcher.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				s.logger.Warn("failed to close fetcher", "error", err)
			}
		}()
	}

	crawlCtx := ctx
	if s.maxDuration > 0 {
		var cancel context.CancelFunc
		crawlCtx, cancel = context.WithTimeout(ctx, s.maxDuration)
		defer cancel()
	}

	opts := append([]crawler.SpiderOption{crawler.WithLogger(s.logger)}, s.spiderOpts...)
	spider := crawler.NewSpider(s.fetcher, opts...)

	rep, err := spider.Crawl(crawlCtx, job.Seed, nil)
	if rep != nil {
		job.Report = rep
	}
	if err == nil {
		return nil
	}

	// The run's own time limit is a normal way to stop.
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && crawlCtx.Err() != nil {
		s.logger.Warn("crawl time limit reached",
			"seed", job.Seed,
			"limit", s.maxDuration,
		)
		return nil
	}
	return err
}

// DiffStep compares the job's report with the previous stored run.
type DiffStep struct {
	store  RunStore
	logger *slog.Logger
}

// NewDiffStep creates a diff step reading previous runs from store.
func NewDiffStep(store RunStore, logger *slog.Logger) *DiffStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiffStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *DiffStep) Name() string {
	return "diff"
}

// Do executes the diff step. Jobs without a report, with a partial report
// or without a previous run are left without a diff.
func (s *DiffStep) Do(ctx context.Context, job *Job) error {
	if job.Report == nil {
		return nil
	}
	switch job.Report.Stopped {
	case model.StopCancelled, model.StopAborted:
		s.logger.Debug("partial run not compared", "seed", job.Report.Seed, "stopped", job.Report.Stopped)
		return nil
	}

	prev, err := s.store.LatestRun(ctx, job.Report.Seed)
	if errors.Is(err, database.ErrRunNotFound) {
		s.logger.Debug("no previous run", "seed", job.Report.Seed)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load previous run: %w", err)
	}

	d := model.Diff(prev, job.Report)
	job.Diff = &d
	s.logger.Info("compared with previous run",
		"seed", job.Report.Seed,
		"previous", prev.ID,
		"added", len(d.Added),
		"removed", len(d.Removed),
		"status_changed", len(d.StatusChanged),
		"content_changed", len(d.ContentChanged),
	)
	return nil
}

// SaveStep stores the job's report in the database.
type SaveStep struct {
	store  RunStore
	logger *slog.Logger
}

// NewSaveStep creates a save step writing to store.
func NewSaveStep(store RunStore, logger *slog.Logger) *SaveStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *SaveStep) Name() string {
	return "save"
}

// Do executes the save step.
func (s *SaveStep) Do(ctx context.Context, job *Job) error {
	if job.Report == nil {
		return nil
	}

	id, err := s.store.SaveRun(ctx, job.Report)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	job.RunID = id
	if job.Diff != nil {
		job.Diff.NewID = id
	}
	s.logger.Info("run saved", "seed", job.Report.Seed, "id", id)
	return nil
}

// ReportStep writes the job's report, and its diff when present and the
// writer's format can carry one.
// One ReportStep is shared by every pipeline of a batch; writes are
// serialized so reports do not interleave.
type ReportStep struct {
	mu     sync.Mutex
	writer report.Writer
}

// NewReportStep creates a report step writing with w.
func NewReportStep(w report.Writer) *ReportStep {
	return &ReportStep{writer: w}
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do executes the report step.
func (s *ReportStep) Do(_ context.Context, job *Job) error {
	if job.Report == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(job.Report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if job.Diff != nil && report.InlineDiff(s.writer) {
		if _, err := s.writer.WriteDiff(*job.Diff); err != nil {
			return fmt.Errorf("failed to write diff: %w", err)
		}
	}
	return nil
}

// SitePipelineConfig holds the collaborators shared by every seed's pipeline.
type SitePipelineConfig struct {
	// Config is the resolved run configuration.
	Config *config.Config

	// Store saves runs and provides previous runs. Nil disables both.
	Store RunStore

	// Report writes results. Nil disables output.
	Report *ReportStep

	// Logger is passed to the pipeline, its steps and the spider.
	Logger *slog.Logger

	// Progress is called after every visited page.
	Progress func(model.PageRecord)

	// NewFetcher overrides fetcher construction. Used by tests.
	NewFetcher func(site config.SiteSettings) (crawler.Fetcher, error)
}

// NewSitePipeline builds the pipeline for one seed: crawl with the seed
// host's site settings, then diff, save and report.
func NewSitePipeline(sc SitePipelineConfig, seed string) (*Pipeline, error) {
	seedURL, err := crawler.ParseSeed(seed)
	if err != nil {
		return nil, err
	}

	logger := sc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := sc.Config
	site := cfg.ForSite(seedURL.Hostname())

	newFetcher := sc.NewFetcher
	if newFetcher == nil {
		newFetcher = func(site config.SiteSettings) (crawler.Fetcher, error) {
			return NewFetcher(cfg, site)
		}
	}

	spiderOpts := []crawler.SpiderOption{
		crawler.WithBudget(site.Budget),
		crawler.WithFetchTimeout(cfg.Timeout),
		crawler.WithScope(site.Scope),
		crawler.WithKeywordLimit(cfg.KeywordLimit),
	}
	if len(site.IgnorePatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithIgnorePatterns(site.IgnorePatterns))
	}
	if len(site.FollowPatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithFollowPatterns(site.FollowPatterns))
	}
	if sc.Progress != nil {
		spiderOpts = append(spiderOpts, crawler.WithProgress(sc.Progress))
	}

	f, err := newFetcher(site)
	if err != nil {
		return nil, err
	}

	p := New(WithLogger(logger))
	p.AddStep(NewCrawlStep(f,
		WithSpiderOptions(spiderOpts...),
		WithMaxDuration(cfg.MaxDuration),
		WithCrawlLogger(logger),
	))

	if sc.Store != nil {
		p.AddFinalSteps(NewDiffStep(sc.Store, logger))
		if cfg.SaveToDB {
			p.AddFinalSteps(NewSaveStep(sc.Store, logger))
		}
	}
	if sc.Report != nil {
		p.AddFinalSteps(sc.Report)
	}

	return p, nil
}

// NewFetcher builds the fetcher selected by cfg with the site's cookie and
// headers applied. With cfg.Proxy set, every request goes through that
// SOCKS5 proxy.
func NewFetcher(cfg *config.Config, site config.SiteSettings) (crawler.Fetcher, error) {
	if cfg.Fetcher == config.FetcherBrowser {
		headers := make(map[string]string, len(site.Headers)+1)
		maps.Copy(headers, site.Headers)
		if site.Cookie != "" {
			headers["Cookie"] = site.Cookie
		}
		return fetcher.NewBrowser(
			fetcher.WithChromePath(cfg.ChromePath),
			fetcher.WithBrowserUserAgent(cfg.UserAgent),
			fetcher.WithBrowserHeaders(headers),
			fetcher.WithBrowserProxy(cfg.Proxy),
		), nil
	}

	opts := []fetcher.HTTPOption{
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithMaxBodySize(cfg.MaxBodySize),
		fetcher.WithHeaders(site.Headers),
		fetcher.WithCookie(site.Cookie),
	}
	if cfg.Proxy != "" {
		client, err := fetcher.NewProxyClient(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fetcher.WithClient(client))
	}
	return fetcher.NewHTTP(opts...), nil
}
