package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/database"
	"github.com/nao1215/sitecrawl/internal/fetcher"
	"github.com/nao1215/sitecrawl/internal/model"
	"github.com/nao1215/sitecrawl/internal/pipeline"
	"github.com/nao1215/sitecrawl/internal/report"
	"github.com/nao1215/sitecrawl/internal/tor"
)

// errCrawlsFailed is returned when at least one seed could not be crawled.
var errCrawlsFailed = errors.New("crawl failed")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl a website starting from one or more seed URLs",
		Long: `Crawl fetches the seed URL, follows every link that stays on the same host,
and records the status, title, description, first heading and images of
each page it visits.

A URL without a scheme is crawled over https. The seed may also be given
with SITECRAWL_BASE_URL, the budget with SITECRAWL_BUDGET and the per-page
timeout with SITECRAWL_TIMEOUT. Flags override the environment, and site
settings from the configuration file apply on top for their host.

Every run is saved to the database in the XDG data directory and compared
with the previous complete run of the same seed.

Examples:
  # Crawl a site and print a text report
  sitecrawl crawl https://www.example.com/

  # Visit at most 50 pages and write CSV
  sitecrawl crawl --budget 50 --format csv -o pages.csv www.example.com

  # Render pages in headless Chrome
  sitecrawl crawl --fetcher browser https://www.example.com/

  # Crawl through a local Tor SOCKS proxy
  sitecrawl crawl --proxy 127.0.0.1:9050 https://www.example.com/

  # Crawl several sites, two at a time
  sitecrawl crawl --batch 2 example.com example.org example.net

  # Only follow links into /docs and skip PDFs
  sitecrawl crawl --follow "/docs/**" --ignore "*.pdf" https://www.example.com/docs/`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("budget", "n", config.DefaultBudget,
		"Maximum number of pages to fetch per seed (0 = unbounded)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each page fetch")
	cmd.Flags().Duration("max-duration", 0,
		"Stop each crawl after this long and keep the partial result (0 = no limit)")
	cmd.Flags().StringP("scope", "s", string(model.ScopeCurrentPage),
		"Host links are compared against: page (current page) or seed (seed URL)")
	cmd.Flags().StringSlice("ignore", nil,
		"URL path glob to skip (repeatable)")
	cmd.Flags().StringSlice("follow", nil,
		"URL path glob to restrict the crawl to (repeatable)")
	cmd.Flags().Int("keywords", config.DefaultKeywordLimit,
		"Number of keywords recorded per page (0 = none)")

	// Fetcher flags
	cmd.Flags().String("fetcher", string(config.FetcherHTTP),
		"Page fetcher: http or browser (headless Chrome)")
	cmd.Flags().String("chrome-path", "",
		"Chrome executable for the browser fetcher")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().StringP("proxy", "x", "",
		"Send every request through the SOCKS5 proxy at host:port (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and crawl through it (required for .onion sites)")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Batch crawling flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of seeds crawled concurrently")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitecrawl in current or home directory)")

	// Report flags
	cmd.Flags().StringP("format", "f", string(config.ReportText),
		"Report format: text, json, markdown or csv")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("progress", false,
		"Print each visited page to stderr")

	// Database flags
	cmd.Flags().Bool("no-save", false,
		"Do not store this run in the database")
	cmd.Flags().String("db-dir", "",
		"Database directory (default: XDG data directory)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := setupLogger(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	progress, err := cmd.Flags().GetBool("progress")
	if err != nil {
		return err
	}

	// Cancel on interrupt. Pages fetched so far are still reported and saved.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, logger, crawlOutput{
		stdout:   cmd.OutOrStdout(),
		stderr:   cmd.ErrOrStderr(),
		progress: progress,
	})
}

// buildConfig creates a Config from defaults, the environment, cobra flags
// and the configuration file, in that order of precedence (later wins).
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Seeds = args
	cfg.Verbose = getVerboseFlag(cmd)

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	var err error

	// Only flags given on the command line override the environment.
	if flags.Changed("budget") {
		if cfg.Budget, err = flags.GetInt("budget"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}

	if cfg.MaxDuration, err = flags.GetDuration("max-duration"); err != nil {
		return nil, err
	}
	scope, err := flags.GetString("scope")
	if err != nil {
		return nil, err
	}
	cfg.Scope = model.Scope(scope)
	if cfg.IgnorePatterns, err = flags.GetStringSlice("ignore"); err != nil {
		return nil, err
	}
	if cfg.FollowPatterns, err = flags.GetStringSlice("follow"); err != nil {
		return nil, err
	}
	if cfg.KeywordLimit, err = flags.GetInt("keywords"); err != nil {
		return nil, err
	}

	fetcherMode, err := flags.GetString("fetcher")
	if err != nil {
		return nil, err
	}
	cfg.Fetcher = config.FetcherMode(fetcherMode)
	if cfg.ChromePath, err = flags.GetString("chrome-path"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}

	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}

	format, err := flags.GetString("format")
	if err != nil {
		return nil, err
	}
	cfg.ReportFormat = config.ReportFormat(format)
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.SiteConfigs, err = loadSiteConfigs(cfg.ConfigFilePath); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadSiteConfigs loads the configuration file. An explicit path must
// exist; without one, a missing file yields an empty configuration.
func loadSiteConfigs(explicitPath string) (*config.File, error) {
	path := config.FindConfigFile(explicitPath)
	if path == "" {
		if explicitPath != "" {
			return nil, fmt.Errorf("configuration file not found: %s", explicitPath)
		}
		return config.NewFile(), nil
	}

	cf, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return cf, nil
}

// crawlOutput holds the terminal streams of a crawl.
type crawlOutput struct {
	stdout   io.Writer
	stderr   io.Writer
	progress bool
}

// runCrawl crawls every seed of cfg and writes the reports.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out crawlOutput) error {
	logger.Info("starting crawl",
		"seeds", cfg.Seeds,
		"budget", cfg.Budget,
		"fetcher", cfg.Fetcher,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	if cfg.UseTor {
		daemon, err := startTor(ctx, cfg, logger, out.stderr)
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("stopping embedded Tor daemon")
			if err := daemon.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
	}

	if cfg.Proxy != "" {
		if err := fetcher.CheckProxy(ctx, cfg.Proxy); err != nil {
			return fmt.Errorf("proxy check failed (make sure the proxy is running at %s): %w", cfg.Proxy, err)
		}
		logger.Info("proxy connection verified", "address", cfg.Proxy)
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	output := out.stdout
	if cfg.ReportFile != "" {
		f, err := createReportFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	}

	writer, err := report.New(string(cfg.ReportFormat), output, cfg.Verbose)
	if err != nil {
		return err
	}

	sc := pipeline.SitePipelineConfig{
		Config: cfg,
		Store:  db,
		Report: pipeline.NewReportStep(writer),
		Logger: logger,
	}
	if out.progress {
		sc.Progress = progressPrinter(out.stderr)
	}

	bp := pipeline.NewBatchProcessor(
		func(seed string) (*pipeline.Pipeline, error) {
			return pipeline.NewSitePipeline(sc, seed)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	startTime := time.Now()
	var (
		mu     sync.Mutex
		failed int
	)
	err = bp.ProcessBatchWithCallback(ctx, cfg.Seeds, func(job *pipeline.Job, index int) {
		mu.Lock()
		defer mu.Unlock()

		status := "done"
		if job.Err != nil {
			failed++
			status = "error: " + job.Err.Error()
		}
		fmt.Fprintf(out.stderr, "[%d/%d] %s: %s\n", index+1, len(cfg.Seeds), job.Seed, status)
		if job.Report != nil {
			s := job.Report.Summary()
			fmt.Fprintf(out.stderr, "  %d visited, %d queued, %d failed (%s)\n",
				s.Visited, s.Queued, s.Failed, job.Report.Stopped)
		}
		if job.Diff != nil {
			d := job.Diff
			fmt.Fprintf(out.stderr, "  since run %s: %d added, %d removed, %d status changed, %d content changed\n",
				shortID(d.OldID), len(d.Added), len(d.Removed), len(d.StatusChanged), len(d.ContentChanged))
		}
		if job.RunID != "" {
			fmt.Fprintf(out.stderr, "  saved as run %s\n", job.RunID)
		}
	})
	fmt.Fprintf(out.stderr, "Crawl completed in %s\n", time.Since(startTime).Round(time.Millisecond))

	if cfg.ReportFile != "" {
		fmt.Fprintf(out.stderr, "Report written to %s\n", cfg.ReportFile)
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d seeds", errCrawlsFailed, failed, len(cfg.Seeds))
	}
	return nil
}

// startTor starts the embedded Tor daemon and points cfg.Proxy at it.
func startTor(ctx context.Context, cfg *config.Config, logger *slog.Logger, w io.Writer) (*tor.Daemon, error) {
	fmt.Fprintln(w, "Starting embedded Tor daemon...")
	fmt.Fprintf(w, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	daemon := tor.NewDaemon(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := daemon.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	addr, err := daemon.SocksAddr()
	if err != nil {
		_ = daemon.Stop() //nolint:errcheck // Best effort cleanup
		return nil, err
	}
	cfg.Proxy = addr

	logger.Info("embedded Tor daemon started",
		"socksAddr", addr,
		"controlAddr", daemon.ControlAddr(),
	)
	fmt.Fprintf(w, "Embedded Tor daemon started, SOCKS proxy: %s\n\n", addr)
	return daemon, nil
}

// createReportFile creates or truncates path, creating parent directories.
// Reports may contain session URLs, so the file is readable by the owner only.
func createReportFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// progressPrinter returns a progress callback that prints one line per
// visited page. It is safe for concurrent use by several crawls.
func progressPrinter(w io.Writer) func(model.PageRecord) {
	var mu sync.Mutex
	return func(p model.PageRecord) {
		mu.Lock()
		defer mu.Unlock()

		switch {
		case p.Failed():
			fmt.Fprintf(w, "  failed %s: %s\n", p.URL, p.FetchError)
		case p.StatusCode != nil:
			fmt.Fprintf(w, "  %d %s\n", *p.StatusCode, p.URL)
		default:
			fmt.Fprintf(w, "  - %s\n", p.URL)
		}
	}
}
