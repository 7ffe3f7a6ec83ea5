package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/sitecrawl/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitecrawl"

	// DefaultTimeout bounds the navigation of a single page.
	DefaultTimeout = 10 * time.Second

	// DefaultBudget of 0 crawls until the frontier is empty.
	DefaultBudget = 0

	// DefaultBatchSize is the number of seeds crawled concurrently.
	DefaultBatchSize = 4

	// DefaultUserAgent identifies sitecrawl in HTTP requests.
	DefaultUserAgent = "sitecrawl/1.0 (+https://github.com/nao1215/sitecrawl)"

	// DefaultMaxBodySize limits the response body read per page.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultKeywordLimit is the number of keywords kept per page.
	DefaultKeywordLimit = 20

	// DefaultTorStartupTimeout bounds the embedded Tor bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// FetcherMode selects how pages are loaded.
type FetcherMode string

const (
	// FetcherHTTP loads pages with a plain GET request.
	FetcherHTTP FetcherMode = "http"
	// FetcherBrowser loads pages in headless Chrome.
	FetcherBrowser FetcherMode = "browser"
)

// ReportFormat selects the report writer.
type ReportFormat string

const (
	ReportText     ReportFormat = "text"
	ReportJSON     ReportFormat = "json"
	ReportMarkdown ReportFormat = "markdown"
	ReportCSV      ReportFormat = "csv"
)

// Config holds all configuration options for a sitecrawl run.
// It is built from defaults, environment, and flags, then passed down
// explicitly; nothing reads it from global state.
type Config struct {
	// Seeds are the URLs each crawl starts from.
	Seeds []string

	// Budget is the maximum number of pages fetched per seed.
	// 0 or negative means unbounded.
	Budget int

	// Timeout bounds each page fetch.
	Timeout time.Duration

	// MaxDuration bounds a whole crawl run. 0 means no limit.
	MaxDuration time.Duration

	// Scope selects the host links are compared against.
	Scope model.Scope

	// Fetcher selects plain HTTP or headless Chrome.
	Fetcher FetcherMode

	// ChromePath overrides the Chrome executable for the browser fetcher.
	ChromePath string

	// Proxy is a SOCKS5 proxy address ("host:port") all requests go through.
	// Empty connects directly.
	Proxy string

	// UseTor starts an embedded Tor daemon and uses it as the proxy.
	UseTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// MaxBodySize limits how many bytes of a response are read.
	// 0 uses DefaultMaxBodySize.
	MaxBodySize int64

	// KeywordLimit caps the keyword table per page. 0 disables it.
	KeywordLimit int

	// IgnorePatterns and FollowPatterns filter URL paths for every seed.
	// Site configuration adds to these.
	IgnorePatterns []string
	FollowPatterns []string

	// Verbose enables debug logging.
	Verbose bool

	// BatchSize is the number of seeds crawled concurrently.
	BatchSize int

	// ReportFormat selects the output format.
	ReportFormat ReportFormat

	// ReportFile is the output path. Empty writes to stdout.
	ReportFile string

	// ConfigFilePath is an explicit configuration file path.
	// Empty searches for .sitecrawl in the current and home directories.
	ConfigFilePath string

	// SiteConfigs holds the loaded configuration file.
	SiteConfigs *File

	// DBDir is the directory of the SQLite database.
	DBDir string

	// SaveToDB stores every run in the database.
	SaveToDB bool
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Budget:       DefaultBudget,
		Timeout:      DefaultTimeout,
		Scope:        model.ScopeCurrentPage,
		Fetcher:      FetcherHTTP,
		UserAgent:    DefaultUserAgent,
		MaxBodySize:  DefaultMaxBodySize,
		KeywordLimit: DefaultKeywordLimit,
		BatchSize:    DefaultBatchSize,
		ReportFormat: ReportText,
		SiteConfigs:  NewFile(),

		TorStartupTimeout: DefaultTorStartupTimeout,
	}
}

// XDGDataDir returns the XDG data directory for sitecrawl.
// On Linux: ~/.local/share/sitecrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitecrawl.
// On Linux: ~/.config/sitecrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeed
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxDuration < 0 {
		return ErrInvalidMaxDuration
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if !c.Scope.Valid() {
		return ErrInvalidScope
	}
	switch c.Fetcher {
	case FetcherHTTP, FetcherBrowser:
	default:
		return ErrInvalidFetcher
	}
	switch c.ReportFormat {
	case ReportText, ReportJSON, ReportMarkdown, ReportCSV:
	default:
		return ErrInvalidReportFormat
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.KeywordLimit < 0 {
		return ErrInvalidKeywordLimit
	}
	if c.UseTor && c.Proxy != "" {
		return ErrProxyConflict
	}
	return nil
}

// ForSite returns the crawl settings for one seed host: the global values
// with the matching site configuration applied on top.
func (c *Config) ForSite(host string) SiteSettings {
	s := SiteSettings{
		Budget:         c.Budget,
		Scope:          c.Scope,
		IgnorePatterns: append([]string(nil), c.IgnorePatterns...),
		FollowPatterns: append([]string(nil), c.FollowPatterns...),
	}
	if c.SiteConfigs == nil {
		return s
	}

	site := c.SiteConfigs.GetSiteConfig(host)
	s.Cookie = site.Cookie
	s.Headers = site.Headers
	if site.Budget != 0 {
		s.Budget = site.Budget
	}
	if site.Scope != "" {
		s.Scope = site.Scope
	}
	s.IgnorePatterns = append(s.IgnorePatterns, site.IgnorePatterns...)
	s.FollowPatterns = append(s.FollowPatterns, site.FollowPatterns...)
	return s
}

// SiteSettings are the effective crawl settings for one seed.
type SiteSettings struct {
	Budget         int
	Scope          model.Scope
	Cookie         string
	Headers        map[string]string
	IgnorePatterns []string
	FollowPatterns []string
}
