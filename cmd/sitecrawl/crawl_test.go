package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/database"
	"github.com/nao1215/sitecrawl/internal/fetcher"
	"github.com/nao1215/sitecrawl/internal/model"
)

// clearEnv unsets every SITECRAWL_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{config.EnvBaseURL, config.EnvBudget, config.EnvTimeout} {
		t.Setenv(key, "")
	}
}

// emptyConfigFile writes an empty configuration file and returns its path.
func emptyConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".sitecrawl")
	if err := os.WriteFile(path, []byte("sites: {}\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// parseCrawlCmd parses args with the crawl command's flags and builds the config.
func parseCrawlCmd(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	cmd := NewCrawlCmd()
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return buildConfig(cmd, cmd.Flags().Args())
}

func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()
	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"budget", "n", "0"},
		{"timeout", "t", "10s"},
		{"max-duration", "", "0s"},
		{"scope", "s", "page"},
		{"fetcher", "", "http"},
		{"proxy", "x", ""},
		{"tor", "", "false"},
		{"tor-timeout", "", "3m0s"},
		{"batch", "b", "4"},
		{"config", "c", ""},
		{"format", "f", "text"},
		{"output", "o", ""},
		{"no-save", "", "false"},
		{"db-dir", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	clearEnv(t)
	cfgPath := emptyConfigFile(t)

	t.Run("defaults", func(t *testing.T) {
		cfg, err := parseCrawlCmd(t, "--config", cfgPath, "example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Seeds) != 1 || cfg.Seeds[0] != "example.com" {
			t.Errorf("unexpected seeds %v", cfg.Seeds)
		}
		if cfg.Budget != config.DefaultBudget {
			t.Errorf("expected budget %d, got %d", config.DefaultBudget, cfg.Budget)
		}
		if cfg.Timeout != config.DefaultTimeout {
			t.Errorf("expected timeout %v, got %v", config.DefaultTimeout, cfg.Timeout)
		}
		if cfg.Scope != model.ScopeCurrentPage {
			t.Errorf("expected scope page, got %q", cfg.Scope)
		}
		if !cfg.SaveToDB {
			t.Error("expected runs to be saved by default")
		}
		if cfg.DBDir != config.XDGDataDir() {
			t.Errorf("expected XDG data dir, got %q", cfg.DBDir)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})

	t.Run("flags", func(t *testing.T) {
		dbDir := t.TempDir()
		cfg, err := parseCrawlCmd(t,
			"--config", cfgPath,
			"--budget", "7",
			"--timeout", "3s",
			"--max-duration", "1m",
			"--scope", "seed",
			"--fetcher", "browser",
			"--ignore", "/admin/**", "--ignore", "*.pdf",
			"--follow", "/docs/**",
			"--keywords", "5",
			"--batch", "2",
			"--format", "csv",
			"--output", "out.csv",
			"--no-save",
			"--db-dir", dbDir,
			"a.example", "b.example",
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Budget != 7 || cfg.Timeout != 3*time.Second || cfg.MaxDuration != time.Minute {
			t.Errorf("unexpected limits: budget=%d timeout=%v max=%v", cfg.Budget, cfg.Timeout, cfg.MaxDuration)
		}
		if cfg.Scope != model.ScopeSeedHost {
			t.Errorf("expected scope seed, got %q", cfg.Scope)
		}
		if cfg.Fetcher != config.FetcherBrowser {
			t.Errorf("expected browser fetcher, got %q", cfg.Fetcher)
		}
		if len(cfg.IgnorePatterns) != 2 || len(cfg.FollowPatterns) != 1 {
			t.Errorf("unexpected patterns: ignore=%v follow=%v", cfg.IgnorePatterns, cfg.FollowPatterns)
		}
		if cfg.KeywordLimit != 5 || cfg.BatchSize != 2 {
			t.Errorf("unexpected keyword limit %d or batch size %d", cfg.KeywordLimit, cfg.BatchSize)
		}
		if cfg.ReportFormat != config.ReportCSV || cfg.ReportFile != "out.csv" {
			t.Errorf("unexpected report settings %q %q", cfg.ReportFormat, cfg.ReportFile)
		}
		if cfg.SaveToDB {
			t.Error("expected --no-save to disable saving")
		}
		if cfg.DBDir != dbDir {
			t.Errorf("expected db dir %q, got %q", dbDir, cfg.DBDir)
		}
		if len(cfg.Seeds) != 2 {
			t.Errorf("expected 2 seeds, got %v", cfg.Seeds)
		}
	})

	t.Run("invalid scope fails validation", func(t *testing.T) {
		cfg, err := parseCrawlCmd(t, "--config", cfgPath, "--scope", "domain", "example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := cfg.Validate(); !errors.Is(err, config.ErrInvalidScope) {
			t.Errorf("expected ErrInvalidScope, got %v", err)
		}
	})

	t.Run("explicit config file not found", func(t *testing.T) {
		_, err := parseCrawlCmd(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "example.com")
		if err == nil {
			t.Fatal("expected error for missing config file")
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected 'not found' error, got %v", err)
		}
	})

	t.Run("site config is loaded", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "site.yaml")
		content := "sites:\n  example.com:\n    budget: 3\n    cookie: \"sid=1\"\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		cfg, err := parseCrawlCmd(t, "--config", path, "example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		site := cfg.ForSite("example.com")
		if site.Budget != 3 || site.Cookie != "sid=1" {
			t.Errorf("unexpected site settings %+v", site)
		}
	})
}

func TestBuildConfigEnv(t *testing.T) {
	cfgPath := emptyConfigFile(t)

	t.Run("environment fills seed, budget and timeout", func(t *testing.T) {
		t.Setenv(config.EnvBaseURL, "https://env.example/")
		t.Setenv(config.EnvBudget, "5")
		t.Setenv(config.EnvTimeout, "20")

		cfg, err := parseCrawlCmd(t, "--config", cfgPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Seeds) != 1 || cfg.Seeds[0] != "https://env.example/" {
			t.Errorf("expected env seed, got %v", cfg.Seeds)
		}
		if cfg.Budget != 5 {
			t.Errorf("expected budget 5, got %d", cfg.Budget)
		}
		if cfg.Timeout != 20*time.Second {
			t.Errorf("expected timeout 20s, got %v", cfg.Timeout)
		}
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv(config.EnvBaseURL, "https://env.example/")
		t.Setenv(config.EnvBudget, "5")
		t.Setenv(config.EnvTimeout, "")

		cfg, err := parseCrawlCmd(t, "--config", cfgPath, "--budget", "9", "https://arg.example/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Seeds) != 1 || cfg.Seeds[0] != "https://arg.example/" {
			t.Errorf("expected argument seed, got %v", cfg.Seeds)
		}
		if cfg.Budget != 9 {
			t.Errorf("expected budget 9, got %d", cfg.Budget)
		}
	})

	t.Run("invalid environment value", func(t *testing.T) {
		t.Setenv(config.EnvBaseURL, "")
		t.Setenv(config.EnvBudget, "many")
		t.Setenv(config.EnvTimeout, "")

		_, err := parseCrawlCmd(t, "--config", cfgPath, "example.com")
		if !errors.Is(err, config.ErrInvalidEnv) {
			t.Errorf("expected ErrInvalidEnv, got %v", err)
		}
	})
}

// newTestSite serves a three page site: the home page links to /about and
// to a missing page.
func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Home</title>
<meta name="description" content="Home page"></head>
<body><h1>Welcome</h1>
<a href="/about">About</a> <a href="/missing">Missing</a>
<a href="https://other.example/">Elsewhere</a></body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>About</title></head>
<body><h1>About us</h1><img src="/team.png" alt="Team"><a href="/">Home</a></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// executeRoot runs the root command with args and returns stdout and stderr.
func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestCrawlCommand(t *testing.T) {
	clearEnv(t)
	srv := newTestSite(t)
	cfgPath := emptyConfigFile(t)

	t.Run("crawls the site and saves the run", func(t *testing.T) {
		dbDir := t.TempDir()
		stdout, stderr, err := executeRoot(t, "crawl",
			"--config", cfgPath, "--db-dir", dbDir, "--format", "csv", srv.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v (stderr: %s)", err, stderr)
		}

		if !strings.HasPrefix(stdout, "url,description,title,heading\n") {
			t.Errorf("expected CSV header, got %q", stdout)
		}
		for _, want := range []string{",Home page,Home,Welcome", "/about,,About,About us", "/missing,,"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("expected CSV to contain %q, got:\n%s", want, stdout)
			}
		}
		if strings.Contains(stdout, "other.example") {
			t.Error("expected other host to be skipped")
		}
		if !strings.Contains(stderr, "3 visited") {
			t.Errorf("expected summary on stderr, got %q", stderr)
		}

		db, err := database.Open(dbDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), "")
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("expected 1 stored run, got %d", len(runs))
		}
		if runs[0].Visited != 3 || runs[0].Stopped != model.StopFrontierExhausted {
			t.Errorf("unexpected run metadata %+v", runs[0])
		}
	})

	t.Run("second run is compared with the first", func(t *testing.T) {
		dbDir := t.TempDir()
		if _, stderr, err := executeRoot(t, "crawl", "--config", cfgPath, "--db-dir", dbDir, srv.URL); err != nil {
			t.Fatalf("first crawl failed: %v (stderr: %s)", err, stderr)
		}
		stdout, stderr, err := executeRoot(t, "crawl", "--config", cfgPath, "--db-dir", dbDir, srv.URL)
		if err != nil {
			t.Fatalf("second crawl failed: %v (stderr: %s)", err, stderr)
		}
		if !strings.Contains(stdout, "No changes detected.") {
			t.Errorf("expected empty run comparison, got:\n%s", stdout)
		}
	})

	t.Run("second csv run keeps a single table", func(t *testing.T) {
		dbDir := t.TempDir()
		first, stderr, err := executeRoot(t, "crawl", "--config", cfgPath, "--db-dir", dbDir, "-f", "csv", srv.URL)
		if err != nil {
			t.Fatalf("first crawl failed: %v (stderr: %s)", err, stderr)
		}
		second, stderr, err := executeRoot(t, "crawl", "--config", cfgPath, "--db-dir", dbDir, "-f", "csv", srv.URL)
		if err != nil {
			t.Fatalf("second crawl failed: %v (stderr: %s)", err, stderr)
		}

		if second != first {
			t.Errorf("expected the same export on both runs, got:\n%s\nthen:\n%s", first, second)
		}
		rows, err := csv.NewReader(strings.NewReader(second)).ReadAll()
		if err != nil {
			t.Fatalf("export is not valid CSV: %v", err)
		}
		if len(rows) != 4 {
			t.Fatalf("expected header and 3 rows, got %v", rows)
		}
		for _, row := range rows[1:] {
			if !strings.HasPrefix(row[0], srv.URL) {
				t.Errorf("unexpected row %v", row)
			}
		}
		if !strings.Contains(stderr, "0 added, 0 removed") {
			t.Errorf("expected the comparison summary on stderr, got %q", stderr)
		}
	})

	t.Run("budget and report file", func(t *testing.T) {
		dbDir := t.TempDir()
		out := filepath.Join(t.TempDir(), "reports", "site.json")
		stdout, stderr, err := executeRoot(t, "crawl",
			"--config", cfgPath, "--db-dir", dbDir, "--no-save",
			"--budget", "1", "--format", "json", "-o", out, srv.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v (stderr: %s)", err, stderr)
		}
		if stdout != "" {
			t.Errorf("expected nothing on stdout, got %q", stdout)
		}

		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(data), `"stopped": "budget reached"`) {
			t.Errorf("expected budget stop in JSON report, got:\n%s", data)
		}

		db, err := database.Open(dbDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		runs, err := db.ListRuns(context.Background(), "")
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 0 {
			t.Errorf("expected --no-save to store nothing, got %d runs", len(runs))
		}
	})

	t.Run("invalid seed fails the command", func(t *testing.T) {
		_, _, err := executeRoot(t, "crawl", "--config", cfgPath, "--db-dir", t.TempDir(), "ftp://example.com/")
		if !errors.Is(err, errCrawlsFailed) {
			t.Errorf("expected errCrawlsFailed, got %v", err)
		}
	})

	t.Run("unreachable proxy", func(t *testing.T) {
		_, _, err := executeRoot(t, "crawl", "--config", cfgPath, "--db-dir", t.TempDir(),
			"--proxy", "127.0.0.1:1", srv.URL)
		if !errors.Is(err, fetcher.ErrProxyUnreachable) {
			t.Errorf("expected ErrProxyUnreachable, got %v", err)
		}
	})

	t.Run("proxy and tor conflict", func(t *testing.T) {
		_, _, err := executeRoot(t, "crawl", "--config", cfgPath, "--db-dir", t.TempDir(),
			"--proxy", "127.0.0.1:9050", "--tor", srv.URL)
		if !errors.Is(err, config.ErrProxyConflict) {
			t.Errorf("expected ErrProxyConflict, got %v", err)
		}
	})

	t.Run("missing seed", func(t *testing.T) {
		_, _, err := executeRoot(t, "crawl", "--config", cfgPath, "--db-dir", t.TempDir())
		if !errors.Is(err, config.ErrNoSeed) {
			t.Errorf("expected ErrNoSeed, got %v", err)
		}
	})
}

func TestProgressPrinter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printPage := progressPrinter(&buf)
	printPage(model.PageRecord{URL: "https://ex.test/", Visited: true, StatusCode: model.IntPtr(200)})
	printPage(model.PageRecord{URL: "https://ex.test/down", Visited: true, FetchError: "connection refused"})

	out := buf.String()
	if !strings.Contains(out, "200 https://ex.test/") {
		t.Errorf("expected status line, got %q", out)
	}
	if !strings.Contains(out, "failed https://ex.test/down: connection refused") {
		t.Errorf("expected failure line, got %q", out)
	}
}
