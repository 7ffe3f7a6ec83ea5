package main

import (
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/crawler"
)

// initInto runs "sitecrawl init" and returns what it printed.
func initInto(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewInitCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitFlags(t *testing.T) {
	t.Parallel()

	cmd := NewInitCmd()
	tests := []struct {
		name      string
		shorthand string
		def       string
	}{
		{"output", "o", config.DefaultConfigFile},
		{"force", "f", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("missing --%s", tt.name)
			}
			if flag.Shorthand != tt.shorthand || flag.DefValue != tt.def {
				t.Errorf("--%s: expected -%s default %q, got -%s default %q",
					tt.name, tt.shorthand, tt.def, flag.Shorthand, flag.DefValue)
			}
		})
	}
}

// TestInitTemplate checks that the generated file drives a crawl the way its
// comments describe.
func TestInitTemplate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".sitecrawl")
	out, err := initInto(t, "-o", path)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(out, path) || !strings.Contains(out, "Page budget and link scope") {
		t.Errorf("unexpected init message:\n%s", out)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected mode 0600 for a file that may hold cookies, got %o", perm)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	for _, key := range []string{"budget:", "scope:", "cookie:", "ignorePatterns:", "followPatterns:"} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("template does not document %q", key)
		}
	}

	cf, err := config.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if len(cf.Sites) != 0 {
		t.Errorf("expected site examples to stay commented out, got %v", cf.Sites)
	}

	cfg := config.NewConfig()
	cfg.SiteConfigs = cf
	site := cfg.ForSite("docs.example.com")
	if site.Budget != cfg.Budget || site.Scope != cfg.Scope {
		t.Errorf("template must not change budget or scope, got %d %q", site.Budget, site.Scope)
	}

	filter, err := crawler.NewPatternFilter(site.IgnorePatterns, site.FollowPatterns)
	if err != nil {
		t.Fatalf("template patterns do not compile: %v", err)
	}
	paths := map[string]bool{
		"/":                   true,
		"/guide/intro":        true,
		"/logout":             false,
		"/logout/confirm":     true,
		"/files/manual.pdf":   false,
		"/files/manual.pdf/x": true,
	}
	for p, want := range paths {
		u := &url.URL{Scheme: "https", Host: "docs.example.com", Path: p}
		if got := filter.Allow(u); got != want {
			t.Errorf("Allow(%s): expected %v, got %v", p, want, got)
		}
	}
}

func TestInitExistingFile(t *testing.T) {
	t.Parallel()

	existing := "sites:\n  shop.example.com:\n    budget: 5\n"

	tests := []struct {
		name    string
		force   bool
		wantErr string
	}{
		{name: "kept without force", wantErr: "already exists"},
		{name: "replaced with force", force: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), ".sitecrawl")
			if err := os.WriteFile(path, []byte(existing), 0600); err != nil {
				t.Fatal(err)
			}
			args := []string{"-o", path}
			if tt.force {
				args = append(args, "-f")
			}

			_, err := initInto(t, args...)
			cf, loadErr := config.LoadConfigFile(path)
			if loadErr != nil {
				t.Fatalf("config does not load: %v", loadErr)
			}
			_, kept := cf.Sites["shop.example.com"]

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("expected %q error, got %v", tt.wantErr, err)
				}
				if !kept {
					t.Error("existing site settings were lost")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if kept {
				t.Error("expected the template to replace the existing file")
			}
		})
	}
}

func TestInitNestedPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".config", "sitecrawl", "config.yaml")
	if _, err := initInto(t, "--output", path); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if _, err := config.LoadConfigFile(path); err != nil {
		t.Errorf("expected loadable config at %s: %v", path, err)
	}
}
