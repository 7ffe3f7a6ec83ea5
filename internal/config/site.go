package config

import (
	"fmt"
	"maps"
	"strings"

	"github.com/nao1215/sitecrawl/internal/model"
)

// SiteConfig holds crawl settings for one host.
type SiteConfig struct {
	// Cookie is sent as the Cookie header.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are added to every request to this host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Budget overrides the global page budget when non-zero.
	Budget int `yaml:"budget,omitempty"`

	// Scope overrides the global same-origin scope ("page" or "seed").
	Scope model.Scope `yaml:"scope,omitempty"`

	// IgnorePatterns are URL path globs to skip.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict the crawl to matching URL paths.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .sitecrawl configuration file.
type File struct {
	// Sites maps a hostname (e.g. "www.example.com") to its settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every host unless overridden in Sites.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// NewFile returns an empty configuration file.
func NewFile() *File {
	return &File{Sites: make(map[string]SiteConfig)}
}

// Validate checks scope values in the file.
func (cf *File) Validate() error {
	if cf.Defaults.Scope != "" && !cf.Defaults.Scope.Valid() {
		return fmt.Errorf("defaults: %w", ErrInvalidScope)
	}
	for host, site := range cf.Sites {
		if site.Scope != "" && !site.Scope.Valid() {
			return fmt.Errorf("sites.%s: %w", host, ErrInvalidScope)
		}
	}
	return nil
}

// GetSiteConfig returns the configuration for host merged over the defaults.
// Host matching is case-insensitive; a "www." prefix on either side is ignored
// when there is no exact match.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	site, ok := cf.lookup(host)
	if !ok {
		return result
	}

	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if site.Budget != 0 {
		result.Budget = site.Budget
	}
	if site.Scope != "" {
		result.Scope = site.Scope
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(site.Headers))
		}
		maps.Copy(result.Headers, site.Headers)
	}
	if len(site.IgnorePatterns) > 0 {
		result.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 {
		result.FollowPatterns = site.FollowPatterns
	}
	return result
}

func (cf *File) lookup(host string) (SiteConfig, bool) {
	host = strings.ToLower(host)
	bare := strings.TrimPrefix(host, "www.")
	var fallback *SiteConfig
	for key, site := range cf.Sites {
		k := strings.ToLower(key)
		if k == host {
			return site, true
		}
		if fallback == nil && strings.TrimPrefix(k, "www.") == bare {
			s := site
			fallback = &s
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return SiteConfig{}, false
}
