// Package config holds the runtime configuration of sitecrawl: crawl
// limits, fetcher selection, report output, persistence, and per-site
// settings loaded from the .sitecrawl YAML file.
//
// Values are layered in this order, later layers winning:
//  1. NewConfig defaults
//  2. SITECRAWL_* environment variables (ApplyEnv)
//  3. command line flags
//
// Site configuration from the YAML file is applied per seed host when a
// crawl starts (see File.GetSiteConfig).
package config
