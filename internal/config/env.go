package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by ApplyEnv.
const (
	EnvBaseURL = "SITECRAWL_BASE_URL"
	EnvBudget  = "SITECRAWL_BUDGET"
	EnvTimeout = "SITECRAWL_TIMEOUT"
)

// ApplyEnv overrides c with SITECRAWL_* variables from the process
// environment. See ApplyEnvFunc.
func (c *Config) ApplyEnv() error {
	return c.ApplyEnvFunc(os.LookupEnv)
}

// ApplyEnvFunc overrides c with variables returned by lookup:
//   - SITECRAWL_BASE_URL adds a seed when none is set yet
//   - SITECRAWL_BUDGET sets the page budget (integer, 0 or negative is unbounded)
//   - SITECRAWL_TIMEOUT sets the per-page timeout ("15s", or a number of seconds)
//
// Empty values are ignored.
func (c *Config) ApplyEnvFunc(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBaseURL); ok && strings.TrimSpace(v) != "" && len(c.Seeds) == 0 {
		c.Seeds = []string{strings.TrimSpace(v)}
	}

	if v, ok := lookup(EnvBudget); ok && strings.TrimSpace(v) != "" {
		budget, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidEnv, EnvBudget, v, err)
		}
		c.Budget = budget
	}

	if v, ok := lookup(EnvTimeout); ok && strings.TrimSpace(v) != "" {
		timeout, err := parseTimeout(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidEnv, EnvTimeout, v, err)
		}
		c.Timeout = timeout
	}
	return nil
}

// parseTimeout accepts a Go duration or a bare number of seconds.
func parseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
