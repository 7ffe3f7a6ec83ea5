package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoSeed is returned when no seed URL was given on the command line
	// or through SITECRAWL_BASE_URL.
	ErrNoSeed = errors.New("no seed specified: provide a URL argument or set SITECRAWL_BASE_URL")

	// ErrInvalidTimeout is returned when the per-page timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxDuration is returned when the run time limit is negative.
	ErrInvalidMaxDuration = errors.New("invalid max duration: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidScope is returned for an unknown same-origin scope.
	ErrInvalidScope = errors.New("invalid scope: must be \"page\" or \"seed\"")

	// ErrInvalidFetcher is returned for an unknown fetcher mode.
	ErrInvalidFetcher = errors.New("invalid fetcher: must be \"http\" or \"browser\"")

	// ErrInvalidReportFormat is returned for an unknown report format.
	ErrInvalidReportFormat = errors.New("invalid report format: must be one of text, json, markdown, csv")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidKeywordLimit is returned when the keyword limit is negative.
	ErrInvalidKeywordLimit = errors.New("invalid keyword limit: must be non-negative")

	// ErrProxyConflict is returned when both an external proxy and the
	// embedded Tor daemon are requested.
	ErrProxyConflict = errors.New("--proxy and --tor are mutually exclusive")

	// ErrInvalidEnv is returned by ApplyEnv when a variable cannot be parsed.
	ErrInvalidEnv = errors.New("invalid environment variable")
)
