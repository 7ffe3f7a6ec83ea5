// Package log builds the slog loggers used by sitecrawl.
//
// Every logger returned here wraps its output handler in a SecureHandler,
// which masks values that should never reach a terminal or a shared log
// file:
//   - attributes whose key names a credential (cookie, authorization, token)
//   - values that look like credentials (JWTs, bearer and basic auth headers)
//   - credential query parameters and userinfo passwords inside logged URLs
//
// Site configuration routinely carries session cookies and API tokens for
// the crawled site, and crawled URLs often contain signed query strings, so
// masking applies at every level including debug.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Warn("fetch failed", "url", "https://ex.test/?token=abc") // token=***REDACTED***
package log
