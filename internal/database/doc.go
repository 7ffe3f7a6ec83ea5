// Package database provides SQLite-based storage for sitecrawl runs.
//
// This package implements the CrawlDB, which stores:
//   - One row per crawl run with its seed, budget, scope and outcome
//   - Every ledger entry of the run, in ledger order
//
// Stored runs back the history command and the comparison of a new run
// with the previous run of the same seed.
//
// The database is a single file opened through modernc.org/sqlite, a CGO-free
// driver, with WAL journaling enabled by default.
package database
