// Package model defines the data structures shared by the crawler, the
// database and the report writers.
//
// This package contains the following main types:
//   - PageRecord: one ledger entry, a URL and the data recorded when it was fetched
//   - CrawlReport: the result of one crawl run
//   - RunDiff: the changes between two runs of the same site
//
// The models live in their own package so that crawler, database and report
// can all use them without import cycles. They are serializable to JSON for
// report output.
package model
