// Package crawler walks every same-origin page reachable from a seed URL.
//
// # Architecture
//
// The Spider drives a single crawl run against an injected ledger. The
// ledger is both the seen-set and the frontier: the next page to fetch is
// always the first unvisited entry in insertion order. Each page is fetched
// through a Fetcher, read by the extractor, stamped into the ledger, and its
// links are passed through the Normalizer. Accepted links become new
// unvisited entries.
//
// # Components
//
//   - Spider: the worklist loop with budget, timeout, and cancellation handling
//   - Normalizer: turns a raw href into an absolute canonical URL or a skip decision
//   - PatternFilter: glob based ignore/follow rules from site configuration
//   - Fetcher: the page loading collaborator (see package fetcher)
//
// # Budget
//
// The budget caps the number of fetches. It is checked before each dequeue,
// so a run with budget N performs at most N fetches. A budget of 0 or less
// is unbounded.
//
// # Usage
//
//	spider := crawler.NewSpider(fetcher.NewHTTP(), crawler.WithBudget(50))
//	report, err := spider.Crawl(ctx, "https://example.com/", ledger.New())
package crawler
