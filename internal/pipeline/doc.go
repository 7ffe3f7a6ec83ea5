// Package pipeline runs a crawl and its follow-up work as a sequence of steps.
//
// A seed is processed by a Pipeline: the crawl step fills the Job with a
// report, then the final steps compare it with the previous run, save it to
// the database and write it out. Final steps also run after a cancelled or
// failed crawl so partial results are still recorded.
//
// BatchProcessor runs one pipeline per seed concurrently with errgroup,
// each seed with its own ledger and site settings.
package pipeline
