package model

import (
	"time"
)

// Scope selects which host a discovered link is compared against.
type Scope string

const (
	// ScopeCurrentPage accepts links whose host equals the host of the page
	// they were found on. The requested URL decides the host, so a redirect
	// or <base> pointing elsewhere does not move the crawl off-site.
	ScopeCurrentPage Scope = "page"

	// ScopeSeedHost accepts only links whose host equals the seed's host.
	ScopeSeedHost Scope = "seed"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeCurrentPage || s == ScopeSeedHost
}

// CrawlReport is the readout of one crawl run.
// Pages holds the ledger contents in ledger order.
type CrawlReport struct {
	// ID identifies the run in the database. Empty until saved.
	ID string `json:"id,omitempty"`

	// Seed is the normalized seed URL.
	Seed string `json:"seed"`

	// Budget is the maximum number of pages fetched. 0 means unbounded.
	Budget int `json:"budget"`

	// Scope is the same-origin mode used for the run.
	Scope Scope `json:"scope"`

	// StartedAt and FinishedAt bracket the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Pages is every ledger entry, visited or not.
	Pages []PageRecord `json:"pages"`

	// Stopped explains why the run ended (frontier exhausted, budget reached, cancelled, error).
	Stopped StopReason `json:"stopped"`

	// Error is set when the run aborted.
	Error string `json:"error,omitempty"`
}

// StopReason is the terminal condition of a crawl.
type StopReason string

const (
	StopFrontierExhausted StopReason = "frontier exhausted"
	StopBudgetReached     StopReason = "budget reached"
	StopCancelled         StopReason = "cancelled"
	StopAborted           StopReason = "aborted"
)

// NewCrawlReport creates an empty report for seed.
func NewCrawlReport(seed string, budget int, scope Scope) *CrawlReport {
	return &CrawlReport{
		Seed:      seed,
		Budget:    budget,
		Scope:     scope,
		StartedAt: time.Now(),
		Pages:     make([]PageRecord, 0),
	}
}

// Summary holds counters derived from a report's pages.
type Summary struct {
	Total      int `json:"total"`
	Visited    int `json:"visited"`
	Queued     int `json:"queued"`
	Failed     int `json:"failed"`
	NonSuccess int `json:"non_success"`
}

// Summary counts the report's pages by state.
func (r *CrawlReport) Summary() Summary {
	var s Summary
	s.Total = len(r.Pages)
	for _, p := range r.Pages {
		switch {
		case !p.Visited:
			s.Queued++
		case p.Failed():
			s.Visited++
			s.Failed++
		default:
			s.Visited++
			if !p.Success() {
				s.NonSuccess++
			}
		}
	}
	return s
}

// Duration returns how long the run took.
func (r *CrawlReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Page returns the record for url and whether it exists.
func (r *CrawlReport) Page(url string) (PageRecord, bool) {
	for _, p := range r.Pages {
		if p.URL == url {
			return p, true
		}
	}
	return PageRecord{}, false
}
