// Package ledger records every URL discovered during a crawl run.
//
// The ledger maps a canonical URL string to its page record. It is both the
// seen-set used for deduplication and the source of the frontier: the
// unvisited subset drives further work. Entries are never removed, so the
// ledger bounds total work but not memory.
package ledger

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/nao1215/sitecrawl/internal/model"
)

var (
	// ErrUnknownURL is returned by MarkVisited when the URL was never inserted.
	ErrUnknownURL = errors.New("url not in ledger")

	// ErrAlreadyVisited is returned by MarkVisited when the record was
	// already marked visited. A single-pass traversal never does this.
	ErrAlreadyVisited = errors.New("url already visited")
)

// Ledger is the visitation ledger of one crawl run.
// Insert-if-absent and mark-visited are atomic, so the at-most-once visit
// invariant holds even when several goroutines share a ledger.
type Ledger struct {
	mu sync.Mutex

	// records holds every entry keyed by canonical URL.
	records map[string]*model.PageRecord

	// order is the insertion order of keys.
	order []string

	// cursor is the index in order before which every entry is visited.
	cursor int

	visited int

	// now is swapped in tests.
	now func() time.Time
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		records: make(map[string]*model.PageRecord),
		order:   make([]string, 0),
		now:     time.Now,
	}
}

// Contains reports whether key is already in the ledger.
func (l *Ledger) Contains(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.records[key]
	return ok
}

// InsertUnvisited adds u as an unvisited record.
// It is a no-op returning false if the URL is already present: the first
// discovery wins and keeps its FoundOn.
func (l *Ledger) InsertUnvisited(u *url.URL, foundOn string) bool {
	rec := model.NewPageRecord(u, foundOn)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[rec.URL]; ok {
		return false
	}
	l.records[rec.URL] = &rec
	l.order = append(l.order, rec.URL)
	return true
}

// MarkVisited transitions the record for key to visited and stamps the
// post-fetch fields. It fails if the key is absent or already visited.
func (l *Ledger) MarkVisited(key string, fields model.FetchedFields) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownURL, key)
	}
	if rec.Visited {
		return fmt.Errorf("%w: %s", ErrAlreadyVisited, key)
	}

	rec.Visited = true
	rec.StatusCode = fields.StatusCode
	rec.Title = fields.Title
	rec.Description = fields.Description
	rec.Heading = fields.Heading
	rec.Images = fields.Images
	rec.Keywords = fields.Keywords
	rec.ContentHash = fields.ContentHash
	rec.FetchError = fields.FetchError
	rec.FetchedAt = l.now()
	l.visited++

	return nil
}

// Get returns a copy of the record for key.
func (l *Ledger) Get(key string) (model.PageRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		return model.PageRecord{}, false
	}
	return rec.Clone(), true
}

// NextUnvisited returns the first unvisited record in ledger order.
// The crawl engine uses it as the head of its worklist.
func (l *Ledger) NextUnvisited() (model.PageRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for l.cursor < len(l.order) {
		rec := l.records[l.order[l.cursor]]
		if !rec.Visited {
			return rec.Clone(), true
		}
		l.cursor++
	}
	return model.PageRecord{}, false
}

// UnvisitedSnapshot returns the records with Visited == false, in ledger
// order at the time of the call. Treat the result as a set.
func (l *Ledger) UnvisitedSnapshot() []model.PageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.PageRecord, 0)
	for _, key := range l.order[l.cursor:] {
		if rec := l.records[key]; !rec.Visited {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// All returns every record in insertion order.
func (l *Ledger) All() []model.PageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.PageRecord, 0, len(l.order))
	for _, key := range l.order {
		out = append(out, l.records[key].Clone())
	}
	return out
}

// VisitedCount returns the number of visited records.
func (l *Ledger) VisitedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visited
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}
