package ledger

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/nao1215/sitecrawl/internal/model"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", raw, err)
	}
	return u
}

// TestInsertUnvisited tests insertion and deduplication.
func TestInsertUnvisited(t *testing.T) {
	t.Parallel()

	t.Run("first insert succeeds", func(t *testing.T) {
		t.Parallel()

		l := New()
		if !l.InsertUnvisited(mustParse(t, "https://ex.test/"), "") {
			t.Fatal("expected first insert to succeed")
		}
		if !l.Contains("https://ex.test/") {
			t.Error("expected ledger to contain seed")
		}
		if l.Len() != 1 {
			t.Errorf("expected 1 record, got %d", l.Len())
		}
	})

	t.Run("duplicate insert is a no-op and first discovery wins", func(t *testing.T) {
		t.Parallel()

		l := New()
		l.InsertUnvisited(mustParse(t, "https://ex.test/a"), "https://ex.test/")
		if l.InsertUnvisited(mustParse(t, "https://ex.test/a"), "https://ex.test/b") {
			t.Error("expected duplicate insert to return false")
		}
		if l.Len() != 1 {
			t.Errorf("expected 1 record, got %d", l.Len())
		}
		rec, _ := l.Get("https://ex.test/a")
		if rec.FoundOn != "https://ex.test/" {
			t.Errorf("expected FoundOn of first discovery, got %q", rec.FoundOn)
		}
	})
}

// TestMarkVisited tests the unvisited to visited transition.
func TestMarkVisited(t *testing.T) {
	t.Parallel()

	t.Run("stamps post-fetch fields", func(t *testing.T) {
		t.Parallel()

		l := New()
		l.InsertUnvisited(mustParse(t, "https://ex.test/"), "")

		err := l.MarkVisited("https://ex.test/", model.FetchedFields{
			StatusCode: model.IntPtr(200),
			Title:      model.StringPtr("Home"),
			Images:     []model.Image{{Src: "/logo.png", Alt: "logo"}},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rec, ok := l.Get("https://ex.test/")
		if !ok {
			t.Fatal("expected record")
		}
		if !rec.Visited {
			t.Error("expected record to be visited")
		}
		if rec.StatusCode == nil || *rec.StatusCode != 200 {
			t.Errorf("expected status 200, got %v", rec.StatusCode)
		}
		if model.StringValue(rec.Title) != "Home" {
			t.Errorf("expected title 'Home', got %q", model.StringValue(rec.Title))
		}
		if rec.FetchedAt.IsZero() {
			t.Error("expected FetchedAt to be set")
		}
		if l.VisitedCount() != 1 {
			t.Errorf("expected VisitedCount 1, got %d", l.VisitedCount())
		}
	})

	t.Run("unknown URL fails", func(t *testing.T) {
		t.Parallel()

		l := New()
		err := l.MarkVisited("https://ex.test/", model.FetchedFields{})
		if !errors.Is(err, ErrUnknownURL) {
			t.Errorf("expected ErrUnknownURL, got %v", err)
		}
	})

	t.Run("second mark fails and keeps the first fields", func(t *testing.T) {
		t.Parallel()

		l := New()
		l.InsertUnvisited(mustParse(t, "https://ex.test/"), "")
		if err := l.MarkVisited("https://ex.test/", model.FetchedFields{Title: model.StringPtr("first")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		err := l.MarkVisited("https://ex.test/", model.FetchedFields{Title: model.StringPtr("second")})
		if !errors.Is(err, ErrAlreadyVisited) {
			t.Errorf("expected ErrAlreadyVisited, got %v", err)
		}

		rec, _ := l.Get("https://ex.test/")
		if model.StringValue(rec.Title) != "first" {
			t.Errorf("post-fetch fields changed: %q", model.StringValue(rec.Title))
		}
		if l.VisitedCount() != 1 {
			t.Errorf("expected VisitedCount 1, got %d", l.VisitedCount())
		}
	})

	t.Run("returned records cannot mutate the ledger", func(t *testing.T) {
		t.Parallel()

		l := New()
		l.InsertUnvisited(mustParse(t, "https://ex.test/"), "")
		_ = l.MarkVisited("https://ex.test/", model.FetchedFields{Title: model.StringPtr("Home")})

		rec, _ := l.Get("https://ex.test/")
		*rec.Title = "hacked"

		again, _ := l.Get("https://ex.test/")
		if model.StringValue(again.Title) != "Home" {
			t.Errorf("ledger record was mutated through a copy: %q", model.StringValue(again.Title))
		}
	})
}

// TestFrontier tests NextUnvisited and UnvisitedSnapshot.
func TestFrontier(t *testing.T) {
	t.Parallel()

	l := New()
	for _, p := range []string{"/", "/a", "/b", "/c"} {
		l.InsertUnvisited(mustParse(t, "https://ex.test"+p), "")
	}

	next, ok := l.NextUnvisited()
	if !ok || next.URL != "https://ex.test/" {
		t.Fatalf("expected seed first, got %q (ok=%v)", next.URL, ok)
	}

	// Visiting out of order must not hide earlier unvisited entries.
	_ = l.MarkVisited("https://ex.test/b", model.FetchedFields{})
	_ = l.MarkVisited("https://ex.test/", model.FetchedFields{})

	next, ok = l.NextUnvisited()
	if !ok || next.URL != "https://ex.test/a" {
		t.Fatalf("expected /a next, got %q (ok=%v)", next.URL, ok)
	}

	snap := l.UnvisitedSnapshot()
	got := make([]string, 0, len(snap))
	for _, r := range snap {
		got = append(got, r.URL)
	}
	want := []string{"https://ex.test/a", "https://ex.test/c"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected snapshot %v, got %v", want, got)
	}

	_ = l.MarkVisited("https://ex.test/a", model.FetchedFields{})
	_ = l.MarkVisited("https://ex.test/c", model.FetchedFields{})

	if _, ok := l.NextUnvisited(); ok {
		t.Error("expected frontier to be exhausted")
	}
	if len(l.UnvisitedSnapshot()) != 0 {
		t.Error("expected empty snapshot")
	}
}

// TestAllKeepsInsertionOrder tests the terminal readout.
func TestAllKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	l := New()
	paths := []string{"/z", "/a", "/m"}
	for _, p := range paths {
		l.InsertUnvisited(mustParse(t, "https://ex.test"+p), "")
	}

	all := l.All()
	if len(all) != len(paths) {
		t.Fatalf("expected %d records, got %d", len(paths), len(all))
	}
	for i, p := range paths {
		if all[i].URL != "https://ex.test"+p {
			t.Errorf("record %d: expected %q, got %q", i, "https://ex.test"+p, all[i].URL)
		}
	}
}

// TestConcurrentInsertIsAtMostOnce checks insert-if-absent under contention.
func TestConcurrentInsertIsAtMostOnce(t *testing.T) {
	t.Parallel()

	l := New()
	u := mustParse(t, "https://ex.test/race")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.InsertUnvisited(u, "") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one successful insert, got %d", wins)
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 record, got %d", l.Len())
	}
}
