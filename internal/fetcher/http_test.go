package fetcher

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestHTTPFetch tests fetching pages over plain HTTP.
func TestHTTPFetch(t *testing.T) {
	t.Parallel()

	t.Run("returns status and document", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><head><title>Home</title></head><body><a href="/about">About</a></body></html>`))
		}))
		defer server.Close()

		resp, err := NewHTTP().Fetch(context.Background(), server.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.StatusCode)
		}
		if resp.Document == nil {
			t.Fatal("expected a document")
		}
		if got := resp.Document.Find("title").Text(); got != "Home" {
			t.Errorf("expected title 'Home', got %q", got)
		}
		if !strings.Contains(resp.HTML, `href="/about"`) {
			t.Errorf("expected HTML source to be kept, got %q", resp.HTML)
		}
	})

	t.Run("non-success status is not an error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<html><head><title>Not Found</title></head></html>`))
		}))
		defer server.Close()

		resp, err := NewHTTP().Fetch(context.Background(), server.URL+"/missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", resp.StatusCode)
		}
		if resp.Document == nil || resp.Document.Find("title").Text() != "Not Found" {
			t.Error("expected the error page to be parsed")
		}
	})

	t.Run("follows redirects and reports final URL", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
		})
		mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html></html>`))
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		resp, err := NewHTTP().Fetch(context.Background(), server.URL+"/old")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.FinalURL != server.URL+"/new" {
			t.Errorf("expected final URL %q, got %q", server.URL+"/new", resp.FinalURL)
		}
	})

	t.Run("sends user agent headers and cookie", func(t *testing.T) {
		t.Parallel()

		var got http.Header
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
			w.Header().Set("Content-Type", "text/html")
		}))
		defer server.Close()

		f := NewHTTP(
			WithUserAgent("test-agent"),
			WithHeaders(map[string]string{"X-Test": "yes"}),
			WithCookie("session=abc"),
		)
		if _, err := f.Fetch(context.Background(), server.URL); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Get("User-Agent") != "test-agent" {
			t.Errorf("expected User-Agent 'test-agent', got %q", got.Get("User-Agent"))
		}
		if got.Get("X-Test") != "yes" {
			t.Errorf("expected X-Test header, got %q", got.Get("X-Test"))
		}
		if got.Get("Cookie") != "session=abc" {
			t.Errorf("expected cookie 'session=abc', got %q", got.Get("Cookie"))
		}
	})

	t.Run("non-HTML response has no document", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4"))
		}))
		defer server.Close()

		resp, err := NewHTTP().Fetch(context.Background(), server.URL+"/file.pdf")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Document != nil {
			t.Error("expected no document for a PDF")
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.StatusCode)
		}
	})

	t.Run("decodes declared charset", func(t *testing.T) {
		t.Parallel()

		// "Café" in ISO-8859-1
		body := []byte("<html><head><title>Caf\xe9</title></head></html>")
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
			_, _ = w.Write(body)
		}))
		defer server.Close()

		resp, err := NewHTTP().Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := resp.Document.Find("title").Text(); got != "Café" {
			t.Errorf("expected title 'Café', got %q", got)
		}
	})

	t.Run("limits body size", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write(bytes.Repeat([]byte("a"), 4096))
		}))
		defer server.Close()

		resp, err := NewHTTP(WithMaxBodySize(100)).Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(resp.HTML) != 100 {
			t.Errorf("expected 100 bytes, got %d", len(resp.HTML))
		}
	})

	t.Run("context deadline aborts the request", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := NewHTTP().Fetch(ctx, server.URL)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		t.Parallel()

		_, err := NewHTTP().Fetch(context.Background(), "")
		if !errors.Is(err, ErrEmptyURL) {
			t.Errorf("expected ErrEmptyURL, got %v", err)
		}
	})
}

// TestIsHTML tests content type detection.
func TestIsHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        bool
	}{
		{"", true},
		{"text/html", true},
		{"TEXT/HTML; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"application/json", false},
		{"image/png", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			t.Parallel()
			if got := isHTML(tt.contentType); got != tt.want {
				t.Errorf("isHTML(%q) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}
