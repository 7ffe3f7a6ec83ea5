package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/net/html/charset"
)

// HTTP fetches pages with a plain GET request.
// It does not execute JavaScript.
type HTTP struct {
	client      *http.Client
	userAgent   string
	headers     map[string]string
	cookie      string
	maxBodySize int64
}

// HTTPOption configures an HTTP fetcher.
type HTTPOption func(*HTTP)

// WithClient sets the HTTP client. Timeouts are applied per request through
// the context passed to Fetch, so the client needs none of its own.
func WithClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		if c != nil {
			h.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTP) {
		if ua != "" {
			h.userAgent = ua
		}
	}
}

// WithHeaders adds custom headers to every request.
func WithHeaders(headers map[string]string) HTTPOption {
	return func(h *HTTP) {
		h.headers = headers
	}
}

// WithCookie sets the Cookie header sent with every request.
func WithCookie(cookie string) HTTPOption {
	return func(h *HTTP) {
		h.cookie = cookie
	}
}

// WithMaxBodySize limits the number of body bytes read per response.
func WithMaxBodySize(n int64) HTTPOption {
	return func(h *HTTP) {
		if n > 0 {
			h.maxBodySize = n
		}
	}
}

// NewHTTP creates an HTTP fetcher.
func NewHTTP(opts ...HTTPOption) *HTTP {
	h := &HTTP{
		client:      &http.Client{},
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fetch performs a GET request for rawURL.
// A non-2xx status is not an error: the status is returned with whatever
// document the server sent.
func (h *HTTP) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	if rawURL == "" {
		return nil, ErrEmptyURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	if h.cookie != "" {
		req.Header.Set("Cookie", h.cookie)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
	}

	if !isHTML(out.ContentType) {
		return out, nil
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, h.maxBodySize), out.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode body: %w", err)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	out.HTML = string(raw)
	out.Document, err = parseDocument(out.HTML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return out, nil
}
