package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ErrBrowserClosed is returned by Fetch after Close.
var ErrBrowserClosed = errors.New("browser is closed")

// Browser fetches pages with a headless Chrome instance so that scripts run
// before the DOM is read. Chrome is started on the first Fetch and reused for
// every page; each fetch gets its own tab.
type Browser struct {
	chromePath string
	headless   bool
	userAgent  string
	headers    map[string]string
	proxy      string

	startOnce     sync.Once
	startErr      error
	mu            sync.Mutex
	closed        bool
	browserCtx    context.Context //nolint:containedctx // owns the Chrome process
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// BrowserOption configures a Browser.
type BrowserOption func(*Browser)

// WithChromePath sets the Chrome executable. Empty means chromedp's lookup.
func WithChromePath(path string) BrowserOption {
	return func(b *Browser) {
		b.chromePath = path
	}
}

// WithHeadless toggles headless mode. Headless is the default.
func WithHeadless(headless bool) BrowserOption {
	return func(b *Browser) {
		b.headless = headless
	}
}

// WithBrowserUserAgent sets the User-Agent Chrome reports.
func WithBrowserUserAgent(ua string) BrowserOption {
	return func(b *Browser) {
		if ua != "" {
			b.userAgent = ua
		}
	}
}

// WithBrowserHeaders adds headers to every request the tab makes.
// A Cookie header set here is sent as-is.
func WithBrowserHeaders(headers map[string]string) BrowserOption {
	return func(b *Browser) {
		b.headers = headers
	}
}

// WithBrowserProxy routes Chrome's traffic through the SOCKS5 proxy at
// address ("host:port"). Empty means a direct connection.
func WithBrowserProxy(address string) BrowserOption {
	return func(b *Browser) {
		b.proxy = address
	}
}

// NewBrowser creates a Browser. Chrome is not started until the first Fetch.
func NewBrowser(opts ...BrowserOption) *Browser {
	b := &Browser{
		headless:  true,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// allocatorOptions returns the exec allocator flags for Chrome.
func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.DisableGPU,
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-component-update", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.UserAgent(b.userAgent),
		chromedp.WindowSize(1920, 1080),
	}
	if b.headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if b.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(b.chromePath))
	}
	if b.proxy != "" {
		opts = append(opts, chromedp.ProxyServer("socks5://"+b.proxy))
	}
	return opts
}

// start launches Chrome once.
func (b *Browser) start() error {
	b.startOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			b.startErr = ErrBrowserClosed
			return
		}

		allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(browserCtx); err != nil {
			cancelBrowser()
			cancelAlloc()
			b.startErr = fmt.Errorf("failed to start chrome: %w", err)
			return
		}
		b.browserCtx = browserCtx
		b.cancelBrowser = cancelBrowser
		b.cancelAlloc = cancelAlloc
	})
	return b.startErr
}

// Fetch opens rawURL in a new tab and returns the rendered DOM.
// The status code is taken from the main document's network response.
func (b *Browser) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	if rawURL == "" {
		return nil, ErrEmptyURL
	}
	if err := b.start(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrowserClosed
	}
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	b.mu.Unlock()
	defer cancelTab()

	// The tab derives from the browser context, so the caller's deadline is
	// propagated by hand.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	setup := []chromedp.Action{network.Enable()}
	if len(b.headers) > 0 {
		headers := make(network.Headers, len(b.headers))
		for k, v := range b.headers {
			headers[k] = v
		}
		setup = append(setup, network.SetExtraHTTPHeaders(headers))
	}
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		return nil, b.fetchError(ctx, err)
	}

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(rawURL))
	if err != nil {
		return nil, b.fetchError(ctx, err)
	}

	var html, finalURL string
	err = chromedp.Run(tabCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return nil, b.fetchError(ctx, err)
	}

	out := &Response{
		FinalURL: finalURL,
		HTML:     html,
	}
	if resp != nil {
		out.StatusCode = int(resp.Status)
		out.ContentType = resp.MimeType
	}
	out.Document, err = parseDocument(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return out, nil
}

// fetchError prefers the caller's context error over chromedp's so that a
// timeout is reported as context.DeadlineExceeded.
func (b *Browser) fetchError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("browser fetch: %w", err)
}

// Close stops Chrome. It is safe to call more than once and before any Fetch.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.cancelBrowser != nil {
		b.cancelBrowser()
	}
	if b.cancelAlloc != nil {
		b.cancelAlloc()
	}
	return nil
}
