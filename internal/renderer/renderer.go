// Package renderer implements the page-fetching contract with headless
// Chromium, so JavaScript-built navigation and lazy-loaded listings are
// visible to the crawl.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/sitemap-crawler/sitemapper/internal/config"
	"github.com/sitemap-crawler/sitemapper/internal/fetcher"
	"github.com/sitemap-crawler/sitemapper/internal/parser"
)

// Browser renders pages in a pool of headless Chromium tabs and extracts
// candidate links from the settled DOM. Implements fetcher.PageFetcher.
type Browser struct {
	mu sync.Mutex

	config    *config.CrawlConfig
	allocator context.Context
	cancel    context.CancelFunc

	// One browser context per worker
	pool chan context.Context
}

// NewBrowser starts the Chromium allocator and a context pool sized to the
// configured concurrency.
func NewBrowser(cfg *config.CrawlConfig) (*Browser, error) {
	b := &Browser{config: cfg}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.ChromiumPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromiumPath))
	}

	b.allocator, b.cancel = chromedp.NewExecAllocator(context.Background(), opts...)

	b.pool = make(chan context.Context, cfg.Concurrency)
	for i := 0; i < cfg.Concurrency; i++ {
		ctx, _ := chromedp.NewContext(b.allocator)
		b.pool <- ctx
	}

	return b, nil
}

// Fetch implements fetcher.PageFetcher: navigate, wait for the document,
// scroll until the page height stabilizes, click "view more" controls up
// to the retry limit, then capture the outer HTML and extract links.
func (b *Browser) Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error) {
	tab := <-b.pool
	defer func() { b.pool <- tab }()

	timeoutCtx, cancel := context.WithTimeout(tab, b.config.NavTimeout)
	defer cancel()

	// Stop early if the crawl is shutting down.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-timeoutCtx.Done():
		}
	}()

	meta := &docMeta{}
	chromedp.ListenTarget(timeoutCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument {
				var lastMod string
				for k, v := range e.Response.Headers {
					if strings.EqualFold(k, "Last-Modified") {
						if s, ok := v.(string); ok {
							lastMod = s
						}
					}
				}
				meta.record(int(e.Response.Status), lastMod)
			}
		case *page.EventJavascriptDialogOpening:
			go chromedp.Run(timeoutCtx, page.HandleJavaScriptDialog(true))
		}
	})

	if err := chromedp.Run(timeoutCtx, network.Enable()); err != nil {
		return nil, classify(err)
	}

	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		b.scrollUntilStable(),
		b.clickViewMore(),
	)
	if err != nil {
		return nil, classify(err)
	}

	statusCode, lastModified := meta.snapshot()
	if statusCode >= 400 {
		return nil, &fetcher.FetchError{
			Kind: fetcher.KindNavigationFailed,
			Err:  fmt.Errorf("status %d", statusCode),
		}
	}

	var htmlContent string
	err = chromedp.Run(timeoutCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		htmlContent, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, classify(err)
	}

	if statusCode == 0 {
		// Served from cache or intercepted; the document still rendered.
		statusCode = 200
	}

	return &fetcher.Result{
		StatusCode:   statusCode,
		HTML:         htmlContent,
		Links:        parser.ExtractLinks(htmlContent),
		LastModified: lastModified,
	}, nil
}

// scrollUntilStable scrolls to the bottom until the page height repeats,
// bounded by the configured number of rounds, to trigger lazy loading.
func (b *Browser) scrollUntilStable() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var previous float64 = -1
		for i := 0; i < b.config.ScrollRounds; i++ {
			if err := chromedp.Run(ctx,
				chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
				chromedp.Sleep(b.config.ScrollPause),
			); err != nil {
				return err
			}
			var height float64
			if err := chromedp.Run(ctx,
				chromedp.Evaluate(`document.body.scrollHeight`, &height),
			); err != nil {
				return err
			}
			if height == previous {
				break
			}
			previous = height
		}
		return nil
	})
}

// clickViewMore clicks each configured "view more" control until it
// disappears, the anchor count stops growing, or the retry limit is hit.
// Controls are matched two ways: by CSS selector, and by the visible
// button or link label for controls with no class or attribute hook.
func (b *Browser) clickViewMore() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, selector := range b.config.ViewMoreSelectors {
			if err := b.clickUntilStable(ctx, clickBySelectorJS(selector)); err != nil {
				return err
			}
		}
		for _, label := range b.config.ViewMoreTexts {
			if err := b.clickUntilStable(ctx, clickByLabelJS(label)); err != nil {
				return err
			}
		}
		return nil
	})
}

// clickUntilStable repeatedly evaluates clickJS, which clicks one visible
// control and reports whether it found one, until the control is gone,
// the anchor count stops growing, or the retry limit is hit.
func (b *Browser) clickUntilStable(ctx context.Context, clickJS string) error {
	previousAnchors := -1
	for attempt := 0; attempt < b.config.ClickRetryLimit; attempt++ {
		var clicked bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(clickJS, &clicked)); err != nil {
			break
		}
		if !clicked {
			break
		}
		if err := chromedp.Run(ctx, chromedp.Sleep(b.config.ScrollPause)); err != nil {
			return err
		}

		var anchors int
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(`document.querySelectorAll('a[href]').length`, &anchors),
		); err != nil {
			return err
		}
		if anchors == previousAnchors {
			break
		}
		previousAnchors = anchors
	}
	return nil
}

// clickBySelectorJS clicks the first visible match for a CSS selector and
// reports whether one was found.
func clickBySelectorJS(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%q);
	if (!el || el.offsetParent === null) return false;
	el.click();
	return true;
})()`, selector)
}

// clickByLabelJS clicks the first visible button or link whose trimmed
// text equals the label, case-insensitively, and reports whether one was
// found.
func clickByLabelJS(label string) string {
	return fmt.Sprintf(`(() => {
	const want = %q.toLowerCase();
	for (const el of document.querySelectorAll('button, a, [role="button"]')) {
		if (el.offsetParent === null) continue;
		if ((el.textContent || '').trim().toLowerCase() === want) {
			el.click();
			return true;
		}
	}
	return false;
})()`, label)
}

// Close shuts down the tab pool and the Chromium allocator.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	close(b.pool)
	for ctx := range b.pool {
		chromedp.Cancel(ctx)
	}
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}

// docMeta records the document response observed by the CDP event
// listener. The listener runs on the event goroutine while the fetch
// reads afterwards, so access is guarded. Only the first document
// response counts; later ones come from frames or in-page navigations.
type docMeta struct {
	mu           sync.Mutex
	statusCode   int
	lastModified time.Time
}

func (m *docMeta) record(statusCode int, lastModified string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusCode != 0 {
		return
	}
	m.statusCode = statusCode
	if t, ok := fetcher.ParseLastModified(lastModified); ok {
		m.lastModified = t
	}
}

func (m *docMeta) snapshot() (int, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCode, m.lastModified
}

// classify maps chromedp errors onto the fetch-error taxonomy.
func classify(err error) *fetcher.FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &fetcher.FetchError{Kind: fetcher.KindTimeout, Err: err}
	}
	msg := err.Error()
	if strings.Contains(msg, "net::") || strings.Contains(msg, "page load error") {
		return &fetcher.FetchError{Kind: fetcher.KindNavigationFailed, Err: err}
	}
	return &fetcher.FetchError{Kind: fetcher.KindOther, Err: err}
}
