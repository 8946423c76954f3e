package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sitemap-crawler/sitemapper/internal/parser"
)

// HTTPFetcher fetches pages with plain HTTP and extracts links from the
// unrendered HTML. Used when JavaScript rendering is disabled.
type HTTPFetcher struct {
	client      *http.Client
	transport   *http.Transport
	userAgent   string
	maxBodySize int64
}

// NewHTTPFetcher creates an HTTP fetcher with the given per-request
// timeout.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		transport:   transport,
		userAgent:   userAgent,
		maxBodySize: 10 * 1024 * 1024,
	}
}

// Fetch implements PageFetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindOther, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, categorize(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &FetchError{
			Kind: KindNavigationFailed,
			Err:  fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, &FetchError{Kind: KindOther, Err: err}
	}

	result := &Result{
		StatusCode: resp.StatusCode,
		HTML:       string(body),
		Links:      parser.ExtractLinks(string(body)),
	}
	if t, ok := ParseLastModified(resp.Header.Get("Last-Modified")); ok {
		result.LastModified = t
	}
	return result, nil
}

// readBody reads the response body with gzip handling and a size limit.
func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode error: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}
	return io.ReadAll(io.LimitReader(reader, f.maxBodySize))
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() {
	f.transport.CloseIdleConnections()
}

// categorize maps a transport error onto the fetch-error taxonomy.
func categorize(err error) *FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, Err: err}
	}
	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) {
		return &FetchError{Kind: KindNavigationFailed, Err: err}
	}
	return &FetchError{Kind: KindOther, Err: err}
}
