// Package fetcher defines the page-fetching contract consumed by the
// scheduler, and a plain HTTP implementation of it.
package fetcher

import (
	"context"
	"fmt"
	"time"
)

// ErrorKind classifies fetch failures.
type ErrorKind string

const (
	// KindTimeout is a navigation or request timeout.
	KindTimeout ErrorKind = "timeout"
	// KindNavigationFailed covers DNS, connection, and protocol failures.
	KindNavigationFailed ErrorKind = "navigation_failed"
	// KindOther is everything else.
	KindOther ErrorKind = "other"
)

// FetchError is a per-URL fetch failure. It never unwinds past a worker's
// loop iteration.
type FetchError struct {
	Kind ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Result holds what a fetch produced: the rendered document plus the raw
// link candidates extracted from it.
type Result struct {
	// HTTP status of the document response
	StatusCode int

	// Rendered HTML
	HTML string

	// Raw candidate URLs found in the page; unnormalized, unfiltered
	Links []string

	// Parsed Last-Modified header, zero when absent or unparseable
	LastModified time.Time
}

// PageFetcher fetches a URL and extracts candidate links. Implementations
// handle their own rendering policy (scrolling, clicking load-more
// controls); the scheduler only consumes the eventual result.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// ParseLastModified parses an HTTP Last-Modified header value. The zero
// time and false are returned when the value is absent or unparseable.
func ParseLastModified(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC1123, time.RFC1123Z, time.RFC850, time.ANSIC} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
