// Package frontier implements the crawl frontier: the work queue and the
// seen set with per-URL metadata.
package frontier

import "time"

// State is the lifecycle state of a frontier entry.
type State int

const (
	// Queued means the URL is waiting in the work queue.
	Queued State = iota
	// InProgress means a worker is currently fetching the URL.
	InProgress
	// Visited means the URL was fetched successfully. Terminal.
	Visited
	// Failed means the fetch failed. Terminal, never retried.
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case InProgress:
		return "in_progress"
	case Visited:
		return "visited"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry holds the metadata of a URL admitted to the frontier. Entries are
// created when a URL is first discovered and never deleted during a run.
type Entry struct {
	// Normalized URL; the identity of the entry
	URL string

	// Current lifecycle state
	State State

	// HTTP status of the fetch, 0 until terminal
	StatusCode int

	// Page's Last-Modified timestamp, zero if the header was absent
	LastModified time.Time

	// When the URL was marked visited or failed, zero until terminal
	CrawledAt time.Time

	// Normalized URL this one was discovered from, empty for seeds
	DiscoveredFrom string
}
