package frontier

import (
	"container/list"
	"sync"
	"time"
)

// Stats holds counters describing the frontier.
type Stats struct {
	Queued     int
	InProgress int
	Visited    int
	Failed     int
	Seen       int
	Duplicates int
	CapRejects int
}

// MemoryFrontier is the in-memory frontier store. One mutex guards both
// the FIFO queue and the seen map so admission and queueing are a single
// atomic step; every exported method is safe for concurrent callers.
type MemoryFrontier struct {
	mu         sync.Mutex
	queue      *list.List        // of string (normalized URL), FIFO
	entries    map[string]*Entry // every URL ever admitted
	order      []string          // first-discovery order, for snapshots
	maxPages   int
	inProgress int
	visited    int
	failed     int
	duplicates int
	capRejects int
}

// NewMemoryFrontier creates a frontier that admits at most maxPages
// distinct URLs.
func NewMemoryFrontier(maxPages int) *MemoryFrontier {
	return &MemoryFrontier{
		queue:    list.New(),
		entries:  make(map[string]*Entry),
		maxPages: maxPages,
	}
}

// TryEnqueue admits url if it has never been seen and the admission cap
// has not been reached. Returns true when the URL was queued.
func (f *MemoryFrontier) TryEnqueue(url, discoveredFrom string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.entries[url]; exists {
		f.duplicates++
		return false
	}
	if f.maxPages > 0 && len(f.entries) >= f.maxPages {
		f.capRejects++
		return false
	}

	f.entries[url] = &Entry{
		URL:            url,
		State:          Queued,
		DiscoveredFrom: discoveredFrom,
	}
	f.order = append(f.order, url)
	f.queue.PushBack(url)
	return true
}

// Dequeue pops the front of the queue and transitions the entry to
// InProgress. Returns "" and false when the queue is currently empty; an
// empty queue does not mean the crawl is finished while workers are still
// in flight.
func (f *MemoryFrontier) Dequeue() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	front := f.queue.Front()
	if front == nil {
		return "", false
	}
	url := f.queue.Remove(front).(string)

	if entry, ok := f.entries[url]; ok {
		entry.State = InProgress
	}
	f.inProgress++
	return url, true
}

// MarkVisited transitions an InProgress entry to Visited, recording the
// fetch metadata.
func (f *MemoryFrontier) MarkVisited(url string, statusCode int, lastModified, crawledAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[url]
	if !ok || entry.State != InProgress {
		return
	}
	entry.State = Visited
	entry.StatusCode = statusCode
	entry.LastModified = lastModified
	entry.CrawledAt = crawledAt
	f.inProgress--
	f.visited++
}

// MarkFailed transitions an InProgress entry to Failed. Failed entries
// are terminal and never retried.
func (f *MemoryFrontier) MarkFailed(url string, statusCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[url]
	if !ok || entry.State != InProgress {
		return
	}
	entry.State = Failed
	entry.StatusCode = statusCode
	entry.CrawledAt = time.Now().UTC()
	f.inProgress--
	f.failed++
}

// QueueLen returns the number of URLs currently queued.
func (f *MemoryFrontier) QueueLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

// SeenCount returns the number of URLs ever admitted.
func (f *MemoryFrontier) SeenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// CapReached reports whether the admission cap has been hit.
func (f *MemoryFrontier) CapReached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxPages > 0 && len(f.entries) >= f.maxPages
}

// SnapshotVisited returns copies of all Visited entries in first-discovery
// order. Intended to be called once, after all workers have stopped.
func (f *MemoryFrontier) SnapshotVisited() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := make([]Entry, 0, f.visited)
	for _, url := range f.order {
		entry := f.entries[url]
		if entry.State == Visited {
			snapshot = append(snapshot, *entry)
		}
	}
	return snapshot
}

// SnapshotAll returns copies of every terminal entry in first-discovery
// order, for the crawl record.
func (f *MemoryFrontier) SnapshotAll() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := make([]Entry, 0, len(f.order))
	for _, url := range f.order {
		entry := f.entries[url]
		if entry.State == Visited || entry.State == Failed {
			snapshot = append(snapshot, *entry)
		}
	}
	return snapshot
}

// Stats returns current frontier counters.
func (f *MemoryFrontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Queued:     f.queue.Len(),
		InProgress: f.inProgress,
		Visited:    f.visited,
		Failed:     f.failed,
		Seen:       len(f.entries),
		Duplicates: f.duplicates,
		CapRejects: f.capRejects,
	}
}
