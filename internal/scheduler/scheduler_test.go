package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sitemap-crawler/sitemapper/internal/config"
	"github.com/sitemap-crawler/sitemapper/internal/fetcher"
	"github.com/sitemap-crawler/sitemapper/internal/frontier"
)

// stubFetcher serves canned link sets without touching the network.
type stubFetcher struct {
	mu    sync.Mutex
	links map[string][]string
	fail  map[string]bool
	calls map[string]int
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (*fetcher.Result, error) {
	s.mu.Lock()
	s.calls[url]++
	s.mu.Unlock()

	if s.fail[url] {
		return nil, &fetcher.FetchError{Kind: fetcher.KindNavigationFailed, Err: errors.New("boom")}
	}
	return &fetcher.Result{
		StatusCode: 200,
		Links:      s.links[url],
	}, nil
}

func newStub(links map[string][]string) *stubFetcher {
	return &stubFetcher{
		links: links,
		fail:  make(map[string]bool),
		calls: make(map[string]int),
	}
}

func testConfig(concurrency, maxPages int) *config.CrawlConfig {
	return &config.CrawlConfig{
		Seeds:               []string{"https://finploy.com/"},
		AllowedHosts:        []string{"finploy.com"},
		MaxPages:            maxPages,
		Concurrency:         concurrency,
		RequestsPerSecond:   0, // unlimited
		RequestDelay:        0,
		PerHostDelay:        0,
		IgnoreQueryParams:   []string{"sessionid"},
		IgnoreQueryPrefixes: []string{"utm_"},
		PageParam:           "page",
		PageLookahead:       2,
	}
}

func runCrawl(t *testing.T, cfg *config.CrawlConfig, stub fetcher.PageFetcher) *frontier.MemoryFrontier {
	t.Helper()

	fr := frontier.NewMemoryFrontier(cfg.MaxPages)
	sched := New(cfg, fr, stub)
	if sched.Seed() == 0 {
		t.Fatal("no seeds admitted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("crawl did not terminate")
	}
	return fr
}

func TestQuiescenceTermination(t *testing.T) {
	t.Parallel()

	// A seed that yields no links must terminate with exactly one visited
	// entry for any worker count.
	for _, workers := range []int{1, 2, 8} {
		workers := workers
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()
			stub := newStub(map[string][]string{})
			fr := runCrawl(t, testConfig(workers, 100), stub)

			stats := fr.Stats()
			if stats.Visited != 1 {
				t.Errorf("visited = %d, want 1", stats.Visited)
			}
			if stats.Queued != 0 || stats.InProgress != 0 {
				t.Errorf("frontier not quiescent: %+v", stats)
			}
		})
	}
}

func TestDiscoveryFanOut(t *testing.T) {
	t.Parallel()

	stub := newStub(map[string][]string{
		"https://finploy.com/": {
			"/jobs",
			"/locations",
			"https://finploy.com/jobs", // duplicate after normalization
			"https://evil.example.com/x",
			"mailto:team@finploy.com",
		},
		"https://finploy.com/jobs":      {"/jobs/1", "/jobs/2"},
		"https://finploy.com/locations": {},
		"https://finploy.com/jobs/1":    {},
		"https://finploy.com/jobs/2":    {},
	})
	fr := runCrawl(t, testConfig(4, 100), stub)

	stats := fr.Stats()
	if stats.Visited != 5 {
		t.Errorf("visited = %d, want 5 (stats %+v)", stats.Visited, stats)
	}

	for url, n := range stub.calls {
		if n != 1 {
			t.Errorf("%s fetched %d times, want 1", url, n)
		}
	}
}

func TestFailureIsolation(t *testing.T) {
	t.Parallel()

	stub := newStub(map[string][]string{
		"https://finploy.com/":     {"/bad", "/good"},
		"https://finploy.com/good": {},
	})
	stub.fail["https://finploy.com/bad"] = true

	fr := runCrawl(t, testConfig(2, 100), stub)

	stats := fr.Stats()
	if stats.Visited != 2 {
		t.Errorf("visited = %d, want 2", stats.Visited)
	}
	if stats.Failed != 1 {
		t.Errorf("failed = %d, want 1", stats.Failed)
	}
	// Failed URLs are terminal, never retried.
	if stub.calls["https://finploy.com/bad"] != 1 {
		t.Errorf("failed URL fetched %d times, want 1", stub.calls["https://finploy.com/bad"])
	}
}

func TestMaxPagesBound(t *testing.T) {
	t.Parallel()

	// Every page links to two fresh pages; without the cap this never ends.
	gen := &generatingFetcher{}

	const maxPages = 20
	fr := runCrawl(t, testConfig(4, maxPages), gen)

	stats := fr.Stats()
	if stats.Visited+stats.Failed > maxPages {
		t.Errorf("visited+failed = %d, exceeds max pages %d", stats.Visited+stats.Failed, maxPages)
	}
	if stats.Seen > maxPages {
		t.Errorf("seen = %d, exceeds max pages %d", stats.Seen, maxPages)
	}
}

// generatingFetcher links every page to two new ones, forever.
type generatingFetcher struct {
	counter int64
	mu      sync.Mutex
}

func (g *generatingFetcher) Fetch(ctx context.Context, url string) (*fetcher.Result, error) {
	g.mu.Lock()
	g.counter++
	n := g.counter
	g.mu.Unlock()
	return &fetcher.Result{
		StatusCode: 200,
		Links: []string{
			fmt.Sprintf("/gen/%d/a", n),
			fmt.Sprintf("/gen/%d/b", n),
		},
	}, nil
}

// meetingFetcher blocks fan-out fetches until all of them have started,
// so the crawl only finishes if enough workers are still alive.
type meetingFetcher struct {
	inner    *stubFetcher
	arrivals chan struct{}
	release  chan struct{}
}

func (m *meetingFetcher) Fetch(ctx context.Context, url string) (*fetcher.Result, error) {
	if url != "https://finploy.com/" {
		m.arrivals <- struct{}{}
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.inner.Fetch(ctx, url)
}

func TestWorkersSurviveSingleInFlight(t *testing.T) {
	t.Parallel()

	// While the seed is the only URL in flight its links are not queued
	// yet; an idle worker that misreads that moment as quiescence exits
	// for good. The two fan-out pages each block until the other fetch
	// has started, so the crawl only completes with both workers alive
	// after the seed.
	arrivals := make(chan struct{}, 2)
	release := make(chan struct{})
	go func() {
		<-arrivals
		<-arrivals
		close(release)
	}()

	stub := newStub(map[string][]string{
		"https://finploy.com/":  {"/a", "/b"},
		"https://finploy.com/a": {},
		"https://finploy.com/b": {},
	})
	fr := runCrawl(t, testConfig(2, 100), &meetingFetcher{
		inner:    stub,
		arrivals: arrivals,
		release:  release,
	})

	stats := fr.Stats()
	if stats.Visited != 3 {
		t.Errorf("visited = %d, want 3 (stats %+v)", stats.Visited, stats)
	}
	if stats.Failed != 0 {
		t.Errorf("failed = %d, want 0", stats.Failed)
	}
}

func TestCancelledWaitLeavesEntryUnmarked(t *testing.T) {
	t.Parallel()

	cfg := testConfig(1, 100)
	cfg.RequestsPerSecond = 1

	stub := newStub(map[string][]string{})
	fr := frontier.NewMemoryFrontier(cfg.MaxPages)
	sched := New(cfg, fr, stub)

	url := "https://finploy.com/pending"
	if !fr.TryEnqueue(url, "") {
		t.Fatal("enqueue rejected")
	}
	if got, ok := fr.Dequeue(); !ok || got != url {
		t.Fatalf("dequeue = %q, %v", got, ok)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sched.process(ctx, 0, url)

	// No fetch happened, so the URL is neither visited nor failed.
	stats := fr.Stats()
	if stats.Failed != 0 {
		t.Errorf("failed = %d, want 0", stats.Failed)
	}
	if stats.Visited != 0 {
		t.Errorf("visited = %d, want 0", stats.Visited)
	}
	if stats.InProgress != 1 {
		t.Errorf("in progress = %d, want 1", stats.InProgress)
	}
	if stub.calls[url] != 0 {
		t.Errorf("fetch attempted %d times, want 0", stub.calls[url])
	}
}

func TestPaginationLookahead(t *testing.T) {
	t.Parallel()

	// The listing page carries ?page=1; look-ahead (2) must reach pages
	// 2 and 3 even though nothing links to them.
	stub := newStub(map[string][]string{
		"https://finploy.com/":            {"/list?page=1"},
		"https://finploy.com/list?page=1": {},
		"https://finploy.com/list?page=2": {},
		"https://finploy.com/list?page=3": {},
		"https://finploy.com/list?page=4": {},
		"https://finploy.com/list?page=5": {},
	})
	fr := runCrawl(t, testConfig(2, 100), stub)

	visited := make(map[string]bool)
	for _, entry := range fr.SnapshotVisited() {
		visited[entry.URL] = true
	}
	for _, want := range []string{
		"https://finploy.com/list?page=2",
		"https://finploy.com/list?page=3",
	} {
		if !visited[want] {
			t.Errorf("expected %s to be visited via look-ahead", want)
		}
	}
	// Look-ahead chains: page=3 expands to 4 and 5.
	if !visited["https://finploy.com/list?page=5"] {
		t.Errorf("expected chained look-ahead to reach page=5")
	}
}
