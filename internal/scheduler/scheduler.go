package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sitemap-crawler/sitemapper/internal/config"
	"github.com/sitemap-crawler/sitemapper/internal/fetcher"
	"github.com/sitemap-crawler/sitemapper/internal/frontier"
	"github.com/sitemap-crawler/sitemapper/internal/urlutil"
)

// Stats holds scheduler statistics.
type Stats struct {
	Processed int64
	Succeeded int64
	Failed    int64
	Frontier  frontier.Stats
	Elapsed   time.Duration
}

// Scheduler orchestrates the crawl: a fixed pool of workers pulls from the
// frontier, fetches through the PageFetcher, and feeds normalized
// discoveries back in. Only the frontier operations are critical sections;
// fetches run in parallel.
type Scheduler struct {
	config     *config.CrawlConfig
	frontier   *frontier.MemoryFrontier
	normalizer *urlutil.Normalizer
	expander   *urlutil.Expander
	pages      fetcher.PageFetcher
	limiter    *Limiter

	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	startTime time.Time

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a scheduler around an existing frontier and page fetcher.
func New(cfg *config.CrawlConfig, fr *frontier.MemoryFrontier, pages fetcher.PageFetcher) *Scheduler {
	return &Scheduler{
		config:     cfg,
		frontier:   fr,
		normalizer: urlutil.NewNormalizer(cfg.AllowedHosts, cfg.IgnoreQueryParams, cfg.IgnoreQueryPrefixes),
		expander:   urlutil.NewExpander(cfg.PageParam, cfg.PageLookahead),
		pages:      pages,
		limiter:    NewLimiter(cfg.RequestsPerSecond, cfg.PerHostDelay),
		stopCh:     make(chan struct{}),
	}
}

// Seed normalizes and enqueues the configured seed URLs. Returns how many
// were admitted.
func (s *Scheduler) Seed() int {
	admitted := 0
	for _, seed := range s.config.Seeds {
		normalized, ok := s.normalizer.Normalize(seed, "")
		if !ok {
			log.Printf("seed rejected: %s", seed)
			continue
		}
		if s.frontier.TryEnqueue(normalized, "") {
			admitted++
		}
	}
	return admitted
}

// Run starts the worker pool and blocks until the crawl reaches a fixed
// point (queue empty, nothing in flight), the admission cap is hit, or ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.startTime = time.Now()
	for i := 0; i < s.config.Concurrency; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.wg.Wait()
}

// Stop asks the workers to exit after their current fetch.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Stats returns current statistics.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Processed: s.processed.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		Frontier:  s.frontier.Stats(),
		Elapsed:   time.Since(s.startTime),
	}
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		// Reaching the admission cap is a cooperative stop: finish the
		// current fetch elsewhere, pull no new work here.
		if s.frontier.CapReached() {
			log.Printf("[w%d] page cap reached, exiting", id)
			return
		}

		url, ok := s.frontier.Dequeue()
		if !ok {
			// An empty queue is not the end while siblings are mid-fetch
			// and may still discover URLs. Quiescence is queue empty AND
			// nothing in progress, read as one consistent snapshot.
			stats := s.frontier.Stats()
			if stats.Queued == 0 && stats.InProgress == 0 {
				log.Printf("[w%d] frontier drained, exiting", id)
				return
			}
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
			continue
		}

		s.process(ctx, id, url)

		select {
		case <-time.After(s.config.RequestDelay):
		case <-ctx.Done():
		case <-s.stopCh:
		}
	}
}

// process fetches one URL and feeds discoveries back into the frontier.
// Failures are isolated to the URL: recorded, never fatal to the worker.
func (s *Scheduler) process(ctx context.Context, id int, url string) {
	if err := s.limiter.Wait(ctx, urlutil.Host(url)); err != nil {
		// Cancelled before any fetch was attempted; the URL neither
		// succeeded nor failed, so leave the entry as it is.
		return
	}

	log.Printf("[w%d] crawling %s", id, url)
	result, err := s.pages.Fetch(ctx, url)
	s.limiter.Record(urlutil.Host(url))
	s.processed.Add(1)

	if err != nil {
		log.Printf("[w%d] %s: %v", id, url, err)
		s.frontier.MarkFailed(url, 0)
		s.failed.Add(1)
		return
	}

	// Discoveries go in before the entry turns terminal, so an idle
	// sibling polling the frontier sees either queued work or this page
	// still in flight, never a transient empty snapshot.
	s.enqueueDiscoveries(url, result.Links)

	s.frontier.MarkVisited(url, result.StatusCode, result.LastModified, time.Now().UTC())
	s.succeeded.Add(1)
}

// enqueueDiscoveries normalizes, expands, and admits the raw links found
// on a page.
func (s *Scheduler) enqueueDiscoveries(from string, rawLinks []string) {
	for _, candidate := range s.expander.Expand(from) {
		if normalized, ok := s.normalizer.Normalize(candidate, from); ok {
			s.frontier.TryEnqueue(normalized, from)
		}
	}

	for _, raw := range rawLinks {
		normalized, ok := s.normalizer.Normalize(raw, from)
		if !ok {
			continue
		}
		s.frontier.TryEnqueue(normalized, from)

		for _, candidate := range s.expander.Expand(normalized) {
			if expanded, ok := s.normalizer.Normalize(candidate, from); ok {
				s.frontier.TryEnqueue(expanded, from)
			}
		}
	}
}
