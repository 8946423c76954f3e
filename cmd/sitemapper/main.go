// Package main is the entry point for the sitemapper crawler.
package main

import (
	"context"
	"log"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sitemap-crawler/sitemapper/internal/config"
	"github.com/sitemap-crawler/sitemapper/internal/fetcher"
	"github.com/sitemap-crawler/sitemapper/internal/frontier"
	"github.com/sitemap-crawler/sitemapper/internal/renderer"
	"github.com/sitemap-crawler/sitemapper/internal/report"
	"github.com/sitemap-crawler/sitemapper/internal/scheduler"
	"github.com/sitemap-crawler/sitemapper/internal/sitemap"
	"github.com/sitemap-crawler/sitemapper/internal/storage"
)

const configFile = "sitemapper.json"

func main() {
	log.SetFlags(log.LstdFlags)

	cfg := loadConfig()

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		log.Fatalf("cannot create output directory %s: %v", cfg.OutputDir, err)
	}

	fr := frontier.NewMemoryFrontier(cfg.MaxPages)

	pages, cleanup, err := newPageFetcher(cfg)
	if err != nil {
		log.Fatalf("failed to start page fetcher: %v", err)
	}
	defer cleanup()

	sched := scheduler.New(cfg, fr, pages)
	if sched.Seed() == 0 {
		log.Fatal("no seed URLs were admitted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received interrupt, stopping after in-flight work...")
		sched.Stop()
		cancel()
	}()

	startedAt := time.Now().UTC()
	log.Printf("starting crawl: %d workers, max %d pages, %d seeds",
		cfg.Concurrency, cfg.MaxPages, len(cfg.Seeds))

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				st := sched.Stats()
				log.Printf("progress: visited=%d failed=%d queued=%d in-flight=%d seen=%d",
					st.Frontier.Visited, st.Frontier.Failed, st.Frontier.Queued,
					st.Frontier.InProgress, st.Frontier.Seen)
			}
		}
	}()

	sched.Run(ctx)
	close(done)
	finishedAt := time.Now().UTC()

	stats := sched.Stats()
	log.Printf("crawl complete: visited=%d failed=%d duplicates=%d elapsed=%v",
		stats.Frontier.Visited, stats.Frontier.Failed, stats.Frontier.Duplicates,
		stats.Elapsed.Round(time.Millisecond))

	visited := fr.SnapshotVisited()
	if len(visited) == 0 {
		log.Println("no URLs visited, nothing to write")
		return
	}

	writer := &sitemap.Writer{
		Dir:            cfg.OutputDir,
		MaxURLsPerFile: cfg.MaxURLsPerSitemap,
		Gzip:           cfg.GzipSitemaps,
		BaseURL:        siteRoot(cfg.Seeds[0]),
	}
	if err := writer.Write(visited); err != nil {
		log.Fatalf("sitemap write failed: %v", err)
	}
	log.Printf("wrote %d urls to %s", len(visited), cfg.SitemapPath())

	writeRecord(cfg, fr, startedAt, finishedAt)
	writeReport(cfg, fr)
}

// loadConfig reads sitemapper.json when present, otherwise the compiled
// defaults. There are no runtime flags.
func loadConfig() *config.CrawlConfig {
	if _, err := os.Stat(configFile); err == nil {
		cfg, err := config.Load(configFile)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		log.Printf("loaded configuration from %s", configFile)
		return cfg
	}
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// newPageFetcher builds the configured PageFetcher implementation.
func newPageFetcher(cfg *config.CrawlConfig) (fetcher.PageFetcher, func(), error) {
	if cfg.RenderMode == config.RenderHTML {
		f := fetcher.NewHTTPFetcher(cfg.NavTimeout, cfg.UserAgent)
		return f, f.Close, nil
	}
	browser, err := renderer.NewBrowser(cfg)
	if err != nil {
		return nil, nil, err
	}
	return browser, func() { browser.Close() }, nil
}

// writeRecord persists the per-run crawl record, if enabled. The record is
// a report artifact; failures do not fail the run.
func writeRecord(cfg *config.CrawlConfig, fr *frontier.MemoryFrontier, startedAt, finishedAt time.Time) {
	if cfg.RecordDB == "" {
		return
	}
	path := filepath.Join(cfg.OutputDir, cfg.RecordDB)
	// Fresh record each run.
	os.Remove(path)

	db, err := storage.Open(path)
	if err != nil {
		log.Printf("crawl record: %v", err)
		return
	}
	defer db.Close()

	stats := fr.Stats()
	summary := storage.RunSummary{
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Visited:    stats.Visited,
		Failed:     stats.Failed,
		Duplicates: stats.Duplicates,
	}
	if _, err := db.RecordRun(summary, fr.SnapshotAll()); err != nil {
		log.Printf("crawl record: %v", err)
		return
	}
	log.Printf("wrote crawl record to %s", path)
}

// writeReport exports the XLSX crawl report, if enabled.
func writeReport(cfg *config.CrawlConfig, fr *frontier.MemoryFrontier) {
	if cfg.ReportXLSX == "" {
		return
	}
	path := filepath.Join(cfg.OutputDir, cfg.ReportXLSX)
	if err := report.ExportXLSX(path, fr.SnapshotAll(), fr.Stats()); err != nil {
		log.Printf("crawl report: %v", err)
		return
	}
	log.Printf("wrote crawl report to %s", path)
}

// siteRoot returns scheme://host for the given URL.
func siteRoot(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
