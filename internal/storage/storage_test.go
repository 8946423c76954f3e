package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sitemap-crawler/sitemapper/internal/frontier"
)

func TestRecordRun(t *testing.T) {
	t.Parallel()

	db, err := Open(filepath.Join(t.TempDir(), "crawl.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	entries := []frontier.Entry{
		{
			URL:            "https://finploy.com/",
			State:          frontier.Visited,
			StatusCode:     200,
			LastModified:   now.Add(-24 * time.Hour),
			CrawledAt:      now,
			DiscoveredFrom: "",
		},
		{
			URL:            "https://finploy.com/jobs",
			State:          frontier.Visited,
			StatusCode:     200,
			CrawledAt:      now,
			DiscoveredFrom: "https://finploy.com/",
		},
		{
			URL:            "https://finploy.com/broken",
			State:          frontier.Failed,
			StatusCode:     503,
			CrawledAt:      now,
			DiscoveredFrom: "https://finploy.com/",
		},
	}
	summary := RunSummary{
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
		Visited:    2,
		Failed:     1,
		Duplicates: 4,
	}

	runID, err := db.RecordRun(summary, entries)
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	count, err := db.PageCount(runID)
	if err != nil {
		t.Fatalf("PageCount failed: %v", err)
	}
	if count != 3 {
		t.Errorf("page count = %d, want 3", count)
	}

	visited, err := db.PagesByState(runID, frontier.Visited)
	if err != nil {
		t.Fatalf("PagesByState failed: %v", err)
	}
	if len(visited) != 2 {
		t.Fatalf("visited rows = %d, want 2", len(visited))
	}
	// Insertion order is preserved.
	if visited[0] != "https://finploy.com/" || visited[1] != "https://finploy.com/jobs" {
		t.Errorf("visited rows out of order: %v", visited)
	}

	failed, err := db.PagesByState(runID, frontier.Failed)
	if err != nil {
		t.Fatalf("PagesByState failed: %v", err)
	}
	if len(failed) != 1 || failed[0] != "https://finploy.com/broken" {
		t.Errorf("failed rows = %v", failed)
	}
}

func TestRecordRunEmpty(t *testing.T) {
	t.Parallel()

	db, err := Open(filepath.Join(t.TempDir(), "crawl.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	runID, err := db.RecordRun(RunSummary{StartedAt: now, FinishedAt: now}, nil)
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	count, err := db.PageCount(runID)
	if err != nil {
		t.Fatalf("PageCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("page count = %d, want 0", count)
	}
}
