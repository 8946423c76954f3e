// Package config defines crawl configuration options.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// RenderMode defines how pages are fetched.
type RenderMode string

const (
	RenderJS   RenderMode = "js"   // Headless Chromium rendering
	RenderHTML RenderMode = "html" // Plain HTTP fetch (no JavaScript)
)

// CrawlConfig holds all configuration for a crawl session. It is resolved
// once at startup and never mutated during a run.
type CrawlConfig struct {
	// === Scope ===

	// Seed URLs to start crawling from
	Seeds []string `json:"seeds"`

	// Hosts the crawl is allowed to visit; everything else is rejected
	AllowedHosts []string `json:"allowed_hosts"`

	// === Limits ===

	// Maximum number of unique pages to admit to the frontier
	MaxPages int `json:"max_pages"`

	// === Speed & Politeness ===

	// Number of concurrent workers (one browser page each)
	Concurrency int `json:"concurrency"`

	// Global request-rate ceiling in requests per second
	RequestsPerSecond float64 `json:"requests_per_second"`

	// Delay each worker waits between navigations
	RequestDelay time.Duration `json:"request_delay"`

	// Minimum spacing between requests to the same host
	PerHostDelay time.Duration `json:"per_host_delay"`

	// === Rendering ===

	// Render mode: js or html
	RenderMode RenderMode `json:"render_mode"`

	// Navigation timeout for a single page
	NavTimeout time.Duration `json:"nav_timeout"`

	// Pause between scroll-to-bottom rounds
	ScrollPause time.Duration `json:"scroll_pause"`

	// Maximum scroll rounds before giving up on lazy loading
	ScrollRounds int `json:"scroll_rounds"`

	// How many times to click a "view more" control before giving up
	ClickRetryLimit int `json:"click_retry_limit"`

	// CSS selectors for "view more" / "load more" controls
	ViewMoreSelectors []string `json:"view_more_selectors"`

	// Visible button/link labels to click, for controls that carry no
	// class or attribute hook (matched case-insensitively on trimmed text)
	ViewMoreTexts []string `json:"view_more_texts"`

	// Chromium executable path (empty = discovered from PATH)
	ChromiumPath string `json:"chromium_path"`

	// User-Agent string
	UserAgent string `json:"user_agent"`

	// === URL Normalization ===

	// Query parameter keys to drop (exact match, lowercase)
	IgnoreQueryParams []string `json:"ignore_query_params"`

	// Query parameter prefixes to drop (utm_ etc.)
	IgnoreQueryPrefixes []string `json:"ignore_query_prefixes"`

	// === Pagination Expansion ===

	// Query parameter that carries a page number
	PageParam string `json:"page_param"`

	// How many pages ahead to speculate from an observed page number
	PageLookahead int `json:"page_lookahead"`

	// === Output ===

	// Directory for the sitemap and report artifacts
	OutputDir string `json:"output_dir"`

	// Split sitemaps larger than this into chunks plus an index
	MaxURLsPerSitemap int `json:"max_urls_per_sitemap"`

	// Write .xml.gz instead of .xml
	GzipSitemaps bool `json:"gzip_sitemaps"`

	// SQLite crawl-record file inside OutputDir (empty disables)
	RecordDB string `json:"record_db"`

	// XLSX crawl report inside OutputDir (empty disables)
	ReportXLSX string `json:"report_xlsx"`
}

// DefaultConfig returns the compiled-in configuration used when no config
// file is present.
func DefaultConfig() *CrawlConfig {
	return &CrawlConfig{
		Seeds: []string{
			"https://www.finploy.com/",
			"https://www.finploy.com/browse-jobs",
			"https://www.finploy.com/jobs",
			"https://www.finploy.com/locations",
			"https://www.finploy.com/companies",
		},
		AllowedHosts: []string{
			"www.finploy.com", "finploy.com",
			"www.finploy.co.uk", "finploy.co.uk",
		},

		MaxPages: 300000,

		Concurrency:       8,
		RequestsPerSecond: 10,
		RequestDelay:      250 * time.Millisecond,
		PerHostDelay:      250 * time.Millisecond,

		RenderMode:      RenderJS,
		NavTimeout:      45 * time.Second,
		ScrollPause:     700 * time.Millisecond,
		ScrollRounds:    8,
		ClickRetryLimit: 12,
		ViewMoreSelectors: []string{
			".view-more", ".load-more", ".show-more",
			".btn-more", ".btn-load",
			"a.load-more",
			"button[aria-label*='more' i]",
			"button[aria-label*='load' i]",
			"[data-action='load-more']",
			"[data-load-more]",
			"[data-more]",
		},
		ViewMoreTexts: []string{
			"View More", "Show More", "More", "Load more", "See more",
		},
		UserAgent: "Sitemapper/1.0 (+https://github.com/sitemap-crawler)",

		IgnoreQueryParams:   []string{"sessionid", "sid", "phpsessid"},
		IgnoreQueryPrefixes: []string{"utm_"},

		PageParam:     "page",
		PageLookahead: 5,

		OutputDir:         "output_sitemaps",
		MaxURLsPerSitemap: 50000,
		GzipSitemaps:      false,
		RecordDB:          "crawl.db",
		ReportXLSX:        "crawl_report.xlsx",
	}
}

// Validate checks the configuration and fills in safe minimums.
func (c *CrawlConfig) Validate() error {
	if len(c.Seeds) == 0 {
		return fmt.Errorf("no seed URLs configured")
	}
	if len(c.AllowedHosts) == 0 {
		return fmt.Errorf("no allowed hosts configured")
	}
	allowed := make(map[string]struct{}, len(c.AllowedHosts))
	for _, h := range c.AllowedHosts {
		allowed[h] = struct{}{}
	}
	for _, seed := range c.Seeds {
		u, err := url.Parse(seed)
		if err != nil {
			return fmt.Errorf("invalid seed URL %q: %w", seed, err)
		}
		if _, ok := allowed[u.Host]; !ok {
			return fmt.Errorf("seed URL %q is outside the allowed hosts", seed)
		}
	}

	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.MaxPages < 1 {
		c.MaxPages = 1
	}
	if c.NavTimeout < time.Second {
		c.NavTimeout = time.Second
	}
	if c.ScrollRounds < 1 {
		c.ScrollRounds = 1
	}
	if c.ClickRetryLimit < 0 {
		c.ClickRetryLimit = 0
	}
	if c.PageLookahead < 0 {
		c.PageLookahead = 0
	}
	if c.MaxURLsPerSitemap < 1 {
		c.MaxURLsPerSitemap = 50000
	}
	if c.RenderMode != RenderJS && c.RenderMode != RenderHTML {
		return fmt.Errorf("unknown render mode %q", c.RenderMode)
	}
	if c.OutputDir == "" {
		c.OutputDir = "output_sitemaps"
	}
	return nil
}

// SitemapPath returns the path of the primary sitemap file.
func (c *CrawlConfig) SitemapPath() string {
	name := "sitemap.xml"
	if c.GzipSitemaps {
		name += ".gz"
	}
	return filepath.Join(c.OutputDir, name)
}

// Load loads configuration from a JSON file, layered over the defaults.
func Load(filePath string) (*CrawlConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save saves the configuration to a JSON file.
func (c *CrawlConfig) Save(filePath string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
