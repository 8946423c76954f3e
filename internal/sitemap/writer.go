// Package sitemap serializes visited URLs into sitemaps.org XML documents.
package sitemap

import (
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sitemap-crawler/sitemapper/internal/frontier"
)

// Namespace is the sitemaps.org protocol namespace.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// URLSet is a sitemap urlset document.
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// URL is a single url element.
type URL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// Index is a sitemapindex document referencing chunked sitemaps.
type Index struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Xmlns    string       `xml:"xmlns,attr"`
	Sitemaps []IndexEntry `xml:"sitemap"`
}

// IndexEntry is a single sitemap reference in an index.
type IndexEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// Writer writes sitemap files for a visited snapshot.
type Writer struct {
	// Output directory, created if missing
	Dir string

	// Chunk threshold; above it, numbered chunks plus an index are written
	MaxURLsPerFile int

	// Write .xml.gz files
	Gzip bool

	// Base URL prefix for index entries (host root of the crawl)
	BaseURL string
}

// Write serializes the entries into sitemap files. Entries that cannot be
// serialized are skipped with a warning; only destination I/O errors
// abort. Output order matches the input order so repeated runs over the
// same input are diffable.
func (w *Writer) Write(entries []frontier.Entry) error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	urls := make([]URL, 0, len(entries))
	for _, entry := range entries {
		u, ok := toURL(entry)
		if !ok {
			log.Printf("sitemap: skipping malformed entry %q", entry.URL)
			continue
		}
		urls = append(urls, u)
	}

	maxPerFile := w.MaxURLsPerFile
	if maxPerFile <= 0 {
		maxPerFile = 50000
	}

	if len(urls) <= maxPerFile {
		return w.writeURLSet(w.fileName("sitemap"), urls)
	}
	return w.writeChunked(urls, maxPerFile)
}

// writeChunked writes numbered sitemap chunks plus a sitemap.xml index.
func (w *Writer) writeChunked(urls []URL, maxPerFile int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var index Index
	index.Xmlns = Namespace

	for i := 0; len(urls) > 0; i++ {
		n := maxPerFile
		if n > len(urls) {
			n = len(urls)
		}
		name := w.fileName(fmt.Sprintf("sitemap-%d", i+1))
		if err := w.writeURLSet(name, urls[:n]); err != nil {
			return err
		}
		index.Sitemaps = append(index.Sitemaps, IndexEntry{
			Loc:     w.BaseURL + "/" + name,
			LastMod: now,
		})
		urls = urls[n:]
	}

	return w.writeDoc(w.fileName("sitemap"), index)
}

func (w *Writer) writeURLSet(name string, urls []URL) error {
	return w.writeDoc(name, URLSet{Xmlns: Namespace, URLs: urls})
}

// writeDoc marshals a document to Dir/name with an XML declaration.
func (w *Writer) writeDoc(name string, doc interface{}) error {
	path := filepath.Join(w.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	var out io.Writer = f
	var gz *gzip.Writer
	if w.Gzip {
		gz = gzip.NewWriter(f)
		out = gz
	}

	if _, err := io.WriteString(out, xml.Header); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	enc := xml.NewEncoder(out)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if _, err := io.WriteString(out, "\n"); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return f.Close()
}

func (w *Writer) fileName(base string) string {
	if w.Gzip {
		return base + ".xml.gz"
	}
	return base + ".xml"
}

// toURL converts a visited entry into a sitemap URL. lastmod prefers the
// page's Last-Modified header and falls back to the crawl timestamp.
func toURL(entry frontier.Entry) (URL, bool) {
	if entry.URL == "" {
		return URL{}, false
	}

	lastmod := entry.LastModified
	if lastmod.IsZero() {
		lastmod = entry.CrawledAt
	}
	if lastmod.IsZero() {
		return URL{}, false
	}

	return URL{
		Loc:     entry.URL,
		LastMod: lastmod.UTC().Format(time.RFC3339),
	}, true
}
