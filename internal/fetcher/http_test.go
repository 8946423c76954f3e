package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	t.Run("extracts links and last modified", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Last-Modified", "Wed, 01 May 2024 12:00:00 GMT")
			w.Write([]byte(`<html><body><a href="/jobs">Jobs</a><a href="/about">About</a></body></html>`))
		}))
		defer server.Close()

		f := NewHTTPFetcher(5*time.Second, "test-agent")
		defer f.Close()

		result, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if result.StatusCode != 200 {
			t.Errorf("status = %d, want 200", result.StatusCode)
		}
		if len(result.Links) != 2 {
			t.Errorf("links = %v, want 2 entries", result.Links)
		}
		want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		if !result.LastModified.Equal(want) {
			t.Errorf("last modified = %v, want %v", result.LastModified, want)
		}
	})

	t.Run("non-success status is a navigation failure", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer server.Close()

		f := NewHTTPFetcher(5*time.Second, "test-agent")
		defer f.Close()

		_, err := f.Fetch(context.Background(), server.URL)
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("expected FetchError, got %v", err)
		}
		if fetchErr.Kind != KindNavigationFailed {
			t.Errorf("kind = %s, want %s", fetchErr.Kind, KindNavigationFailed)
		}
	})

	t.Run("timeout is classified", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
		}))
		defer server.Close()

		f := NewHTTPFetcher(50*time.Millisecond, "test-agent")
		defer f.Close()

		_, err := f.Fetch(context.Background(), server.URL)
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("expected FetchError, got %v", err)
		}
		if fetchErr.Kind != KindTimeout {
			t.Errorf("kind = %s, want %s", fetchErr.Kind, KindTimeout)
		}
	})

	t.Run("sends user agent", func(t *testing.T) {
		t.Parallel()
		var gotAgent string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAgent = r.UserAgent()
		}))
		defer server.Close()

		f := NewHTTPFetcher(5*time.Second, "Sitemapper/1.0")
		defer f.Close()

		if _, err := f.Fetch(context.Background(), server.URL); err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if gotAgent != "Sitemapper/1.0" {
			t.Errorf("user agent = %q", gotAgent)
		}
	})
}

func TestParseLastModified(t *testing.T) {
	t.Parallel()

	if _, ok := ParseLastModified(""); ok {
		t.Error("empty header should not parse")
	}
	if _, ok := ParseLastModified("not a date"); ok {
		t.Error("garbage should not parse")
	}
	got, ok := ParseLastModified("Wed, 01 May 2024 12:00:00 GMT")
	if !ok {
		t.Fatal("RFC 1123 header should parse")
	}
	if got.Year() != 2024 || got.Month() != time.May {
		t.Errorf("parsed %v", got)
	}
}
