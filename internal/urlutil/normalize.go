// Package urlutil provides URL normalization and pagination expansion.
package urlutil

import (
	"net/url"
	"sort"
	"strings"
)

// Normalizer canonicalizes raw URL strings into a comparable form. Two raw
// URLs that normalize identically are the same frontier entity.
type Normalizer struct {
	// Hosts the crawl may visit; anything else is rejected
	AllowedHosts map[string]struct{}

	// Query parameter keys to remove (exact, lowercase)
	IgnoreParams map[string]struct{}

	// Query parameter key prefixes to remove (utm_ etc.)
	IgnorePrefixes []string
}

// NewNormalizer creates a normalizer for the given allowlist and
// tracking-parameter denylist.
func NewNormalizer(allowedHosts, ignoreParams, ignorePrefixes []string) *Normalizer {
	hosts := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}
	params := make(map[string]struct{}, len(ignoreParams))
	for _, p := range ignoreParams {
		params[strings.ToLower(p)] = struct{}{}
	}
	prefixes := make([]string, len(ignorePrefixes))
	for i, p := range ignorePrefixes {
		prefixes[i] = strings.ToLower(p)
	}
	return &Normalizer{
		AllowedHosts:   hosts,
		IgnoreParams:   params,
		IgnorePrefixes: prefixes,
	}
}

// Normalize resolves rawURL against baseURL and canonicalizes it. The
// second return value is false when the URL is malformed, not http(s), or
// outside the allowed hosts. Normalizing an already-normalized URL yields
// the same value.
func (n *Normalizer) Normalize(rawURL, baseURL string) (string, bool) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	if baseURL != "" && !u.IsAbs() {
		base, err := url.Parse(baseURL)
		if err != nil {
			return "", false
		}
		u = base.ResolveReference(u)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}

	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	} else {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	if _, ok := n.AllowedHosts[u.Host]; !ok {
		return "", false
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Path = normalizePath(u.Path)
	u.RawPath = ""
	u.RawQuery = n.cleanQuery(u.Query())

	return u.String(), true
}

// cleanQuery drops denylisted parameters and re-encodes the rest sorted by
// key, keeping duplicate keys in their original value order.
func (n *Normalizer) cleanQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		if n.ignored(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		for _, v := range query[k] {
			if v == "" {
				parts = append(parts, url.QueryEscape(k))
			} else {
				parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
	}
	return strings.Join(parts, "&")
}

func (n *Normalizer) ignored(key string) bool {
	lower := strings.ToLower(key)
	if _, ok := n.IgnoreParams[lower]; ok {
		return true
	}
	for _, prefix := range n.IgnorePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// normalizePath collapses duplicate slashes, resolves . and .. segments,
// and strips the trailing slash (except for the root path).
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}

	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}

	parts := strings.Split(path, "/")
	var result []string
	for _, part := range parts {
		switch part {
		case ".":
			// drop
		case "..":
			if len(result) > 1 {
				result = result[:len(result)-1]
			}
		default:
			result = append(result, part)
		}
	}

	normalized := strings.Join(result, "/")
	if normalized == "" || normalized[0] != '/' {
		normalized = "/" + normalized
	}
	if len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

// Host extracts the lowercase host from a URL.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
