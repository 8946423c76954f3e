// Package parser extracts candidate link URLs from rendered HTML.
package parser

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Attributes commonly used to stash lazy-loaded link targets.
var dataLinkAttrs = []string{"data-url", "data-href", "data-link", "data-target-url"}

var (
	absoluteURLRe  = regexp.MustCompile(`https?://[^\s'"]+`)
	quotedPathRe   = regexp.MustCompile(`['"](/[^'"]+)['"]`)
	scriptEndpoint = regexp.MustCompile(`['"](/(?:api|ajax|data|jobs|search)[^'"]+)['"]`)
)

// ExtractLinks returns every raw candidate URL found in the document:
// anchor hrefs, lazy-link data attributes, URLs embedded in onclick
// handlers, endpoint paths in inline script text, and the canonical link.
// Results may be relative; resolution against the page URL, normalization,
// and filtering are the caller's job. Unparsable fragments are skipped,
// never fatal.
func ExtractLinks(content string) []string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		if _, dup := seen[raw]; dup {
			return
		}
		seen[raw] = struct{}{}
		links = append(links, raw)
	}

	var traverse func(n *html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a", "area":
				if href := getAttr(n, "href"); !skipHref(href) {
					add(href)
				}
			case "link":
				if strings.EqualFold(getAttr(n, "rel"), "canonical") {
					add(getAttr(n, "href"))
				}
			case "script":
				if getAttr(n, "src") == "" {
					extractFromScript(textContent(n), add)
				}
			}

			for _, attr := range dataLinkAttrs {
				if v := getAttr(n, attr); v != "" {
					add(v)
				}
			}
			if onclick := getAttr(n, "onclick"); onclick != "" {
				extractFromHandler(onclick, add)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	return links
}

// extractFromHandler pulls absolute URLs and quoted root-relative paths
// out of an inline event handler.
func extractFromHandler(script string, add func(string)) {
	for _, m := range absoluteURLRe.FindAllString(script, -1) {
		add(strings.TrimRight(m, "\"').,;"))
	}
	for _, m := range quotedPathRe.FindAllStringSubmatch(script, -1) {
		add(m[1])
	}
}

// extractFromScript pulls likely endpoint paths out of inline script text.
func extractFromScript(script string, add func(string)) {
	for _, m := range scriptEndpoint.FindAllStringSubmatch(script, -1) {
		add(m[1])
	}
}

// skipHref filters anchors that can never become crawlable URLs.
func skipHref(href string) bool {
	if href == "" {
		return true
	}
	lower := strings.ToLower(href)
	return strings.HasPrefix(href, "#") ||
		strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:")
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}
