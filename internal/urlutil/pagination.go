package urlutil

import (
	"net/url"
	"strconv"
)

// Expander derives additional page-number candidates from URLs that carry
// a paging query parameter. Many paginated listings omit a visible "next
// page" link; a bounded look-ahead recovers them without unbounded
// speculative crawling.
type Expander struct {
	// Query parameter holding the page number
	Param string

	// How many pages past the observed number to speculate
	Lookahead int
}

// NewExpander creates an expander for the given paging parameter.
func NewExpander(param string, lookahead int) *Expander {
	return &Expander{Param: param, Lookahead: lookahead}
}

// Expand returns candidate URLs for page numbers N+1 .. N+Lookahead when
// normalizedURL carries the paging parameter with integer value N. The
// result is empty otherwise. Candidates still need to pass through the
// normalizer and the frontier's admission check.
//
// Known limitation: this fires on any integer-valued parameter with the
// configured name, even when it does not drive pagination; the look-ahead
// bound keeps misfires from running away.
func (e *Expander) Expand(normalizedURL string) []string {
	if e.Param == "" || e.Lookahead <= 0 {
		return nil
	}

	u, err := url.Parse(normalizedURL)
	if err != nil {
		return nil
	}

	query := u.Query()
	current := query.Get(e.Param)
	if current == "" {
		return nil
	}
	n, err := strconv.Atoi(current)
	if err != nil || n < 0 {
		return nil
	}

	candidates := make([]string, 0, e.Lookahead)
	for inc := 1; inc <= e.Lookahead; inc++ {
		query.Set(e.Param, strconv.Itoa(n+inc))
		next := *u
		next.RawQuery = query.Encode()
		candidates = append(candidates, next.String())
	}
	return candidates
}
