package embed

import (
	"net/url"
	"strings"
)

// trailingEllipsis is the UTF-8 encoding of U+2026, the character
// Bluesky's client appends to text it truncated; a URL ending in it is
// missing its tail and should be trimmed before parsing.
const trailingEllipsis = "…"

// shouldProcessURI reports whether uri is well-formed and not already
// on the popular-host allowlist.
func (c *Checker) shouldProcessURI(uri string) bool {
	target := strings.TrimSuffix(uri, trailingEllipsis)
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return false
	}
	if c.isPopularHost(parsed.Host) {
		return false
	}
	return true
}

// isPopularHost consults the allowlist while also tallying how often
// each host is observed, allowlisted or not. The tally lives only in
// observedHosts; nothing in this package reads it back or logs it.
// observedHosts is recency-ordered (an LRU, not an LFU like the other
// repetition counters) since a host worth remembering here is one
// recently linked, not merely linked often in the distant past.
func (c *Checker) isPopularHost(host string) bool {
	c.mu.Lock()
	n, ok := c.observedHosts.Get(host)
	if !ok {
		v := 0
		n = &v
		c.observedHosts.Add(host, n)
	}
	*n++
	c.mu.Unlock()

	if c.allowlist == nil {
		return false
	}
	return c.allowlist.IsAllowlisted(host)
}
