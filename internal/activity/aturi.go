package activity

import "strings"

// authorDID extracts the repo did from an at-uri of the form
// "at://<did>/<collection>/<rkey>", the way a reply/repost/quote/like
// target's owning account is identified without a separate lookup.
func authorDID(atURI string) string {
	const prefix = "at://"
	if !strings.HasPrefix(atURI, prefix) {
		return ""
	}
	rest := atURI[len(prefix):]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	return rest
}
