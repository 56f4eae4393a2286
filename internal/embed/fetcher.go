package embed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"

// HTTPFetcher follows a URL's redirect chain by hand (rather than
// relying on http.Client's automatic redirect following) so each hop
// can be recorded and capped at UrlRedirectLimit.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a Fetcher with the connect/send/receive timeout
// budget from the concurrency model (2s each).
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: 6 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// FollowRedirects issues a browser-like GET against rawURL, following
// Location headers up to UrlRedirectLimit hops. chain records every URL
// visited, root first. overflowed is true once the limit is exceeded.
func (f *HTTPFetcher) FollowRedirects(ctx context.Context, rawURL string) (chain []string, overflowed bool, err error) {
	current := rawURL
	chain = append(chain, current)

	for hop := 0; hop < UrlRedirectLimit; hop++ {
		req, buildErr := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if buildErr != nil {
			return chain, false, buildErr
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, doErr := f.client.Do(req)
		if doErr != nil {
			if errors.Is(doErr, io.EOF) {
				continue
			}
			return chain, false, doErr
		}
		loc := resp.Header.Get("Location")
		resp.Body.Close()

		if !isRedirectStatus(resp.StatusCode) || loc == "" {
			return chain, false, nil
		}

		next, parseErr := url.Parse(loc)
		if parseErr != nil {
			return chain, false, parseErr
		}
		base, _ := url.Parse(current)
		current = base.ResolveReference(next).String()
		chain = append(chain, current)
	}
	return chain, true, nil
}

func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}
