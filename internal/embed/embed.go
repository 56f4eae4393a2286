// Package embed analyzes the embeds extracted from posts: external
// links, images, quoted records, and videos. Work is distributed over a
// fixed worker pool draining a bounded queue; all workers share the
// Checker's single Fetcher for redirect-chain resolution.
package embed

import (
	"context"
	"sync"

	"github.com/atscope/modguard/internal/alertrate"
	"github.com/atscope/modguard/pkg/lfucache"
	"github.com/atscope/modguard/pkg/mlog"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Kind identifies which embed variant a Reference carries.
type Kind int

const (
	External Kind = iota
	Image
	Record
	Video
)

// Reference is one embed extracted from a record by the dispatcher.
type Reference struct {
	Kind Kind
	// URI is the external link URL for External, or the quoted record's
	// at-uri for Record.
	URI string
	// CID is the blob CID for Image/Video.
	CID string
}

// Batch is everything extracted from a single record, queued together
// so a worker processes one record's embeds without interleaving.
type Batch struct {
	Did  string
	Path string
	Refs []Reference
}

const (
	// DefaultWorkers matches embed_checker's number_of_threads default.
	DefaultWorkers = 5
	// QueueCapacity is the Dispatcher->EmbedQueue bound from the
	// concurrency model.
	QueueCapacity = 50_000
	// UrlRedirectLimit caps the redirect chain length before a
	// link-redirection report is filed.
	UrlRedirectLimit = 10

	imageFactor  = 5
	linkFactor   = 5
	recordFactor = 5

	maxObservedHosts = 10_000
)

// Reporter receives what the embed checker produces: a redirect-overflow
// report and per-hop redirect URLs to run matches against. In the
// process it is implemented by dispatch.EmbedReporter.
type Reporter interface {
	ReportRedirectOverflow(did, path string, chain []string)
	MatchText(did, path, text string)
}

// AllowlistSource checks whether a host is on the operator's popular
// host allowlist (refreshed periodically from the auxiliary DB).
type AllowlistSource interface {
	IsAllowlisted(host string) bool
}

// Fetcher performs the redirect-following GET a worker issues for an
// external URL; swappable in tests.
type Fetcher interface {
	FollowRedirects(ctx context.Context, url string) (chain []string, overflowed bool, err error)
}

// Checker owns the worker pool and the repetition-counting caches.
type Checker struct {
	queue     chan Batch
	workers   int
	follow    bool
	reporter  Reporter
	allowlist AllowlistSource
	fetcher   Fetcher

	mu             sync.Mutex
	checkedImages  *lfucache.Cache[string, *int]
	checkedRecords *lfucache.Cache[string, *int]
	checkedURIs    *lfucache.Cache[string, *int]
	observedHosts  *lru.Cache[string, *int]
}

// Config controls worker count and whether external links are followed.
type Config struct {
	FollowLinks     bool
	NumberOfThreads int
}

// New constructs a Checker. reporter and allowlist are required;
// fetcher may be nil to use the default HTTP-based Fetcher.
func New(cfg Config, reporter Reporter, allowlist AllowlistSource, fetcher Fetcher) *Checker {
	workers := cfg.NumberOfThreads
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if fetcher == nil {
		fetcher = NewHTTPFetcher()
	}
	hosts, err := lru.New[string, *int](maxObservedHosts)
	if err != nil {
		// Only returned for a non-positive size, which maxObservedHosts never is.
		panic(err)
	}
	return &Checker{
		queue:          make(chan Batch, QueueCapacity),
		workers:        workers,
		follow:         cfg.FollowLinks,
		reporter:       reporter,
		allowlist:      allowlist,
		fetcher:        fetcher,
		checkedImages:  lfucache.New[string, *int](maxObservedHosts, nil),
		checkedRecords: lfucache.New[string, *int](maxObservedHosts, nil),
		checkedURIs:    lfucache.New[string, *int](maxObservedHosts, nil),
		observedHosts:  hosts,
	}
}

// Enqueue hands a batch to the worker pool, blocking if the queue is
// full.
func (c *Checker) Enqueue(ctx context.Context, b Batch) error {
	select {
	case c.queue <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backlog reports current queue depth for telemetry gauges.
func (c *Checker) Backlog() int { return len(c.queue) }

// Run starts the worker pool and blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx)
		}()
	}
	wg.Wait()
}

func (c *Checker) worker(ctx context.Context) {
	for {
		select {
		case b := <-c.queue:
			c.process(ctx, b)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Checker) process(ctx context.Context, b Batch) {
	for _, ref := range b.Refs {
		switch ref.Kind {
		case Image:
			c.bumpCounter(c.checkedImages, ref.CID, imageFactor, "image", b.Did, b.Path)
		case Record:
			c.bumpCounter(c.checkedRecords, ref.URI, recordFactor, "record", b.Did, b.Path)
		case Video:
			c.bumpCounter(c.checkedImages, ref.CID, imageFactor, "video", b.Did, b.Path)
		case External:
			c.processExternal(ctx, b.Did, b.Path, ref.URI)
		}
	}
}

func (c *Checker) bumpCounter(cache *lfucache.Cache[string, *int], key string, factor int, kind, did, path string) {
	n := cache.GetOrCreate(key, func() *int { v := 0; return &v })
	c.mu.Lock()
	*n++
	count := *n
	c.mu.Unlock()
	if alertrate.Needed(count, factor) {
		mlog.Infof("embed: %s repetition count %d for %s at %s/%s", kind, count, key, did, path)
	}
}

func (c *Checker) processExternal(ctx context.Context, did, path, uri string) {
	seen := c.uriSeen(did, path, uri)
	if seen || !c.shouldProcessURI(uri) {
		return
	}
	if !c.follow {
		return
	}
	chain, overflowed, err := c.fetcher.FollowRedirects(ctx, uri)
	if err != nil {
		mlog.Errorf("embed: redirect check for %s failed: %v", uri, err)
		return
	}
	for _, hop := range chain {
		c.reporter.MatchText(did, path, hop)
	}
	if overflowed {
		mlog.Errorf("embed: redirect limit exceeded for %s", uri)
		c.reporter.ReportRedirectOverflow(did, path, chain)
	}
}

func (c *Checker) uriSeen(did, path, uri string) bool {
	n := c.checkedURIs.GetOrCreate(uri, func() *int { v := 0; return &v })
	c.mu.Lock()
	*n++
	count := *n
	c.mu.Unlock()
	if count == 1 {
		return false
	}
	if alertrate.Needed(count, linkFactor) {
		mlog.Infof("embed: link repetition count %d for %s at %s/%s", count, uri, did, path)
	}
	return true
}
