package activity

import (
	"github.com/atscope/modguard/pkg/lfucache"
	"github.com/atscope/modguard/pkg/mlog"
)

// State is an account's lifecycle state as reported by identity/account
// firehose messages.
type State int

const (
	StateUnknown State = iota
	StateActive
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Account tracks one did's behavioral counters plus its nested
// per-content cache. It is never mutated concurrently: all mutation is
// serialized through the recorder goroutine (see internal/recorder).
type Account struct {
	did string

	eventCount int
	alertCount int

	tagExceedCount     int
	mentionExceedCount int
	linkExceedCount    int
	totalFacets        int

	posts     int32
	repliedTo int32
	replies   int32
	quoted    int32
	quotes    int32
	reposted  int32
	reposts   int32
	liked     int32
	likes     int32

	follows    int32
	followedBy int32
	blocks     int32
	blockedBy  int32

	state       State
	updates     uint16
	activations uint16
	profiles    uint16
	handles     uint16
	matches     uint16

	deletesByCollection map[string]int

	content *lfucache.Cache[string, *ContentHitCount]

	factors    Factors
	thresholds FacetThresholds
	sink       EvictionSink
}

// NewAccount constructs an empty Account for did, with its own bounded
// per-content cache (capacity contentCapacity, MaxContentItems=30 per
// spec.md section 3).
func NewAccount(did string, factors Factors, thresholds FacetThresholds, contentCapacity int, sink EvictionSink) *Account {
	if sink == nil {
		sink = NoopSink()
	}
	a := &Account{
		did:                 did,
		state:               StateUnknown,
		deletesByCollection: map[string]int{},
		factors:             factors,
		thresholds:          thresholds,
		sink:                sink,
	}
	a.content = lfucache.New[string, *ContentHitCount](contentCapacity, func(uri string, c *ContentHitCount) {
		if c.Alerts > 0 {
			mlog.Infof("content %s evicted with %d alerts, %d hits", uri, c.Alerts, c.Hits)
			sink.Evicted(EvictedItem{Kind: "content", Key: uri, Alerts: c.Alerts, Hits: c.Hits})
		}
	})
	return a
}

func (a *Account) Did() string { return a.did }
func (a *Account) EventCount() int { return a.eventCount }
func (a *Account) AlertCount() int { return a.alertCount }
func (a *Account) Posts() int32 { return a.posts }
func (a *Account) State() State { return a.state }
func (a *Account) Matches() uint16 { return a.matches }

// ContentItem returns the shared handle for uri, creating it at zero
// value on first reference.
func (a *Account) ContentItem(uri string) *ContentHitCount {
	return a.content.GetOrCreate(uri, func() *ContentHitCount { return &ContentHitCount{} })
}

func (a *Account) emitAlert(label string, count int) {
	a.alertCount++
	mlog.Infof("account %s flagged %s (count=%d)", a.did, label, count)
	if alertNeeded(a.alertCount, a.factors.Alert) {
		mlog.Warnf("account %s alert-summary threshold reached (%d alerts)", a.did, a.alertCount)
	}
}

func (a *Account) bumpAlert(label string, count int, factor int) {
	if alertNeeded(count, factor) {
		a.emitAlert(label, count)
	}
}

func (a *Account) touchEvent() {
	a.eventCount++
	a.bumpAlert("event-volume", a.eventCount, a.factors.Event)
}

// Facets applies the per-post facet-abuse thresholds: exceeding a
// category's threshold immediately counts as one alert for that
// category (see DESIGN.md for why this departs from the original's
// power-of-two-gated exceedance counter). Total facet volume is tracked
// for information only and does not alert on its own.
func (a *Account) Facets(tags, mentions, links int) {
	if tags > a.thresholds.Tag {
		a.tagExceedCount++
		a.emitAlert("tag-facets", a.tagExceedCount)
	}
	if mentions > a.thresholds.Mention {
		a.mentionExceedCount++
		a.emitAlert("mention-facets", a.mentionExceedCount)
	}
	if links > a.thresholds.Link {
		a.linkExceedCount++
		a.emitAlert("link-facets", a.linkExceedCount)
	}
	a.totalFacets += tags + mentions + links
}

func (a *Account) Post(uri string) {
	a.posts++
	a.bumpAlert("posts", int(a.posts), a.factors.Post)
}

func (a *Account) RepliedTo() {
	a.repliedTo++
	a.bumpAlert("replied-to", int(a.repliedTo), a.factors.RepliedTo)
}

func (a *Account) Reply() {
	a.replies++
	a.bumpAlert("replies", int(a.replies), a.factors.Reply)
}

func (a *Account) Quoted() {
	a.quoted++
	a.bumpAlert("quoted", int(a.quoted), a.factors.Quoted)
}

func (a *Account) Quote() {
	a.quotes++
	a.bumpAlert("quotes", int(a.quotes), a.factors.Quote)
}

func (a *Account) Reposted() {
	a.reposted++
	a.bumpAlert("reposted", int(a.reposted), a.factors.Reposted)
}

func (a *Account) Repost() {
	a.reposts++
	a.bumpAlert("reposts", int(a.reposts), a.factors.Repost)
}

func (a *Account) Liked() {
	a.liked++
	a.bumpAlert("liked", int(a.liked), a.factors.Liked)
}

func (a *Account) Like() {
	a.likes++
	a.bumpAlert("likes", int(a.likes), a.factors.Like)
}

func (a *Account) Follows() {
	a.follows++
	a.bumpAlert("follows", int(a.follows), a.factors.Follows)
}

func (a *Account) FollowedBy() {
	a.followedBy++
	a.bumpAlert("followed-by", int(a.followedBy), a.factors.FollowedBy)
}

func (a *Account) Blocks() {
	a.blocks++
	a.bumpAlert("blocks", int(a.blocks), a.factors.Blocks)
}

func (a *Account) BlockedBy() {
	a.blockedBy++
	a.bumpAlert("blocked-by", int(a.blockedBy), a.factors.BlockedBy)
}

func (a *Account) Updated() {
	a.updates++
	a.bumpAlert("updates", int(a.updates), a.factors.Update)
}

func (a *Account) Activation(active bool) {
	a.activations++
	if active {
		a.state = StateActive
	} else {
		a.state = StateInactive
	}
	a.bumpAlert("activations", int(a.activations), a.factors.Update)
}

func (a *Account) Profile() {
	a.profiles++
	a.bumpAlert("profiles", int(a.profiles), a.factors.Update)
}

func (a *Account) Handle() {
	a.handles++
	a.bumpAlert("handles", int(a.handles), a.factors.Update)
}

func (a *Account) AddMatches(n uint16) {
	a.matches += n
	a.bumpAlert("matches", int(a.matches), a.factors.Match)
}

// Delete records a deletion classified by its collection prefix
// (post/like/repost/follow/block/list/profile), per
// account_events.cpp's handle_delete rather than one generic counter.
func (a *Account) Delete(collection string) {
	a.deletesByCollection[collection]++
	total := 0
	for _, n := range a.deletesByCollection {
		total += n
	}
	a.bumpAlert("deletes", total, a.factors.Delete)
}

// DeletesByCollection returns a copy of the per-collection delete
// counters for diagnostics/reporting.
func (a *Account) DeletesByCollection() map[string]int {
	out := make(map[string]int, len(a.deletesByCollection))
	for k, v := range a.deletesByCollection {
		out[k] = v
	}
	return out
}

// contentReply/Repost/Quote/Like mutate a referenced content item's
// counters using the content-level factor table; they are called by
// EventCache.Record when an event references another account's content.

func (a *Account) contentReply(item *ContentHitCount) {
	item.Replies++
	item.hit()
	if alertNeeded(int(item.Replies), a.factors.ContentReply) {
		item.alert()
	}
}

func (a *Account) contentRepost(item *ContentHitCount) {
	item.Reposts++
	item.hit()
	if alertNeeded(int(item.Reposts), a.factors.ContentRepost) {
		item.alert()
	}
}

func (a *Account) contentQuote(item *ContentHitCount) {
	item.Quotes++
	item.hit()
	if alertNeeded(int(item.Quotes), a.factors.ContentQuote) {
		item.alert()
	}
}

func (a *Account) contentLike(item *ContentHitCount) {
	item.Likes++
	item.hit()
	if alertNeeded(int(item.Likes), a.factors.ContentLike) {
		item.alert()
	}
}
