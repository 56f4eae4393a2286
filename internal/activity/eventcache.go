package activity

import (
	"github.com/atscope/modguard/pkg/lfucache"
	"github.com/atscope/modguard/pkg/mlog"
)

// MaxAccounts is the outer event cache's default capacity.
const MaxAccounts = 250_000

// MaxContentItems is the per-account content cache's default capacity.
// spec.md section 3 states 30; original_source's account_events.hpp
// uses 25; the distilled spec's explicit value wins.
const MaxContentItems = 30

// EventCache is the LFU-bounded did -> Account mapping that the
// recorder goroutine serializes all mutation through.
type EventCache struct {
	accounts        *lfucache.Cache[string, *Account]
	factors         Factors
	thresholds      FacetThresholds
	contentCapacity int
	sink            EvictionSink
}

// NewEventCache constructs an EventCache with the given outer capacity.
func NewEventCache(maxAccounts, contentCapacity int, factors Factors, thresholds FacetThresholds, sink EvictionSink) *EventCache {
	if sink == nil {
		sink = NoopSink()
	}
	c := &EventCache{factors: factors, thresholds: thresholds, contentCapacity: contentCapacity, sink: sink}
	c.accounts = lfucache.New[string, *Account](maxAccounts, func(did string, a *Account) {
		if a.AlertCount() > 0 {
			mlog.Infof("account %s evicted with %d alerts, %d events", did, a.AlertCount(), a.EventCount())
			sink.Evicted(EvictedItem{Kind: "account", Key: did, Alerts: a.AlertCount()})
		}
	})
	return c
}

// GetAccount returns the existing Account for did or creates an empty
// one.
func (c *EventCache) GetAccount(did string) *Account {
	return c.accounts.GetOrCreate(did, func() *Account {
		return NewAccount(did, c.factors, c.thresholds, c.contentCapacity, c.sink)
	})
}

// Len reports the current number of tracked accounts (for metrics).
func (c *EventCache) Len() int { return c.accounts.Len() }

// Record dispatches te into the type-indexed handler that mutates the
// actor Account's counters and, for events referencing another account
// or a content item, also touches those targets' counters.
func (c *EventCache) Record(te TimedEvent) {
	actor := c.GetAccount(te.Did)
	actor.touchEvent()

	switch ev := te.Event.(type) {
	case PostEvent:
		actor.Post(ev.URI)
	case ReplyEvent:
		actor.Reply()
		if parent := authorDID(ev.Parent); parent != "" {
			parentAcct := c.GetAccount(parent)
			parentAcct.RepliedTo()
			parentAcct.contentReply(parentAcct.ContentItem(ev.Parent))
		}
	case RepostEvent:
		actor.Repost()
		if author := authorDID(ev.Post); author != "" {
			authorAcct := c.GetAccount(author)
			authorAcct.Reposted()
			authorAcct.contentRepost(authorAcct.ContentItem(ev.Post))
		}
	case QuoteEvent:
		actor.Quote()
		if author := authorDID(ev.Post); author != "" {
			authorAcct := c.GetAccount(author)
			authorAcct.Quoted()
			authorAcct.contentQuote(authorAcct.ContentItem(ev.Post))
		}
	case LikeEvent:
		actor.Like()
		if author := authorDID(ev.Content); author != "" {
			authorAcct := c.GetAccount(author)
			authorAcct.Liked()
			authorAcct.contentLike(authorAcct.ContentItem(ev.Content))
		}
	case FollowEvent:
		actor.Follows()
		if ev.Followed != "" {
			c.GetAccount(ev.Followed).FollowedBy()
		}
	case BlockEvent:
		actor.Blocks()
		if ev.Blocked != "" {
			c.GetAccount(ev.Blocked).BlockedBy()
		}
	case ActiveEvent:
		actor.Activation(true)
	case InactiveEvent:
		actor.Activation(false)
	case HandleEvent:
		actor.Handle()
	case ProfileEvent:
		actor.Profile()
	case MatchesEvent:
		actor.AddMatches(ev.Count)
	case FacetsEvent:
		actor.Facets(ev.Tags, ev.Mentions, ev.Links)
	case DeleteEvent:
		actor.Delete(ev.Collection)
	}
}
