package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlertNeeded(t *testing.T) {
	cases := []struct {
		count, factor int
		want          bool
	}{
		{10, 10, true},   // quot=1, power of two
		{20, 10, true},   // quot=2
		{40, 10, true},   // quot=4
		{30, 10, false},  // quot=3, not power of two
		{5, 10, false},   // not a multiple
		{0, 10, false},
	}
	for _, c := range cases {
		got := alertNeeded(c.count, c.factor)
		assert.Equalf(t, c.want, got, "alertNeeded(%d, %d)", c.count, c.factor)
	}
}

func TestFacetSpamScenario(t *testing.T) {
	a := NewAccount("did:plc:test", DefaultFactors(), DefaultFacetThresholds(), MaxContentItems, nil)
	a.Facets(40, 15, 0) // 40 tags, 15 mentions, exceeds Tag=23 and Mention=10
	assert.Equal(t, 2, a.alertCount, "expected exactly two facet alerts")
}

func TestReplyTouchesParentAccount(t *testing.T) {
	c := NewEventCache(100, 30, DefaultFactors(), DefaultFacetThresholds(), nil)
	c.Record(TimedEvent{Did: "did:plc:replier", Event: ReplyEvent{
		URI:    "at://did:plc:replier/app.bsky.feed.post/1",
		Root:   "at://did:plc:author/app.bsky.feed.post/root",
		Parent: "at://did:plc:author/app.bsky.feed.post/parent",
	}})

	replier := c.GetAccount("did:plc:replier")
	assert.EqualValues(t, 1, replier.replies)

	author := c.GetAccount("did:plc:author")
	assert.EqualValues(t, 1, author.repliedTo)
	item := author.ContentItem("at://did:plc:author/app.bsky.feed.post/parent")
	assert.EqualValues(t, 1, item.Replies)
}

func TestAccountCacheEvictionNotifiesSink(t *testing.T) {
	var evicted []EvictedItem
	sink := sinkFunc(func(item EvictedItem) { evicted = append(evicted, item) })

	c := NewEventCache(1, 30, DefaultFactors(), DefaultFacetThresholds(), sink)
	a := c.GetAccount("did:plc:a")
	a.emitAlert("test", 1) // give it an alert so eviction is "of interest"

	c.GetAccount("did:plc:b") // forces eviction of "a" at capacity 1

	if assert.Len(t, evicted, 1) {
		assert.Equal(t, "account", evicted[0].Kind)
		assert.Equal(t, "did:plc:a", evicted[0].Key)
	}
}

type sinkFunc func(EvictedItem)

func (f sinkFunc) Evicted(item EvictedItem) { f(item) }
