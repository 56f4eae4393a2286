package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/atscope/modguard/internal/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueAndDrain(t *testing.T) {
	cache := activity.NewEventCache(100, 30, activity.DefaultFactors(), activity.DefaultFacetThresholds(), nil)
	r := New(cache, 4)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	require.NoError(t, r.Enqueue(ctx, activity.TimedEvent{
		Did:   "did:plc:a",
		Event: activity.PostEvent{URI: "at://did:plc:a/app.bsky.feed.post/1"},
	}))

	cancel()
	<-r.Done()

	acct := cache.GetAccount("did:plc:a")
	assert.EqualValues(t, 1, acct.EventCount())
}

func TestEnqueueRespectsContextCancellation(t *testing.T) {
	cache := activity.NewEventCache(100, 30, activity.DefaultFactors(), activity.DefaultFacetThresholds(), nil)
	r := New(cache, 1)

	// Fill the single slot without a consumer running.
	require.NoError(t, r.Enqueue(context.Background(), activity.TimedEvent{Did: "did:plc:a", Event: activity.ActiveEvent{}}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.Enqueue(ctx, activity.TimedEvent{Did: "did:plc:b", Event: activity.ActiveEvent{}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBacklogReflectsQueueDepth(t *testing.T) {
	cache := activity.NewEventCache(100, 30, activity.DefaultFactors(), activity.DefaultFacetThresholds(), nil)
	r := New(cache, 4)

	require.NoError(t, r.Enqueue(context.Background(), activity.TimedEvent{Did: "did:plc:a", Event: activity.ActiveEvent{}}))
	assert.Equal(t, 1, r.Backlog())
}
