package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct{ depth int }

func (f fakeQueue) Backlog() int { return f.depth }

func TestRedirectLimitExceededIncrements(t *testing.T) {
	m := New()
	m.RedirectLimitExceeded.Inc()
	m.RedirectLimitExceeded.Inc()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RedirectLimitExceeded))
}

func TestRunPollsBacklogIntoGauge(t *testing.T) {
	m := New()
	m.Track("recorder", fakeQueue{depth: 7})

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.QueueBacklog.WithLabelValues("recorder")) == 7
	}, time.Second, 5*time.Millisecond)

	cancel()
}
