package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedirectAgent struct {
	did, path string
	chain     []string
}

func (f *fakeRedirectAgent) LinkRedirectionReport(ctx context.Context, did, path string, chain []string) {
	f.did, f.path, f.chain = did, path, chain
}

type fakeCounter struct{ n int }

func (f *fakeCounter) Inc() { f.n++ }

func TestEmbedReporterMatchTextEnqueuesOnHit(t *testing.T) {
	matcher := &fakeMatcher{matchOn: "evil.example/redirect"}
	actions := &fakeActions{}
	r := NewEmbedReporter(matcher, actions, &fakeRedirectAgent{}, nil)

	r.MatchText("did:plc:a", "/posts/1", "evil.example/redirect")

	require.Len(t, actions.matches, 1)
	assert.Equal(t, "did:plc:a", actions.matches[0].Did)
}

func TestEmbedReporterMatchTextNoHitSkipsEnqueue(t *testing.T) {
	matcher := &fakeMatcher{}
	actions := &fakeActions{}
	r := NewEmbedReporter(matcher, actions, &fakeRedirectAgent{}, nil)

	r.MatchText("did:plc:a", "/posts/1", "harmless.example")

	assert.Empty(t, actions.matches)
}

func TestEmbedReporterOverflowIncrementsCounterAndReports(t *testing.T) {
	agent := &fakeRedirectAgent{}
	counter := &fakeCounter{}
	r := NewEmbedReporter(&fakeMatcher{}, &fakeActions{}, agent, counter)

	chain := []string{"a", "b", "c"}
	r.ReportRedirectOverflow("did:plc:a", "/posts/1", chain)

	assert.Equal(t, 1, counter.n)
	assert.Equal(t, "did:plc:a", agent.did)
	assert.Equal(t, chain, agent.chain)
}
