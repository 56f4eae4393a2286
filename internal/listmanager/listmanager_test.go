package listmanager

import (
	"context"
	"testing"

	"github.com/atscope/modguard/internal/httpx"
	"github.com/stretchr/testify/assert"
)

type fakeDedupe struct{ processed map[string]bool }

func (f fakeDedupe) AlreadyProcessed(did string) bool { return f.processed[did] }

func TestProcessSkipsAlreadyProcessed(t *testing.T) {
	m := New(httpx.New("http://unused/"), "did:plc:client", true, fakeDedupe{processed: map[string]bool{"did:plc:a": true}})
	m.process(context.Background(), Addition{Did: "did:plc:a", GroupName: "spammers"})
	assert.False(t, m.isMember("did:plc:a", "spammers"))
}

func TestProcessDryRunRecordsMembershipOnly(t *testing.T) {
	m := New(httpx.New("http://unused/"), "did:plc:client", true, fakeDedupe{})
	m.process(context.Background(), Addition{Did: "did:plc:a", GroupName: "spammers"})
	assert.True(t, m.isMember("did:plc:a", "spammers"))
}

func TestProcessSkipsDuplicateMembership(t *testing.T) {
	m := New(httpx.New("http://unused/"), "did:plc:client", true, fakeDedupe{})
	m.recordMember("did:plc:a", "spammers")
	m.process(context.Background(), Addition{Did: "did:plc:a", GroupName: "spammers"})
	assert.Equal(t, 1, m.memberCount("spammers"))
}

func TestRkeyOf(t *testing.T) {
	assert.Equal(t, "3lg6hohjsg422", rkeyOf("at://did:plc:a/app.bsky.graph.list/3lg6hohjsg422"))
	assert.Equal(t, "bare", rkeyOf("bare"))
}
