package dispatch

import (
	"context"
	"testing"

	"github.com/atscope/modguard/internal/actionrouter"
	"github.com/atscope/modguard/internal/activity"
	"github.com/atscope/modguard/internal/carcbor"
	"github.com/atscope/modguard/internal/cid"
	"github.com/atscope/modguard/internal/embed"
	"github.com/atscope/modguard/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCandidatesPostTextAndEmbed(t *testing.T) {
	rec := map[string]interface{}{
		"text": "hello world",
		"embed": map[string]interface{}{
			"$type":    "app.bsky.embed.external",
			"external": map[string]interface{}{"uri": "https://example.com", "title": "t", "description": "d"},
		},
	}
	cands := extractCandidates("app.bsky.feed.post", "/text", rec)
	var fields []string
	for _, c := range cands {
		fields = append(fields, c.FieldName)
	}
	assert.Contains(t, fields, "text")
	assert.Contains(t, fields, "embed/external/title")
	assert.Contains(t, fields, "embed/external/description")
	assert.Contains(t, fields, "embed/external/uri")
}

func TestExtractEmbedRefsImages(t *testing.T) {
	rec := map[string]interface{}{
		"embed": map[string]interface{}{
			"$type": "app.bsky.embed.images",
			"images": []interface{}{
				map[string]interface{}{
					"alt":   "a cat",
					"image": map[string]interface{}{"ref": map[string]interface{}{"__cid__": "bafy1"}},
				},
			},
		},
	}
	refs := extractEmbedRefs(rec)
	require.Len(t, refs, 1)
	assert.Equal(t, embed.Image, refs[0].Kind)
	assert.Equal(t, "bafy1", refs[0].CID)
}

func TestQuotedURIRecordWithMedia(t *testing.T) {
	rec := map[string]interface{}{
		"embed": map[string]interface{}{
			"$type": "app.bsky.embed.recordWithMedia",
			"record": map[string]interface{}{
				"record": map[string]interface{}{"uri": "at://did:plc:x/app.bsky.feed.post/abc"},
			},
			"media": map[string]interface{}{"$type": "app.bsky.embed.images", "images": []interface{}{}},
		},
	}
	assert.Equal(t, "at://did:plc:x/app.bsky.feed.post/abc", quotedURI(rec))
}

func TestCountFacets(t *testing.T) {
	rec := map[string]interface{}{
		"facets": []interface{}{
			map[string]interface{}{"features": []interface{}{
				map[string]interface{}{"$type": "app.bsky.richtext.facet#tag"},
				map[string]interface{}{"$type": "app.bsky.richtext.facet#link"},
			}},
			map[string]interface{}{"features": []interface{}{
				map[string]interface{}{"$type": "app.bsky.richtext.facet#mention"},
			}},
		},
	}
	tags, mentions, links := countFacets(rec)
	assert.Equal(t, 1, tags)
	assert.Equal(t, 1, mentions)
	assert.Equal(t, 1, links)
}

func TestClassifyBlockPrefersMatchableOverContent(t *testing.T) {
	assert.Equal(t, carcbor.CategoryMatchable, classifyBlock(map[string]interface{}{"$type": "app.bsky.feed.post"}))
	assert.Equal(t, carcbor.CategoryContent, classifyBlock(map[string]interface{}{"$type": "app.bsky.graph.follow"}))
	assert.Equal(t, carcbor.CategoryOther, classifyBlock(map[string]interface{}{"$type": "app.bsky.unknown.thing"}))
	assert.Equal(t, carcbor.CategoryOther, classifyBlock("not-a-map"))
}

type fakeRecorder struct{ events []activity.TimedEvent }

func (f *fakeRecorder) Enqueue(ctx context.Context, te activity.TimedEvent) error {
	f.events = append(f.events, te)
	return nil
}

type fakeMatcher struct{ matchOn string }

func (f *fakeMatcher) AllMatchesForCandidates(candidates []rules.Candidate) []rules.CandidateMatch {
	var out []rules.CandidateMatch
	for _, c := range candidates {
		if f.matchOn != "" && c.Value == f.matchOn {
			out = append(out, rules.CandidateMatch{Candidate: c, Keywords: []string{f.matchOn}})
		}
	}
	return out
}

type fakeEmbeds struct{ batches []embed.Batch }

func (f *fakeEmbeds) Enqueue(ctx context.Context, b embed.Batch) error {
	f.batches = append(f.batches, b)
	return nil
}

type fakeActions struct{ matches []actionrouter.AccountMatches }

func (f *fakeActions) Enqueue(ctx context.Context, m actionrouter.AccountMatches) error {
	f.matches = append(f.matches, m)
	return nil
}

func TestHandleFrameCommitEmitsPostAndMatches(t *testing.T) {
	blockCID := fakeCIDWire(7)
	parsed, _, err := cid.Parse(blockCID)
	require.NoError(t, err)
	cidStr := cid.ToString(parsed)

	postRecord := map[string]interface{}{
		"$type": "app.bsky.feed.post",
		"text":  "spamword here",
	}
	block := append(append([]byte(nil), blockCID...), encodeCBOR(postRecord)...)
	carHeader := encodeCBOR(map[string]interface{}{"version": uint64(1)})
	carBytes := append(lengthPrefixed(carHeader), lengthPrefixed(block)...)

	body := map[string]interface{}{
		"repo": "did:plc:author",
		"time": "2026-01-01T00:00:00Z",
		"blocks": []byte(carBytes),
		"ops": []interface{}{
			map[string]interface{}{
				"action": "create",
				"path":   "app.bsky.feed.post/rkey1",
				"cid":    cidTag{raw: blockCID},
			},
		},
	}
	header := map[string]interface{}{"op": uint64(1), "t": "#commit"}
	frame := append(encodeCBOR(header), encodeCBOR(body)...)

	rec := &fakeRecorder{}
	matcher := &fakeMatcher{matchOn: "spamword here"}
	embeds := &fakeEmbeds{}
	actions := &fakeActions{}
	d := New(rec, matcher, embeds, actions)

	require.NoError(t, d.HandleFrame(context.Background(), frame))
	_ = cidStr

	var sawPost, sawMatches bool
	for _, te := range rec.events {
		switch te.Event.(type) {
		case activity.PostEvent:
			sawPost = true
			assert.Equal(t, "did:plc:author", te.Did)
		case activity.MatchesEvent:
			sawMatches = true
		}
	}
	assert.True(t, sawPost, "expected a PostEvent to be recorded")
	assert.True(t, sawMatches, "expected a MatchesEvent to be recorded")
	require.Len(t, actions.matches, 1)
	assert.Equal(t, "did:plc:author", actions.matches[0].Did)
}

func TestHandleFrameCommitDeleteEmitsDeleteEvent(t *testing.T) {
	body := map[string]interface{}{
		"repo":   "did:plc:author",
		"time":   "2026-01-01T00:00:00Z",
		"blocks": []byte(append(lengthPrefixed(encodeCBOR(map[string]interface{}{"version": uint64(1)})))),
		"ops": []interface{}{
			map[string]interface{}{"action": "delete", "path": "app.bsky.feed.post/rkey1"},
		},
	}
	header := map[string]interface{}{"op": uint64(1), "t": "#commit"}
	frame := append(encodeCBOR(header), encodeCBOR(body)...)

	rec := &fakeRecorder{}
	d := New(rec, &fakeMatcher{}, &fakeEmbeds{}, &fakeActions{})
	require.NoError(t, d.HandleFrame(context.Background(), frame))

	require.Len(t, rec.events, 1)
	del, ok := rec.events[0].Event.(activity.DeleteEvent)
	require.True(t, ok)
	assert.Equal(t, "app.bsky.feed.post", del.Collection)
}
