// Package dispatch turns decoded firehose frames into activity events,
// embed batches, and rule matches, wiring together the carcbor decoder,
// the rule matcher, the embed analyzer, the activity recorder, and the
// action router. It is the glue component: every other subsystem is a
// collaborator reached only through the narrow interface it exposes.
package dispatch

import (
	"context"
	"time"

	"github.com/atscope/modguard/internal/actionrouter"
	"github.com/atscope/modguard/internal/activity"
	"github.com/atscope/modguard/internal/carcbor"
	"github.com/atscope/modguard/internal/embed"
	"github.com/atscope/modguard/internal/rules"
	"github.com/atscope/modguard/pkg/mlog"
)

// Recorder is the subset of internal/recorder's API the dispatcher
// needs: enqueue one timed activity event.
type Recorder interface {
	Enqueue(ctx context.Context, te activity.TimedEvent) error
}

// Matcher is the subset of internal/rules's API the dispatcher needs.
type Matcher interface {
	AllMatchesForCandidates(candidates []rules.Candidate) []rules.CandidateMatch
}

// EmbedQueue is the subset of internal/embed's API the dispatcher needs.
type EmbedQueue interface {
	Enqueue(ctx context.Context, b embed.Batch) error
}

// ActionQueue is the subset of internal/actionrouter's API the
// dispatcher needs.
type ActionQueue interface {
	Enqueue(ctx context.Context, m actionrouter.AccountMatches) error
}

// Dispatcher processes one firehose frame at a time; it holds no
// per-connection state and is safe to share across ingester instances
// (though the design runs exactly one).
type Dispatcher struct {
	recorder Recorder
	matcher  Matcher
	embeds   EmbedQueue
	router   ActionQueue
}

// New constructs a Dispatcher. All four collaborators are required.
func New(rec Recorder, matcher Matcher, embeds EmbedQueue, router ActionQueue) *Dispatcher {
	return &Dispatcher{recorder: rec, matcher: matcher, embeds: embeds, router: router}
}

// HandleFrame implements internal/ingest.Handler.
func (d *Dispatcher) HandleFrame(ctx context.Context, data []byte) error {
	header, body, err := decodeFrame(data)
	if err != nil {
		return err
	}
	if header.Op == opError {
		m := mapVal(body)
		mlog.Warnf("dispatch: error frame: %s: %s", strVal(m, "error"), strVal(m, "message"))
		return nil
	}

	switch header.T {
	case "#commit":
		d.processCommit(ctx, mapVal(body))
	case "#identity", "#handle":
		d.processIdentity(ctx, mapVal(body))
	case "#account":
		d.processAccount(ctx, mapVal(body))
	case "#tombstone":
		d.processTombstone(ctx, mapVal(body))
	case "#migrate", "#info":
		// Nothing to track.
	default:
		mlog.Debugf("dispatch: unhandled frame type %q", header.T)
	}
	return nil
}

func (d *Dispatcher) processCommit(ctx context.Context, m map[string]interface{}) {
	repo := strVal(m, "repo")
	msgTime := timeVal(m, "time")
	blocks := bytesVal(m, "blocks")
	ops, _ := m["ops"].([]interface{})

	_, groups, err := carcbor.DecodeCAR(blocks, classifyBlock, func(dupErr error) {
		mlog.Warnf("dispatch: %s: %v", repo, dupErr)
	})
	if err != nil {
		mlog.Errorf("dispatch: CAR decode failed for %s: %v", repo, err)
		return
	}

	seen := map[string]bool{}
	for _, raw := range ops {
		op := mapVal(raw)
		action := strVal(op, "action")
		path := strVal(op, "path")

		if action == "delete" {
			d.emit(ctx, repo, msgTime, activity.DeleteEvent{Collection: collectionOf(path)})
			continue
		}

		cidStr, ok := cidOf(op["cid"])
		if !ok {
			continue
		}
		if seen[cidStr] {
			mlog.Warnf("dispatch: duplicate block cid %s in one message from %s", cidStr, repo)
			continue
		}
		seen[cidStr] = true

		value, ok := lookupRecord(groups, cidStr)
		if !ok {
			continue
		}
		rec := mapVal(value)
		if rec == nil {
			continue
		}
		recordType := strVal(rec, "$type")
		d.processRecord(ctx, repo, path, recordType, rec, recordTime(rec, msgTime))
	}
}

func (d *Dispatcher) processRecord(ctx context.Context, did, path, recordType string, rec map[string]interface{}, createdAt time.Time) {
	uri := atURI(did, path)

	switch recordType {
	case "app.bsky.feed.post":
		if reply := mapVal(rec["reply"]); reply != nil {
			root := strVal(mapVal(reply["root"]), "uri")
			parent := strVal(mapVal(reply["parent"]), "uri")
			d.emit(ctx, did, createdAt, activity.ReplyEvent{URI: uri, Root: root, Parent: parent})
		} else if q := quotedURI(rec); q != "" {
			d.emit(ctx, did, createdAt, activity.QuoteEvent{URI: uri, Post: q})
		} else {
			d.emit(ctx, did, createdAt, activity.PostEvent{URI: uri})
		}
		if tags, mentions, links := countFacets(rec); tags+mentions+links > 0 {
			d.emit(ctx, did, createdAt, activity.FacetsEvent{Tags: tags, Mentions: mentions, Links: links})
		}
		d.enqueueEmbeds(ctx, did, path, rec)
	case "app.bsky.feed.repost":
		subject := strVal(mapVal(rec["subject"]), "uri")
		d.emit(ctx, did, createdAt, activity.RepostEvent{URI: uri, Post: subject})
	case "app.bsky.feed.like":
		subject := strVal(mapVal(rec["subject"]), "uri")
		d.emit(ctx, did, createdAt, activity.LikeEvent{URI: uri, Content: subject})
	case "app.bsky.graph.follow":
		d.emit(ctx, did, createdAt, activity.FollowEvent{Subject: did, Followed: strVal(rec, "subject")})
	case "app.bsky.graph.block":
		d.emit(ctx, did, createdAt, activity.BlockEvent{Subject: did, Blocked: strVal(rec, "subject")})
	case "app.bsky.actor.profile":
		d.emit(ctx, did, createdAt, activity.ProfileEvent{})
	}

	candidates := extractCandidates(recordType, path, rec)
	if len(candidates) == 0 {
		return
	}
	matches := d.matcher.AllMatchesForCandidates(candidates)
	if len(matches) == 0 {
		return
	}
	d.emit(ctx, did, createdAt, activity.MatchesEvent{Count: uint16(len(matches))})
	if err := d.router.Enqueue(ctx, actionrouter.AccountMatches{
		Did: did,
		Matches: []actionrouter.MatchResult{{
			Path:       path,
			RecordType: actionrouter.RecordType(recordType),
			Matches:    matches,
		}},
	}); err != nil {
		mlog.Warnf("dispatch: action router enqueue dropped for %s: %v", did, err)
	}
}

func (d *Dispatcher) enqueueEmbeds(ctx context.Context, did, path string, rec map[string]interface{}) {
	refs := extractEmbedRefs(rec)
	if len(refs) == 0 {
		return
	}
	if err := d.embeds.Enqueue(ctx, embed.Batch{Did: did, Path: path, Refs: refs}); err != nil {
		mlog.Warnf("dispatch: embed enqueue dropped for %s: %v", did, err)
	}
}

func (d *Dispatcher) processIdentity(ctx context.Context, m map[string]interface{}) {
	did := strVal(m, "did")
	t := timeVal(m, "time")
	handle := strVal(m, "handle")
	if handle == "" {
		return
	}
	d.emit(ctx, did, t, activity.HandleEvent{Handle: handle})

	matches := d.matcher.AllMatchesForCandidates([]rules.Candidate{{RecordType: "handle", FieldName: "handle", Value: handle}})
	if len(matches) == 0 {
		return
	}
	d.emit(ctx, did, t, activity.MatchesEvent{Count: uint16(len(matches))})
	if err := d.router.Enqueue(ctx, actionrouter.AccountMatches{
		Did:     did,
		Matches: []actionrouter.MatchResult{{Path: "/handle", RecordType: "handle", Matches: matches}},
	}); err != nil {
		mlog.Warnf("dispatch: action router enqueue dropped for %s: %v", did, err)
	}
}

func (d *Dispatcher) processAccount(ctx context.Context, m map[string]interface{}) {
	did := strVal(m, "did")
	t := timeVal(m, "time")
	if boolVal(m, "active") {
		d.emit(ctx, did, t, activity.ActiveEvent{})
		return
	}
	d.emit(ctx, did, t, activity.InactiveEvent{Reason: strVal(m, "status")})
}

func (d *Dispatcher) processTombstone(ctx context.Context, m map[string]interface{}) {
	did := strVal(m, "did")
	t := timeVal(m, "time")
	d.emit(ctx, did, t, activity.InactiveEvent{Reason: "tombstone"})
}

func (d *Dispatcher) emit(ctx context.Context, did string, at time.Time, ev activity.Event) {
	if err := d.recorder.Enqueue(ctx, activity.TimedEvent{Did: did, CreatedAt: at, Event: ev}); err != nil {
		mlog.Warnf("dispatch: recorder enqueue dropped for %s: %v", did, err)
	}
}

// classifyBlock buckets a decoded CAR block for carcbor.DecodeCAR's
// groups: matchable record types first (they need both activity and
// candidate handling), then any other recognized content type, else
// other. Bucket membership is cosmetic — lookupRecord searches all
// three groups regardless of which one classification picked.
func classifyBlock(v interface{}) carcbor.Category {
	m, ok := v.(map[string]interface{})
	if !ok {
		return carcbor.CategoryOther
	}
	t := strVal(m, "$type")
	if t == "" {
		return carcbor.CategoryOther
	}
	if _, ok := matchableFields[t]; ok {
		return carcbor.CategoryMatchable
	}
	if contentRecordTypes[t] {
		return carcbor.CategoryContent
	}
	return carcbor.CategoryOther
}

func lookupRecord(groups carcbor.Groups, key string) (interface{}, bool) {
	if b, ok := groups.Content[key]; ok {
		return b.Value, true
	}
	if b, ok := groups.Matchable[key]; ok {
		return b.Value, true
	}
	if b, ok := groups.Other[key]; ok {
		return b.Value, true
	}
	return nil, false
}
