package dispatch

import "github.com/atscope/modguard/internal/rules"

// matchableFields is the record-type-indexed field table: the top-level
// string fields scanned as candidates for each matchable record type.
var matchableFields = map[string][]string{
	"app.bsky.feed.post":     {"text"},
	"app.bsky.actor.profile": {"description", "displayName"},
}

// contentRecordTypes are the record types 4.O emits a typed activity
// event for.
var contentRecordTypes = map[string]bool{
	"app.bsky.feed.post":     true,
	"app.bsky.feed.like":     true,
	"app.bsky.feed.repost":   true,
	"app.bsky.graph.follow":  true,
	"app.bsky.graph.block":   true,
	"app.bsky.actor.profile": true,
}

// extractCandidates builds the full candidate list for one record:
// its own matchable fields plus any alt/description/title/uri text
// nested under its embed.
func extractCandidates(recordType, path string, rec map[string]interface{}) []rules.Candidate {
	var out []rules.Candidate
	for _, field := range matchableFields[recordType] {
		if s, _ := rec[field].(string); s != "" {
			out = append(out, rules.Candidate{RecordType: recordType, FieldName: field, Value: s})
		}
	}
	out = append(out, extractEmbedTextCandidates(recordType, rec)...)
	return out
}

func extractEmbedTextCandidates(recordType string, rec map[string]interface{}) []rules.Candidate {
	em := mapVal(rec["embed"])
	if em == nil {
		return nil
	}
	return embedTextCandidates(recordType, em)
}

func embedTextCandidates(recordType string, em map[string]interface{}) []rules.Candidate {
	var out []rules.Candidate
	appendField := func(field, s string) {
		if s != "" {
			out = append(out, rules.Candidate{RecordType: recordType, FieldName: field, Value: s})
		}
	}
	switch strVal(em, "$type") {
	case "app.bsky.embed.external":
		ext := mapVal(em["external"])
		appendField("embed/external/description", strVal(ext, "description"))
		appendField("embed/external/title", strVal(ext, "title"))
		appendField("embed/external/uri", strVal(ext, "uri"))
	case "app.bsky.embed.images":
		imgs, _ := em["images"].([]interface{})
		for _, raw := range imgs {
			appendField("embed/images/alt", strVal(mapVal(raw), "alt"))
		}
	case "app.bsky.embed.video":
		appendField("embed/video/alt", strVal(em, "alt"))
	case "app.bsky.embed.recordWithMedia":
		if media := mapVal(em["media"]); media != nil {
			out = append(out, embedTextCandidates(recordType, media)...)
		}
	}
	return out
}
