package dispatch

import "github.com/atscope/modguard/internal/embed"

// extractEmbedRefs walks a post record's embed field, producing the
// Reference list the embed analyzer (4.H) checks.
func extractEmbedRefs(rec map[string]interface{}) []embed.Reference {
	em := mapVal(rec["embed"])
	if em == nil {
		return nil
	}
	return embedRefsOf(em)
}

func embedRefsOf(em map[string]interface{}) []embed.Reference {
	var out []embed.Reference
	switch strVal(em, "$type") {
	case "app.bsky.embed.external":
		ext := mapVal(em["external"])
		if uri := strVal(ext, "uri"); uri != "" {
			out = append(out, embed.Reference{Kind: embed.External, URI: uri})
		}
	case "app.bsky.embed.images":
		imgs, _ := em["images"].([]interface{})
		for _, raw := range imgs {
			if c, ok := blobCID(mapVal(raw)["image"]); ok {
				out = append(out, embed.Reference{Kind: embed.Image, CID: c})
			}
		}
	case "app.bsky.embed.video":
		if c, ok := blobCID(em["video"]); ok {
			out = append(out, embed.Reference{Kind: embed.Video, CID: c})
		}
	case "app.bsky.embed.record":
		if uri := strVal(mapVal(em["record"]), "uri"); uri != "" {
			out = append(out, embed.Reference{Kind: embed.Record, URI: uri})
		}
	case "app.bsky.embed.recordWithMedia":
		if inner := mapVal(em["record"]); inner != nil {
			if uri := strVal(mapVal(inner["record"]), "uri"); uri != "" {
				out = append(out, embed.Reference{Kind: embed.Record, URI: uri})
			}
		}
		if media := mapVal(em["media"]); media != nil {
			out = append(out, embedRefsOf(media)...)
		}
	}
	return out
}

// blobCID resolves a blob reference's CID link (the "ref" field, which
// carcbor decodes as a tag-42 link map).
func blobCID(blob interface{}) (string, bool) {
	bm := mapVal(blob)
	if bm == nil {
		return "", false
	}
	return cidOf(bm["ref"])
}

// quotedURI returns the quoted post's at-uri if rec's embed is a quote
// (app.bsky.embed.record or recordWithMedia), else "".
func quotedURI(rec map[string]interface{}) string {
	em := mapVal(rec["embed"])
	if em == nil {
		return ""
	}
	switch strVal(em, "$type") {
	case "app.bsky.embed.record":
		return strVal(mapVal(em["record"]), "uri")
	case "app.bsky.embed.recordWithMedia":
		return strVal(mapVal(mapVal(em["record"])["record"]), "uri")
	}
	return ""
}

// countFacets tallies a post's hashtag, mention, and link facet counts
// for the facet-abuse check in 4.F.
func countFacets(rec map[string]interface{}) (tags, mentions, links int) {
	facets, _ := rec["facets"].([]interface{})
	for _, f := range facets {
		fm := mapVal(f)
		features, _ := fm["features"].([]interface{})
		for _, feat := range features {
			switch strVal(mapVal(feat), "$type") {
			case "app.bsky.richtext.facet#tag":
				tags++
			case "app.bsky.richtext.facet#mention":
				mentions++
			case "app.bsky.richtext.facet#link":
				links++
			}
		}
	}
	return
}
