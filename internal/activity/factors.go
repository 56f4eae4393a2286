package activity

import "github.com/atscope/modguard/internal/alertrate"

// Factors is the exponential-alert-spacing table: every tracked counter
// X has a factor F(X), and an alert fires when count%F==0 and count/F
// is a power of two. Defaults are carried over from the original
// implementation's account_events constants (see DESIGN.md); spec.md
// names only a representative subset, so the remainder are supplemented
// from original_source.
type Factors struct {
	Event        int
	Alert        int
	Post         int
	RepliedTo    int
	Quoted       int
	Reposted     int
	Liked        int
	Reply        int
	Quote        int
	Repost       int
	Like         int
	ContentReply int
	ContentQuote int
	ContentRepost int
	ContentLike  int
	Follows      int
	FollowedBy   int
	Blocks       int
	BlockedBy    int
	Update       int
	Delete       int
	Match        int
	Facet        int
}

// DefaultFactors returns the factor table used when no override is
// configured.
func DefaultFactors() Factors {
	return Factors{
		Event:         100,
		Alert:         10,
		Post:          25,
		RepliedTo:     50,
		Quoted:        50,
		Reposted:      100,
		Liked:         500,
		Reply:         15,
		Quote:         15,
		Repost:        25,
		Like:          100,
		ContentReply:  10,
		ContentQuote:  10,
		ContentRepost: 20,
		ContentLike:   80,
		Follows:       500,
		FollowedBy:    125,
		Blocks:        50,
		BlockedBy:     25,
		Update:        10,
		Delete:        25,
		Match:         5,
		Facet:         10,
	}
}

// FacetThresholds are the per-post facet-abuse thresholds compared
// against a post's hashtag/mention/link counts. Tag and Mention come
// from spec.md's worked boundary scenario; Link is carried over from
// original_source (spec.md is silent on it).
type FacetThresholds struct {
	Tag     int
	Mention int
	Link    int
}

func DefaultFacetThresholds() FacetThresholds {
	return FacetThresholds{Tag: 23, Mention: 10, Link: 10}
}

// alertNeeded implements the exact alert predicate from the testable
// properties: true only when count is an exact multiple of factor and
// the quotient is a power of two (0 does not count as a power of two,
// matching the property's own wording over the original C++'s div-based
// quirk where a zero quotient also satisfied the bitwise check).
func alertNeeded(count, factor int) bool {
	return alertrate.Needed(count, factor)
}
