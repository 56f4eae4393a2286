package activity

// ContentHitCount holds the per-content counters nested inside the
// Account that authored the content, keyed by at-uri.
type ContentHitCount struct {
	Likes   int32
	Reposts int32
	Quotes  int32
	Replies int32
	Alerts  int
	Hits    int
}

func (c *ContentHitCount) hit() { c.Hits++ }

func (c *ContentHitCount) alert() { c.Alerts++ }
