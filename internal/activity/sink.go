package activity

// EvictedItem describes an Account or ContentHitCount evicted from its
// owning LFU cache that had accumulated at least one alert — the "of
// interest" items the design notes' open question asks about.
type EvictedItem struct {
	Kind   string // "account" or "content"
	Key    string // did, or content at-uri
	Alerts int
	Hits   int
}

// EvictionSink receives evicted items of interest. The default is a
// no-op. This module ships no persisting implementation and no config
// key selects one; cmd/modguard always passes NoopSink.
type EvictionSink interface {
	Evicted(item EvictedItem)
}

type noopSink struct{}

func (noopSink) Evicted(EvictedItem) {}

// NoopSink is the default EvictionSink: evicted items of interest are
// only logged (by the cache's own eviction callback), never persisted.
func NoopSink() EvictionSink { return noopSink{} }
