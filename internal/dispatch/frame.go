package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/atscope/modguard/internal/carcbor"
)

// frameHeader is the first of the two DAG-CBOR objects that make up a
// firehose message: {op, t}. op distinguishes an error frame from a
// message frame; t classifies a message frame's body.
type frameHeader struct {
	Op int64
	T  string
}

const (
	opMessage = int64(1)
	opError   = int64(-1)
)

// decodeFrame splits a raw WebSocket frame into its header and body,
// each a separate DAG-CBOR item concatenated back to back.
func decodeFrame(data []byte) (frameHeader, interface{}, error) {
	hv, n, err := carcbor.Decode(data, nil)
	if err != nil {
		return frameHeader{}, nil, fmt.Errorf("dispatch: frame header: %w", err)
	}
	hm := mapVal(hv)
	header := frameHeader{Op: int64Val(hm, "op"), T: strVal(hm, "t")}
	if n >= len(data) {
		return header, nil, nil
	}
	bv, _, err := carcbor.Decode(data[n:], nil)
	if err != nil {
		return header, nil, fmt.Errorf("dispatch: frame body: %w", err)
	}
	return header, bv, nil
}

func mapVal(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func strVal(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func int64Val(m map[string]interface{}, key string) int64 {
	if m == nil {
		return 0
	}
	switch n := m[key].(type) {
	case uint64:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

func boolVal(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

func bytesVal(m map[string]interface{}, key string) []byte {
	if m == nil {
		return nil
	}
	b, _ := m[key].([]byte)
	return b
}

// timeVal parses an RFC3339 timestamp field, falling back to the
// current time when absent or malformed (a frame's own "time" field is
// always expected to be present, but defensively never blocks on it).
func timeVal(m map[string]interface{}, key string) time.Time {
	s := strVal(m, key)
	if s == "" {
		return time.Now().UTC()
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}

// recordTime parses a record's own createdAt, falling back to fallback
// (the message time) when absent or malformed, per 4.O.
func recordTime(rec map[string]interface{}, fallback time.Time) time.Time {
	s := strVal(rec, "createdAt")
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback
	}
	return t
}

func atURI(did, path string) string { return "at://" + did + "/" + path }

func collectionOf(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

// cidOf extracts the canonical CID text from a tag-42-decoded link
// value (carcbor.Decode represents one as map[string]interface{}{"__cid__": text}).
func cidOf(v interface{}) (string, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return "", false
	}
	s, ok := m["__cid__"].(string)
	return s, ok
}
