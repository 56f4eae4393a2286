package carcbor

import (
	"testing"
)

// encodeTestPost builds the minimal DAG-CBOR map {"$type": "app.bsky.feed.post"}.
func encodeTestPost() []byte {
	out := []byte{0xa1}
	out = append(out, encodeTextString("$type")...)
	out = append(out, encodeTextString("app.bsky.feed.post")...)
	return out
}

func encodeTextString(s string) []byte {
	if len(s) >= 24 {
		panic("test helper supports only short strings")
	}
	return append([]byte{0x60 | byte(len(s))}, s...)
}

func encodeFrame(payload []byte) []byte {
	var out []byte
	out = appendUvarintTest(out, uint64(len(payload)))
	return append(out, payload...)
}

func appendUvarintTest(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// encodeCIDWire builds the raw (version, codec, digest-length, digest)
// wire bytes for a v1 CID, the form a CAR block frame expects before its
// DAG-CBOR payload.
func encodeCIDWire(codec uint64, digest []byte) []byte {
	var out []byte
	out = appendUvarintTest(out, 1) // version
	out = appendUvarintTest(out, codec)
	out = appendUvarintTest(out, uint64(len(digest)))
	return append(out, digest...)
}

func TestDecodeCARSingleBlock(t *testing.T) {
	header := []byte{0xa0} // empty map {}
	payload := encodeTestPost()
	blockBytes := append(encodeCIDWire(0x71, []byte{1, 2, 3, 4}), payload...)

	var data []byte
	data = append(data, encodeFrame(header)...)
	data = append(data, encodeFrame(blockBytes)...)

	classify := func(v interface{}) Category {
		m, ok := v.(map[string]interface{})
		if !ok {
			return CategoryOther
		}
		if m["$type"] == "app.bsky.feed.post" {
			return CategoryMatchable
		}
		return CategoryContent
	}

	_, groups, err := DecodeCAR(data, classify, nil)
	if err != nil {
		t.Fatalf("DecodeCAR: %v", err)
	}
	if len(groups.Matchable) != 1 {
		t.Fatalf("expected 1 matchable block, got %d", len(groups.Matchable))
	}
	for _, b := range groups.Matchable {
		if b.CID.Codec != 0x71 {
			t.Fatalf("unexpected codec: %x", b.CID.Codec)
		}
	}
}

func TestDecodeCARDuplicateCID(t *testing.T) {
	header := []byte{0xa0}
	payload := encodeTestPost()
	blockBytes := append(encodeCIDWire(0x71, []byte{9, 9}), payload...)

	var data []byte
	data = append(data, encodeFrame(header)...)
	data = append(data, encodeFrame(blockBytes)...)
	data = append(data, encodeFrame(blockBytes)...)

	var dupErrs int
	classify := func(v interface{}) Category { return CategoryContent }
	_, groups, err := DecodeCAR(data, classify, func(error) { dupErrs++ })
	if err != nil {
		t.Fatalf("DecodeCAR: %v", err)
	}
	if dupErrs != 1 {
		t.Fatalf("expected 1 duplicate callback, got %d", dupErrs)
	}
	if len(groups.Content) != 1 {
		t.Fatalf("expected 1 surviving content block, got %d", len(groups.Content))
	}
}

func TestDecodeCARTrailingBytes(t *testing.T) {
	header := []byte{0xa0}
	payload := encodeTestPost()
	blockBytes := append(encodeCIDWire(0x71, []byte{4, 4}), payload...)

	var data []byte
	data = append(data, encodeFrame(header)...)
	data = append(data, encodeFrame(blockBytes)...)
	data = append(data, 0xff, 0xff, 0xff) // not a valid length-prefixed frame

	classify := func(v interface{}) Category { return CategoryContent }
	_, _, err := DecodeCAR(data, classify, nil)
	if err != ErrTrailingBytes {
		t.Fatalf("expected ErrTrailingBytes, got %v", err)
	}
}
