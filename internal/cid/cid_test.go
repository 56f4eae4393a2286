package cid

import "testing"

func TestRoundTripV1(t *testing.T) {
	c := CID{Version: 1, Codec: 0x71, Digest: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	s := ToString(c)
	got, err := FromString(s)
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if !Equal(c, got) {
		t.Fatalf("round trip mismatch: %+v != %+v", c, got)
	}
}

func TestParseV0(t *testing.T) {
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i)
	}
	raw := append([]byte{0x12, 0x20}, digest...)
	c, n, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("expected to consume %d bytes, got %d", len(raw), n)
	}
	if c.Version != 0 || c.Codec != dagPB {
		t.Fatalf("unexpected v0 CID: %+v", c)
	}
}

func TestParseTruncated(t *testing.T) {
	_, _, err := Parse([]byte{0x01})
	if err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestFromStringTrailingBytes(t *testing.T) {
	c := CID{Version: 1, Codec: 0x71, Digest: []byte{9, 9, 9}}
	s := ToString(c)
	raw, _ := b32.DecodeString(s[1:])
	raw = append(raw, 0xff)
	corrupted := "b" + b32.EncodeToString(raw)
	if _, err := FromString(corrupted); err != ErrTrailingBytes {
		t.Fatalf("expected ErrTrailingBytes, got %v", err)
	}
}
