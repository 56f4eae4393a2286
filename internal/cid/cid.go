// Package cid implements the minimal content-identifier codec needed by
// the firehose decoder: LEB128-varint version/codec parsing and
// canonical base32 multibase text. This is deliberately not a
// general-purpose CID/multihash library (see spec Non-goals) — only the
// subset the CAR/CBOR decoder needs to interpret tagged CID byte
// strings.
package cid

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"strings"
)

// ErrTruncated is returned when the input ends before a complete CID
// could be parsed.
var ErrTruncated = errors.New("cid: truncated input")

// ErrUnsupportedMultibase is returned by FromString for any prefix other
// than 'b' (base32, the only multibase this system emits or consumes).
var ErrUnsupportedMultibase = errors.New("cid: unsupported multibase prefix")

// ErrTrailingBytes is returned when a decoded multibase string carries
// bytes past the end of a single well-formed CID.
var ErrTrailingBytes = errors.New("cid: trailing bytes after CID")

// dagPB is the codec value substituted for legacy v0 CIDs, which carry
// no explicit codec varint of their own.
const dagPB = 0x70

// CID is a parsed content identifier: version, codec, and the raw
// digest bytes (the multihash digest, not including its own
// function/length prefix).
type CID struct {
	Version uint64
	Codec   uint64
	Digest  []byte
}

// Parse decodes a CID from the head of b, returning the CID and the
// number of bytes consumed. b may carry additional bytes after the CID
// (e.g. the DAG-CBOR payload that follows it inside a CAR block).
func Parse(b []byte) (CID, int, error) {
	v, n1 := binary.Uvarint(b)
	if n1 <= 0 {
		return CID{}, 0, ErrTruncated
	}
	rest := b[n1:]
	c, n2 := binary.Uvarint(rest)
	if n2 <= 0 {
		return CID{}, 0, ErrTruncated
	}

	// A leading (0x12, 0x20) pair is the sha2-256/32-byte multihash
	// header of a legacy v0 CID, not a (version, codec) pair.
	if v == 0x12 && c == 0x20 {
		start := n1 + n2
		if len(b) < start+32 {
			return CID{}, 0, ErrTruncated
		}
		digest := append([]byte(nil), b[start:start+32]...)
		return CID{Version: 0, Codec: dagPB, Digest: digest}, start + 32, nil
	}

	digestLen, n3 := binary.Uvarint(rest[n2:])
	if n3 <= 0 {
		return CID{}, 0, ErrTruncated
	}
	start := n1 + n2 + n3
	end := uint64(start) + digestLen
	if uint64(len(b)) < end {
		return CID{}, 0, ErrTruncated
	}
	digest := append([]byte(nil), b[start:end]...)
	return CID{Version: v, Codec: c, Digest: digest}, int(end), nil
}

// bytes reconstructs the raw wire encoding of c, the inverse of Parse.
func (c CID) bytes() []byte {
	if c.Version == 0 {
		out := appendUvarint(nil, 0x12)
		out = appendUvarint(out, 0x20)
		return append(out, c.Digest...)
	}
	out := appendUvarint(nil, c.Version)
	out = appendUvarint(out, c.Codec)
	out = appendUvarint(out, uint64(len(c.Digest)))
	return append(out, c.Digest...)
}

func appendUvarint(dst []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

// multibase base32: RFC4648 lowercase alphabet, no padding, 'b' prefix.
var b32 = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// ToString emits c as canonical multibase base32 text (prefix 'b').
// Round-trip identity (Parse(ToString(c)) == c) holds for v1 CIDs.
func ToString(c CID) string {
	return "b" + b32.EncodeToString(c.bytes())
}

// FromString decodes a multibase base32 CID produced by ToString.
func FromString(s string) (CID, error) {
	if len(s) == 0 || s[0] != 'b' {
		return CID{}, ErrUnsupportedMultibase
	}
	raw, err := b32.DecodeString(strings.ToLower(s[1:]))
	if err != nil {
		return CID{}, err
	}
	c, n, err := Parse(raw)
	if err != nil {
		return CID{}, err
	}
	if n != len(raw) {
		return CID{}, ErrTrailingBytes
	}
	return c, nil
}

// Equal reports whether two CIDs refer to the same content.
func Equal(a, b CID) bool {
	return a.Version == b.Version && a.Codec == b.Codec && string(a.Digest) == string(b.Digest)
}
