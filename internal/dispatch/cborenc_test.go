package dispatch

import "encoding/binary"

// cidTag marks a value to be encoded as a DAG-CBOR tag-42 CID link, the
// inverse of carcbor's tag-42 decoding, for building synthetic firehose
// frames in tests.
type cidTag struct{ raw []byte }

func encodeHead(major byte, n uint64) []byte {
	switch {
	case n < 24:
		return []byte{major<<5 | byte(n)}
	case n <= 0xff:
		return []byte{major<<5 | 24, byte(n)}
	case n <= 0xffff:
		b := make([]byte, 3)
		b[0] = major<<5 | 25
		binary.BigEndian.PutUint16(b[1:], uint16(n))
		return b
	case n <= 0xffffffff:
		b := make([]byte, 5)
		b[0] = major<<5 | 26
		binary.BigEndian.PutUint32(b[1:], uint32(n))
		return b
	default:
		b := make([]byte, 9)
		b[0] = major<<5 | 27
		binary.BigEndian.PutUint64(b[1:], n)
		return b
	}
}

func encodeCBOR(v interface{}) []byte {
	switch val := v.(type) {
	case nil:
		return []byte{0xf6}
	case bool:
		if val {
			return []byte{0xf5}
		}
		return []byte{0xf4}
	case int:
		return encodeHead(0, uint64(val))
	case uint64:
		return encodeHead(0, val)
	case string:
		b := encodeHead(3, uint64(len(val)))
		return append(b, []byte(val)...)
	case []byte:
		b := encodeHead(2, uint64(len(val)))
		return append(b, val...)
	case []interface{}:
		out := encodeHead(4, uint64(len(val)))
		for _, item := range val {
			out = append(out, encodeCBOR(item)...)
		}
		return out
	case map[string]interface{}:
		out := encodeHead(5, uint64(len(val)))
		for k, vv := range val {
			out = append(out, encodeCBOR(k)...)
			out = append(out, encodeCBOR(vv)...)
		}
		return out
	case cidTag:
		payload := append([]byte{0x00}, val.raw...)
		out := encodeHead(6, 42)
		return append(out, encodeCBOR(payload)...)
	default:
		panic("encodeCBOR: unsupported test fixture type")
	}
}

func uvarintBytes(n uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	l := binary.PutUvarint(buf, n)
	return buf[:l]
}

func lengthPrefixed(b []byte) []byte {
	return append(uvarintBytes(uint64(len(b))), b...)
}

// fakeCIDWire builds minimal (version, codec, digestLen, digest) wire
// bytes for a synthetic block CID, distinguished by seed so different
// blocks in one test get different identities.
func fakeCIDWire(seed byte) []byte {
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = seed
	}
	wire := []byte{1, 0x71, 32}
	return append(wire, digest...)
}
