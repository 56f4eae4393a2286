// Package carcbor implements the minimal DAG-CBOR decoder and CAR
// envelope reader needed by the firehose pipeline. It is intentionally
// not a general-purpose CBOR/IPLD library (see spec Non-goals): it
// supports exactly the value shapes that appear in AT Protocol records
// (maps, arrays, strings, byte strings, integers, floats, bools, null,
// and tag 42 CID byte strings). Any other tag is dropped and only its
// payload is kept.
package carcbor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/atscope/modguard/internal/cid"
)

// Event mirrors the SAX-style callback shape from the component design:
// callers of Decode are notified of each node as it is produced.
type Event int

const (
	EventValue Event = iota
	EventKey
	EventObjectStart
	EventObjectEnd
	EventArrayStart
	EventArrayEnd
	EventResult
)

// Visitor receives SAX-style callbacks while a CBOR item decodes. depth
// is the current nesting depth; value is populated for EventValue,
// EventKey and EventResult.
type Visitor func(depth int, event Event, value interface{})

// DecodeError distinguishes the malformed-input kinds the component
// design names, so callers can log-and-skip per the error handling
// design instead of treating every failure identically.
type DecodeError struct {
	Kind string
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("carcbor: %s: %v", e.Kind, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

func errKind(kind string, err error) error { return &DecodeError{Kind: kind, Err: err} }

var (
	ErrTruncated    = errors.New("unexpected end of input")
	ErrUnsupported  = errors.New("unsupported CBOR major type or additional info")
	ErrIndefinite   = errors.New("indefinite-length items are not permitted in DAG-CBOR")
	ErrBadCIDTag    = errors.New("tag 42 payload is not a well-formed CID byte string")
)

type cursor struct {
	b   []byte
	pos int
}

func (c *cursor) remaining() int { return len(c.b) - c.pos }

func (c *cursor) byte() (byte, error) {
	if c.remaining() < 1 {
		return 0, ErrTruncated
	}
	b := c.b[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) take(n int) ([]byte, error) {
	if c.remaining() < n {
		return nil, ErrTruncated
	}
	out := c.b[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

// readHead parses a CBOR initial byte plus any following argument bytes,
// returning the major type (0-7) and the decoded argument.
func (c *cursor) readHead() (major byte, arg uint64, indefinite bool, err error) {
	b, err := c.byte()
	if err != nil {
		return 0, 0, false, err
	}
	major = b >> 5
	info := b & 0x1f
	switch {
	case info < 24:
		return major, uint64(info), false, nil
	case info == 24:
		v, err := c.byte()
		return major, uint64(v), false, err
	case info == 25:
		buf, err := c.take(2)
		if err != nil {
			return major, 0, false, err
		}
		return major, uint64(binary.BigEndian.Uint16(buf)), false, nil
	case info == 26:
		buf, err := c.take(4)
		if err != nil {
			return major, 0, false, err
		}
		return major, uint64(binary.BigEndian.Uint32(buf)), false, nil
	case info == 27:
		buf, err := c.take(8)
		if err != nil {
			return major, 0, false, err
		}
		return major, binary.BigEndian.Uint64(buf), false, nil
	case info == 31:
		return major, 0, true, nil
	default:
		return major, 0, false, ErrUnsupported
	}
}

// Decode parses a single DAG-CBOR item from the start of data, invoking
// visit (if non-nil) for every node produced, and returns the decoded
// value and the number of bytes consumed.
func Decode(data []byte, visit Visitor) (interface{}, int, error) {
	c := &cursor{b: data}
	v, err := decodeValue(c, 0, visit)
	if err != nil {
		return nil, c.pos, err
	}
	if visit != nil {
		visit(0, EventResult, v)
	}
	return v, c.pos, nil
}

func decodeValue(c *cursor, depth int, visit Visitor) (interface{}, error) {
	var info byte
	if c.remaining() > 0 {
		info = c.b[c.pos] & 0x1f
	}
	major, arg, indefinite, err := c.readHead()
	if err != nil {
		return nil, err
	}
	if indefinite {
		return nil, ErrIndefinite
	}

	var out interface{}
	switch major {
	case 0: // unsigned int
		out = arg
	case 1: // negative int
		out = -1 - int64(arg)
	case 2: // byte string
		buf, err := c.take(int(arg))
		if err != nil {
			return nil, err
		}
		out = append([]byte(nil), buf...)
	case 3: // text string
		buf, err := c.take(int(arg))
		if err != nil {
			return nil, err
		}
		out = string(buf)
	case 4: // array
		if visit != nil {
			visit(depth, EventArrayStart, nil)
		}
		arr := make([]interface{}, 0, arg)
		for i := uint64(0); i < arg; i++ {
			item, err := decodeValue(c, depth+1, visit)
			if err != nil {
				return nil, err
			}
			if visit != nil {
				visit(depth+1, EventValue, item)
			}
			arr = append(arr, item)
		}
		if visit != nil {
			visit(depth, EventArrayEnd, nil)
		}
		out = arr
	case 5: // map
		if visit != nil {
			visit(depth, EventObjectStart, nil)
		}
		m := make(map[string]interface{}, arg)
		for i := uint64(0); i < arg; i++ {
			keyVal, err := decodeValue(c, depth+1, visit)
			if err != nil {
				return nil, err
			}
			key, ok := keyVal.(string)
			if !ok {
				return nil, errKind("bad-map-key", fmt.Errorf("non-string map key %T", keyVal))
			}
			if visit != nil {
				visit(depth+1, EventKey, key)
			}
			val, err := decodeValue(c, depth+1, visit)
			if err != nil {
				return nil, err
			}
			if visit != nil {
				visit(depth+1, EventValue, val)
			}
			m[key] = val
		}
		if visit != nil {
			visit(depth, EventObjectEnd, nil)
		}
		out = m
	case 6: // tag
		if arg == 42 {
			payload, err := decodeValue(c, depth+1, nil)
			if err != nil {
				return nil, err
			}
			raw, ok := payload.([]byte)
			if !ok || len(raw) == 0 || raw[0] != 0x00 {
				return nil, errKind("bad-cid-tag", ErrBadCIDTag)
			}
			parsed, _, err := cid.Parse(raw[1:])
			if err != nil {
				return nil, errKind("bad-cid-tag", err)
			}
			out = map[string]interface{}{"__cid__": cid.ToString(parsed)}
		} else {
			// Unknown tag: decode and discard the tag wrapper, keep payload.
			inner, err := decodeValue(c, depth+1, visit)
			if err != nil {
				return nil, err
			}
			out = inner
		}
	case 7: // simple / float
		switch info {
		case 20:
			out = false
		case 21:
			out = true
		case 22:
			out = nil
		case 26:
			out = math.Float32frombits(uint32(arg))
		case 27:
			out = math.Float64frombits(arg)
		default:
			return nil, ErrUnsupported
		}
	default:
		return nil, ErrUnsupported
	}
	return out, nil
}
