package carcbor

import (
	"encoding/binary"
	"errors"

	"github.com/atscope/modguard/internal/cid"
)

// Category classifies a decoded block the way the dispatcher's
// record-type-indexed field table does: records whose $type is known to
// carry matchable text go in Matchable, known content record types go in
// Content, and everything else (unrecognized types, untyped values) goes
// in Other.
type Category int

const (
	CategoryOther Category = iota
	CategoryContent
	CategoryMatchable
)

// Classifier decides a decoded block's category. internal/dispatch
// supplies the concrete implementation driven by the record-type field
// table, keeping the field table itself out of this package.
type Classifier func(value interface{}) Category

// Block pairs a decoded value with the CID that framed it.
type Block struct {
	CID   cid.CID
	Value interface{}
}

// Groups is the classified result of decoding one CAR envelope.
type Groups struct {
	Content   map[string]Block
	Matchable map[string]Block
	Other     map[string]Block
}

func newGroups() Groups {
	return Groups{
		Content:   map[string]Block{},
		Matchable: map[string]Block{},
		Other:     map[string]Block{},
	}
}

var (
	ErrTrailingBytes = errors.New("carcbor: trailing bytes after last CAR block")
	ErrDuplicateCID  = errors.New("carcbor: duplicate CID within CAR block sequence")
)

// DuplicateCIDError is logged (not fatal) per the component design: the
// offending block is skipped but decoding continues.
type DuplicateCIDError struct {
	CID string
}

func (e *DuplicateCIDError) Error() string { return "carcbor: duplicate CID " + e.CID }

// DecodeCAR reads a CAR envelope: a length-prefixed DAG-CBOR header
// followed by zero or more length-prefixed (CID, DAG-CBOR payload)
// blocks. onDuplicate, if non-nil, is called for each duplicate CID
// encountered (for logging); decoding continues past it. Strict-mode
// trailing bytes after the final block are reported as ErrTrailingBytes.
func DecodeCAR(data []byte, classify Classifier, onDuplicate func(error)) (header interface{}, groups Groups, err error) {
	groups = newGroups()
	pos := 0

	readFrame := func() ([]byte, error) {
		length, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, ErrTruncated
		}
		start := pos + n
		end := start + int(length)
		if end > len(data) {
			return nil, ErrTruncated
		}
		pos = end
		return data[start:end], nil
	}

	headerBytes, err := readFrame()
	if err != nil {
		return nil, groups, errKind("truncated-header", err)
	}
	header, _, err = Decode(headerBytes, nil)
	if err != nil {
		return nil, groups, errKind("bad-header", err)
	}

	seen := map[string]bool{}
	for pos < len(data) {
		frame, err := readFrame()
		if err != nil {
			// Bytes remain but do not form a complete block frame.
			return header, groups, ErrTrailingBytes
		}
		blockCID, n, err := cid.Parse(frame)
		if err != nil {
			return header, groups, errKind("bad-block-cid", err)
		}
		key := cid.ToString(blockCID)
		payload := frame[n:]
		value, _, err := Decode(payload, nil)
		if err != nil {
			return header, groups, errKind("bad-block-cbor", err)
		}

		if seen[key] {
			if onDuplicate != nil {
				onDuplicate(&DuplicateCIDError{CID: key})
			}
			continue
		}
		seen[key] = true

		block := Block{CID: blockCID, Value: value}
		switch classify(value) {
		case CategoryMatchable:
			groups.Matchable[key] = block
		case CategoryContent:
			groups.Content[key] = block
		default:
			groups.Other[key] = block
		}
	}

	return header, groups, nil
}
