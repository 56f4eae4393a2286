// Package text provides the Unicode canonicalization used by the rule
// matcher and by every candidate extracted from firehose records. All
// trie inserts and all lookups pass through Canonicalize so that matching
// is case-insensitive. No Unicode normalization is applied, so a
// precomposed character and its decomposed sequence do not match.
package text

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrBadEncoding is returned when the input is not valid UTF-8. Callers
// skip the offending candidate with a warning rather than treat this as
// fatal.
var ErrBadEncoding = fmt.Errorf("text: invalid utf-8 encoding")

// Canonicalize converts s into a form suitable for equality comparison
// and trie insertion: invalid encodings are rejected, and each rune is
// mapped to upper case and back to lower case (a simple case fold).
// Runes are not composed or decomposed; no NFC/NFD normalization is done.
// It mirrors the UTF-8 -> UTF-16 -> case-fold round trip of the
// original matcher without needing a UTF-16 intermediate: Go strings
// are already a sequence of runes, so folding operates directly on them.
func Canonicalize(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", ErrBadEncoding
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		b.WriteRune(unicode.ToLower(unicode.ToUpper(r)))
	}
	return strings.ToLower(b.String()), nil
}

// IsWordRune reports whether r counts as part of a "word" for the
// whole-word match mode's boundary predicate: letters and digits are
// word runes, everything else is a boundary.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// HasWordBoundaryAt reports whether position pos within s (a byte
// offset of length runeLen) is flanked by non-word runes on both sides,
// i.e. the substring s[pos:pos+runeLen] is a standalone "word" per the
// whole-word match mode.
func HasWordBoundaryAt(s string, pos, runeLen int) bool {
	if pos > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:pos])
		if IsWordRune(r) {
			return false
		}
	}
	end := pos + runeLen
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if IsWordRune(r) {
			return false
		}
	}
	return true
}
