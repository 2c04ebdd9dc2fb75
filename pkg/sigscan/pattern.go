// Package sigscan finds byte signatures with wildcards in memory.
package sigscan

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Pattern is an immutable byte signature. Positions whose mask entry is
// false match any byte.
type Pattern struct {
	bytes []byte
	mask  []bool
	// anchor is the index of the first concrete byte, or -1.
	anchor int
}

// ParsePattern parses a signature written as space separated hex bytes,
// with "?" or "??" for wildcards, e.g. "48 8B 05 ?? ?? ?? ??".
func ParsePattern(s string) (Pattern, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Pattern{}, fmt.Errorf("empty pattern")
	}
	b := make([]byte, len(fields))
	mask := make([]bool, len(fields))
	for i, f := range fields {
		if f == "?" || f == "??" {
			continue
		}
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return Pattern{}, fmt.Errorf("pattern byte %d %q: %v", i, f, err)
		}
		b[i] = byte(v)
		mask[i] = true
	}
	return newPattern(b, mask), nil
}

// MustParsePattern is like ParsePattern but panics on error.
func MustParsePattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// NewPattern builds a pattern from bytes and a mask string in which 'x'
// marks a byte that must match and '?' a wildcard.
func NewPattern(b []byte, mask string) (Pattern, error) {
	if len(b) == 0 {
		return Pattern{}, fmt.Errorf("empty pattern")
	}
	if len(b) != len(mask) {
		return Pattern{}, fmt.Errorf("pattern has %d bytes but mask has %d", len(b), len(mask))
	}
	m := make([]bool, len(mask))
	for i := 0; i < len(mask); i++ {
		switch mask[i] {
		case 'x':
			m[i] = true
		case '?':
		default:
			return Pattern{}, fmt.Errorf("invalid mask character %q at %d", mask[i], i)
		}
	}
	return newPattern(bytes.Clone(b), m), nil
}

func newPattern(b []byte, mask []bool) Pattern {
	anchor := -1
	for i, m := range mask {
		if m {
			anchor = i
			break
		}
	}
	return Pattern{bytes: b, mask: mask, anchor: anchor}
}

// Len returns the pattern length in bytes.
func (p Pattern) Len() int {
	return len(p.bytes)
}

// MatchAt reports whether the pattern matches buf at offset off.
func (p Pattern) MatchAt(buf []byte, off int) bool {
	if off < 0 || len(p.bytes) == 0 || off+len(p.bytes) > len(buf) {
		return false
	}
	for i, want := range p.bytes {
		if p.mask[i] && buf[off+i] != want {
			return false
		}
	}
	return true
}

func (p Pattern) String() string {
	var sb strings.Builder
	for i, b := range p.bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if !p.mask[i] {
			sb.WriteString("??")
			continue
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// FindMatches returns every offset in buf at which p matches, in ascending
// order. Matches may overlap. It returns nil when there are none.
func FindMatches(buf []byte, p Pattern) []int {
	n := len(p.bytes)
	if n == 0 || len(buf) < n {
		return nil
	}
	last := len(buf) - n

	var out []int
	if p.anchor < 0 {
		// All wildcards: every position matches.
		out = make([]int, last+1)
		for i := range out {
			out[i] = i
		}
		return out
	}

	first := p.bytes[p.anchor]
	for pos := 0; pos <= last; {
		i := bytes.IndexByte(buf[pos+p.anchor:last+p.anchor+1], first)
		if i < 0 {
			break
		}
		start := pos + i
		if p.MatchAt(buf, start) {
			out = append(out, start)
		}
		pos = start + 1
	}
	return out
}
