// Package layout locates the board structure inside a Minesweeper process.
//
// Two binary variants are known. Legacy is the 32-bit game whose board
// header points at a separately allocated cell array. Modern is the 64-bit
// game whose cells follow the header inline. Each variant has an immutable
// table of offsets and a code signature that references the structure.
package layout

import (
	"fmt"
	"strings"
)

// Variant identifies a binary layout.
type Variant int

const (
	// Legacy is the 32-bit layout with an out-of-line cell array.
	Legacy Variant = iota + 1
	// Modern is the 64-bit layout with inline cells.
	Modern
)

// AllVariants is the order variants are tried in when none is specified.
var AllVariants = []Variant{Legacy, Modern}

// String returns the string representation of the Variant
func (v Variant) String() string {
	switch v {
	case Legacy:
		return "legacy"
	case Modern:
		return "modern"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) {
	if v != Legacy && v != Modern {
		return nil, fmt.Errorf("unknown variant %d", int(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(b []byte) error {
	parsed, err := ParseVariant(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVariant accepts "legacy" (or "xp") and "modern" (or "win7").
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy", "xp":
		return Legacy, nil
	case "modern", "win7":
		return Modern, nil
	}
	return 0, fmt.Errorf("unknown layout variant %q", s)
}
