package board

import "github.com/willibrandon/mimisweep/pkg/layout"

// Legacy cell byte.
const (
	legacyMine     = 0x01
	legacyRevealed = 0x02
	legacyFlag     = 0x04
	legacyQuestion = 0x08
	legacyCountSh  = 4
)

// Modern cell byte.
const (
	modernMine     = 0x80
	modernRevealed = 0x40
	modernNibble   = 0x0F
	modernFlag     = 0x0E
	modernQuestion = 0x0D
	modernCovered  = 0x0F
)

var (
	legacyTable [256]Cell
	modernTable [256]Cell
)

func init() {
	for i := 0; i < 256; i++ {
		legacyTable[i] = decodeLegacyByte(byte(i))
		modernTable[i] = decodeModernByte(byte(i))
	}
}

func decodeLegacyByte(b byte) Cell {
	mine := b&legacyMine != 0
	revealed := b&legacyRevealed != 0
	switch {
	case mine && revealed:
		return Cell{State: ExplodedMine}
	case mine:
		return Cell{State: Mine}
	case b&legacyFlag != 0:
		return Cell{State: Flagged}
	case b&legacyQuestion != 0:
		return Cell{State: QuestionMarked}
	case revealed:
		n := b >> legacyCountSh
		if n > 8 {
			return Cell{State: Unknown}
		}
		return RevealedCell(n)
	}
	// The count nibble of a covered cell is not yet visible.
	return Cell{State: Covered}
}

func decodeModernByte(b byte) Cell {
	mine := b&modernMine != 0
	revealed := b&modernRevealed != 0
	low := b & modernNibble
	switch {
	case mine && revealed:
		return Cell{State: ExplodedMine}
	case mine:
		return Cell{State: Mine}
	case revealed:
		if low > 8 {
			return Cell{State: Unknown}
		}
		return RevealedCell(low)
	case b&0x30 != 0:
		return Cell{State: Unknown}
	}
	// With no high bits set the cell is hidden whatever its low nibble,
	// unless it carries a mark.
	switch low {
	case modernFlag:
		return Cell{State: Flagged}
	case modernQuestion:
		return Cell{State: QuestionMarked}
	}
	return Cell{State: Covered}
}

// DecodeCell decodes one cell byte of variant v.
func DecodeCell(v layout.Variant, b byte) Cell {
	if v == layout.Modern {
		return modernTable[b]
	}
	return legacyTable[b]
}

// Encode returns the byte that stores c in variant v. It is the inverse of
// DecodeCell for every cell DecodeCell can produce.
func Encode(v layout.Variant, c Cell) byte {
	if v == layout.Modern {
		switch c.State {
		case Flagged:
			return modernFlag
		case QuestionMarked:
			return modernQuestion
		case Revealed:
			return modernRevealed | c.Adjacent&modernNibble
		case Mine:
			return modernMine | modernCovered
		case ExplodedMine:
			return 0xCC
		case Unknown:
			return modernRevealed | 0x0A
		}
		return modernCovered
	}
	switch c.State {
	case Flagged:
		return legacyFlag
	case QuestionMarked:
		return legacyQuestion
	case Revealed:
		return legacyRevealed | c.Adjacent<<legacyCountSh
	case Mine:
		return legacyMine
	case ExplodedMine:
		return legacyMine | legacyRevealed
	case Unknown:
		return legacyRevealed | 9<<legacyCountSh
	}
	return 0x00
}
