package layout

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

// MaxDimension is the largest width or height accepted for a board.
const MaxDimension = 100

// ErrInvalidHeader is returned when header fields are out of bounds.
var ErrInvalidHeader = errors.New("invalid board header")

// Header holds the board fields read from the structure.
type Header struct {
	Mines  uint32
	Width  uint32
	Height uint32
	// Cells is the address of the first cell.
	Cells uint64
}

// CellCount returns Width*Height.
func (h Header) CellCount() int {
	return int(h.Width) * int(h.Height)
}

func within[T constraints.Integer](v, lo, hi T) bool {
	return v >= lo && v <= hi
}

// Validate checks the dimensions and the mine count.
func (h Header) Validate() error {
	if !within(h.Width, 1, MaxDimension) {
		return fmt.Errorf("%w: width %d", ErrInvalidHeader, h.Width)
	}
	if !within(h.Height, 1, MaxDimension) {
		return fmt.Errorf("%w: height %d", ErrInvalidHeader, h.Height)
	}
	if int(h.Mines) >= h.CellCount() {
		return fmt.Errorf("%w: %d mines on %dx%d board", ErrInvalidHeader, h.Mines, h.Width, h.Height)
	}
	return nil
}

func u32(raw []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(raw[off : off+4])
}

func uptr(raw []byte, off, size int) uint64 {
	if size == 8 {
		return binary.LittleEndian.Uint64(raw[off : off+8])
	}
	return uint64(binary.LittleEndian.Uint32(raw[off : off+4]))
}

func checkLen(raw []byte, n int) error {
	if len(raw) < n {
		return fmt.Errorf("%w: header needs %d bytes, have %d", ErrInvalidHeader, n, len(raw))
	}
	return nil
}
