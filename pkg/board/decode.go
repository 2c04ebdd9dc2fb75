package board

import (
	"errors"
	"fmt"

	"github.com/willibrandon/mimisweep/pkg/layout"
	"github.com/willibrandon/mimisweep/pkg/procmem"
)

// ErrInvalidHeader is returned when a re-read header is out of bounds.
var ErrInvalidHeader = layout.ErrInvalidHeader

// DecodeError reports a failed decode. No board accompanies it.
type DecodeError struct {
	Variant layout.Variant
	Addr    uint64
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s board at %#x: %v", e.Variant, e.Addr, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode reads the board described by l from mem. Every call reads memory
// afresh.
func Decode(mem procmem.Memory, l layout.ResolvedLayout) (*Board, error) {
	if l == nil {
		return nil, errors.New("decode: nil layout")
	}
	var (
		b   *Board
		err error
	)
	switch l := l.(type) {
	case layout.LegacyLayout:
		b, err = decodeLegacy(mem, l)
	case layout.ModernLayout:
		b, err = decodeModern(mem, l)
	default:
		err = fmt.Errorf("unsupported layout %T", l)
	}
	if err != nil {
		return nil, &DecodeError{Variant: l.Variant(), Addr: l.Addr(), Err: err}
	}
	return b, nil
}

func readHeader(mem procmem.Memory, l layout.ResolvedLayout) (layout.Header, error) {
	raw, err := mem.ReadBytes(l.Addr(), l.HeaderSize())
	if err != nil {
		return layout.Header{}, err
	}
	h, err := l.ParseHeader(raw)
	if err != nil {
		return layout.Header{}, err
	}
	return h, h.Validate()
}

func decodeLegacy(mem procmem.Memory, l layout.LegacyLayout) (*Board, error) {
	h, err := readHeader(mem, l)
	if err != nil {
		return nil, err
	}
	if h.Cells == 0 {
		return nil, fmt.Errorf("%w: null cell array pointer", ErrInvalidHeader)
	}
	stride := l.Offsets.CellStride
	raw, err := mem.ReadBytes(h.Cells, h.CellCount()*stride)
	if err != nil {
		return nil, err
	}
	b := New(int(h.Width), int(h.Height), int(h.Mines))
	for i := range b.Cells {
		b.Cells[i] = legacyTable[raw[i*stride]]
	}
	return b, nil
}

func decodeModern(mem procmem.Memory, l layout.ModernLayout) (*Board, error) {
	h, err := readHeader(mem, l)
	if err != nil {
		return nil, err
	}
	// Read header and cells together so both come from one snapshot.
	start := l.Offsets.Cells
	raw, err := mem.ReadBytes(l.Addr(), start+h.CellCount()*l.Offsets.CellStride)
	if err != nil {
		return nil, err
	}
	h2, err := l.ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	if err := h2.Validate(); err != nil {
		return nil, err
	}
	if h2.Width != h.Width || h2.Height != h.Height {
		return nil, fmt.Errorf("board resized during read: %dx%d became %dx%d", h.Width, h.Height, h2.Width, h2.Height)
	}
	b := New(int(h2.Width), int(h2.Height), int(h2.Mines))
	cells := raw[start:]
	for i := range b.Cells {
		b.Cells[i] = modernTable[cells[i*l.Offsets.CellStride]]
	}
	return b, nil
}
