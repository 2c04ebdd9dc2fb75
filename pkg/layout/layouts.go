package layout

// ResolvedLayout is a confirmed board structure. It is implemented only by
// LegacyLayout and ModernLayout; callers dispatch with a type switch.
type ResolvedLayout interface {
	// Variant reports which layout this is.
	Variant() Variant
	// Addr is the address of the board structure.
	Addr() uint64
	// HeaderSize is the number of bytes ParseHeader needs.
	HeaderSize() int
	// ParseHeader decodes the header from bytes read at Addr.
	ParseHeader(raw []byte) (Header, error)
	// CellStride is the size of one cell in bytes.
	CellStride() int

	resolved()
}

// LegacyOffsets describes the legacy board structure.
type LegacyOffsets struct {
	Mines       int
	Width       int
	Height      int
	CellsPtr    int
	HeaderSize  int
	PointerSize int
	CellStride  int
}

// ModernOffsets describes the modern board structure.
type ModernOffsets struct {
	Mines       int
	Height      int
	Width       int
	Cells       int
	PointerSize int
	CellStride  int
}

var (
	legacyOffsets = LegacyOffsets{
		Mines:       0x0,
		Width:       0x4,
		Height:      0x8,
		CellsPtr:    0xC,
		HeaderSize:  0x10,
		PointerSize: 4,
		CellStride:  2,
	}
	modernOffsets = ModernOffsets{
		Mines:       0x8,
		Height:      0xC,
		Width:       0x10,
		Cells:       0x18,
		PointerSize: 8,
		CellStride:  1,
	}
)

// DefaultLegacyOffsets returns the legacy offset table.
func DefaultLegacyOffsets() LegacyOffsets { return legacyOffsets }

// DefaultModernOffsets returns the modern offset table.
func DefaultModernOffsets() ModernOffsets { return modernOffsets }

// LegacyLayout is a board structure whose cells live in a separate
// allocation referenced by a 32-bit pointer.
type LegacyLayout struct {
	Address uint64
	Offsets LegacyOffsets
}

// NewLegacyLayout returns a legacy layout at addr with the default offsets.
func NewLegacyLayout(addr uint64) LegacyLayout {
	return LegacyLayout{Address: addr, Offsets: legacyOffsets}
}

func (l LegacyLayout) Variant() Variant { return Legacy }
func (l LegacyLayout) Addr() uint64     { return l.Address }
func (l LegacyLayout) HeaderSize() int  { return l.Offsets.HeaderSize }
func (l LegacyLayout) CellStride() int  { return l.Offsets.CellStride }
func (LegacyLayout) resolved()          {}

// ParseHeader reads mines, dimensions and the cell array pointer.
func (l LegacyLayout) ParseHeader(raw []byte) (Header, error) {
	o := l.Offsets
	if err := checkLen(raw, o.HeaderSize); err != nil {
		return Header{}, err
	}
	return Header{
		Mines:  u32(raw, o.Mines),
		Width:  u32(raw, o.Width),
		Height: u32(raw, o.Height),
		Cells:  uptr(raw, o.CellsPtr, o.PointerSize),
	}, nil
}

// ModernLayout is a board structure with its cells stored inline.
type ModernLayout struct {
	Address uint64
	Offsets ModernOffsets
}

// NewModernLayout returns a modern layout at addr with the default offsets.
func NewModernLayout(addr uint64) ModernLayout {
	return ModernLayout{Address: addr, Offsets: modernOffsets}
}

func (l ModernLayout) Variant() Variant { return Modern }
func (l ModernLayout) Addr() uint64     { return l.Address }
func (l ModernLayout) HeaderSize() int  { return l.Offsets.Cells }
func (l ModernLayout) CellStride() int  { return l.Offsets.CellStride }
func (ModernLayout) resolved()          {}

// ParseHeader reads mines and dimensions. Cells is computed, not read.
func (l ModernLayout) ParseHeader(raw []byte) (Header, error) {
	o := l.Offsets
	if err := checkLen(raw, o.Cells); err != nil {
		return Header{}, err
	}
	return Header{
		Mines:  u32(raw, o.Mines),
		Width:  u32(raw, o.Width),
		Height: u32(raw, o.Height),
		Cells:  l.Address + uint64(o.Cells),
	}, nil
}

// New returns the layout of variant v at addr.
func New(v Variant, addr uint64) (ResolvedLayout, bool) {
	switch v {
	case Legacy:
		return NewLegacyLayout(addr), true
	case Modern:
		return NewModernLayout(addr), true
	}
	return nil, false
}
