// Package boardtest builds synthetic process images that hold a board in
// the legacy or modern layout, for tests that must not touch a live game.
package boardtest

import (
	"encoding/binary"
	"fmt"

	"github.com/willibrandon/mimisweep/pkg/board"
	"github.com/willibrandon/mimisweep/pkg/layout"
	"github.com/willibrandon/mimisweep/pkg/procmem"
)

// Fixed addresses of the synthetic images.
const (
	LegacyCodeBase   = 0x00401000
	LegacyDataBase   = 0x01005000
	LegacyGlobal     = 0x01005330
	LegacyStruct     = 0x01005400
	LegacyHeapBase   = 0x00A10000
	legacyHitOffset  = 0x200
	legacyDecoyHit   = 0x100
	legacyDecoyGlob  = 0x01005340
	legacyDecoyBoard = 0x01005500

	ModernCodeBase  = 0x7FF610001000
	ModernDataBase  = 0x7FF610020000
	ModernGlobal    = ModernDataBase + 0x100
	ModernHeapBase  = 0x1D000000000
	ModernGame      = ModernHeapBase
	ModernStruct    = ModernHeapBase + 0x100
	modernHitOffset = 0x300
	modernDecoyHit  = 0x100
	modernDecoyGlob = ModernDataBase + 0x200

	pageSize = 0x1000
)

var (
	legacySig = []byte{0x8B, 0x0D, 0, 0, 0, 0, 0x85, 0xC9, 0x74, 0x05, 0x8B, 0x41, 0x04}
	modernSig = []byte{0x48, 0x89, 0x44, 0x24, 0x70, 0x48, 0x85, 0xC0, 0x74, 0x0A, 0x48, 0x8B, 0xC8, 0xE8}
)

type options struct {
	mines       *uint32
	width       *uint32
	height      *uint32
	cellsPtr    *uint64
	decoy       bool
	tightRegion bool
}

// Option changes how an image is built.
type Option func(*options)

// WithMines writes n as the header mine count instead of the board's.
func WithMines(n uint32) Option {
	return func(o *options) { o.mines = &n }
}

// WithDims writes w and h as the header dimensions. The cell data is still
// taken from the board.
func WithDims(w, h uint32) Option {
	return func(o *options) { o.width, o.height = &w, &h }
}

// WithCellsPointer overrides the legacy cell array pointer.
func WithCellsPointer(p uint64) Option {
	return func(o *options) { o.cellsPtr = &p }
}

// WithDecoy places an extra signature hit before the real one whose
// pointers lead to an invalid structure.
func WithDecoy() Option {
	return func(o *options) { o.decoy = true }
}

// WithTightRegion ends the region holding the cells exactly at the last
// cell instead of rounding it up to a page.
func WithTightRegion() Option {
	return func(o *options) { o.tightRegion = true }
}

// Image is a synthetic address space holding one board.
type Image struct {
	Mem           *procmem.BufferMemory
	Variant       layout.Variant
	SignatureAddr uint64
	StructAddr    uint64
	CellsAddr     uint64
	Width         int
	stride        int
}

// Layout returns the layout a resolver is expected to find.
func (img *Image) Layout() layout.ResolvedLayout {
	l, _ := layout.New(img.Variant, img.StructAddr)
	return l
}

// SetCell rewrites one cell in place, as the game would.
func (img *Image) SetCell(x, y int, c board.Cell) {
	addr := img.CellsAddr + uint64((y*img.Width+x)*img.stride)
	for _, r := range mustRegions(img.Mem) {
		if r.Contains(addr, 1) {
			img.Mem.Bytes(r.Base)[addr-r.Base] = board.Encode(img.Variant, c)
			return
		}
	}
	panic(fmt.Sprintf("boardtest: cell address %#x not mapped", addr))
}

// Build returns an image of b in variant v.
func Build(v layout.Variant, b *board.Board, opts ...Option) *Image {
	if v == layout.Modern {
		return Modern(b, opts...)
	}
	return Legacy(b, opts...)
}

func collect(b *board.Board, opts []Option) (options, uint32, uint32, uint32) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	mines, w, h := uint32(b.Mines), uint32(b.Width), uint32(b.Height)
	if o.mines != nil {
		mines = *o.mines
	}
	if o.width != nil {
		w, h = *o.width, *o.height
	}
	return o, mines, w, h
}

func roundUp(n, to int) int {
	if n == 0 {
		return to
	}
	return (n + to - 1) / to * to
}

func code(size int) []byte {
	c := make([]byte, size)
	for i := range c {
		c[i] = 0xCC
	}
	return c
}

// Legacy builds a 32-bit image: code referencing a global that points at
// the board header, which points at a separate cell array.
func Legacy(b *board.Board, opts ...Option) *Image {
	o, mines, w, h := collect(b, opts)
	stride := layout.DefaultLegacyOffsets().CellStride

	text := code(pageSize)
	copy(text[legacyHitOffset:], legacySig)
	binary.LittleEndian.PutUint32(text[legacyHitOffset+2:], LegacyGlobal)

	data := make([]byte, pageSize)
	binary.LittleEndian.PutUint32(data[LegacyGlobal-LegacyDataBase:], LegacyStruct)
	hdr := data[LegacyStruct-LegacyDataBase:]
	binary.LittleEndian.PutUint32(hdr[0x0:], mines)
	binary.LittleEndian.PutUint32(hdr[0x4:], w)
	binary.LittleEndian.PutUint32(hdr[0x8:], h)
	cellsPtr := uint64(LegacyHeapBase)
	if o.cellsPtr != nil {
		cellsPtr = *o.cellsPtr
	}
	binary.LittleEndian.PutUint32(hdr[0xC:], uint32(cellsPtr))

	if o.decoy {
		copy(text[legacyDecoyHit:], legacySig)
		binary.LittleEndian.PutUint32(text[legacyDecoyHit+2:], legacyDecoyGlob)
		binary.LittleEndian.PutUint32(data[legacyDecoyGlob-LegacyDataBase:], legacyDecoyBoard)
		// Plausible dimensions but an unmapped cell array.
		decoy := data[legacyDecoyBoard-LegacyDataBase:]
		binary.LittleEndian.PutUint32(decoy[0x0:], 1)
		binary.LittleEndian.PutUint32(decoy[0x4:], 8)
		binary.LittleEndian.PutUint32(decoy[0x8:], 8)
		binary.LittleEndian.PutUint32(decoy[0xC:], 0x00100000)
	}

	cellBytes := len(b.Cells) * stride
	heapSize := roundUp(cellBytes, pageSize)
	if o.tightRegion {
		heapSize = cellBytes
	}
	heap := make([]byte, heapSize)
	for i, c := range b.Cells {
		heap[i*stride] = board.Encode(layout.Legacy, c)
	}

	mem := procmem.NewBufferMemory()
	mustMap(mem, LegacyCodeBase, text, procmem.PermRead|procmem.PermExec, "winmine.exe")
	mustMap(mem, LegacyDataBase, data, procmem.PermRead|procmem.PermWrite, "winmine.exe")
	if len(heap) > 0 {
		mustMap(mem, LegacyHeapBase, heap, procmem.PermRead|procmem.PermWrite, "")
	}
	return &Image{
		Mem:           mem,
		Variant:       layout.Legacy,
		SignatureAddr: LegacyCodeBase + legacyHitOffset,
		StructAddr:    LegacyStruct,
		CellsAddr:     LegacyHeapBase,
		Width:         b.Width,
		stride:        stride,
	}
}

// Modern builds a 64-bit image: a RIP-relative reference to a global game
// pointer, the game object holding the board pointer at +0x18, and the
// board header followed by inline cells.
func Modern(b *board.Board, opts ...Option) *Image {
	o, mines, w, h := collect(b, opts)
	off := layout.DefaultModernOffsets()

	text := code(pageSize)
	putModernRef(text, modernHitOffset, ModernGlobal)

	data := make([]byte, pageSize)
	binary.LittleEndian.PutUint64(data[ModernGlobal-ModernDataBase:], ModernGame)

	if o.decoy {
		// The decoy global holds a null game pointer.
		putModernRef(text, modernDecoyHit, modernDecoyGlob)
	}

	structOff := int(ModernStruct - ModernHeapBase)
	end := structOff + off.Cells + len(b.Cells)*off.CellStride
	heapSize := roundUp(end, 4*pageSize)
	if o.tightRegion {
		heapSize = end
	}
	heap := make([]byte, heapSize)
	binary.LittleEndian.PutUint64(heap[0x18:], ModernStruct)
	hdr := heap[structOff:]
	binary.LittleEndian.PutUint32(hdr[off.Mines:], mines)
	binary.LittleEndian.PutUint32(hdr[off.Height:], h)
	binary.LittleEndian.PutUint32(hdr[off.Width:], w)
	for i, c := range b.Cells {
		hdr[off.Cells+i*off.CellStride] = board.Encode(layout.Modern, c)
	}

	mem := procmem.NewBufferMemory()
	mustMap(mem, ModernCodeBase, text, procmem.PermRead|procmem.PermExec, "Minesweeper.exe")
	mustMap(mem, ModernDataBase, data, procmem.PermRead|procmem.PermWrite, "Minesweeper.exe")
	mustMap(mem, ModernHeapBase, heap, procmem.PermRead|procmem.PermWrite, "")
	return &Image{
		Mem:           mem,
		Variant:       layout.Modern,
		SignatureAddr: ModernCodeBase + modernHitOffset,
		StructAddr:    ModernStruct,
		CellsAddr:     ModernStruct + uint64(off.Cells),
		Width:         b.Width,
		stride:        off.CellStride,
	}
}

// putModernRef writes "cmp qword ptr [rip+disp], 0" 24 bytes before hit,
// NOP padding up to hit and the signature at hit.
func putModernRef(text []byte, hit int, global uint64) {
	instr := hit - 24
	text[instr], text[instr+1], text[instr+2] = 0x48, 0x83, 0x3D
	next := uint64(ModernCodeBase) + uint64(instr+8)
	binary.LittleEndian.PutUint32(text[instr+3:], uint32(int32(int64(global)-int64(next))))
	text[instr+7] = 0x00
	for i := instr + 8; i < hit; i++ {
		text[i] = 0x90
	}
	copy(text[hit:], modernSig)
}

// Combine maps the regions of several images into one address space.
func Combine(images ...*Image) *procmem.BufferMemory {
	mem := procmem.NewBufferMemory()
	for _, img := range images {
		for _, r := range mustRegions(img.Mem) {
			mustMap(mem, r.Base, img.Mem.Bytes(r.Base), r.Perm, r.Name)
		}
	}
	return mem
}

func mustMap(mem *procmem.BufferMemory, base uint64, data []byte, perm procmem.Perm, name string) {
	if err := mem.MapNamed(base, data, perm, name); err != nil {
		panic(fmt.Sprintf("boardtest: map %#x: %v", base, err))
	}
}

func mustRegions(mem *procmem.BufferMemory) []procmem.Region {
	regions, err := mem.Regions()
	if err != nil {
		panic(err)
	}
	return regions
}
