package layout

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/willibrandon/mimisweep/pkg/procmem"
	"github.com/willibrandon/mimisweep/pkg/sigscan"
)

// maxInstLen is the longest x86 instruction.
const maxInstLen = 15

// Signature locates the code that references a board structure.
type Signature struct {
	Variant Variant
	Pattern sigscan.Pattern
	// InstrOffset is the distance from a pattern hit to the instruction
	// whose memory operand holds the root address.
	InstrOffset int64
	// Mode is the decoding mode for the instruction, 32 or 64.
	Mode int
	// Chain is dereferenced from the root: for each entry, the pointer at
	// addr+off becomes the next addr. The last value is the structure.
	Chain []uint64
}

var signatures = map[Variant]Signature{
	// mov ecx, [board]; test ecx, ecx; jz; mov eax, [ecx+disp8]
	Legacy: {
		Variant:     Legacy,
		Pattern:     sigscan.MustParsePattern("8B 0D ?? ?? ?? ?? 85 C9 74 ?? 8B 41 ??"),
		InstrOffset: 0,
		Mode:        32,
		Chain:       []uint64{0},
	},
	// Follows "cmp qword ptr [rip+g], 0" which sits 24 bytes before the hit.
	// g points at the game object, which holds the board at +0x18.
	Modern: {
		Variant:     Modern,
		Pattern:     sigscan.MustParsePattern("48 89 44 24 70 48 85 C0 74 0A 48 8B C8 E8"),
		InstrOffset: -24,
		Mode:        64,
		Chain:       []uint64{0, 0x18},
	},
}

// SignatureFor returns the signature of v.
func SignatureFor(v Variant) (Signature, bool) {
	s, ok := signatures[v]
	return s, ok
}

// operandTarget decodes the instruction at instr and returns the address
// named by its first memory operand.
func operandTarget(mem procmem.Memory, regions []procmem.Region, instr uint64, mode int) (uint64, error) {
	r, ok := procmem.FindRegion(regions, instr, 1)
	if !ok {
		return 0, fmt.Errorf("instruction at %#x is outside readable memory", instr)
	}
	n := uint64(maxInstLen)
	if r.End()-instr < n {
		n = r.End() - instr
	}
	code, err := mem.ReadBytes(instr, int(n))
	if err != nil {
		return 0, err
	}
	inst, err := x86asm.Decode(code, mode)
	if err != nil {
		return 0, fmt.Errorf("decode instruction at %#x: %v", instr, err)
	}
	for _, arg := range inst.Args {
		m, ok := arg.(x86asm.Mem)
		if !ok {
			continue
		}
		switch {
		case m.Base == x86asm.RIP:
			return uint64(int64(instr) + int64(inst.Len) + m.Disp), nil
		case m.Base == 0 && m.Index == 0:
			if mode == 32 {
				return uint64(uint32(m.Disp)), nil
			}
			return uint64(m.Disp), nil
		default:
			return 0, fmt.Errorf("instruction %q at %#x has no absolute memory operand", inst.String(), instr)
		}
	}
	return 0, fmt.Errorf("instruction %q at %#x has no memory operand", inst.String(), instr)
}

// followChain dereferences the chain from root with pointers of ptrSize bytes.
func followChain(mem procmem.Memory, root uint64, chain []uint64, ptrSize int) (uint64, error) {
	addr := root
	for _, off := range chain {
		next, err := procmem.ReadPointer(mem, addr+off, ptrSize)
		if err != nil {
			return 0, err
		}
		if next == 0 {
			return 0, fmt.Errorf("null pointer at %#x", addr+off)
		}
		addr = next
	}
	return addr, nil
}
