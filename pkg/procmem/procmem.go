// Package procmem provides read-only access to the memory of another process.
//
// A Memory lists the readable regions of an address space and reads bytes
// from it. Process is the live implementation backed by the operating system;
// BufferMemory is an in-process implementation used for snapshots and tests.
package procmem

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Perm is the set of access rights of a region.
type Perm uint8

const (
	// PermRead marks a readable region.
	PermRead Perm = 1 << iota
	// PermWrite marks a writable region.
	PermWrite
	// PermExec marks an executable region.
	PermExec
)

// String returns the permissions in rwx form
func (p Perm) String() string {
	var sb strings.Builder
	for _, f := range []struct {
		bit Perm
		c   byte
	}{{PermRead, 'r'}, {PermWrite, 'w'}, {PermExec, 'x'}} {
		if p&f.bit != 0 {
			sb.WriteByte(f.c)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// Region is a contiguous range of the target address space.
type Region struct {
	Base uint64
	Size uint64
	Perm Perm
	// Name is the backing module or file, if known.
	Name string
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return r.Base + r.Size
}

// Contains reports whether [addr, addr+n) lies entirely inside the region.
func (r Region) Contains(addr uint64, n uint64) bool {
	if addr < r.Base || addr > r.End() {
		return false
	}
	return n <= r.End()-addr
}

func (r Region) String() string {
	if r.Name != "" {
		return fmt.Sprintf("%#x-%#x %s %s", r.Base, r.End(), r.Perm, r.Name)
	}
	return fmt.Sprintf("%#x-%#x %s", r.Base, r.End(), r.Perm)
}

// Memory is a readable address space.
type Memory interface {
	// Regions returns the readable regions in ascending address order.
	Regions() ([]Region, error)
	// ReadBytes reads exactly n bytes at addr. Short reads are errors.
	ReadBytes(addr uint64, n int) ([]byte, error)
}

// Target is a Memory that holds an operating system resource.
type Target interface {
	Memory
	io.Closer
}

// FindRegion returns the region that fully contains [addr, addr+n).
// regions must be sorted by base address.
func FindRegion(regions []Region, addr uint64, n uint64) (Region, bool) {
	i := sort.Search(len(regions), func(i int) bool {
		return regions[i].End() > addr
	})
	if i < len(regions) && regions[i].Contains(addr, n) {
		return regions[i], true
	}
	return Region{}, false
}

// ReadUint32 reads a little-endian 32-bit value.
func ReadUint32(mem Memory, addr uint64) (uint32, error) {
	b, err := mem.ReadBytes(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads a little-endian 64-bit value.
func ReadUint64(mem Memory, addr uint64) (uint64, error) {
	b, err := mem.ReadBytes(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadPointer reads a pointer of the given width (4 or 8 bytes).
func ReadPointer(mem Memory, addr uint64, size int) (uint64, error) {
	switch size {
	case 4:
		v, err := ReadUint32(mem, addr)
		return uint64(v), err
	case 8:
		return ReadUint64(mem, addr)
	default:
		return 0, fmt.Errorf("unsupported pointer size %d", size)
	}
}

// ParsePerm parses the rwx form produced by Perm.String.
func ParsePerm(s string) (Perm, error) {
	if len(s) != 3 {
		return 0, fmt.Errorf("invalid permissions %q", s)
	}
	var p Perm
	for i, f := range []struct {
		bit Perm
		c   byte
	}{{PermRead, 'r'}, {PermWrite, 'w'}, {PermExec, 'x'}} {
		switch s[i] {
		case f.c:
			p |= f.bit
		case '-':
		default:
			return 0, fmt.Errorf("invalid permissions %q", s)
		}
	}
	return p, nil
}
