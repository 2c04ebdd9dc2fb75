package procmem

import (
	"fmt"
	"sort"
)

type mapping struct {
	region Region
	data   []byte
}

// BufferMemory is a Memory backed by byte slices mapped at fixed addresses.
// It is not safe for concurrent mutation.
type BufferMemory struct {
	mappings []mapping
	// failing holds bases whose reads always fail, to model guard pages.
	failing map[uint64]error
}

// NewBufferMemory returns an empty address space.
func NewBufferMemory() *BufferMemory {
	return &BufferMemory{failing: make(map[uint64]error)}
}

// Map places data at base with the given permissions. The slice is not
// copied; later writes to it are visible to readers.
func (m *BufferMemory) Map(base uint64, data []byte, perm Perm) error {
	return m.MapNamed(base, data, perm, "")
}

// MapNamed is Map with a region name.
func (m *BufferMemory) MapNamed(base uint64, data []byte, perm Perm, name string) error {
	r := Region{Base: base, Size: uint64(len(data)), Perm: perm, Name: name}
	if r.Size == 0 || r.End() < r.Base {
		return fmt.Errorf("map %#x: invalid region size %d", base, len(data))
	}
	for _, mp := range m.mappings {
		if r.Base < mp.region.End() && mp.region.Base < r.End() {
			return ErrOverlap
		}
	}
	m.mappings = append(m.mappings, mapping{region: r, data: data})
	sort.Slice(m.mappings, func(i, j int) bool {
		return m.mappings[i].region.Base < m.mappings[j].region.Base
	})
	return nil
}

// Unmap removes the mapping starting at base. It reports whether one existed.
func (m *BufferMemory) Unmap(base uint64) bool {
	for i, mp := range m.mappings {
		if mp.region.Base == base {
			m.mappings = append(m.mappings[:i], m.mappings[i+1:]...)
			delete(m.failing, base)
			return true
		}
	}
	return false
}

// FailReads makes every read of the region starting at base return err
// while the region is still listed by Regions.
func (m *BufferMemory) FailReads(base uint64, err error) {
	if m.failing == nil {
		m.failing = make(map[uint64]error)
	}
	m.failing[base] = err
}

// Bytes returns the backing slice of the mapping at base.
func (m *BufferMemory) Bytes(base uint64) []byte {
	for _, mp := range m.mappings {
		if mp.region.Base == base {
			return mp.data
		}
	}
	return nil
}

// Regions returns every readable mapping in ascending order.
func (m *BufferMemory) Regions() ([]Region, error) {
	regions := make([]Region, 0, len(m.mappings))
	for _, mp := range m.mappings {
		if mp.region.Perm&PermRead != 0 {
			regions = append(regions, mp.region)
		}
	}
	return regions, nil
}

// ReadBytes copies n bytes at addr. The range must lie in one readable mapping.
func (m *BufferMemory) ReadBytes(addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrUnmapped}
	}
	i := sort.Search(len(m.mappings), func(i int) bool {
		return m.mappings[i].region.End() > addr
	})
	if i == len(m.mappings) {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrUnmapped}
	}
	mp := m.mappings[i]
	if !mp.region.Contains(addr, uint64(n)) || mp.region.Perm&PermRead == 0 {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrUnmapped}
	}
	if err, ok := m.failing[mp.region.Base]; ok {
		return nil, &ReadError{Addr: addr, Len: n, Err: err}
	}
	off := addr - mp.region.Base
	out := make([]byte, n)
	copy(out, mp.data[off:off+uint64(n)])
	return out, nil
}

// Close implements Target. It does nothing.
func (m *BufferMemory) Close() error {
	return nil
}
