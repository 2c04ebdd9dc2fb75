package procmem

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBufferMemoryRegions(t *testing.T) {
	mem := NewBufferMemory()
	if err := mem.Map(0x3000, make([]byte, 0x100), PermRead|PermWrite); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if err := mem.MapNamed(0x1000, make([]byte, 0x200), PermRead|PermExec, "game.exe"); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	// Not readable, must not be listed
	if err := mem.Map(0x5000, make([]byte, 0x10), PermWrite); err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	regions, err := mem.Regions()
	if err != nil {
		t.Fatalf("Regions failed: %v", err)
	}
	want := []Region{
		{Base: 0x1000, Size: 0x200, Perm: PermRead | PermExec, Name: "game.exe"},
		{Base: 0x3000, Size: 0x100, Perm: PermRead | PermWrite},
	}
	if diff := cmp.Diff(want, regions); diff != "" {
		t.Errorf("Regions mismatch (-want +got):\n%s", diff)
	}
}

func TestBufferMemoryOverlap(t *testing.T) {
	mem := NewBufferMemory()
	if err := mem.Map(0x1000, make([]byte, 0x100), PermRead); err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	tests := []struct {
		name string
		base uint64
		size int
		err  bool
	}{
		{"inside", 0x1010, 0x10, true},
		{"straddles start", 0xFF0, 0x20, true},
		{"straddles end", 0x10F0, 0x20, true},
		{"covers", 0xF00, 0x400, true},
		{"adjacent before", 0xF00, 0x100, false},
		{"adjacent after", 0x1100, 0x10, false},
		{"empty", 0x9000, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mem.Map(tt.base, make([]byte, tt.size), PermRead)
			if (err != nil) != tt.err {
				t.Errorf("Map(%#x, %d) error = %v, want error %v", tt.base, tt.size, err, tt.err)
			}
			if err == nil {
				mem.Unmap(tt.base)
			}
		})
	}
}

func TestBufferMemoryReadBytes(t *testing.T) {
	mem := NewBufferMemory()
	data := []byte{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17}
	if err := mem.Map(0x2000, data, PermRead); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if err := mem.Map(0x2008, []byte{0xAA, 0xBB}, PermRead); err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	got, err := mem.ReadBytes(0x2002, 4)
	if err != nil {
		t.Fatalf("ReadBytes failed: %v", err)
	}
	if diff := cmp.Diff([]byte{0x12, 0x13, 0x14, 0x15}, got); diff != "" {
		t.Errorf("ReadBytes mismatch (-want +got):\n%s", diff)
	}

	// The copy must not alias the mapping
	got[0] = 0xFF
	if data[2] != 0x12 {
		t.Errorf("ReadBytes returned an aliased slice")
	}

	// A read spanning two adjacent mappings is rejected
	for _, tc := range []struct {
		addr uint64
		n    int
	}{{0x2006, 4}, {0x1FFF, 2}, {0x3000, 1}, {0x2000, -1}} {
		_, err := mem.ReadBytes(tc.addr, tc.n)
		var re *ReadError
		if !errors.As(err, &re) {
			t.Fatalf("ReadBytes(%#x, %d) error = %v, want *ReadError", tc.addr, tc.n, err)
		}
		if !errors.Is(err, ErrUnmapped) {
			t.Errorf("ReadBytes(%#x, %d) error = %v, want ErrUnmapped", tc.addr, tc.n, err)
		}
		if re.Addr != tc.addr {
			t.Errorf("ReadError.Addr = %#x, want %#x", re.Addr, tc.addr)
		}
	}
}

func TestBufferMemoryFailReads(t *testing.T) {
	mem := NewBufferMemory()
	if err := mem.Map(0x1000, make([]byte, 16), PermRead); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	errGuard := errors.New("guard page")
	mem.FailReads(0x1000, errGuard)

	regions, _ := mem.Regions()
	if len(regions) != 1 {
		t.Fatalf("Expected the failing region to stay listed, got %d regions", len(regions))
	}
	if _, err := mem.ReadBytes(0x1004, 4); !errors.Is(err, errGuard) {
		t.Errorf("ReadBytes error = %v, want %v", err, errGuard)
	}
}

func TestReadHelpers(t *testing.T) {
	mem := NewBufferMemory()
	data := []byte{0x78, 0x56, 0x34, 0x12, 0xF0, 0xDE, 0xBC, 0x9A}
	if err := mem.Map(0x400000, data, PermRead); err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	v32, err := ReadUint32(mem, 0x400000)
	if err != nil || v32 != 0x12345678 {
		t.Errorf("ReadUint32 = %#x, %v", v32, err)
	}
	v64, err := ReadUint64(mem, 0x400000)
	if err != nil || v64 != 0x9ABCDEF012345678 {
		t.Errorf("ReadUint64 = %#x, %v", v64, err)
	}
	p4, err := ReadPointer(mem, 0x400004, 4)
	if err != nil || p4 != 0x9ABCDEF0 {
		t.Errorf("ReadPointer(4) = %#x, %v", p4, err)
	}
	if _, err := ReadPointer(mem, 0x400000, 2); err == nil {
		t.Errorf("ReadPointer with size 2 should fail")
	}
	if _, err := ReadUint64(mem, 0x400004); err == nil {
		t.Errorf("ReadUint64 past the end should fail")
	}
}

func TestFindRegion(t *testing.T) {
	regions := []Region{
		{Base: 0x1000, Size: 0x1000},
		{Base: 0x4000, Size: 0x2000},
	}
	tests := []struct {
		addr uint64
		n    uint64
		want uint64
		ok   bool
	}{
		{0x1000, 4, 0x1000, true},
		{0x1FFC, 4, 0x1000, true},
		{0x1FFE, 4, 0, false},
		{0x3000, 1, 0, false},
		{0x5FFF, 1, 0x4000, true},
		{0x6000, 1, 0, false},
		{0x0, 1, 0, false},
	}
	for _, tt := range tests {
		r, ok := FindRegion(regions, tt.addr, tt.n)
		if ok != tt.ok || (ok && r.Base != tt.want) {
			t.Errorf("FindRegion(%#x, %d) = %#x, %v; want %#x, %v", tt.addr, tt.n, r.Base, ok, tt.want, tt.ok)
		}
	}
}

func TestPermString(t *testing.T) {
	if got := (PermRead | PermExec).String(); got != "r-x" {
		t.Errorf("Perm.String() = %q, want %q", got, "r-x")
	}
	if got := Perm(0).String(); got != "---" {
		t.Errorf("Perm.String() = %q, want %q", got, "---")
	}
}

func TestParsePerm(t *testing.T) {
	for _, p := range []Perm{0, PermRead, PermRead | PermWrite, PermRead | PermWrite | PermExec} {
		got, err := ParsePerm(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePerm(%q) = %v, %v; want %v", p.String(), got, err, p)
		}
	}
	for _, s := range []string{"", "rw", "rwz", "xrw"} {
		if _, err := ParsePerm(s); err == nil {
			t.Errorf("ParsePerm(%q) should fail", s)
		}
	}
}
