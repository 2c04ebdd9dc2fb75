package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/willibrandon/mimisweep/pkg/board"
	"github.com/willibrandon/mimisweep/pkg/board/boardtest"
	"github.com/willibrandon/mimisweep/pkg/layout"
	"github.com/willibrandon/mimisweep/pkg/procmem"
)

func TestCaptureLoadRoundTrip(t *testing.T) {
	want := board.New(16, 16, 40)
	want.Set(3, 4, board.RevealedCell(2))
	want.Set(5, 5, board.Cell{State: board.Flagged})

	for _, v := range layout.AllVariants {
		t.Run(v.String(), func(t *testing.T) {
			img := boardtest.Build(v, want)
			dir := filepath.Join(t.TempDir(), "snap")

			m, err := Capture(img.Mem, dir, Options{PID: 1234, Process: "winmine.exe", Variant: v.String()})
			if err != nil {
				t.Fatalf("Capture failed: %v", err)
			}
			if len(m.Skipped) != 0 {
				t.Errorf("Expected no skipped regions, got %+v", m.Skipped)
			}

			mem, loaded, err := Load(dir)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.PID != 1234 || loaded.Variant != v.String() || loaded.TotalBytes != m.TotalBytes {
				t.Errorf("manifest mismatch: %+v", loaded)
			}

			orig, _ := img.Mem.Regions()
			got, _ := mem.Regions()
			if diff := cmp.Diff(orig, got); diff != "" {
				t.Errorf("regions mismatch (-want +got):\n%s", diff)
			}

			l, err := layout.Find(mem)
			if err != nil {
				t.Fatalf("Find on snapshot failed: %v", err)
			}
			b, err := board.Decode(mem, l)
			if err != nil {
				t.Fatalf("Decode on snapshot failed: %v", err)
			}
			if diff := cmp.Diff(want, b); diff != "" {
				t.Errorf("board mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCaptureSkipsUnreadable(t *testing.T) {
	mem := procmem.NewBufferMemory()
	if err := mem.Map(0x1000, []byte("first"), procmem.PermRead); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if err := mem.Map(0x2000, []byte("guarded"), procmem.PermRead); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if err := mem.Map(0x3000, []byte("third"), procmem.PermRead|procmem.PermWrite); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	mem.FailReads(0x2000, errors.New("guard page"))

	dir := t.TempDir()
	m, err := Capture(mem, dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if len(m.Skipped) != 1 || m.Skipped[0].Base != 0x2000 {
		t.Fatalf("Expected region 0x2000 skipped, got %+v", m.Skipped)
	}

	loaded, _, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got, err := loaded.ReadBytes(0x3000, 5)
	if err != nil || string(got) != "third" {
		t.Errorf("ReadBytes = %q, %v", got, err)
	}
	if _, err := loaded.ReadBytes(0x2000, 1); !errors.Is(err, procmem.ErrUnmapped) {
		t.Errorf("skipped region should be unmapped, got %v", err)
	}
}

func TestCaptureFilter(t *testing.T) {
	img := boardtest.Legacy(board.New(9, 9, 10))
	opts := DefaultOptions()
	opts.Filter = func(r procmem.Region) bool { return r.Perm&procmem.PermExec != 0 }

	m, err := Capture(img.Mem, t.TempDir(), opts)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if len(m.Regions) != 1 || m.Regions[0].Base != boardtest.LegacyCodeBase {
		t.Errorf("Expected only the code region, got %+v", m.Regions)
	}
}

func TestLoadDetectsTampering(t *testing.T) {
	img := boardtest.Legacy(board.New(9, 9, 10))
	dir := t.TempDir()
	if _, err := Capture(img.Mem, dir, DefaultOptions()); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	path := filepath.Join(dir, ManifestFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	m, err := ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}
	sum := m.Regions[0].SHA256
	forged := strings.Repeat("0", len(sum))
	if err := os.WriteFile(path, []byte(strings.Replace(string(raw), sum, forged, 1)), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, _, err := Load(dir); !errors.Is(err, ErrChecksum) {
		t.Errorf("Load error = %v, want ErrChecksum", err)
	}
}

func TestLoadRejectsOversizedRegion(t *testing.T) {
	img := boardtest.Legacy(board.New(9, 9, 10))
	dir := t.TempDir()
	if _, err := Capture(img.Mem, dir, DefaultOptions()); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	// Claim a region far larger than any capture writes
	m, err := ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}
	m.Regions[0].Size = 1 << 40
	raw, err := yaml.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), raw, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, _, err := Load(dir); !errors.Is(err, ErrRegionTooLarge) {
		t.Errorf("Load error = %v, want ErrRegionTooLarge", err)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of an empty directory should fail")
	}
}
