package render

import (
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/willibrandon/mimisweep/pkg/board"
)

func sampleBoard() *board.Board {
	b := board.New(4, 2, 2)
	b.Set(0, 0, board.RevealedCell(0))
	b.Set(1, 0, board.RevealedCell(2))
	b.Set(2, 0, board.Cell{State: board.Flagged})
	b.Set(3, 0, board.Cell{State: board.QuestionMarked})
	b.Set(0, 1, board.Cell{State: board.Mine})
	b.Set(1, 1, board.Cell{State: board.ExplodedMine})
	b.Set(2, 1, board.Cell{State: board.Unknown})
	return b
}

func TestText(t *testing.T) {
	var sb strings.Builder
	if err := Text(&sb, sampleBoard(), Options{}); err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	want := "4x2, 2 mines\n" +
		" 2F?\n" +
		"*!#.\n"
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("Text mismatch (-want +got):\n%s", diff)
	}
}

func TestTextCoordinates(t *testing.T) {
	var sb strings.Builder
	if err := Text(&sb, sampleBoard(), Options{Coordinates: true}); err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	lines := strings.Split(sb.String(), "\n")
	if lines[1] != "    0123" {
		t.Errorf("column header = %q", lines[1])
	}
	if lines[3] != "  1 *!#." {
		t.Errorf("row 1 = %q", lines[3])
	}
}

func TestTextColor(t *testing.T) {
	var sb strings.Builder
	if err := Text(&sb, sampleBoard(), Options{Color: true}); err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	out := sb.String()
	if !strings.Contains(out, digitColors[2]+"2"+reset) {
		t.Errorf("Expected a colored 2 in %q", out)
	}
	// Covered cells stay plain
	if !strings.HasSuffix(out, "#"+reset+".\n") {
		t.Errorf("Expected a plain covered cell at the end of %q", out)
	}
}

func TestParseColorMode(t *testing.T) {
	for in, want := range map[string]ColorMode{"": ColorAuto, "AUTO": ColorAuto, "always": ColorAlways, "never": ColorNever} {
		got, err := ParseColorMode(in)
		if err != nil || got != want {
			t.Errorf("ParseColorMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseColorMode("sometimes"); err == nil {
		t.Error("ParseColorMode(sometimes) should fail")
	}
}

func TestShouldColor(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	defer f.Close()

	if !ShouldColor(f, ColorAlways) {
		t.Error("always should color")
	}
	if ShouldColor(f, ColorNever) {
		t.Error("never should not color")
	}
	// A regular file is not a terminal
	if ShouldColor(f, ColorAuto) {
		t.Error("auto should not color a regular file")
	}
}

func TestSummary(t *testing.T) {
	got := Summary(sampleBoard())
	want := "covered=1 flagged=1 question=1 revealed=2 mines=1 exploded=1 unknown=1"
	if got != want {
		t.Errorf("Summary = %q, want %q", got, want)
	}
}
