package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/willibrandon/mimisweep/pkg/board"
	"github.com/willibrandon/mimisweep/pkg/board/boardtest"
	"github.com/willibrandon/mimisweep/pkg/config"
	"github.com/willibrandon/mimisweep/pkg/layout"
	"github.com/willibrandon/mimisweep/pkg/procmem"
	"github.com/willibrandon/mimisweep/pkg/recorder"
	"github.com/willibrandon/mimisweep/pkg/render"
)

func sampleBoard() *board.Board {
	b := board.New(4, 3, 2)
	b.Set(0, 0, board.RevealedCell(1))
	b.Set(1, 0, board.Cell{State: board.Flagged})
	b.Set(3, 2, board.Cell{State: board.QuestionMarked})
	return b
}

// newTestApp returns an app that serves img for every pid.
func newTestApp(img *boardtest.Image) (*app, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	cfg := config.Default()
	cfg.Color = render.ColorNever
	a := newApp(cfg, &stdout, &stderr)
	a.attach = func(pid int) (procmem.Target, error) {
		if img == nil {
			return nil, &procmem.AttachError{PID: pid, Err: procmem.ErrProcessNotFound}
		}
		return img.Mem, nil
	}
	a.instanceKey = func(pid int) (string, error) {
		return fmt.Sprintf("%d@1", pid), nil
	}
	a.identify = func(pid int) (string, error) {
		return "", fmt.Errorf("process %d: not found", pid)
	}
	return a, &stdout, &stderr
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"other", errors.New("boom"), exitFailure},
		{"attach", &procmem.AttachError{PID: 1, Err: procmem.ErrAccessDenied}, exitAttach},
		{"resolution", fmt.Errorf("open: %w", &layout.ResolutionError{Err: layout.ErrNoStructureFound}), exitResolution},
		{"decode", &board.DecodeError{Variant: layout.Legacy, Err: board.ErrInvalidHeader}, exitDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("Expected exit code %d, got %d", tt.want, got)
			}
		})
	}
}

func TestRunUsage(t *testing.T) {
	a, _, stderr := newTestApp(nil)
	if code := a.run(nil); code != exitFailure {
		t.Errorf("Expected exit code %d without a command, got %d", exitFailure, code)
	}
	if !strings.Contains(stderr.String(), "usage: mimisweep") {
		t.Errorf("Expected usage on stderr, got %q", stderr.String())
	}

	a, _, _ = newTestApp(nil)
	if code := a.run([]string{"frobnicate"}); code != exitFailure {
		t.Errorf("Expected exit code %d for an unknown command, got %d", exitFailure, code)
	}
}

func TestRunVersion(t *testing.T) {
	a, stdout, _ := newTestApp(nil)
	if code := a.run([]string{"version"}); code != exitOK {
		t.Fatalf("Expected exit code 0, got %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "mimisweep v") {
		t.Errorf("Unexpected version output %q", stdout.String())
	}
}

func TestRunInfo(t *testing.T) {
	img := boardtest.Legacy(sampleBoard())
	a, stdout, stderr := newTestApp(img)

	if code := a.run([]string{"info", "-pid", "42"}); code != exitOK {
		t.Fatalf("Expected exit code 0, got %d: %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{
		"instance:  42@1",
		"variant:   legacy",
		fmt.Sprintf("structure: %#x", img.StructAddr),
		"board:     4x3, 2 mines",
		"flagged=1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRunInfoAttachFailure(t *testing.T) {
	a, _, _ := newTestApp(nil)
	if code := a.run([]string{"info", "-pid", "42"}); code != exitAttach {
		t.Errorf("Expected exit code %d, got %d", exitAttach, code)
	}
}

func TestRunInfoResolutionFailure(t *testing.T) {
	// A modern image searched only with the legacy signature
	img := boardtest.Modern(sampleBoard())
	a, _, _ := newTestApp(img)
	if code := a.run([]string{"info", "-pid", "42", "-variant", "legacy"}); code != exitResolution {
		t.Errorf("Expected exit code %d, got %d", exitResolution, code)
	}
}

func TestRunNarrowsVariantByExecutable(t *testing.T) {
	img := boardtest.Legacy(sampleBoard())

	// A modern executable name limits resolution to the modern layout
	a, _, _ := newTestApp(img)
	a.identify = func(int) (string, error) { return `C:\Games\Minesweeper.exe`, nil }
	if code := a.run([]string{"info", "-pid", "42"}); code != exitResolution {
		t.Errorf("Expected exit code %d, got %d", exitResolution, code)
	}

	// An explicit variant is not overridden
	a, stdout, stderr := newTestApp(img)
	a.identify = func(int) (string, error) { return "Minesweeper.exe", nil }
	if code := a.run([]string{"info", "-pid", "42", "-variant", "legacy"}); code != exitOK {
		t.Fatalf("Expected exit code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "variant:   legacy") {
		t.Errorf("Unexpected info output:\n%s", stdout.String())
	}

	// The matching name resolves as before
	a, stdout, _ = newTestApp(img)
	a.identify = func(int) (string, error) { return "WINMINE.EXE", nil }
	if code := a.run([]string{"info", "-pid", "42"}); code != exitOK {
		t.Fatalf("Expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "variant:   legacy") {
		t.Errorf("Unexpected info output:\n%s", stdout.String())
	}
}

func TestRunInvalidVariantFlag(t *testing.T) {
	a, _, _ := newTestApp(boardtest.Legacy(sampleBoard()))
	if code := a.run([]string{"info", "-pid", "42", "-variant", "vista"}); code != exitFailure {
		t.Errorf("Expected exit code %d, got %d", exitFailure, code)
	}
}

func TestDumpAndDecode(t *testing.T) {
	b := sampleBoard()
	img := boardtest.Modern(b)
	dir := filepath.Join(t.TempDir(), "snap")

	// Step 1: dump the synthetic process
	a, stdout, stderr := newTestApp(img)
	if code := a.run([]string{"dump", "-pid", fmt.Sprint(os.Getpid()), "-out", dir}); code != exitOK {
		t.Fatalf("dump: expected exit code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "captured") {
		t.Errorf("Unexpected dump output %q", stdout.String())
	}

	// Step 2: decode the snapshot as text
	a, stdout, stderr = newTestApp(nil)
	if code := a.run([]string{"decode", "-from", dir}); code != exitOK {
		t.Fatalf("decode: expected exit code 0, got %d: %s", code, stderr.String())
	}
	var want bytes.Buffer
	if err := render.Text(&want, b, render.Options{}); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if stdout.String() != want.String() {
		t.Errorf("Expected board:\n%s\ngot:\n%s", want.String(), stdout.String())
	}

	// Step 3: decode the snapshot as JSON
	a, stdout, _ = newTestApp(nil)
	if code := a.run([]string{"decode", "-json", dir}); code != exitOK {
		t.Fatalf("decode -json: expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), `"width": 4`) {
		t.Errorf("Expected JSON board, got %s", stdout.String())
	}
}

func TestDecodeRequiresSnapshot(t *testing.T) {
	a, _, _ := newTestApp(nil)
	if code := a.run([]string{"decode"}); code != exitFailure {
		t.Errorf("Expected exit code %d, got %d", exitFailure, code)
	}
}

func TestWatchRecordAndReplay(t *testing.T) {
	img := boardtest.Legacy(sampleBoard())
	logPath := filepath.Join(t.TempDir(), "frames.log")

	// Step 1: watch until one board has been seen
	a, stdout, stderr := newTestApp(img)
	args := []string{"watch", "-pid", "7", "-interval", "1ms", "-count", "1", "-record", logPath}
	if code := a.run(args); code != exitOK {
		t.Fatalf("watch: expected exit code 0, got %d: %s", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "4x3, 2 mines\n") {
		t.Errorf("Unexpected watch output %q", stdout.String())
	}

	frames, err := recorder.ReadFrames(logPath)
	if err != nil {
		t.Fatalf("ReadFrames failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if frames[0].Source != "7@1" || frames[0].Variant != "legacy" {
		t.Errorf("Unexpected frame source %q variant %q", frames[0].Source, frames[0].Variant)
	}

	// Step 2: replay the log
	a, stdout, stderr = newTestApp(nil)
	if code := a.run([]string{"replay", logPath}); code != exitOK {
		t.Fatalf("replay: expected exit code 0, got %d: %s", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "#0 seq=1 ") {
		t.Errorf("Unexpected replay output %q", stdout.String())
	}
}

func TestWatchDecodeFailure(t *testing.T) {
	img := boardtest.Legacy(sampleBoard())
	img.Mem.FailReads(boardtest.LegacyHeapBase, procmem.ErrUnmapped)

	a, _, _ := newTestApp(img)
	// The heap is still listed, so resolution succeeds and the first decode fails.
	if code := a.run([]string{"watch", "-pid", "7", "-interval", "1ms"}); code != exitDecode {
		t.Errorf("Expected exit code %d, got %d", exitDecode, code)
	}
}
