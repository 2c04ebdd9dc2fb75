// Package render draws decoded boards as text.
package render

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/willibrandon/mimisweep/pkg/board"
)

// ColorMode selects when ANSI colors are used.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// ParseColorMode parses auto, always or never.
func ParseColorMode(s string) (ColorMode, error) {
	switch m := ColorMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ColorAuto, ColorAlways, ColorNever:
		return m, nil
	case "":
		return ColorAuto, nil
	}
	return "", fmt.Errorf("unknown color mode %q", s)
}

// ShouldColor reports whether output to f should be colored. In auto mode
// that is when f is a terminal and NO_COLOR is unset.
func ShouldColor(f *os.File, mode ColorMode) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Options controls Text output.
type Options struct {
	Color bool
	// Coordinates adds column and row numbers.
	Coordinates bool
}

const reset = "\x1b[0m"

// digitColors follows the classic palette.
var digitColors = [9]string{
	"",
	"\x1b[94m", // 1 blue
	"\x1b[32m", // 2 green
	"\x1b[91m", // 3 red
	"\x1b[34m", // 4 dark blue
	"\x1b[31m", // 5 maroon
	"\x1b[36m", // 6 teal
	"\x1b[90m", // 7 black
	"\x1b[37m", // 8 gray
}

// Symbol returns the character drawn for c and its color escape.
func Symbol(c board.Cell) (string, string) {
	switch c.State {
	case board.Covered:
		return ".", ""
	case board.Flagged:
		return "F", "\x1b[1;31m"
	case board.QuestionMarked:
		return "?", "\x1b[1;33m"
	case board.Revealed:
		if c.Adjacent == 0 {
			return " ", ""
		}
		if c.Adjacent > 8 {
			return "#", ""
		}
		return string('0' + rune(c.Adjacent)), digitColors[c.Adjacent]
	case board.Mine:
		return "*", "\x1b[1m"
	case board.ExplodedMine:
		return "!", "\x1b[1;41m"
	}
	return "#", "\x1b[35m"
}

// Text writes b to w, one line per row.
func Text(w io.Writer, b *board.Board, opts Options) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%dx%d, %d mines\n", b.Width, b.Height, b.Mines)

	if opts.Coordinates {
		bw.WriteString("    ")
		for x := 0; x < b.Width; x++ {
			fmt.Fprintf(bw, "%d", x%10)
		}
		bw.WriteByte('\n')
	}
	for y := 0; y < b.Height; y++ {
		if opts.Coordinates {
			fmt.Fprintf(bw, "%3d ", y)
		}
		for _, c := range b.Row(y) {
			sym, color := Symbol(c)
			if opts.Color && color != "" {
				bw.WriteString(color + sym + reset)
				continue
			}
			bw.WriteString(sym)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Summary returns a one line count of cell states.
func Summary(b *board.Board) string {
	return fmt.Sprintf("covered=%d flagged=%d question=%d revealed=%d mines=%d exploded=%d unknown=%d",
		b.Count(board.Covered),
		b.Count(board.Flagged),
		b.Count(board.QuestionMarked),
		b.Count(board.Revealed),
		b.Count(board.Mine),
		b.Count(board.ExplodedMine),
		b.Count(board.Unknown))
}
