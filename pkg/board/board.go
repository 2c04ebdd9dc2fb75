// Package board decodes Minesweeper cell arrays into a typed board.
package board

import (
	"fmt"
)

// CellState is the visible state of one cell.
type CellState uint8

const (
	// Covered is an unopened cell with no mark.
	Covered CellState = iota
	// Flagged is a covered cell marked as a mine.
	Flagged
	// QuestionMarked is a covered cell marked as uncertain.
	QuestionMarked
	// Revealed is an opened cell. Cell.Adjacent holds its mine count.
	Revealed
	// Mine is a cell holding a mine that has not been opened.
	Mine
	// ExplodedMine is a mine that was opened.
	ExplodedMine
	// Unknown is a byte pattern that matches no known state.
	Unknown
)

// String returns the string representation of the CellState
func (s CellState) String() string {
	switch s {
	case Covered:
		return "Covered"
	case Flagged:
		return "Flagged"
	case QuestionMarked:
		return "QuestionMarked"
	case Revealed:
		return "Revealed"
	case Mine:
		return "Mine"
	case ExplodedMine:
		return "ExplodedMine"
	default:
		return "Unknown"
	}
}

// Cell is one decoded cell.
type Cell struct {
	State    CellState `json:"state"`
	Adjacent uint8     `json:"adjacent,omitempty"`
}

// RevealedCell returns a revealed cell with n adjacent mines.
func RevealedCell(n uint8) Cell {
	return Cell{State: Revealed, Adjacent: n}
}

func (c Cell) String() string {
	if c.State == Revealed {
		return fmt.Sprintf("Revealed(%d)", c.Adjacent)
	}
	return c.State.String()
}

// Board is a decoded game field. Cells are stored row-major and
// len(Cells) == Width*Height.
type Board struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Mines  int    `json:"mines"`
	Cells  []Cell `json:"cells"`
}

// New returns a width by height board of covered cells.
func New(width, height, mines int) *Board {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &Board{
		Width:  width,
		Height: height,
		Mines:  mines,
		Cells:  make([]Cell, width*height),
	}
}

func (b *Board) index(x, y int) (int, bool) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return 0, false
	}
	return y*b.Width + x, true
}

// At returns the cell at column x, row y.
func (b *Board) At(x, y int) (Cell, bool) {
	i, ok := b.index(x, y)
	if !ok {
		return Cell{}, false
	}
	return b.Cells[i], true
}

// Set replaces the cell at column x, row y.
func (b *Board) Set(x, y int, c Cell) bool {
	i, ok := b.index(x, y)
	if !ok {
		return false
	}
	b.Cells[i] = c
	return true
}

// Row returns row y. The slice aliases the board.
func (b *Board) Row(y int) []Cell {
	if y < 0 || y >= b.Height {
		return nil
	}
	return b.Cells[y*b.Width : (y+1)*b.Width]
}

// Count returns how many cells are in state s.
func (b *Board) Count(s CellState) int {
	n := 0
	for _, c := range b.Cells {
		if c.State == s {
			n++
		}
	}
	return n
}

// Equal reports whether two boards have the same size, mine count and cells.
func (b *Board) Equal(o *Board) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.Width != o.Width || b.Height != o.Height || b.Mines != o.Mines || len(b.Cells) != len(o.Cells) {
		return false
	}
	for i := range b.Cells {
		if b.Cells[i] != o.Cells[i] {
			return false
		}
	}
	return true
}
