package board

// Change is one cell that differs between two boards.
type Change struct {
	X, Y int
	From Cell
	To   Cell
}

// Diff lists the cells that differ from a to b in row-major order. Boards
// of different sizes are reported as one change per cell of b.
func Diff(a, b *Board) []Change {
	if b == nil {
		return nil
	}
	var out []Change
	sameSize := a != nil && a.Width == b.Width && a.Height == b.Height
	for i, c := range b.Cells {
		var from Cell
		if sameSize {
			from = a.Cells[i]
			if from == c {
				continue
			}
		}
		out = append(out, Change{X: i % b.Width, Y: i / b.Width, From: from, To: c})
	}
	return out
}
