package recorder

import (
	"time"

	"github.com/willibrandon/mimisweep/pkg/board"
)

// FrameKind distinguishes decoded boards from failed decodes
type FrameKind int

const (
	// BoardFrame holds a decoded board
	BoardFrame FrameKind = iota
	// ErrorFrame records a decode that failed
	ErrorFrame
)

// Frame is one observation of a game
type Frame struct {
	Seq       int64        `json:"seq"`
	Timestamp time.Time    `json:"ts"`
	Kind      FrameKind    `json:"kind"`
	Source    string       `json:"source,omitempty"` // process instance key or snapshot path
	Variant   string       `json:"variant,omitempty"`
	Board     *board.Board `json:"board,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// String returns the string representation of the FrameKind
func (k FrameKind) String() string {
	switch k {
	case BoardFrame:
		return "Board"
	case ErrorFrame:
		return "Error"
	default:
		return "Unknown"
	}
}

// NewBoardFrame returns a frame for a decoded board
func NewBoardFrame(seq int64, source, variant string, b *board.Board) Frame {
	return Frame{
		Seq:       seq,
		Timestamp: time.Now().UTC(),
		Kind:      BoardFrame,
		Source:    source,
		Variant:   variant,
		Board:     b,
	}
}

// NewErrorFrame returns a frame for a failed decode
func NewErrorFrame(seq int64, source, variant string, err error) Frame {
	return Frame{
		Seq:       seq,
		Timestamp: time.Now().UTC(),
		Kind:      ErrorFrame,
		Source:    source,
		Variant:   variant,
		Error:     err.Error(),
	}
}
