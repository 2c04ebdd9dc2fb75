// Package replay steps through recorded board frames.
package replay

import (
	"fmt"
	"time"

	"github.com/willibrandon/mimisweep/pkg/board"
	"github.com/willibrandon/mimisweep/pkg/recorder"
)

// Replayer interface defines methods for replaying recorded frames
type Replayer interface {
	// LoadFrames loads recorded frames into the replayer
	LoadFrames([]recorder.Frame) error

	// ReplayForward replays all frames from the current position
	ReplayForward(fn func(Step) error) error

	// ReplayUntil replays frames until stop returns true for one
	ReplayUntil(stop func(recorder.Frame) bool, fn func(Step) error) error

	// ReplayToIndex moves to the specified index without replaying
	ReplayToIndex(idx int) error

	// StepBackward moves one frame back and returns the new index
	StepBackward() (int, error)

	// CurrentIndex returns the current frame index
	CurrentIndex() int

	// Frames returns all loaded frames
	Frames() []recorder.Frame
}

// Step is one replayed frame with the cells that changed since the
// previous board frame
type Step struct {
	Index   int
	Frame   recorder.Frame
	Changes []board.Change
}

// BasicReplayer implements the Replayer interface
type BasicReplayer struct {
	frames     []recorder.Frame
	currentIdx int
	// Pace is called with the recorded gap before each frame after the
	// first. Nil replays without waiting.
	Pace func(time.Duration)
}

// NewBasicReplayer creates a new BasicReplayer
func NewBasicReplayer() *BasicReplayer {
	return &BasicReplayer{
		frames:     []recorder.Frame{},
		currentIdx: -1,
	}
}

// LoadFrames loads the given frames into the replayer
func (r *BasicReplayer) LoadFrames(frames []recorder.Frame) error {
	r.frames = frames
	r.currentIdx = -1
	return nil
}

// ReplayForward replays all frames from current position to the end
func (r *BasicReplayer) ReplayForward(fn func(Step) error) error {
	return r.ReplayUntil(nil, fn)
}

// ReplayUntil replays frames until stop matches one. The matching frame is
// not replayed and becomes the current frame. If stop is nil, replay all.
func (r *BasicReplayer) ReplayUntil(stop func(recorder.Frame) bool, fn func(Step) error) error {
	startIdx := r.currentIdx + 1
	if startIdx < 0 {
		startIdx = 0
	}

	for i := startIdx; i < len(r.frames); i++ {
		frame := r.frames[i]

		// Check the stop condition BEFORE reporting
		if stop != nil && stop(frame) {
			r.currentIdx = i
			return nil
		}

		if r.Pace != nil && i > 0 {
			if gap := frame.Timestamp.Sub(r.frames[i-1].Timestamp); gap > 0 {
				r.Pace(gap)
			}
		}

		r.currentIdx = i
		if fn != nil {
			if err := fn(r.step(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// step builds the Step for frame i, diffing against the previous board frame
func (r *BasicReplayer) step(i int) Step {
	s := Step{Index: i, Frame: r.frames[i]}
	if s.Frame.Kind != recorder.BoardFrame {
		return s
	}
	var prev *board.Board
	for j := i - 1; j >= 0; j-- {
		if r.frames[j].Kind == recorder.BoardFrame {
			prev = r.frames[j].Board
			break
		}
	}
	s.Changes = board.Diff(prev, s.Frame.Board)
	return s
}

// ReplayToIndex moves to idx. Out of range indexes are ignored.
func (r *BasicReplayer) ReplayToIndex(idx int) error {
	if idx < 0 || idx >= len(r.frames) {
		return nil
	}

	r.currentIdx = idx
	return nil
}

// StepBackward moves one step backward in the frame log
func (r *BasicReplayer) StepBackward() (int, error) {
	if r.currentIdx <= 0 {
		return 0, fmt.Errorf("already at the beginning")
	}

	r.currentIdx--
	return r.currentIdx, nil
}

// Current returns the step at the current index
func (r *BasicReplayer) Current() (Step, bool) {
	if r.currentIdx < 0 || r.currentIdx >= len(r.frames) {
		return Step{}, false
	}
	return r.step(r.currentIdx), true
}

// CurrentIndex returns the current frame index
func (r *BasicReplayer) CurrentIndex() int {
	return r.currentIdx
}

// Frames returns all loaded frames
func (r *BasicReplayer) Frames() []recorder.Frame {
	return r.frames
}
