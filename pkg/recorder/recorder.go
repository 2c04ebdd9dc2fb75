// Package recorder stores the boards observed while watching a game.
package recorder

// Recorder stores frames in the order they are recorded
type Recorder interface {
	RecordFrame(f Frame) error
	Frames() []Frame
	Clear()
}

// InMemoryRecorder keeps frames in memory
type InMemoryRecorder struct {
	frames []Frame
}

// NewInMemoryRecorder creates an empty in-memory recorder
func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{frames: []Frame{}}
}

// RecordFrame appends f
func (r *InMemoryRecorder) RecordFrame(f Frame) error {
	r.frames = append(r.frames, f)
	return nil
}

// Frames returns the recorded frames
func (r *InMemoryRecorder) Frames() []Frame {
	return r.frames
}

// Clear drops all frames
func (r *InMemoryRecorder) Clear() {
	r.frames = []Frame{}
}
