package procmem

import (
	"errors"
	"fmt"
)

var (
	// ErrProcessNotFound is returned when no process has the requested id.
	ErrProcessNotFound = errors.New("process not found")
	// ErrAccessDenied is returned when the caller may not read the process.
	ErrAccessDenied = errors.New("access denied")
	// ErrUnsupported is returned on platforms without a process accessor.
	ErrUnsupported = errors.New("process memory access not supported on this platform")
	// ErrUnmapped is returned when a read touches memory outside any region.
	ErrUnmapped = errors.New("address not mapped")
	// ErrOverlap is returned when mapping a buffer over an existing one.
	ErrOverlap = errors.New("region overlaps existing mapping")
	// ErrClosed is returned by reads after Close.
	ErrClosed = errors.New("process handle closed")
)

// AttachError reports a failure to open a process for reading.
type AttachError struct {
	PID int
	Err error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("attach to process %d: %v", e.PID, e.Err)
}

func (e *AttachError) Unwrap() error { return e.Err }

// ReadError reports a failed or short read of target memory.
type ReadError struct {
	Addr uint64
	Len  int
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %d bytes at %#x: %v", e.Len, e.Addr, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
