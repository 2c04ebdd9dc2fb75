//go:build !windows && !linux

package procmem

// Process is unavailable on this platform.
type Process struct{}

// Attach always fails with ErrUnsupported.
func Attach(pid int) (*Process, error) {
	return nil, &AttachError{PID: pid, Err: ErrUnsupported}
}

// PID returns 0.
func (p *Process) PID() int { return 0 }

// Regions always fails.
func (p *Process) Regions() ([]Region, error) { return nil, ErrUnsupported }

// ReadBytes always fails.
func (p *Process) ReadBytes(addr uint64, n int) ([]byte, error) {
	return nil, &ReadError{Addr: addr, Len: n, Err: ErrUnsupported}
}

// Close does nothing.
func (p *Process) Close() error { return nil }
