//go:build linux

package procmem

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Process is an attached Linux process, typically a Windows binary under Wine.
type Process struct {
	pid    int
	closed bool
}

// Attach checks that pid exists and that its memory can be read.
func Attach(pid int) (*Process, error) {
	if pid <= 0 {
		return nil, &AttachError{PID: pid, Err: ErrProcessNotFound}
	}
	if err := unix.Kill(pid, 0); err != nil {
		switch err {
		case unix.ESRCH:
			return nil, &AttachError{PID: pid, Err: errors.Wrap(ErrProcessNotFound, err.Error())}
		case unix.EPERM:
			return nil, &AttachError{PID: pid, Err: errors.Wrap(ErrAccessDenied, err.Error())}
		}
		return nil, &AttachError{PID: pid, Err: errors.Wrap(err, "kill")}
	}
	f, err := os.Open(mapsPath(pid))
	if err != nil {
		if os.IsPermission(err) {
			return nil, &AttachError{PID: pid, Err: errors.Wrap(ErrAccessDenied, err.Error())}
		}
		return nil, &AttachError{PID: pid, Err: errors.Wrap(ErrProcessNotFound, err.Error())}
	}
	f.Close()
	return &Process{pid: pid}, nil
}

func mapsPath(pid int) string {
	return fmt.Sprintf("/proc/%d/maps", pid)
}

// PID returns the process id.
func (p *Process) PID() int {
	return p.pid
}

// Regions parses /proc/<pid>/maps.
func (p *Process) Regions() ([]Region, error) {
	if p.closed {
		return nil, ErrClosed
	}
	f, err := os.Open(mapsPath(p.pid))
	if err != nil {
		return nil, errors.Wrap(err, "open maps")
	}
	defer f.Close()
	return ParseMaps(f)
}

// ReadBytes reads n bytes at addr with process_vm_readv.
func (p *Process) ReadBytes(addr uint64, n int) ([]byte, error) {
	if p.closed {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrClosed}
	}
	if n <= 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(n)
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: n}}
	read, err := unix.ProcessVMReadv(p.pid, local, remote, 0)
	if err != nil {
		if err == unix.EFAULT {
			return nil, &ReadError{Addr: addr, Len: n, Err: errors.Wrap(ErrUnmapped, err.Error())}
		}
		return nil, &ReadError{Addr: addr, Len: n, Err: errors.Wrap(err, "process_vm_readv")}
	}
	if read != n {
		return nil, &ReadError{Addr: addr, Len: n, Err: errors.Errorf("short read of %d bytes", read)}
	}
	return buf, nil
}

// Close marks the process as detached. No descriptor is held between calls.
func (p *Process) Close() error {
	p.closed = true
	return nil
}

