//go:build windows

package procmem

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

const (
	memPrivate = 0x20000
	memImage   = 0x1000000

	pageReadable = windows.PAGE_READONLY | windows.PAGE_READWRITE | windows.PAGE_WRITECOPY |
		windows.PAGE_EXECUTE_READ | windows.PAGE_EXECUTE_READWRITE | windows.PAGE_EXECUTE_WRITECOPY
	pageWritable = windows.PAGE_READWRITE | windows.PAGE_WRITECOPY |
		windows.PAGE_EXECUTE_READWRITE | windows.PAGE_EXECUTE_WRITECOPY
	pageExecutable = windows.PAGE_EXECUTE | windows.PAGE_EXECUTE_READ |
		windows.PAGE_EXECUTE_READWRITE | windows.PAGE_EXECUTE_WRITECOPY
)

// Process is an attached Windows process.
type Process struct {
	pid    int
	handle windows.Handle
}

// Attach opens pid for querying and reading memory.
func Attach(pid int) (*Process, error) {
	h, err := windows.OpenProcess(windows.PROCESS_VM_READ|windows.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		switch err {
		case windows.ERROR_ACCESS_DENIED:
			return nil, &AttachError{PID: pid, Err: errors.Wrap(ErrAccessDenied, err.Error())}
		case windows.ERROR_INVALID_PARAMETER:
			return nil, &AttachError{PID: pid, Err: errors.Wrap(ErrProcessNotFound, err.Error())}
		}
		return nil, &AttachError{PID: pid, Err: errors.Wrap(err, "OpenProcess")}
	}
	return &Process{pid: pid, handle: h}, nil
}

// PID returns the process id.
func (p *Process) PID() int {
	return p.pid
}

// Regions walks the address space with VirtualQueryEx and returns committed,
// readable private and image regions. Guard pages and file mappings are left out.
func (p *Process) Regions() ([]Region, error) {
	if p.handle == 0 {
		return nil, ErrClosed
	}
	var (
		regions []Region
		addr    uintptr
		mbi     windows.MemoryBasicInformation
	)
	for {
		if err := windows.VirtualQueryEx(p.handle, addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
			// ERROR_INVALID_PARAMETER marks the end of the user address space.
			if err == windows.ERROR_INVALID_PARAMETER {
				break
			}
			return nil, errors.Wrapf(err, "VirtualQueryEx at %#x after %d regions", addr, len(regions))
		}
		next := mbi.BaseAddress + mbi.RegionSize
		if next <= addr {
			break
		}
		addr = next

		if mbi.State != windows.MEM_COMMIT {
			continue
		}
		if mbi.Protect&windows.PAGE_GUARD != 0 || mbi.Protect&pageReadable == 0 {
			continue
		}
		if mbi.Type != memPrivate && mbi.Type != memImage {
			continue
		}
		perm := PermRead
		if mbi.Protect&pageWritable != 0 {
			perm |= PermWrite
		}
		if mbi.Protect&pageExecutable != 0 {
			perm |= PermExec
		}
		regions = append(regions, Region{
			Base: uint64(mbi.BaseAddress),
			Size: uint64(mbi.RegionSize),
			Perm: perm,
		})
	}
	return regions, nil
}

// ReadBytes reads n bytes at addr with ReadProcessMemory.
func (p *Process) ReadBytes(addr uint64, n int) ([]byte, error) {
	if p.handle == 0 {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrClosed}
	}
	if n <= 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	var read uintptr
	err := windows.ReadProcessMemory(p.handle, uintptr(addr), &buf[0], uintptr(n), &read)
	if err != nil {
		switch err {
		case windows.ERROR_PARTIAL_COPY, windows.ERROR_NOACCESS, windows.ERROR_INVALID_ADDRESS:
			return nil, &ReadError{Addr: addr, Len: n, Err: errors.Wrap(ErrUnmapped, err.Error())}
		}
		return nil, &ReadError{Addr: addr, Len: n, Err: errors.Wrap(err, "ReadProcessMemory")}
	}
	if int(read) != n {
		return nil, &ReadError{Addr: addr, Len: n, Err: errors.Errorf("short read of %d bytes", read)}
	}
	return buf, nil
}

// Close releases the process handle.
func (p *Process) Close() error {
	if p.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(p.handle)
	p.handle = 0
	return err
}
