//go:build windows

package process_windows

import (
	"fmt"
	"time"

	"chrreload/process"

	"golang.org/x/sys/windows"
)

var (
	modkernel32            = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAllocEx     = modkernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx      = modkernel32.NewProc("VirtualFreeEx")
	procCreateRemoteThread = modkernel32.NewProc("CreateRemoteThread")
)

const waitTimeout = 0x102

// Allocate commits size bytes of PAGE_EXECUTE_READWRITE memory in the target.
func (p *WindowsProcess) Allocate(size process.ProcessMemorySize) (process.Allocation, error) {
	if size == 0 {
		return process.Allocation{}, fmt.Errorf("zero size: %w", process.ErrAllocationFailed)
	}
	handle, err := p.openHandle()
	if err != nil {
		return process.Allocation{}, err
	}

	addr, _, callErr := procVirtualAllocEx.Call(
		uintptr(handle), 0, uintptr(size),
		windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE,
	)
	if addr == 0 {
		return process.Allocation{}, fmt.Errorf("VirtualAllocEx %s bytes: %v: %w", size.ToString(), callErr, process.ErrAllocationFailed)
	}

	a := process.Allocation{Address: process.ProcessMemoryAddress(addr), Size: size}
	p.log.Debugln("VirtualAllocEx", a.ToString())
	return a, nil
}

func (p *WindowsProcess) Free(addr process.ProcessMemoryAddress) error {
	handle, err := p.openHandle()
	if err != nil {
		return err
	}

	ret, _, callErr := procVirtualFreeEx.Call(uintptr(handle), uintptr(addr), 0, windows.MEM_RELEASE)
	if ret == 0 {
		return fmt.Errorf("VirtualFreeEx %s: %v: %w", addr.ToString(), callErr, process.ErrFreeFailed)
	}
	return nil
}

// RunRemote starts a thread at addr and waits for it. On timeout the thread is
// left running and ErrThreadTimeout is returned.
func (p *WindowsProcess) RunRemote(addr process.ProcessMemoryAddress, timeout time.Duration) error {
	handle, err := p.openHandle()
	if err != nil {
		return err
	}

	thread, _, callErr := procCreateRemoteThread.Call(uintptr(handle), 0, 0, uintptr(addr), 0, 0, 0)
	if thread == 0 {
		return fmt.Errorf("CreateRemoteThread at %s: %v: %w", addr.ToString(), callErr, process.ErrThreadCreate)
	}
	defer windows.CloseHandle(windows.Handle(thread))

	event, err := windows.WaitForSingleObject(windows.Handle(thread), uint32(timeout.Milliseconds()))
	switch {
	case err != nil:
		return fmt.Errorf("wait for thread at %s: %v: %w", addr.ToString(), err, process.ErrThreadTimeout)
	case event == waitTimeout:
		return fmt.Errorf("thread at %s still running after %s: %w", addr.ToString(), timeout, process.ErrThreadTimeout)
	}
	return nil
}
