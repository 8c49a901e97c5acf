//go:build windows

package process_windows

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"chrreload/coloransi"
	"chrreload/process"
	"chrreload/process/memory_map"

	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

const (
	PROCESS_ALL_ACCESS = 0x1F0FFF
	STILL_ACTIVE       = 259
)

// WindowsProcess implements process.Target for a live Windows process
type WindowsProcess struct {
	mu     sync.Mutex
	handle windows.Handle
	pid    process.ProcessID
	name   string
	base   process.ProcessMemoryAddress
	log    *logger.Logger
}

var _ process.Target = (*WindowsProcess)(nil)

// New creates a detached WindowsProcess
func New() *WindowsProcess {
	return &WindowsProcess{
		log: notOpenLogger(),
	}
}

func notOpenLogger() *logger.Logger {
	return logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))
}

func (p *WindowsProcess) Attach(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != 0 && process.ImageNameMatches(p.name, name) && p.aliveLocked() {
		return nil
	}
	p.closeLocked()

	info, err := FindProcessByName(name)
	if err != nil {
		return err
	}

	handle, err := windows.OpenProcess(PROCESS_ALL_ACCESS, false, uint32(info.PID))
	if err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			return fmt.Errorf("OpenProcess %s (%d): %v: %w", info.Name, info.PID, err, process.ErrAccessDenied)
		}
		return fmt.Errorf("OpenProcess %s (%d): %v: %w", info.Name, info.PID, err, process.ErrProcessNotFound)
	}

	base, err := mainModuleBase(handle)
	if err != nil {
		windows.CloseHandle(handle)
		return fmt.Errorf("%s: %w", info.Name, err)
	}

	p.handle = handle
	p.pid = info.PID
	p.name = info.Name
	p.base = base
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorFrom(uint64(info.PID)), coloransi.Black, fmt.Sprintf("process-%d", info.PID)))
	p.log.Infoln("Process opened", info.Name, "base", base.ToString())
	return nil
}

// mainModuleBase is the load address of the first module, the executable.
func mainModuleBase(handle windows.Handle) (process.ProcessMemoryAddress, error) {
	var modules [1]windows.Handle
	var needed uint32
	if err := windows.EnumProcessModules(handle, &modules[0], uint32(unsafe.Sizeof(modules[0])), &needed); err != nil {
		return 0, fmt.Errorf("EnumProcessModules: %v: %w", err, process.ErrAccessDenied)
	}

	var mi windows.ModuleInfo
	if err := windows.GetModuleInformation(handle, modules[0], &mi, uint32(unsafe.Sizeof(mi))); err != nil {
		return 0, fmt.Errorf("GetModuleInformation: %v: %w", err, process.ErrAccessDenied)
	}
	return process.ProcessMemoryAddress(mi.BaseOfDll), nil
}

func (p *WindowsProcess) Detach() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *WindowsProcess) closeLocked() error {
	if p.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(p.handle)
	p.log.Infoln("Process closed")

	p.handle = 0
	p.pid = 0
	p.name = ""
	p.base = 0
	p.log = notOpenLogger()
	if err != nil {
		return fmt.Errorf("CloseHandle failed: %v", err)
	}
	return nil
}

func (p *WindowsProcess) IsAttached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle != 0
}

func (p *WindowsProcess) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aliveLocked()
}

func (p *WindowsProcess) aliveLocked() bool {
	if p.handle == 0 || !pidExists(p.pid) {
		return false
	}
	var code uint32
	if err := windows.GetExitCodeProcess(p.handle, &code); err != nil {
		return false
	}
	return code == STILL_ACTIVE
}

func (p *WindowsProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *WindowsProcess) GetName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *WindowsProcess) BaseAddress() process.ProcessMemoryAddress {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base == 0 {
		return process.DefaultModuleBase
	}
	return p.base
}

func (p *WindowsProcess) openHandle() (windows.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == 0 {
		return 0, process.ErrProcessNotOpen
	}
	return p.handle, nil
}

func (p *WindowsProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	handle, err := p.openHandle()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	var bytesRead uintptr
	if err := windows.ReadProcessMemory(handle, uintptr(addr), &buf[0], uintptr(size), &bytesRead); err != nil {
		return nil, fmt.Errorf("ReadProcessMemory %s: %v: %w", addr.ToString(), err, process.ErrAddressNotMapped)
	}
	if bytesRead != uintptr(size) {
		return nil, fmt.Errorf("read %d of %d bytes at %s: %w", bytesRead, size, addr.ToString(), process.ErrPartialTransfer)
	}
	return buf, nil
}

func (p *WindowsProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	handle, err := p.openHandle()
	if err != nil {
		return err
	}

	var written uintptr
	if err := windows.WriteProcessMemory(handle, uintptr(addr), &data[0], uintptr(len(data)), &written); err != nil {
		return fmt.Errorf("WriteProcessMemory %s: %v: %w", addr.ToString(), err, process.ErrAddressNotMapped)
	}
	if written != uintptr(len(data)) {
		return fmt.Errorf("wrote %d of %d bytes at %s: %w", written, len(data), addr.ToString(), process.ErrPartialTransfer)
	}
	return nil
}

func (p *WindowsProcess) QueryRegion(addr process.ProcessMemoryAddress) (memory_map.MemoryRegion, error) {
	handle, err := p.openHandle()
	if err != nil {
		return memory_map.MemoryRegion{}, err
	}

	var mbi windows.MemoryBasicInformation
	if err := windows.VirtualQueryEx(handle, uintptr(addr), &mbi, unsafe.Sizeof(mbi)); err != nil {
		return memory_map.MemoryRegion{}, fmt.Errorf("VirtualQueryEx %s: %v: %w", addr.ToString(), err, process.ErrRegionQuery)
	}
	return memory_map.FromBasicInformation(&mbi), nil
}
