package process

import (
	"time"

	"chrreload/process/memory_map"
)

// DefaultModuleBase is where 64-bit game executables are normally mapped.
var DefaultModuleBase = ProcessMemoryAddress(0x140000000)

// MemoryReader is the minimal read surface used by the typed helpers.
type MemoryReader interface {
	// ReadMemory reads memory from the process at the specified address
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)
}

// MemoryWriter is the minimal write surface used by the typed helpers.
type MemoryWriter interface {
	// WriteMemory writes data to the process memory at the specified address
	WriteMemory(addr ProcessMemoryAddress, data []byte) error
}

// RegionReader is what the pattern scanner needs: region descriptions plus reads.
type RegionReader interface {
	MemoryReader

	// QueryRegion describes the region containing addr, or the free gap that starts at addr.
	QueryRegion(addr ProcessMemoryAddress) (memory_map.MemoryRegion, error)
}

// Process is the interface that defines operations for interacting with a single attached game process
type Process interface {
	// Attach finds the first running process with the given image name and opens it.
	// Attaching to the already attached live process is a no-op.
	Attach(name string) error

	// Detach closes the process and releases resources. Safe to call when not attached.
	Detach() error

	// IsAttached reports whether a handle is currently held
	IsAttached() bool

	// IsAlive reports whether the attached process is still running
	IsAlive() bool

	// GetPID returns the process ID
	GetPID() ProcessID

	// GetName returns the image name of the attached process
	GetName() string

	// BaseAddress returns the load address of the main module
	BaseAddress() ProcessMemoryAddress

	MemoryReader
	MemoryWriter

	// Allocate reserves and commits executable, writable memory in the target
	Allocate(size ProcessMemorySize) (Allocation, error)

	// Free releases an allocation made by Allocate
	Free(addr ProcessMemoryAddress) error

	// RunRemote starts a thread at addr and waits up to timeout for it to exit
	RunRemote(addr ProcessMemoryAddress, timeout time.Duration) error
}

// Target is a Process that can also be scanned.
type Target interface {
	Process
	QueryRegion(addr ProcessMemoryAddress) (memory_map.MemoryRegion, error)
}
