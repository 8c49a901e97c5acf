package memory_map

import (
	"fmt"
	"sort"
)

// Region states and protection flags as reported by VirtualQueryEx.
const (
	MEM_COMMIT  = 0x00001000
	MEM_RESERVE = 0x00002000
	MEM_FREE    = 0x00010000

	PAGE_NOACCESS          = 0x01
	PAGE_READONLY          = 0x02
	PAGE_READWRITE         = 0x04
	PAGE_EXECUTE           = 0x10
	PAGE_EXECUTE_READ      = 0x20
	PAGE_EXECUTE_READWRITE = 0x40
	PAGE_GUARD             = 0x100
)

// MemoryRegion represents a memory region in a process's address space
type MemoryRegion struct {
	Address uint64 // The starting address of the memory region
	Size    uint64 // The size of the memory region in bytes
	State   uint32 // MEM_COMMIT, MEM_RESERVE or MEM_FREE
	Protect uint32 // PAGE_* protection of the committed pages
}

// String returns a string representation of the memory region
func (r MemoryRegion) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, State: %#x, Protect: %#x", r.Address, r.Size, r.State, r.Protect)
}

func (r MemoryRegion) End() uint64 {
	return r.Address + r.Size
}

func (r MemoryRegion) Contains(addr uint64) bool {
	return addr >= r.Address && addr < r.End()
}

func (r MemoryRegion) IsCommitted() bool {
	return r.State == MEM_COMMIT
}

func (r MemoryRegion) IsGuard() bool {
	return r.Protect&PAGE_GUARD != 0
}

func (r MemoryRegion) IsNoAccess() bool {
	return r.Protect&0xFF == PAGE_NOACCESS || r.Protect == 0
}

// IsScannable reports whether the region is committed and readable without faulting.
func (r MemoryRegion) IsScannable() bool {
	return r.IsCommitted() && !r.IsGuard() && !r.IsNoAccess()
}

func (r MemoryRegion) IsExecutable() bool {
	switch r.Protect & 0xFF {
	case PAGE_EXECUTE, PAGE_EXECUTE_READ, PAGE_EXECUTE_READWRITE:
		return true
	}
	return false
}

// FindRegion returns the region containing addr from a list sorted by address.
func FindRegion(addr uint64, regions []MemoryRegion) *MemoryRegion {
	i := sort.Search(len(regions), func(i int) bool {
		return regions[i].End() > addr
	})
	if i < len(regions) && regions[i].Address <= addr {
		return &regions[i]
	}

	return nil
}
