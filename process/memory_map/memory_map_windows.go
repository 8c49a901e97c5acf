//go:build windows

package memory_map

import "golang.org/x/sys/windows"

// FromBasicInformation converts a VirtualQueryEx result.
func FromBasicInformation(mbi *windows.MemoryBasicInformation) MemoryRegion {
	return MemoryRegion{
		Address: uint64(mbi.BaseAddress),
		Size:    uint64(mbi.RegionSize),
		State:   mbi.State,
		Protect: mbi.Protect,
	}
}
