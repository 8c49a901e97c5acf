package process_blob

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"chrreload/coloransi"
	"chrreload/process"
	"chrreload/process/memory_map"

	"github.com/Moonlight-Companies/gologger/logger"
)

const (
	userSpaceLimit = 0x7FFFFFFF0000
	allocStart     = 0x7FF000000000
	pageSize       = 0x1000
)

type region struct {
	memory_map.MemoryRegion
	data      []byte
	allocated bool
}

// RunFunc emulates what a remote thread started at addr would do.
// It runs without the blob lock held, so it may read and write the blob.
type RunFunc func(b *ProcessBlob, addr process.ProcessMemoryAddress) error

// ProcessBlob is an in-memory process.Target. Regions are sparse byte slices at
// fixed addresses; allocations come from a bump allocator above the mapped image.
type ProcessBlob struct {
	mu        sync.Mutex
	name      string
	pid       process.ProcessID
	base      process.ProcessMemoryAddress
	attached  bool
	alive     bool
	regions   []*region
	nextAlloc uint64
	onRun     RunFunc
	faults    *faults
	stats     Stats
	log       *logger.Logger
}

var _ process.Target = (*ProcessBlob)(nil)

func NewProcessBlob(name string, pid process.ProcessID, baseAddress process.ProcessMemoryAddress) *ProcessBlob {
	return &ProcessBlob{
		name:      name,
		pid:       pid,
		base:      baseAddress,
		alive:     true,
		nextAlloc: allocStart,
		faults:    newFaults(),
		log:       logger.NewLogger(coloransi.Color(coloransi.Cyan, coloransi.Black, fmt.Sprintf("blob-%s", name))),
	}
}

// MapModule places the main module image at the base address as committed, readable code.
func (b *ProcessBlob) MapModule(data []byte) *ProcessBlob {
	return b.AddRegion(b.base, data, memory_map.MEM_COMMIT, memory_map.PAGE_EXECUTE_READ)
}

// AddRegion maps data at addr with the given state and protection.
func (b *ProcessBlob) AddRegion(addr process.ProcessMemoryAddress, data []byte, state, protect uint32) *ProcessBlob {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	b.insertLocked(&region{
		MemoryRegion: memory_map.MemoryRegion{
			Address: uint64(addr),
			Size:    uint64(len(data)),
			State:   state,
			Protect: protect,
		},
		data: buf,
	})
	return b
}

func (b *ProcessBlob) insertLocked(r *region) {
	i := sort.Search(len(b.regions), func(i int) bool {
		return b.regions[i].Address >= r.Address
	})
	b.regions = append(b.regions, nil)
	copy(b.regions[i+1:], b.regions[i:])
	b.regions[i] = r
}

// OnRun installs the behaviour of remote threads.
func (b *ProcessBlob) OnRun(fn RunFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRun = fn
}

// Kill marks the process as exited.
func (b *ProcessBlob) Kill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alive = false
}

func (b *ProcessBlob) Attach(name string) error {
	if err := b.faults.check(OpAttach); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.alive || !process.ImageNameMatches(b.name, name) {
		return fmt.Errorf("%s: %w", name, process.ErrProcessNotFound)
	}
	if b.attached {
		return nil
	}
	b.attached = true
	b.stats.Attaches++
	b.log.Infoln("Attached to", b.name, "base", b.base.ToString())
	return nil
}

func (b *ProcessBlob) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attached {
		b.log.Infoln("Detached from", b.name)
	}
	b.attached = false
	return nil
}

func (b *ProcessBlob) IsAttached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attached
}

func (b *ProcessBlob) IsAlive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attached && b.alive
}

func (b *ProcessBlob) GetPID() process.ProcessID {
	return b.pid
}

func (b *ProcessBlob) GetName() string {
	return b.name
}

func (b *ProcessBlob) BaseAddress() process.ProcessMemoryAddress {
	return b.base
}

// Regions returns a copy of the region list in address order.
func (b *ProcessBlob) Regions() []memory_map.MemoryRegion {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]memory_map.MemoryRegion, len(b.regions))
	for i, r := range b.regions {
		out[i] = r.MemoryRegion
	}
	return out
}

func (b *ProcessBlob) QueryRegion(addr process.ProcessMemoryAddress) (memory_map.MemoryRegion, error) {
	if err := b.faults.check(OpQuery); err != nil {
		return memory_map.MemoryRegion{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return memory_map.MemoryRegion{}, process.ErrProcessNotOpen
	}

	a := uint64(addr)
	for _, r := range b.regions {
		if r.Contains(a) || (r.Size == 0 && r.Address == a) {
			return r.MemoryRegion, nil
		}
		if r.Address > a {
			return memory_map.MemoryRegion{Address: a, Size: r.Address - a, State: memory_map.MEM_FREE, Protect: memory_map.PAGE_NOACCESS}, nil
		}
	}
	if a < userSpaceLimit {
		return memory_map.MemoryRegion{Address: a, Size: userSpaceLimit - a, State: memory_map.MEM_FREE, Protect: memory_map.PAGE_NOACCESS}, nil
	}
	return memory_map.MemoryRegion{}, fmt.Errorf("%s: %w", addr.ToString(), process.ErrRegionQuery)
}

// locateLocked finds the accessible region covering [addr, addr+size).
func (b *ProcessBlob) locateLocked(addr process.ProcessMemoryAddress, size uint64) (*region, uint64, error) {
	if !b.attached {
		return nil, 0, process.ErrProcessNotOpen
	}

	r := b.regionAtLocked(uint64(addr))
	if r == nil || !r.IsScannable() {
		return nil, 0, fmt.Errorf("%s: %w", addr.ToString(), process.ErrAddressNotMapped)
	}
	off := uint64(addr) - r.Address
	if off+size > r.Size {
		return nil, 0, fmt.Errorf("%d bytes at %s: %w", size, addr.ToString(), process.ErrPartialTransfer)
	}
	return r, off, nil
}

func (b *ProcessBlob) regionAtLocked(a uint64) *region {
	for _, r := range b.regions {
		if r.Contains(a) {
			return r
		}
	}
	return nil
}

func (b *ProcessBlob) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if err := b.faults.check(OpRead); err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r, off, err := b.locateLocked(addr, uint64(size))
	if err != nil {
		return nil, err
	}
	b.stats.Reads++
	out := make([]byte, size)
	copy(out, r.data[off:])
	return out, nil
}

func (b *ProcessBlob) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	if err := b.faults.check(OpWrite); err != nil {
		return err
	}
	if err := b.faults.checkWrite(addr); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r, off, err := b.locateLocked(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	b.stats.Writes++
	copy(r.data[off:], data)
	return nil
}

func (b *ProcessBlob) Allocate(size process.ProcessMemorySize) (process.Allocation, error) {
	if err := b.faults.check(OpAllocate); err != nil {
		return process.Allocation{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return process.Allocation{}, process.ErrProcessNotOpen
	}
	if size == 0 {
		return process.Allocation{}, fmt.Errorf("zero size: %w", process.ErrAllocationFailed)
	}

	rounded := (uint64(size) + pageSize - 1) &^ (pageSize - 1)
	addr := b.nextAlloc
	b.nextAlloc += rounded + pageSize
	b.insertLocked(&region{
		MemoryRegion: memory_map.MemoryRegion{
			Address: addr,
			Size:    rounded,
			State:   memory_map.MEM_COMMIT,
			Protect: memory_map.PAGE_EXECUTE_READWRITE,
		},
		data:      make([]byte, rounded),
		allocated: true,
	})
	b.stats.Allocs++
	b.stats.Live++

	return process.Allocation{Address: process.ProcessMemoryAddress(addr), Size: size}, nil
}

func (b *ProcessBlob) Free(addr process.ProcessMemoryAddress) error {
	if err := b.faults.check(OpFree); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, r := range b.regions {
		if r.allocated && r.Address == uint64(addr) {
			b.regions = append(b.regions[:i], b.regions[i+1:]...)
			b.stats.Frees++
			b.stats.Live--
			return nil
		}
	}
	return fmt.Errorf("%s is not an allocation base: %w", addr.ToString(), process.ErrFreeFailed)
}

func (b *ProcessBlob) RunRemote(addr process.ProcessMemoryAddress, timeout time.Duration) error {
	if err := b.faults.check(OpRun); err != nil {
		return err
	}

	b.mu.Lock()
	if !b.attached {
		b.mu.Unlock()
		return process.ErrProcessNotOpen
	}
	r := b.regionAtLocked(uint64(addr))
	if r == nil || !r.IsCommitted() || !r.IsExecutable() {
		b.mu.Unlock()
		return fmt.Errorf("start %s is not executable: %w", addr.ToString(), process.ErrThreadCreate)
	}
	b.stats.Threads = append(b.stats.Threads, addr)
	fn := b.onRun
	b.mu.Unlock()

	b.log.Debugln("Remote thread at", addr.ToString(), "timeout", timeout)
	if fn == nil {
		return nil
	}
	return fn(b, addr)
}

// Peek reads memory regardless of attachment and injected faults.
func (b *ProcessBlob) Peek(addr process.ProcessMemoryAddress, size int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.regionAtLocked(uint64(addr))
	if r == nil {
		return nil
	}
	off := uint64(addr) - r.Address
	end := off + uint64(size)
	if end > r.Size {
		end = r.Size
	}
	out := make([]byte, end-off)
	copy(out, r.data[off:end])
	return out
}
