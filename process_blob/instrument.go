package process_blob

import (
	"sync"

	"chrreload/process"
)

// Op names an operation that can be made to fail.
type Op int

const (
	OpAttach Op = iota
	OpQuery
	OpRead
	OpWrite
	OpAllocate
	OpFree
	OpRun
)

// Stats counts what callers did to the blob.
type Stats struct {
	Attaches int
	Reads    int
	Writes   int
	Allocs   int
	Frees    int
	// Live is the number of allocations not yet freed.
	Live    int
	Threads []process.ProcessMemoryAddress
}

type delayedFault struct {
	remaining int
	err       error
}

type faults struct {
	mu     sync.Mutex
	ops    map[Op]error
	after  map[Op]*delayedFault
	writes map[process.ProcessMemoryAddress]error
}

func newFaults() *faults {
	return &faults{
		ops:    make(map[Op]error),
		after:  make(map[Op]*delayedFault),
		writes: make(map[process.ProcessMemoryAddress]error),
	}
}

func (f *faults) check(op Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ops[op]; err != nil {
		return err
	}
	if d := f.after[op]; d != nil {
		if d.remaining == 0 {
			return d.err
		}
		d.remaining--
	}
	return nil
}

func (f *faults) checkWrite(addr process.ProcessMemoryAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[addr]
}

// FailOn makes every later op return err. A nil err clears the fault.
func (b *ProcessBlob) FailOn(op Op, err error) {
	b.faults.mu.Lock()
	defer b.faults.mu.Unlock()
	if err == nil {
		delete(b.faults.ops, op)
		return
	}
	b.faults.ops[op] = err
}

// FailAfter lets the next n calls of op through and fails every one after that with err.
func (b *ProcessBlob) FailAfter(op Op, n int, err error) {
	b.faults.mu.Lock()
	defer b.faults.mu.Unlock()
	if err == nil {
		delete(b.faults.after, op)
		return
	}
	b.faults.after[op] = &delayedFault{remaining: n, err: err}
}

// FailWriteAt makes writes starting exactly at addr return err.
func (b *ProcessBlob) FailWriteAt(addr process.ProcessMemoryAddress, err error) {
	b.faults.mu.Lock()
	defer b.faults.mu.Unlock()
	if err == nil {
		delete(b.faults.writes, addr)
		return
	}
	b.faults.writes[addr] = err
}

func (b *ProcessBlob) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Threads = append([]process.ProcessMemoryAddress(nil), b.stats.Threads...)
	return s
}
