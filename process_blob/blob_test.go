package process_blob

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"chrreload/process"
	"chrreload/process/memory_map"
)

func newAttached(t *testing.T) *ProcessBlob {
	t.Helper()
	b := NewProcessBlob("game.exe", 100, 0x140000000).MapModule(make([]byte, 0x2000))
	if err := b.Attach("GAME"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return b
}

func TestAttachByName(t *testing.T) {
	b := NewProcessBlob("game.exe", 100, 0x140000000)
	if err := b.Attach("other.exe"); !errors.Is(err, process.ErrProcessNotFound) {
		t.Fatalf("Attach(other) = %v, want ErrProcessNotFound", err)
	}
	if err := b.Attach("game.exe"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := b.Attach("game.exe"); err != nil {
		t.Fatalf("second Attach: %v", err)
	}
	if got := b.Stats().Attaches; got != 1 {
		t.Errorf("Attaches = %d, want 1", got)
	}
	b.Kill()
	if b.IsAlive() {
		t.Error("IsAlive after Kill")
	}
}

func TestReadWriteBounds(t *testing.T) {
	b := newAttached(t)
	base := b.BaseAddress()

	if err := b.WriteMemory(base+0x10, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}
	got, err := b.ReadMemory(base+0x10, 3)
	if err != nil || !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("ReadMemory = % X, %v", got, err)
	}

	if _, err := b.ReadMemory(base+0x1FFE, 4); !errors.Is(err, process.ErrPartialTransfer) {
		t.Errorf("read past region end = %v, want ErrPartialTransfer", err)
	}
	if _, err := b.ReadMemory(0x1000, 4); !errors.Is(err, process.ErrAddressNotMapped) {
		t.Errorf("read unmapped = %v, want ErrAddressNotMapped", err)
	}
}

func TestQueryRegionGaps(t *testing.T) {
	b := newAttached(t)
	b.AddRegion(0x150000000, make([]byte, 0x1000), memory_map.MEM_COMMIT, memory_map.PAGE_READWRITE|memory_map.PAGE_GUARD)

	r, err := b.QueryRegion(0x140001000)
	if err != nil || r.Address != 0x140000000 || !r.IsScannable() {
		t.Fatalf("QueryRegion(inside module) = %v, %v", r, err)
	}

	r, err = b.QueryRegion(0x140002000)
	if err != nil || r.State != memory_map.MEM_FREE || r.End() != 0x150000000 {
		t.Fatalf("QueryRegion(gap) = %v, %v", r, err)
	}

	r, err = b.QueryRegion(0x150000000)
	if err != nil || r.IsScannable() {
		t.Fatalf("QueryRegion(guard) = %v, %v", r, err)
	}

	if _, err := b.QueryRegion(userSpaceLimit); !errors.Is(err, process.ErrRegionQuery) {
		t.Errorf("QueryRegion(limit) = %v, want ErrRegionQuery", err)
	}
}

func TestAllocateFreeAccounting(t *testing.T) {
	b := newAttached(t)

	a1, err := b.Allocate(512)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	a2, err := b.Allocate(0x1800)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a1.Address == a2.Address {
		t.Fatal("allocations share an address")
	}
	if err := b.WriteMemory(a1.Address, []byte{0xC3}); err != nil {
		t.Fatalf("write into allocation: %v", err)
	}
	if got := b.Stats().Live; got != 2 {
		t.Errorf("Live = %d, want 2", got)
	}

	if err := b.Free(a1.Address); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if err := b.Free(a1.Address); !errors.Is(err, process.ErrFreeFailed) {
		t.Errorf("double Free = %v, want ErrFreeFailed", err)
	}
	if err := b.Free(a2.Address); err != nil {
		t.Fatalf("Free: %v", err)
	}

	s := b.Stats()
	if s.Allocs != 2 || s.Frees != 2 || s.Live != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRunRemote(t *testing.T) {
	b := newAttached(t)

	if err := b.RunRemote(0x1000, time.Second); !errors.Is(err, process.ErrThreadCreate) {
		t.Errorf("RunRemote(unmapped) = %v, want ErrThreadCreate", err)
	}

	code, err := b.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	var ran process.ProcessMemoryAddress
	b.OnRun(func(b *ProcessBlob, addr process.ProcessMemoryAddress) error {
		ran = addr
		return nil
	})
	if err := b.RunRemote(code.Address, time.Second); err != nil {
		t.Fatalf("RunRemote: %v", err)
	}
	if ran != code.Address {
		t.Errorf("hook saw %s, want %s", ran.ToString(), code.Address.ToString())
	}

	b.FailOn(OpRun, process.ErrThreadTimeout)
	if err := b.RunRemote(code.Address, time.Second); !errors.Is(err, process.ErrThreadTimeout) {
		t.Errorf("RunRemote with fault = %v", err)
	}
}

func TestFailAfter(t *testing.T) {
	b := newAttached(t)
	b.FailAfter(OpAllocate, 1, process.ErrAllocationFailed)

	if _, err := b.Allocate(64); err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := b.Allocate(64); !errors.Is(err, process.ErrAllocationFailed) {
			t.Errorf("Allocate #%d = %v, want ErrAllocationFailed", i+2, err)
		}
	}

	b.FailAfter(OpAllocate, 0, nil)
	if _, err := b.Allocate(64); err != nil {
		t.Errorf("Allocate after clearing: %v", err)
	}
	if s := b.Stats(); s.Allocs != 2 {
		t.Errorf("Allocs = %d, want 2", s.Allocs)
	}
}
