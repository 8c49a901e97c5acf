package resolver

import (
	"encoding/binary"
	"errors"
	"testing"

	"chrreload/process"
	"chrreload/process/memory_map"
	"chrreload/process_blob"
	"chrreload/search"
)

const (
	base    = process.ProcessMemoryAddress(0x140000000)
	heap    = process.ProcessMemoryAddress(0x200000000)
	instrAt = 0x100
)

var movRaxPattern = process.MustParseAOB("48 8B 05 ?? ?? ?? ?? 48 85 C0")

// image holds "mov rax, [rip+disp]; test rax, rax" at instrAt pointing at slot.
func image(slot int) []byte {
	img := make([]byte, 0x1000)
	copy(img[instrAt:], []byte{0x48, 0x8B, 0x05, 0, 0, 0, 0, 0x48, 0x85, 0xC0})
	disp := int32(slot - (instrAt + 7))
	binary.LittleEndian.PutUint32(img[instrAt+3:], uint32(disp))
	return img
}

func attached(t *testing.T, img []byte) *process_blob.ProcessBlob {
	t.Helper()
	b := process_blob.NewProcessBlob("game.exe", 1, base).MapModule(img)
	b.AddRegion(heap, make([]byte, 0x100), memory_map.MEM_COMMIT, memory_map.PAGE_READWRITE)
	if err := b.Attach("game.exe"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return b
}

func globalChain() Chain {
	return Chain{Name: "global", Steps: []Step{
		{Kind: StepScan, Pattern: movRaxPattern},
		{Kind: StepRIPRelative, DispOffset: 3, InstrLen: 7},
		{Kind: StepDeref},
	}}
}

func TestResolveRIPRelativeNegativeDisplacement(t *testing.T) {
	b := attached(t, image(0x40))

	got, err := ResolveRIPRelative(b, base+instrAt, 3, 7)
	if err != nil {
		t.Fatalf("ResolveRIPRelative: %v", err)
	}
	if got != base+0x40 {
		t.Errorf("got %s, want %s", got.ToString(), (base + 0x40).ToString())
	}
}

func TestEvaluateScanRIPDeref(t *testing.T) {
	img := image(0x800)
	binary.LittleEndian.PutUint64(img[0x800:], uint64(heap))
	b := attached(t, img)

	got, err := Evaluate(b, globalChain())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got != heap {
		t.Errorf("got %s, want %s", got.ToString(), heap.ToString())
	}
}

func TestEvaluateZeroDerefIsInvalid(t *testing.T) {
	b := attached(t, image(0x800))

	_, err := Evaluate(b, globalChain())
	if !errors.Is(err, ErrNullPointer) {
		t.Fatalf("Evaluate = %v, want ErrNullPointer", err)
	}
}

func TestEvaluatePatternEndAndOffsets(t *testing.T) {
	b := attached(t, image(0x40))

	got, err := Evaluate(b, Chain{Name: "site", Steps: []Step{
		{Kind: StepScan, Pattern: movRaxPattern},
		{Kind: StepPatternEnd, Offset: 3},
	}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if want := base + instrAt + 10 - 3; got != want {
		t.Errorf("pattern_end = %s, want %s", got.ToString(), want.ToString())
	}

	got, err = Evaluate(b, Chain{Name: "static", Steps: []Step{
		{Kind: StepModuleOffset, Offset: 0x4768E78},
		{Kind: StepAdd, Offset: -0x8},
	}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if want := base + 0x4768E70; got != want {
		t.Errorf("module_offset+add = %s, want %s", got.ToString(), want.ToString())
	}
}

func TestEvaluateScanMiss(t *testing.T) {
	b := attached(t, make([]byte, 0x1000))
	if _, err := Evaluate(b, globalChain()); !errors.Is(err, search.ErrPatternNotFound) {
		t.Errorf("Evaluate = %v, want ErrPatternNotFound", err)
	}
}

func TestChainValidate(t *testing.T) {
	bad := []Chain{
		{Name: "empty"},
		{Name: "end-first", Steps: []Step{{Kind: StepPatternEnd}}},
		{Name: "rip", Steps: []Step{{Kind: StepRIPRelative, DispOffset: 5, InstrLen: 7}}},
		{Name: "kind", Steps: []Step{{Kind: "jump"}}},
	}
	for _, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrBadChain) {
			t.Errorf("%s: Validate = %v, want ErrBadChain", c.Name, err)
		}
	}
}

// flaky fails the first n reads.
type flaky struct {
	*process_blob.ProcessBlob
	n int
}

func (f *flaky) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if f.n > 0 {
		f.n--
		return nil, process.ErrPartialTransfer
	}
	return f.ProcessBlob.ReadMemory(addr, size)
}

func TestRequireRescansOnce(t *testing.T) {
	img := image(0x800)
	binary.LittleEndian.PutUint64(img[0x800:], uint64(heap))
	b := attached(t, img)

	// The first read is the scan chunk: it fails, the region is skipped and the scan misses.
	r, err := New(&flaky{ProcessBlob: b, n: 1}, []Chain{globalChain()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := r.Require("global")
	if err != nil {
		t.Fatalf("Require: %v", err)
	}
	if got["global"] != heap {
		t.Errorf("global = %s", got["global"].ToString())
	}

	// Each attempt reads the module and the heap region; failing all four exhausts the retry.
	r, _ = New(&flaky{ProcessBlob: b, n: 4}, []Chain{globalChain()})
	if _, err := r.Require("global"); !errors.Is(err, search.ErrPatternNotFound) {
		t.Errorf("Require = %v, want ErrPatternNotFound", err)
	}
}

func TestResolveCachesAndInvalidates(t *testing.T) {
	img := image(0x800)
	binary.LittleEndian.PutUint64(img[0x800:], uint64(heap))
	b := attached(t, img)

	r, err := New(b, []Chain{globalChain()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Resolve("global"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	reads := b.Stats().Reads
	if _, err := r.Resolve("global"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if b.Stats().Reads != reads {
		t.Error("cached Resolve touched memory")
	}

	r.Invalidate()
	if _, err := r.Resolve("global"); err != nil {
		t.Fatalf("Resolve after Invalidate: %v", err)
	}
	if b.Stats().Reads == reads {
		t.Error("Resolve after Invalidate served a stale entry")
	}
	if _, err := r.Resolve("missing"); !errors.Is(err, ErrUnknownPointer) {
		t.Errorf("Resolve(missing) = %v, want ErrUnknownPointer", err)
	}
}
