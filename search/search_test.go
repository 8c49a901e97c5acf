package search

import (
	"errors"
	"testing"

	"chrreload/process"
	"chrreload/process/memory_map"
	"chrreload/process_blob"
)

const base = process.ProcessMemoryAddress(0x140000000)

func blobWith(t *testing.T, image []byte) *process_blob.ProcessBlob {
	t.Helper()
	b := process_blob.NewProcessBlob("game.exe", 1, base).MapModule(image)
	if err := b.Attach("game.exe"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return b
}

func TestMatchFirst(t *testing.T) {
	data := []byte{0x00, 0x48, 0x8B, 0x05, 0x11, 0x22, 0x48, 0x8B, 0x06}
	tests := []struct {
		name    string
		pattern string
		want    int
	}{
		{"literal", "48 8B 05", 1},
		{"wildcard", "48 8B ??", 1},
		{"second occurrence", "48 8B 06", 6},
		{"tail boundary", "8B 06", 7},
		{"runs past end", "8B 06 00", -1},
		{"absent", "C3", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchFirst(data, process.MustParseAOB(tt.pattern))
			if got != tt.want {
				t.Errorf("MatchFirst(%q) = %d, want %d", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestMatchFirstPatternLongerThanData(t *testing.T) {
	if got := MatchFirst([]byte{0x48}, process.MustParseAOB("48 8B")); got != -1 {
		t.Errorf("MatchFirst = %d, want -1", got)
	}
}

func TestFindFirstLowestAddressWins(t *testing.T) {
	image := make([]byte, 0x3000)
	copy(image[0x2100:], []byte{0xDE, 0xAD, 0xBE, 0xEF})
	copy(image[0x0800:], []byte{0xDE, 0xAD, 0x00, 0xEF})
	b := blobWith(t, image)

	got, err := FindFirst(b, process.MustParseAOB("DE AD ?? EF"), WithStartAddress(base))
	if err != nil {
		t.Fatalf("FindFirst: %v", err)
	}
	if got != base+0x800 {
		t.Errorf("FindFirst = %s, want %s", got.ToString(), (base + 0x800).ToString())
	}
}

func TestFindFirstAcrossChunkBoundary(t *testing.T) {
	image := make([]byte, 0x1000)
	// straddles the 0x100 chunk boundary
	copy(image[0xFE:], []byte{0x11, 0x22, 0x33, 0x44})
	b := blobWith(t, image)

	got, err := FindFirst(b, process.MustParseAOB("11 22 33 44"), WithStartAddress(base), WithChunkSize(0x100))
	if err != nil {
		t.Fatalf("FindFirst: %v", err)
	}
	if got != base+0xFE {
		t.Errorf("FindFirst = %s", got.ToString())
	}

	all, err := FindAll(b, process.MustParseAOB("11 22 33 44"), 0, WithStartAddress(base), WithChunkSize(0x100))
	if err != nil || len(all) != 1 {
		t.Errorf("FindAll = %v, %v; want exactly one match", all, err)
	}
}

func TestFindFirstAtRegionTail(t *testing.T) {
	image := make([]byte, 0x1000)
	copy(image[0xFFD:], []byte{0xAA, 0xBB, 0xCC})
	b := blobWith(t, image)

	got, err := FindFirst(b, process.MustParseAOB("AA BB CC"), WithStartAddress(base))
	if err != nil || got != base+0xFFD {
		t.Errorf("FindFirst = %s, %v", got.ToString(), err)
	}
}

func TestFindFirstSkipsUnreadableRegions(t *testing.T) {
	b := blobWith(t, make([]byte, 0x1000))
	needle := []byte{0xCA, 0xFE, 0xBA, 0xBE}
	b.AddRegion(0x150000000, needle, memory_map.MEM_COMMIT, memory_map.PAGE_READWRITE|memory_map.PAGE_GUARD)
	b.AddRegion(0x151000000, needle, memory_map.MEM_COMMIT, memory_map.PAGE_NOACCESS)
	b.AddRegion(0x152000000, needle, memory_map.MEM_RESERVE, memory_map.PAGE_READWRITE)
	b.AddRegion(0x153000000, needle, memory_map.MEM_COMMIT, memory_map.PAGE_READWRITE)

	got, err := FindFirst(b, process.AOB{Pattern: needle, Mask: []byte{0xFF, 0xFF, 0xFF, 0xFF}}, WithStartAddress(base))
	if err != nil {
		t.Fatalf("FindFirst: %v", err)
	}
	if got != 0x153000000 {
		t.Errorf("FindFirst = %s, want 0x153000000", got.ToString())
	}
}

func TestFindFirstStopsAtZeroSizeRegion(t *testing.T) {
	b := blobWith(t, make([]byte, 0x1000))
	b.AddRegion(0x150000000, nil, memory_map.MEM_COMMIT, memory_map.PAGE_READWRITE)
	b.AddRegion(0x160000000, []byte{0x01, 0x02}, memory_map.MEM_COMMIT, memory_map.PAGE_READWRITE)

	_, err := FindFirst(b, process.MustParseAOB("01 02"), WithStartAddress(base))
	if !errors.Is(err, ErrPatternNotFound) {
		t.Errorf("FindFirst = %v, want ErrPatternNotFound", err)
	}
}

func TestFindFirstRespectsUpperBound(t *testing.T) {
	b := blobWith(t, make([]byte, 0x1000))
	b.AddRegion(0x160000000, []byte{0x01, 0x02}, memory_map.MEM_COMMIT, memory_map.PAGE_READWRITE)

	_, err := FindFirst(b, process.MustParseAOB("01 02"), WithStartAddress(base), WithUpperBound(0x150000000))
	if !errors.Is(err, ErrPatternNotFound) {
		t.Errorf("FindFirst = %v, want ErrPatternNotFound", err)
	}
}

func TestFindFirstNotFoundAndInvalid(t *testing.T) {
	b := blobWith(t, make([]byte, 0x1000))

	if _, err := FindFirst(b, process.MustParseAOB("DE AD BE EF"), WithStartAddress(base)); !errors.Is(err, ErrPatternNotFound) {
		t.Errorf("FindFirst = %v, want ErrPatternNotFound", err)
	}
	if _, err := FindFirst(b, process.AOB{}); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("FindFirst(empty) = %v, want ErrInvalidPattern", err)
	}
}
