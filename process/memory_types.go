package process

import (
	"fmt"
	"strconv"
	"strings"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// Add offsets the address by a signed displacement.
func (pma ProcessMemoryAddress) Add(delta int64) ProcessMemoryAddress {
	return ProcessMemoryAddress(uint64(pma) + uint64(delta))
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// Allocation is a block of memory reserved inside the target process.
type Allocation struct {
	Address ProcessMemoryAddress
	Size    ProcessMemorySize
}

func (a Allocation) ToString() string {
	return fmt.Sprintf("%s (%s)", a.Address.ToString(), a.Size.ToString())
}

// AOB (Array of Bytes) represents a pattern to search for in memory
type AOB struct {
	Pattern []byte // The byte pattern to search for
	Mask    []byte // 0xFF means exact match and 0x00 means wildcard
}

// IsValid checks if the AOB pattern is valid
func (aob AOB) IsValid() bool {
	return len(aob.Pattern) > 0 && len(aob.Pattern) == len(aob.Mask)
}

func (aob AOB) Len() int {
	return len(aob.Pattern)
}

// String renders the pattern back into the "48 8B ?? .." notation.
func (aob AOB) String() string {
	var sb strings.Builder
	for i, b := range aob.Pattern {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if i < len(aob.Mask) && aob.Mask[i] == 0 {
			sb.WriteString("??")
			continue
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// ParseAOB parses a whitespace or comma separated list of hex bytes.
// "?" and "??" mark wildcard positions.
func ParseAOB(s string) (AOB, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(parts) == 0 {
		return AOB{}, fmt.Errorf("empty pattern")
	}

	aob := AOB{
		Pattern: make([]byte, 0, len(parts)),
		Mask:    make([]byte, 0, len(parts)),
	}
	for _, part := range parts {
		if part == "??" || part == "?" {
			aob.Pattern = append(aob.Pattern, 0)
			aob.Mask = append(aob.Mask, 0)
			continue
		}

		val, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return AOB{}, fmt.Errorf("invalid hex byte %q: %w", part, err)
		}
		aob.Pattern = append(aob.Pattern, byte(val))
		aob.Mask = append(aob.Mask, 0xFF)
	}

	return aob, nil
}

// MustParseAOB is ParseAOB for patterns known at compile time.
func MustParseAOB(s string) AOB {
	aob, err := ParseAOB(s)
	if err != nil {
		panic(err)
	}
	return aob
}
