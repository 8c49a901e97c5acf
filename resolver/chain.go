package resolver

import (
	"errors"
	"fmt"

	"chrreload/process"
	"chrreload/search"
)

var (
	// ErrNullPointer is returned when a dereference step reads zero.
	ErrNullPointer = process.ErrInvalidPointer

	ErrUnknownPointer = errors.New("unknown pointer")
	ErrBadChain       = errors.New("malformed pointer chain")
)

type StepKind string

const (
	// StepScan sets the cursor to the first match of Pattern, scanning from the module base.
	StepScan StepKind = "scan"
	// StepModuleOffset sets the cursor to module base + Offset.
	StepModuleOffset StepKind = "module_offset"
	// StepRIPRelative reads int32 at cursor+DispOffset and sets cursor = cursor + InstrLen + disp.
	StepRIPRelative StepKind = "rip_relative"
	// StepDeref replaces the cursor with the 8-byte value it points at. Zero is invalid.
	StepDeref StepKind = "deref"
	// StepAdd adds a signed Offset to the cursor.
	StepAdd StepKind = "add"
	// StepPatternEnd sets the cursor to last match + pattern length - Offset.
	StepPatternEnd StepKind = "pattern_end"
)

type Step struct {
	Kind       StepKind
	Pattern    process.AOB
	Offset     int64
	DispOffset int64
	InstrLen   int64
}

// Chain describes how to reach one named engine structure from the module.
type Chain struct {
	Name  string
	Steps []Step
}

func (c Chain) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("unnamed chain: %w", ErrBadChain)
	}
	if len(c.Steps) == 0 {
		return fmt.Errorf("%s has no steps: %w", c.Name, ErrBadChain)
	}
	scanned := false
	for i, s := range c.Steps {
		switch s.Kind {
		case StepScan:
			if !s.Pattern.IsValid() {
				return fmt.Errorf("%s step %d: pattern: %w", c.Name, i, ErrBadChain)
			}
			scanned = true
		case StepPatternEnd:
			if !scanned {
				return fmt.Errorf("%s step %d: pattern_end before scan: %w", c.Name, i, ErrBadChain)
			}
		case StepRIPRelative:
			if s.InstrLen <= 0 || s.DispOffset < 0 || s.DispOffset+4 > s.InstrLen {
				return fmt.Errorf("%s step %d: displacement outside instruction: %w", c.Name, i, ErrBadChain)
			}
		case StepModuleOffset, StepDeref, StepAdd:
		default:
			return fmt.Errorf("%s step %d: unknown kind %q: %w", c.Name, i, s.Kind, ErrBadChain)
		}
	}
	return nil
}

// Module is what chains are evaluated against.
type Module interface {
	process.RegionReader
	BaseAddress() process.ProcessMemoryAddress
}

// Evaluate runs every step of the chain and returns the final cursor.
func Evaluate(m Module, c Chain, scanOptions ...search.Option) (process.ProcessMemoryAddress, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}

	var (
		cur       process.ProcessMemoryAddress
		lastMatch process.ProcessMemoryAddress
		lastLen   int
	)
	for i, s := range c.Steps {
		switch s.Kind {
		case StepScan:
			opts := append([]search.Option{search.WithStartAddress(m.BaseAddress())}, scanOptions...)
			match, err := search.FindFirst(m, s.Pattern, opts...)
			if err != nil {
				return 0, fmt.Errorf("%s step %d: %w", c.Name, i, err)
			}
			cur, lastMatch, lastLen = match, match, s.Pattern.Len()

		case StepModuleOffset:
			cur = m.BaseAddress().Add(s.Offset)

		case StepRIPRelative:
			target, err := ResolveRIPRelative(m, cur, s.DispOffset, s.InstrLen)
			if err != nil {
				return 0, fmt.Errorf("%s step %d: %w", c.Name, i, err)
			}
			cur = target

		case StepDeref:
			ptr, err := process.ReadPointer(m, cur)
			if err != nil {
				return 0, fmt.Errorf("%s step %d: deref: %w", c.Name, i, err)
			}
			cur = ptr

		case StepAdd:
			cur = cur.Add(s.Offset)

		case StepPatternEnd:
			cur = lastMatch.Add(int64(lastLen) - s.Offset)
		}
	}
	return cur, nil
}

// ResolveRIPRelative decodes the 32-bit displacement of the instruction at instr
// and returns the absolute address it refers to.
func ResolveRIPRelative(r process.MemoryReader, instr process.ProcessMemoryAddress, dispOffset, instrLen int64) (process.ProcessMemoryAddress, error) {
	disp, err := process.Read[int32](r, instr.Add(dispOffset))
	if err != nil {
		return 0, fmt.Errorf("read displacement at %s: %w", instr.Add(dispOffset).ToString(), err)
	}
	return instr.Add(instrLen + int64(disp)), nil
}
