// Package shellcode builds the small x86-64 stubs that run inside the game.
//
// A Template is a list of segments: literal bytes, or a patch site that is
// filled from a named slot when the template is assembled. Offsets of patch
// sites are derived from the segment list, never written by hand.
package shellcode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrMissingSlot       = errors.New("missing slot value")
	ErrDisplacementRange = errors.New("displacement does not fit in 32 bits")
	ErrUnknownTemplate   = errors.New("unknown template")
)

// Width is the encoded size of a patch site.
type Width int

const (
	Disp32 Width = 4
	Imm64  Width = 8
)

type Segment struct {
	Bytes []byte
	Slot  string
	Width Width
}

func (s Segment) Len() int {
	if s.Slot != "" {
		return int(s.Width)
	}
	return len(s.Bytes)
}

type Template struct {
	Name     string
	Segments []Segment
}

// PatchSite is where a slot value lands in the assembled bytes.
type PatchSite struct {
	Slot   string
	Offset int
	Width  Width
}

// Buffer is an assembled template, ready to be written into the target.
type Buffer struct {
	Template string
	Bytes    []byte
	Sites    []PatchSite
}

func (t Template) Len() int {
	n := 0
	for _, s := range t.Segments {
		n += s.Len()
	}
	return n
}

func (t Template) PatchSites() []PatchSite {
	var sites []PatchSite
	off := 0
	for _, s := range t.Segments {
		if s.Slot != "" {
			sites = append(sites, PatchSite{Slot: s.Slot, Offset: off, Width: s.Width})
		}
		off += s.Len()
	}
	return sites
}

// Slots lists the distinct slot names in order of first use.
func (t Template) Slots() []string {
	var names []string
	seen := make(map[string]bool)
	for _, s := range t.Segments {
		if s.Slot != "" && !seen[s.Slot] {
			seen[s.Slot] = true
			names = append(names, s.Slot)
		}
	}
	return names
}

// Assemble emits the template with every patch site filled from values.
// Disp32 values are interpreted as signed and must fit in an int32.
func (t Template) Assemble(values map[string]uint64) (Buffer, error) {
	buf := Buffer{Template: t.Name, Bytes: make([]byte, 0, t.Len())}

	for _, s := range t.Segments {
		if s.Slot == "" {
			buf.Bytes = append(buf.Bytes, s.Bytes...)
			continue
		}

		v, ok := values[s.Slot]
		if !ok {
			return Buffer{}, fmt.Errorf("%s: slot %q: %w", t.Name, s.Slot, ErrMissingSlot)
		}
		buf.Sites = append(buf.Sites, PatchSite{Slot: s.Slot, Offset: len(buf.Bytes), Width: s.Width})

		switch s.Width {
		case Imm64:
			buf.Bytes = binary.LittleEndian.AppendUint64(buf.Bytes, v)
		case Disp32:
			d := int64(v)
			if d < math.MinInt32 || d > math.MaxInt32 {
				return Buffer{}, fmt.Errorf("%s: slot %q value %#x: %w", t.Name, s.Slot, v, ErrDisplacementRange)
			}
			buf.Bytes = binary.LittleEndian.AppendUint32(buf.Bytes, uint32(int32(d)))
		default:
			return Buffer{}, fmt.Errorf("%s: slot %q has width %d", t.Name, s.Slot, s.Width)
		}
	}

	return buf, nil
}

// Value reads back the slot value at a patch site, mostly for logging.
func (b Buffer) Value(site PatchSite) uint64 {
	switch site.Width {
	case Imm64:
		return binary.LittleEndian.Uint64(b.Bytes[site.Offset:])
	case Disp32:
		return uint64(int64(int32(binary.LittleEndian.Uint32(b.Bytes[site.Offset:]))))
	}
	return 0
}
