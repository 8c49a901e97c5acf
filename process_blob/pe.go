package process_blob

import (
	"fmt"

	"chrreload/process"
	"chrreload/process/memory_map"

	"github.com/Binject/debug/pe"
)

const (
	scnMemExecute = 0x20000000
	scnMemRead    = 0x40000000
	scnMemWrite   = 0x80000000
)

// LoadPE maps the sections of a 64-bit executable at their virtual addresses
// under the image base, the way the loader would, so game signatures can be
// checked against an .exe on disk.
func LoadPE(path, name string) (*ProcessBlob, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PE %s: %w", path, err)
	}
	defer f.Close()
	return mapPE(f, name)
}

func mapPE(f *pe.File, name string) (*ProcessBlob, error) {
	oh, ok := f.OptionalHeader.(*pe.OptionalHeader64)
	if !ok {
		return nil, fmt.Errorf("%s is not a 64-bit image", name)
	}

	base := process.ProcessMemoryAddress(oh.ImageBase)
	b := NewProcessBlob(name, 0, base)
	for _, s := range f.Sections {
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read section %s: %w", s.Name, err)
		}
		size := int(s.VirtualSize)
		if size < len(data) {
			size = len(data)
		}
		if size == 0 {
			continue
		}
		mem := make([]byte, size)
		copy(mem, data)
		b.AddRegion(base.Add(int64(s.VirtualAddress)), mem, memory_map.MEM_COMMIT, sectionProtect(s.Characteristics))
		b.log.Debugln("Mapped section", s.Name, "at", base.Add(int64(s.VirtualAddress)).ToString(), process.ProcessMemorySize(size).ToString())
	}
	b.log.Infoln("Loaded PE", name, "image base", base.ToString(), "sections", len(f.Sections))
	return b, nil
}

func sectionProtect(c uint32) uint32 {
	switch {
	case c&scnMemExecute != 0 && c&scnMemWrite != 0:
		return memory_map.PAGE_EXECUTE_READWRITE
	case c&scnMemExecute != 0 && c&scnMemRead != 0:
		return memory_map.PAGE_EXECUTE_READ
	case c&scnMemExecute != 0:
		return memory_map.PAGE_EXECUTE
	case c&scnMemWrite != 0:
		return memory_map.PAGE_READWRITE
	case c&scnMemRead != 0:
		return memory_map.PAGE_READONLY
	}
	return memory_map.PAGE_NOACCESS
}
