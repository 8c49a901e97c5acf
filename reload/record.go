package reload

import (
	"encoding/binary"
	"fmt"

	"chrreload/process"
	"chrreload/titles"
)

// recordSize is the allocation size for the auxiliary record holding name.
func recordSize(r titles.Record, name []byte) (int, error) {
	need := int(r.NameOffset) + len(name)
	if r.Size == 0 {
		return need, nil
	}
	if need > int(r.Size) {
		return 0, fmt.Errorf("encoded id needs %d bytes, record holds %d: %w", len(name), int(r.Size)-int(r.NameOffset), ErrInvalidID)
	}
	return int(r.Size), nil
}

// buildRecord lays out the record as it will live at addr in the target.
func buildRecord(r titles.Record, addr process.ProcessMemoryAddress, name []byte, ptrs map[string]process.ProcessMemoryAddress, mem process.MemoryReader) ([]byte, error) {
	size, err := recordSize(r, name)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)

	for _, f := range r.Fields {
		off := int(f.Offset)
		switch f.Kind {
		case titles.FieldPointerValue:
			v, err := process.ReadPath[uint64](mem, ptrs[f.Pointer], int64(f.Add))
			if err != nil {
				return nil, fmt.Errorf("record field %#x: %w", off, err)
			}
			binary.LittleEndian.PutUint64(buf[off:], v)
		case titles.FieldNamePointer:
			binary.LittleEndian.PutUint64(buf[off:], uint64(addr.Add(int64(r.NameOffset))))
		case titles.FieldByte:
			buf[off] = byte(f.Value)
		}
	}

	copy(buf[r.NameOffset:], name)
	return buf, nil
}
