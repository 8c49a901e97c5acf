package process

import (
	"fmt"
	"unsafe"
)

// ReadPath reads a value of type T at the end of a pointer path.
// It starts at base, adds the first offset, reads a pointer, adds the next offset, reads a pointer, etc.
// The last offset is added to the final pointer, and then T is read from that address.
// If offsets is empty, it reads T from base.
func ReadPath[T any](proc MemoryReader, base ProcessMemoryAddress, offsets ...int64) (T, error) {
	var zero T
	currentAddr := base

	for i := 0; i < len(offsets)-1; i++ {
		ptrAddr := currentAddr.Add(offsets[i])

		ptr, err := ReadPointer(proc, ptrAddr)
		if err != nil {
			return zero, fmt.Errorf("pointer path step %d (addr %s): %w", i, ptrAddr.ToString(), err)
		}
		currentAddr = ptr
	}

	if len(offsets) > 0 {
		currentAddr = currentAddr.Add(offsets[len(offsets)-1])
	}

	val, err := Read[T](proc, currentAddr)
	if err != nil {
		return zero, fmt.Errorf("failed to read final value at %s: %w", currentAddr.ToString(), err)
	}

	return val, nil
}

// Read is a helper to read a single fixed-size value of type T from memory.
// T must be plain data; the target is little-endian like the host.
func Read[T any](proc MemoryReader, addr ProcessMemoryAddress) (T, error) {
	var t T
	size := int(unsafe.Sizeof(t))
	if size == 0 {
		return t, nil
	}

	data, err := proc.ReadMemory(addr, ProcessMemorySize(size))
	if err != nil {
		return t, err
	}
	if len(data) < size {
		return t, fmt.Errorf("read %d of %d bytes at %s: %w", len(data), size, addr.ToString(), ErrPartialTransfer)
	}

	copy(unsafe.Slice((*byte)(unsafe.Pointer(&t)), size), data)
	return t, nil
}

// ReadPointer reads a 64-bit pointer and rejects null.
func ReadPointer(proc MemoryReader, addr ProcessMemoryAddress) (ProcessMemoryAddress, error) {
	val, err := Read[uint64](proc, addr)
	if err != nil {
		return 0, err
	}
	if val == 0 {
		return 0, fmt.Errorf("null pointer at %s: %w", addr.ToString(), ErrInvalidPointer)
	}
	return ProcessMemoryAddress(val), nil
}

func WriteUINT8(proc MemoryWriter, addr ProcessMemoryAddress, v uint8) error {
	return proc.WriteMemory(addr, []byte{v})
}
