package shellcode

import "math"

// General purpose register numbers as used in ModRM/opcode encodings.
const (
	RAX = 0
	RCX = 1
	RDX = 2
	RBX = 3
	RSP = 4
	R14 = 14
)

func raw(b ...byte) Segment {
	return Segment{Bytes: b}
}

func imm64(slot string) Segment {
	return Segment{Slot: slot, Width: Imm64}
}

func disp32(slot string) Segment {
	return Segment{Slot: slot, Width: Disp32}
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// MovImm64 is "mov reg, imm64".
func MovImm64(reg int, slot string) []Segment {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	return []Segment{raw(rex, 0xB8+byte(reg&7)), imm64(slot)}
}

// MovRAXMoffs64 is "mov rax, [moffs64]": loads the pointer stored at an absolute address.
func MovRAXMoffs64(slot string) []Segment {
	return []Segment{raw(0x48, 0xA1), imm64(slot)}
}

// LoadRDXFromRCX is "mov rdx, [rcx+disp32]".
func LoadRDXFromRCX(slot string) []Segment {
	return []Segment{raw(0x48, 0x8B, 0x91), disp32(slot)}
}

// StoreDwordRCX is "mov dword [rcx+disp32], imm32".
func StoreDwordRCX(slot string, v uint32) []Segment {
	return []Segment{raw(0xC7, 0x81), disp32(slot), raw(le32(v)...)}
}

// StoreFloatRCX is StoreDwordRCX with the IEEE-754 bits of f.
func StoreFloatRCX(slot string, f float32) []Segment {
	return StoreDwordRCX(slot, math.Float32bits(f))
}

// CallR14 calls r14 with the 0x28 bytes of shadow space the x64 ABI expects.
func CallR14() []Segment {
	return []Segment{
		raw(0x48, 0x83, 0xEC, 0x28), // sub rsp, 28h
		raw(0x41, 0xFF, 0xD6),       // call r14
		raw(0x48, 0x83, 0xC4, 0x28), // add rsp, 28h
	}
}

func Ret() []Segment {
	return []Segment{raw(0xC3)}
}

func concat(parts ...[]Segment) []Segment {
	var out []Segment
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
