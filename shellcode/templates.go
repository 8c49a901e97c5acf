package shellcode

import (
	"fmt"
	"sort"
)

// Slot names shared between templates and the title table.
const (
	SlotRecord       = "record"
	SlotStruct       = "struct"
	SlotStructSlot   = "struct_slot"
	SlotFunction     = "function"
	SlotListHead     = "list_head"
	SlotTriggerFlag  = "trigger_flag"
	SlotTriggerTimer = "trigger_timer"
)

// ListInsert links the record into the reload list hanging off the character
// manager and arms the reload trigger.
var ListInsert = Template{
	Name: "list_insert",
	Segments: concat(
		MovImm64(RBX, SlotRecord),
		MovImm64(RCX, SlotStruct),
		LoadRDXFromRCX(SlotListHead),
		[]Segment{
			raw(0x48, 0x89, 0x1A), // mov [rdx], rbx
			raw(0x48, 0x89, 0x13), // mov [rbx], rdx
		},
		LoadRDXFromRCX(SlotListHead),
		[]Segment{
			raw(0x48, 0x89, 0x5A, 0x08), // mov [rdx+8], rbx
			raw(0x48, 0x89, 0x53, 0x08), // mov [rbx+8], rdx
		},
		StoreDwordRCX(SlotTriggerFlag, 1),
		StoreFloatRCX(SlotTriggerTimer, 10.0),
		Ret(),
	),
}

// CallMoffs loads the manager pointer from a static slot and calls the reload
// function with (manager, record).
var CallMoffs = Template{
	Name: "call_moffs",
	Segments: concat(
		MovImm64(RDX, SlotRecord),
		MovRAXMoffs64(SlotStructSlot),
		[]Segment{raw(0x48, 0x8B, 0xC8)}, // mov rcx, rax
		MovImm64(R14, SlotFunction),
		CallR14(),
		Ret(),
	),
}

// CallImm calls the reload function with an already dereferenced manager pointer.
var CallImm = Template{
	Name: "call_imm",
	Segments: concat(
		MovImm64(RCX, SlotStruct),
		MovImm64(RDX, SlotRecord),
		[]Segment{raw(0x48, 0x83, 0xEC, 0x28)}, // sub rsp, 28h
		MovImm64(R14, SlotFunction),
		[]Segment{
			raw(0x41, 0xFF, 0xD6),       // call r14
			raw(0x48, 0x83, 0xC4, 0x28), // add rsp, 28h
		},
		Ret(),
	),
}

var registry = map[string]Template{
	ListInsert.Name: ListInsert,
	CallMoffs.Name:  CallMoffs,
	CallImm.Name:    CallImm,
}

func Lookup(name string) (Template, error) {
	t, ok := registry[name]
	if !ok {
		return Template{}, fmt.Errorf("%q: %w", name, ErrUnknownTemplate)
	}
	return t, nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
