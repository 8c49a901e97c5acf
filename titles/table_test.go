package titles

import (
	"errors"
	"strings"
	"testing"
	"time"

	"chrreload/resolver"
	"chrreload/shellcode"
)

func TestDefaultTable(t *testing.T) {
	table, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	for _, id := range []string{"DS1R", "DS3", "SDT", "ER"} {
		title, err := table.Lookup(id, "")
		if err != nil {
			t.Errorf("Lookup(%s): %v", id, err)
			continue
		}
		if title.Wait() != 5*time.Second {
			t.Errorf("%s: Wait() = %v", id, title.Wait())
		}
		if _, err := title.Shellcode(); err != nil {
			t.Errorf("%s: Shellcode: %v", id, err)
		}
	}

	if len(table.Titles()) != 4 {
		t.Errorf("Titles() has %d entries, want 4", len(table.Titles()))
	}
}

func TestEldenRingEntry(t *testing.T) {
	table, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	er, err := table.Lookup("er", "default")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	if got := er.ProcessNames; len(got) != 2 || got[0] != "eldenring.exe" || got[1] != "start_protected_game.exe" {
		t.Errorf("ProcessNames = %v", got)
	}
	if er.Offsets[shellcode.SlotListHead] != 0x1E668 || er.Offsets[shellcode.SlotTriggerTimer] != 0x1E678 {
		t.Errorf("Offsets = %v", er.Offsets)
	}
	if er.Record.Size != 512 || er.Record.NameOffset != 0x100 {
		t.Errorf("Record = %+v", er.Record)
	}
	if er.CrashGuard == nil || er.CrashGuard.Revert {
		t.Errorf("CrashGuard = %+v, want present and not reverted", er.CrashGuard)
	}
	guard, err := er.GuardBytes()
	if err != nil || string(guard) != "\x48\x31\xD2" {
		t.Errorf("GuardBytes = % X, %v", guard, err)
	}

	chains, err := er.Chains()
	if err != nil {
		t.Fatalf("Chains: %v", err)
	}
	byName := make(map[string]resolver.Chain)
	for _, c := range chains {
		byName[c.Name] = c
	}
	wcm := byName["world_chr_man"]
	if len(wcm.Steps) != 3 || wcm.Steps[0].Pattern.Len() != 23 || wcm.Steps[1].InstrLen != 7 {
		t.Errorf("world_chr_man chain = %+v", wcm)
	}
	fix := byName["crash_fix"]
	if len(fix.Steps) != 2 || fix.Steps[0].Pattern.Len() != 47 || fix.Steps[1].Offset != 3 {
		t.Errorf("crash_fix chain = %+v", fix)
	}
}

const override = `
titles:
  - id: DS3
    name: Dark Souls III (1.15.2)
    version: default
    process_names: [DarkSoulsIII.exe]
    encoding: utf-16le
    id_prefix: c
    template: call_moffs
    timeout: 1500ms
    pointers:
      - name: slot
        steps: [{op: module_offset, offset: 0x4000}]
      - name: fn
        steps: [{op: module_offset, offset: 1024}]
    required: [slot, fn]
    bindings: {struct_slot: slot, function: fn}
`

func TestMergeOverride(t *testing.T) {
	table, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	o, err := Load(strings.NewReader(override))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	table.Merge(o)

	ds3, err := table.Lookup("DS3", "")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ds3.Wait() != 1500*time.Millisecond || ds3.ReloadFlag != "" {
		t.Errorf("override not applied: %+v", ds3)
	}
	chains, _ := ds3.Chains()
	if chains[1].Steps[0].Offset != 1024 {
		t.Errorf("decimal offset = %d", chains[1].Steps[0].Offset)
	}
	if _, err := table.Lookup("ER", ""); err != nil {
		t.Errorf("ER lost by merge: %v", err)
	}
}

func TestParseRejectsBadTitles(t *testing.T) {
	tests := map[string]string{
		"unknown template": `
titles:
  - {id: X, process_names: [x.exe], encoding: ascii, template: jmp_far}`,
		"unbound slot": `
titles:
  - id: X
    process_names: [x.exe]
    encoding: ascii
    template: call_imm
    pointers: [{name: s, steps: [{op: module_offset, offset: 1}]}]
    required: [s]
    bindings: {struct: s}`,
		"pointer not required": `
titles:
  - id: X
    process_names: [x.exe]
    encoding: ascii
    template: call_imm
    pointers:
      - {name: s, steps: [{op: module_offset, offset: 1}]}
      - {name: f, steps: [{op: module_offset, offset: 2}]}
    required: [s]
    bindings: {struct: s, function: f}`,
		"bad pattern": `
titles:
  - id: X
    process_names: [x.exe]
    encoding: ascii
    template: call_imm
    pointers: [{name: s, steps: [{op: scan, pattern: "ZZ"}]}]`,
		"bad encoding": `
titles:
  - {id: X, process_names: [x.exe], encoding: utf-32, template: call_imm}`,
		"unknown key": `
titles:
  - {id: X, process_names: [x.exe], encoding: ascii, template: call_imm, colour: red}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Error("Parse succeeded, want error")
			}
		})
	}
}

func TestLookupUnknown(t *testing.T) {
	table, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if _, err := table.Lookup("DS2", ""); !errors.Is(err, ErrUnknownTitle) {
		t.Errorf("Lookup(DS2) = %v, want ErrUnknownTitle", err)
	}
	if _, err := table.Lookup("ER", "1.02"); !errors.Is(err, ErrUnknownTitle) {
		t.Errorf("Lookup(ER, 1.02) = %v, want ErrUnknownTitle", err)
	}
}
