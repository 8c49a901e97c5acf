package hexdump

import (
	"regexp"
	"strings"
	"testing"

	"chrreload/process/memory_map"
)

var ansi = regexp.MustCompile("\033\\[[0-9;]*m")

func plain(s string) string {
	return ansi.ReplaceAllString(s, "")
}

func TestDumpLayout(t *testing.T) {
	data := []byte("\x48\x31\xd2Hello, world\x00\x00\x00\xc3")
	lines := strings.Split(strings.TrimRight(plain(DumpWithHighlight(data, 0x140001000)), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	if !strings.HasPrefix(lines[0], "000140001000  48 31 d2 48") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "000140001010  00 00 c3") {
		t.Errorf("line 1 = %q", lines[1])
	}
	if !strings.HasSuffix(lines[0], " | H1.Hello, world.") {
		t.Errorf("ascii column = %q", lines[0])
	}
	// short lines are padded so the ascii column lines up
	if strings.LastIndex(lines[0], " | ") != strings.LastIndex(lines[1], " | ") {
		t.Errorf("ascii column misaligned:\n%s\n%s", lines[0], lines[1])
	}
}

func TestHexdumpBasicShowsPointers(t *testing.T) {
	data := []byte{0x00, 0x10, 0x00, 0x40, 0x01, 0, 0, 0, 0xEF, 0xBE, 0xAD, 0xDE, 0, 0, 0, 0}
	regions := []memory_map.MemoryRegion{{Address: 0x140000000, Size: 0x2000, State: memory_map.MEM_COMMIT}}

	out := plain(HexdumpBasic(data, 0, regions))
	if !strings.Contains(out, "0x140001000") {
		t.Errorf("pointer preview missing: %q", out)
	}
	if strings.Contains(out, "0xdeadbeef") {
		t.Errorf("unmapped value shown as pointer: %q", out)
	}
}

func TestMaxLines(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxLines = 1
	out := plain(Dump(make([]byte, 40), opts))
	if !strings.Contains(out, "... 24 more bytes") {
		t.Errorf("got %q", out)
	}
}
