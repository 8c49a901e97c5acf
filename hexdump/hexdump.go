package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"chrreload/coloransi"
	"chrreload/process/memory_map"
)

// Span marks bytes [Offset, Offset+Len) of the dumped data for highlighting.
type Span struct {
	Offset int
	Len    int
}

// HexDumpOptions defines options for customizing the hexdump output
type HexDumpOptions struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// ShowASCII determines whether to show the ASCII representation
	ShowASCII bool

	// StartOffset is the address printed for the first byte
	StartOffset uint64

	// OffsetWidth is the width of the offset column in hex digits
	OffsetWidth int

	OffsetColor       coloransi.ColorCode
	HexColor          coloransi.ColorCode
	ASCIIColor        coloransi.ColorCode
	NonPrintableColor coloransi.ColorCode
	ZeroColor         coloransi.ColorCode

	// Highlight lists byte ranges drawn in HighlightColor, e.g. patch sites
	// of a stub or the bytes matched by a signature.
	Highlight                []Span
	HighlightColor           coloransi.ColorCode
	HighlightBackgroundColor coloransi.ColorCode

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int

	// Regions, when set, turns on pointer previews: qwords at line offsets 0
	// and 8 that land inside a region are printed after the ASCII column.
	Regions []memory_map.MemoryRegion
}

// DefaultOptions returns the default hexdump options
func DefaultOptions() HexDumpOptions {
	return HexDumpOptions{
		BytesPerLine:             16,
		ShowASCII:                true,
		OffsetWidth:              12,
		OffsetColor:              coloransi.Cyan,
		HexColor:                 coloransi.Green,
		ASCIIColor:               coloransi.White,
		NonPrintableColor:        coloransi.BrightBlack,
		ZeroColor:                coloransi.BrightBlack,
		HighlightColor:           coloransi.Yellow,
		HighlightBackgroundColor: coloransi.Black,
	}
}

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options HexDumpOptions) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(writer io.Writer, data []byte, options HexDumpOptions) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.OffsetWidth <= 0 {
		options.OffsetWidth = 8
	}

	lineCount := 0
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lineCount >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			break
		}

		end := offset + options.BytesPerLine
		if end > len(data) {
			end = len(data)
		}
		formatLine(writer, data[offset:end], offset, options)
		lineCount++
	}
}

func highlighted(pos int, spans []Span) bool {
	for _, s := range spans {
		if pos >= s.Offset && pos < s.Offset+s.Len {
			return true
		}
	}
	return false
}

// formatLine formats one line; base is the index of line[0] within the dumped data.
func formatLine(writer io.Writer, line []byte, base int, options HexDumpOptions) {
	offsetStr := fmt.Sprintf("%0"+strconv.Itoa(options.OffsetWidth)+"x", options.StartOffset+uint64(base))
	fmt.Fprint(writer, coloransi.Foreground(options.OffsetColor, offsetStr), "  ")

	half := options.BytesPerLine / 2
	parts := make([]string, 0, options.BytesPerLine+1)
	for i := 0; i < options.BytesPerLine; i++ {
		if i == half && options.BytesPerLine >= 8 {
			parts = append(parts, "|")
		}
		if i >= len(line) {
			parts = append(parts, "  ")
			continue
		}
		parts = append(parts, colorByte(fmt.Sprintf("%02x", line[i]), line[i], base+i, options, options.HexColor))
	}
	fmt.Fprint(writer, strings.Join(parts, " "))

	if options.ShowASCII {
		fmt.Fprint(writer, " | ")
		for i, b := range line {
			c := rune(b)
			switch {
			case b == 0 && !highlighted(base+i, options.Highlight):
				fmt.Fprint(writer, coloransi.Foreground(options.ZeroColor, "."))
			case !unicode.IsPrint(c) || c > unicode.MaxASCII:
				fmt.Fprint(writer, colorByte(".", b, base+i, options, options.NonPrintableColor))
			default:
				fmt.Fprint(writer, colorByte(string(c), b, base+i, options, options.ASCIIColor))
			}
		}
	}

	if len(options.Regions) > 0 {
		for at := 0; at+8 <= len(line) && at <= 8; at += 8 {
			ptr := binary.LittleEndian.Uint64(line[at:])
			if memory_map.FindRegion(ptr, options.Regions) != nil {
				fmt.Fprint(writer, " ", coloransi.Foreground(coloransi.Yellow, fmt.Sprintf("0x%x", ptr)))
			}
		}
	}

	fmt.Fprintln(writer)
}

func colorByte(text string, b byte, pos int, options HexDumpOptions, fg coloransi.ColorCode) string {
	if highlighted(pos, options.Highlight) {
		return coloransi.Color(options.HighlightColor, options.HighlightBackgroundColor, text)
	}
	if b == 0 {
		return coloransi.Foreground(options.ZeroColor, text)
	}
	return coloransi.Foreground(fg, text)
}

// DumpWithHighlight dumps data at startOffset with the given spans highlighted.
func DumpWithHighlight(data []byte, startOffset uint64, spans ...Span) string {
	options := DefaultOptions()
	options.StartOffset = startOffset
	options.Highlight = spans
	return Dump(data, options)
}

// HexdumpBasic is the memory-view format: pointers at line offsets 0 and 8
// that fall inside regions are shown after the ASCII column.
//
// 000140001000  00 01 02 03 04 05 06 07 | 08 09 0a 0b 0c 0d 0e 0f | ................ 0x7ff000001000
func HexdumpBasic(data []byte, offset uint64, regions []memory_map.MemoryRegion) string {
	options := DefaultOptions()
	options.StartOffset = offset
	options.Regions = regions
	options.NonPrintableColor = coloransi.Red
	return Dump(data, options)
}
