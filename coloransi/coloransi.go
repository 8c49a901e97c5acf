package coloransi

import (
	"fmt"
	"strings"
)

// ColorCode is an ANSI color code in the low 8 bits or an RGB color in the upper 24 bits.
type ColorCode uint32

// ANSI color codes
const (
	Black   ColorCode = 30
	Red     ColorCode = 31
	Green   ColorCode = 32
	Yellow  ColorCode = 33
	Blue    ColorCode = 34
	Magenta ColorCode = 35
	Cyan    ColorCode = 36
	White   ColorCode = 37

	// For bright colors, add 60
	BrightBlack   ColorCode = Black + 60
	BrightRed     ColorCode = Red + 60
	BrightGreen   ColorCode = Green + 60
	BrightYellow  ColorCode = Yellow + 60
	BrightBlue    ColorCode = Blue + 60
	BrightMagenta ColorCode = Magenta + 60
	BrightCyan    ColorCode = Cyan + 60
	BrightWhite   ColorCode = White + 60

	BackgroundOffset ColorCode = 10

	RGBMask ColorCode = 0xFFFFFF00
)

func CreateRGB(r, g, b uint8) ColorCode {
	return ColorCode(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8)
}

var (
	ColorOrange    = CreateRGB(255, 140, 0)
	ColorPurple    = CreateRGB(128, 0, 128)
	ColorTeal      = CreateRGB(0, 128, 128)
	ColorLimeGreen = CreateRGB(50, 205, 50)
	ColorIndigo    = CreateRGB(75, 0, 130)
	ColorWhite     = CreateRGB(255, 255, 255)
)

func (c ColorCode) IsRGB() bool {
	return c&RGBMask != 0
}

func (c ColorCode) rgb() (ColorCode, ColorCode, ColorCode) {
	return (c >> 24) & 0xFF, (c >> 16) & 0xFF, (c >> 8) & 0xFF
}

// ColorFrom picks a stable color for an identifier such as a pid, so lines
// about the same process always share a color.
func ColorFrom(item uint64) ColorCode {
	colors := []ColorCode{
		Red, Green, Yellow, Blue, Magenta, Cyan,
		BrightRed, BrightGreen, BrightYellow, BrightBlue, BrightMagenta, BrightCyan,
	}
	return colors[item%uint64(len(colors))]
}

func join(v []interface{}) string {
	args := make([]string, len(v))
	for i, arg := range v {
		args[i] = fmt.Sprint(arg)
	}
	return strings.Join(args, " ")
}

// Color formats the given text with the specified foreground and background colors.
func Color(fg, bg ColorCode, v ...interface{}) string {
	return OneForeground(fg) + OneBackground(bg) + join(v) + Reset()
}

// Foreground formats the given text with the specified foreground color.
func Foreground(fg ColorCode, v ...interface{}) string {
	return OneForeground(fg) + join(v) + Reset()
}

// OneForeground returns the ANSI escape sequence for the given color code.
func OneForeground(code ColorCode) string {
	if code.IsRGB() {
		r, g, b := code.rgb()
		return fmt.Sprintf("\033[38;2;%d;%d;%dm", r, g, b)
	}
	return fmt.Sprintf("\033[%dm", code)
}

// OneBackground returns the ANSI escape sequence for the given background color code.
func OneBackground(code ColorCode) string {
	if code.IsRGB() {
		r, g, b := code.rgb()
		return fmt.Sprintf("\033[48;2;%d;%d;%dm", r, g, b)
	}
	return fmt.Sprintf("\033[%dm", code+BackgroundOffset)
}

// Reset returns the ANSI escape sequence to reset the text color.
func Reset() string {
	return "\033[0m"
}
