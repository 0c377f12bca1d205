package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Message styles
var (
	Success   = color.New(color.FgGreen)
	Error     = color.New(color.FgRed, color.Bold)
	Warning   = color.New(color.FgYellow)
	Info      = color.New(color.FgCyan)
	Highlight = color.New(color.FgHiCyan, color.Bold)
	Bold      = color.New(color.Bold)
)

// Report cell styles, one per compliance state
var (
	StyleExcluded   = color.New(color.FgBlue)
	StyleMismatch   = color.New(color.FgRed)
	StyleRevertible = color.New(color.FgGreen)
	StyleUnknown    = color.New(color.FgRed, color.Bold)
)

// Output streams. Tests swap them for buffers.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// Color modes accepted by logging.color
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// InitColors applies the configured color mode. In auto mode NO_COLOR and
// TERM=dumb turn colors off; fatih/color already handles non-TTY output.
func InitColors(mode string) {
	switch mode {
	case ColorNever:
		color.NoColor = true
	case ColorAlways:
		color.NoColor = false
	default:
		if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
			color.NoColor = true
		}
	}
}

// DisableColors turns off all color output
func DisableColors() {
	color.NoColor = true
}

// EnableColors turns color output back on
func EnableColors() {
	color.NoColor = false
}

func emit(w io.Writer, c *color.Color, prefix, format string, args []interface{}) {
	c.Fprintf(w, "%s%s\n", prefix, fmt.Sprintf(format, args...))
}

// PrintSuccess reports a completed step on stdout
func PrintSuccess(format string, args ...interface{}) {
	emit(Stdout, Success, "✓ ", format, args)
}

// PrintError reports a failure on stderr
func PrintError(format string, args ...interface{}) {
	emit(Stderr, Error, "✗ Error: ", format, args)
}

// PrintWarning reports a non-fatal problem on stderr
func PrintWarning(format string, args ...interface{}) {
	emit(Stderr, Warning, "Warning: ", format, args)
}

// PrintInfo prints a progress note on stdout
func PrintInfo(format string, args ...interface{}) {
	emit(Stdout, Info, "→ ", format, args)
}

// PrintKeyValue prints "key: value" with a bold key
func PrintKeyValue(key, value string) {
	Bold.Fprintf(Stdout, "%s: ", key)
	fmt.Fprintln(Stdout, value)
}

// PrintKeyValueColor is PrintKeyValue with a styled value
func PrintKeyValueColor(key, value string, valueColor *color.Color) {
	Bold.Fprintf(Stdout, "%s: ", key)
	valueColor.Fprintln(Stdout, value)
}

// PrintHeader prints a blank line, the text and an underline of equal width
func PrintHeader(text string) {
	fmt.Fprintln(Stdout)
	Bold.Fprintln(Stdout, text)
	fmt.Fprintln(Stdout, strings.Repeat("=", utf8.RuneCountInString(text)))
}

// PrintSubheader prints a section title inside a header
func PrintSubheader(text string) {
	Highlight.Fprintln(Stdout, text)
}

// PrintList prints one indented bullet per item
func PrintList(items []string) {
	for _, item := range items {
		fmt.Fprintf(Stdout, "  • %s\n", item)
	}
}
