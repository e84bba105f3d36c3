package ui

import (
	"fmt"
	"io"
	"os"
)

// Logo is printed by the CLI banner
const Logo = `
   ┌─────────────────────────────────────────────┐
   │   ___  __ _ / _| ___ _ __   ___ | |_ ___    │
   │  / __|/ _' | |_ / _ \ '_ \ / _ \| __/ _ \   │
   │ | (__| (_| |  _|  __/ | | | (_) | ||  __/   │
   │  \___|\__,_|_|  \___|_| |_|\___/ \__\___|   │
   │      crawl recent authors, send notes       │
   └─────────────────────────────────────────────┘
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// plain disables colors, e.g. when output is not a terminal
var plain bool

// SetColor turns ANSI colors on or off for every helper in this package
func SetColor(enabled bool) {
	plain = !enabled
}

func colorize(colorString string) func(string) string {
	return func(text string) string {
		if plain {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// Console writes user-facing lines. Logs go through the logger instead.
type Console struct {
	w io.Writer
}

// NewConsole returns a Console over w; nil means stdout
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

// Writer exposes the underlying writer
func (c *Console) Writer() io.Writer {
	return c.w
}

// Logo prints the banner
func (c *Console) Logo() {
	fmt.Fprint(c.w, Cyan(Logo))
}

// Error prints an error message, optionally followed by its cause
func (c *Console) Error(msg string, err ...error) {
	if len(err) > 0 && err[0] != nil {
		msg += ": " + err[0].Error()
	}
	fmt.Fprintln(c.w, Red(msg))
}

// Success prints a success message
func (c *Console) Success(msg string) {
	fmt.Fprintln(c.w, Green(msg))
}

// Info prints a label/value pair
func (c *Console) Info(label, value string) {
	fmt.Fprintf(c.w, "%s: %s\n", Cyan(label), Yellow(value))
}

// Warning prints a warning message
func (c *Console) Warning(msg string) {
	fmt.Fprintln(c.w, Yellow(msg))
}

// Println prints an uncolored line
func (c *Console) Println(a ...interface{}) {
	fmt.Fprintln(c.w, a...)
}

// Printf prints uncolored formatted text
func (c *Console) Printf(format string, a ...interface{}) {
	fmt.Fprintf(c.w, format, a...)
}
