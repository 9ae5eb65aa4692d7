package util

import (
	"os"

	"golang.org/x/term"
)

const defaultTerminalWidth = 80

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// WantColor reports whether output to f should be colored. NO_COLOR
// (https://no-color.org) wins over a terminal.
func WantColor(f *os.File) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	return IsTerminal(f)
}

// TerminalWidth returns the column count of f, or 80 when f is not a terminal
func TerminalWidth(f *os.File) int {
	if !IsTerminal(f) {
		return defaultTerminalWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultTerminalWidth
	}
	return width
}
