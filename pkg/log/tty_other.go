//go:build !linux && !darwin

package log

import "os"

// IsTerminal reports whether f is attached to a terminal. Terminal
// detection is only implemented for Linux and macOS.
func IsTerminal(f *os.File) bool {
	return false
}
