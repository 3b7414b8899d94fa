//go:build windows

package clock

import "golang.org/x/sys/windows"

// Privileged reports whether the process token is elevated.
func Privileged() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
