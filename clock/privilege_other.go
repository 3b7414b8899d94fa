//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly && !windows

package clock

// Privileged is always false where the clock cannot be set.
func Privileged() bool {
	return false
}
