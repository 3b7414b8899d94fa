//go:build darwin || freebsd || openbsd || netbsd || dragonfly

package clock

import "golang.org/x/sys/unix"

// Privileged reports whether the process runs with effective uid 0.
func Privileged() bool {
	return unix.Geteuid() == 0
}
