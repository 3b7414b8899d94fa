//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly && !windows

package clock

import "syscall"

func setSystemClock(int64) error {
	return ErrUnsupported
}

func isPermission(errno syscall.Errno) bool {
	return errno == syscall.EPERM
}
