//go:build linux || darwin || freebsd || openbsd || netbsd || dragonfly

package clock

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setSystemClock uses settimeofday with microsecond precision, the common
// primitive on Linux, Darwin and the BSDs.
func setSystemClock(targetMillis int64) error {
	tv := unix.NsecToTimeval(targetMillis * 1e6)
	return classify("settimeofday", unix.Settimeofday(&tv))
}

func isPermission(errno syscall.Errno) bool {
	return errno == syscall.EPERM || errno == syscall.EACCES
}
