//go:build linux

package clock

import "golang.org/x/sys/unix"

// Privileged reports whether the process may set the clock: effective uid 0
// or CAP_SYS_TIME in the effective set.
func Privileged() bool {
	if unix.Geteuid() == 0 {
		return true
	}
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return false
	}
	return data[unix.CAP_SYS_TIME/32].Effective&(1<<(unix.CAP_SYS_TIME%32)) != 0
}
