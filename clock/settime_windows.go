//go:build windows

package clock

import (
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32          = windows.NewLazySystemDLL("kernel32.dll")
	procSetSystemTime = kernel32.NewProc("SetSystemTime")
)

// setSystemClock uses SetSystemTime, which takes UTC with millisecond
// precision.
func setSystemClock(targetMillis int64) error {
	utc := time.UnixMilli(targetMillis).UTC()
	st := windows.Systemtime{
		Year:         uint16(utc.Year()),
		Month:        uint16(utc.Month()),
		DayOfWeek:    uint16(utc.Weekday()),
		Day:          uint16(utc.Day()),
		Hour:         uint16(utc.Hour()),
		Minute:       uint16(utc.Minute()),
		Second:       uint16(utc.Second()),
		Milliseconds: uint16(utc.Nanosecond() / 1e6),
	}
	r1, _, err := procSetSystemTime.Call(uintptr(unsafe.Pointer(&st)))
	if r1 == 0 {
		return classify("SetSystemTime", err)
	}
	return nil
}

func isPermission(errno syscall.Errno) bool {
	return errno == windows.ERROR_PRIVILEGE_NOT_HELD || errno == windows.ERROR_ACCESS_DENIED
}
