// Package clock steps the system wall clock. The platform primitive is
// picked at build time; callers only see Setter.
package clock

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
)

// ErrClockWrite is matched by every failure to set the clock.
var ErrClockWrite = errors.New("clock write failed")

var (
	// ErrPermissionDenied means the caller lacks the privilege to set the clock.
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", ErrClockWrite)
	// ErrUnsupported means the platform offers no way to set the clock.
	ErrUnsupported = fmt.Errorf("%w: unsupported on this platform", ErrClockWrite)
)

// SyscallError is a failed time-setting primitive other than a permission
// failure.
type SyscallError struct {
	Op    string
	Errno syscall.Errno
}

func (e *SyscallError) Error() string {
	return fmt.Sprintf("%v: %s: %v (errno %d)", ErrClockWrite, e.Op, e.Errno, uintptr(e.Errno))
}

// Unwrap lets errors.Is match ErrClockWrite and the errno itself.
func (e *SyscallError) Unwrap() []error {
	return []error{ErrClockWrite, e.Errno}
}

// Setter sets the wall clock to an absolute time in milliseconds since the
// Unix epoch. The change is applied atomically or not at all.
type Setter interface {
	Set(targetMillis int64) error
}

// System sets the operating system clock.
type System struct{}

// Set implements Setter.
func (System) Set(targetMillis int64) error {
	return setSystemClock(targetMillis)
}

// Recorder never touches the clock; it remembers what would have been set.
type Recorder struct {
	mu      sync.Mutex
	targets []int64
	// Err, when set, is returned from every Set call.
	Err error
}

// Set implements Setter.
func (r *Recorder) Set(targetMillis int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, targetMillis)
	return r.Err
}

// Targets returns every value passed to Set.
func (r *Recorder) Targets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.targets...)
}

// classify turns a raw primitive error into the package error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return fmt.Errorf("%w: %s: %v", ErrClockWrite, op, err)
	}
	if isPermission(errno) {
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, op, errno)
	}
	return &SyscallError{Op: op, Errno: errno}
}
