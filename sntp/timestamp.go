package sntp

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// UnixEpochOffset is the number of seconds between 1900-01-01 and 1970-01-01.
const UnixEpochOffset = 2208988800

const msPerSec = 1000

// ErrOutOfRange reports a Unix time that the 32-bit seconds field cannot hold.
var ErrOutOfRange = errors.New("time not representable as a fixed-point timestamp")

// Timestamp is the 64-bit fixed-point format: whole seconds since 1900 in the
// high word, binary fraction of a second in the low word.
type Timestamp uint64

// Seconds returns the whole seconds since 1900.
func (t Timestamp) Seconds() uint32 {
	return uint32(t >> 32)
}

// Fraction returns the fractional second scaled to 2^32.
func (t Timestamp) Fraction() uint32 {
	return uint32(t & 0xffffffff)
}

// Time converts the timestamp to a UTC time.Time with nanosecond precision.
func (t Timestamp) Time() time.Time {
	sec := int64(t.Seconds()) - UnixEpochOffset
	nsec := int64(uint64(t.Fraction()) * uint64(time.Second) >> 32)
	return time.Unix(sec, nsec).UTC()
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%09d", t.Seconds(), uint64(t.Fraction())*1e9>>32)
}

// ToFixedPoint converts milliseconds since the Unix epoch.
func ToFixedPoint(ms int64) (Timestamp, error) {
	if ms < 0 {
		return 0, fmt.Errorf("%w: %d ms", ErrOutOfRange, ms)
	}
	sec := ms/msPerSec + UnixEpochOffset
	if sec > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d ms", ErrOutOfRange, ms)
	}
	frac := uint64(ms%msPerSec) << 32 / msPerSec
	return Timestamp(uint64(sec)<<32 | frac), nil
}

// FromFixedPoint converts back to milliseconds since the Unix epoch. Seconds
// below the epoch offset describe a pre-1970 instant and are rejected.
func FromFixedPoint(t Timestamp) (int64, error) {
	sec := t.Seconds()
	if sec < UnixEpochOffset {
		return 0, invalid(ErrInvalidTimestamp, uint64(sec))
	}
	ms := uint64(t.Fraction()) * msPerSec >> 32
	return int64(sec-UnixEpochOffset)*msPerSec + int64(ms), nil
}

// Clock samples the local wall clock in milliseconds since the Unix epoch.
type Clock interface {
	NowMillis() int64
}

// SystemClock reads time.Now.
type SystemClock struct{}

// NowMillis implements Clock.
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

// NowMillis implements Clock.
func (f ClockFunc) NowMillis() int64 {
	return f()
}

// SampleNow returns the current wall clock in milliseconds.
func SampleNow() int64 {
	return SystemClock{}.NowMillis()
}
