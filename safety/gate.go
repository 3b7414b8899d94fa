// Package safety decides whether a computed offset may be applied to the
// local clock. It is pure: no I/O, no clock reads.
package safety

import (
	"fmt"
	"math"
	"time"

	"github.com/karasz/gtimesync/sntp"
)

// Action is the outcome of Decide.
type Action int

// Decision actions, in the order the checks run.
const (
	Adjust Action = iota
	SkipDelayOutOfRange
	SkipInSync
	SkipBelowThreshold
	SkipYearOutOfRange
	SkipDryRun
	SkipNotPrivileged
)

var actionNames = [...]string{
	Adjust:              "adjust",
	SkipDelayOutOfRange: "delay out of range",
	SkipInSync:          "in sync",
	SkipBelowThreshold:  "below threshold",
	SkipYearOutOfRange:  "year out of range",
	SkipDryRun:          "dry run",
	SkipNotPrivileged:   "not privileged",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// Sane reports whether the action is a normal outcome. Delay and year
// failures mean the sample itself cannot be trusted.
func (a Action) Sane() bool {
	return a != SkipDelayOutOfRange && a != SkipYearOutOfRange
}

// Policy holds the sanity limits. All durations are in milliseconds.
type Policy struct {
	ThresholdMillis int64
	MaxDelayMillis  int64
	MinYear         int
	MaxYear         int
	DryRun          bool
}

// Defaults.
const (
	DefaultThresholdMillis = 500
	DefaultMaxDelayMillis  = 10000
	DefaultMinYear         = 2025
	DefaultMaxYear         = 2200
)

// DefaultPolicy returns the default limits with dry run off.
func DefaultPolicy() Policy {
	return Policy{
		ThresholdMillis: DefaultThresholdMillis,
		MaxDelayMillis:  DefaultMaxDelayMillis,
		MinYear:         DefaultMinYear,
		MaxYear:         DefaultMaxYear,
	}
}

// Input is what the gate looks at.
type Input struct {
	Sample sntp.Sample
	// RemoteTransmit is T3 in milliseconds since the Unix epoch.
	RemoteTransmit int64
	Privileged     bool
}

// Decision is the verdict on one sample.
type Decision struct {
	Action Action
	// Target is the absolute time to set, valid only for Adjust.
	Target int64
	Reason string
}

func (d Decision) String() string {
	if d.Action == Adjust {
		return fmt.Sprintf("adjust to %d ms: %s", d.Target, d.Reason)
	}
	return fmt.Sprintf("skip (%v): %s", d.Action, d.Reason)
}

func skip(a Action, format string, args ...interface{}) (Decision, error) {
	return Decision{Action: a, Reason: fmt.Sprintf(format, args...)}, nil
}

// Decide runs the checks in a fixed order and returns the first that
// fires. An error is returned only when the adjustment target overflows.
func Decide(in Input, p Policy) (Decision, error) {
	s := in.Sample
	if s.Delay < 0 || s.Delay > p.MaxDelayMillis {
		return skip(SkipDelayOutOfRange, "round trip delay %d ms outside [0, %d]", s.Delay, p.MaxDelayMillis)
	}
	if s.Offset == 0 {
		return skip(SkipInSync, "offset is zero")
	}
	if abs(s.Offset) < p.ThresholdMillis {
		return skip(SkipBelowThreshold, "offset %d ms below %d ms", s.Offset, p.ThresholdMillis)
	}
	year := yearOf(in.RemoteTransmit)
	if year < p.MinYear || year > p.MaxYear {
		return skip(SkipYearOutOfRange, "remote year %d outside [%d, %d]", year, p.MinYear, p.MaxYear)
	}
	if p.DryRun {
		return skip(SkipDryRun, "would adjust by %d ms", s.Offset)
	}
	if !in.Privileged {
		return skip(SkipNotPrivileged, "insufficient privilege to adjust by %d ms", s.Offset)
	}

	target, err := sntp.AddMillis(in.RemoteTransmit, s.Delay/2)
	if err != nil {
		return Decision{}, fmt.Errorf("adjustment target: %w", err)
	}
	return Decision{
		Action: Adjust,
		Target: target,
		Reason: fmt.Sprintf("offset %d ms", s.Offset),
	}, nil
}

func abs(v int64) int64 {
	switch {
	case v == math.MinInt64:
		return math.MaxInt64
	case v < 0:
		return -v
	}
	return v
}

// yearOf returns the UTC calendar year of a Unix millisecond time.
func yearOf(ms int64) int {
	return time.UnixMilli(ms).UTC().Year()
}
