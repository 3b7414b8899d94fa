package sntp

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestFixedPointKnownValues(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		sec  uint32
		frac uint32
	}{
		{"unix epoch", 0, UnixEpochOffset, 0},
		{"half second", 500, UnixEpochOffset, 1 << 31},
		{"quarter second", 1250, UnixEpochOffset + 1, 1 << 30},
		{"recent", 1_735_689_600_000, UnixEpochOffset + 1_735_689_600, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := ToFixedPoint(tt.ms)
			if err != nil {
				t.Fatalf("ToFixedPoint(%d) error = %v", tt.ms, err)
			}
			if ts.Seconds() != tt.sec || ts.Fraction() != tt.frac {
				t.Errorf("ToFixedPoint(%d) = %d/%d, want %d/%d", tt.ms,
					ts.Seconds(), ts.Fraction(), tt.sec, tt.frac)
			}
			back, err := FromFixedPoint(ts)
			if err != nil {
				t.Fatalf("FromFixedPoint() error = %v", err)
			}
			if back != tt.ms {
				t.Errorf("FromFixedPoint(ToFixedPoint(%d)) = %d", tt.ms, back)
			}
		})
	}
}

func TestFixedPointRoundTripWithinOneMillisecond(t *testing.T) {
	start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	end := time.Date(2036, 2, 7, 0, 0, 0, 0, time.UTC).UnixMilli()
	step := (end - start) / 5003

	for ms := start; ms < end; ms += step {
		for _, sub := range []int64{0, 1, 7, 499, 999} {
			in := ms - ms%1000 + sub
			ts, err := ToFixedPoint(in)
			if err != nil {
				t.Fatalf("ToFixedPoint(%d) error = %v", in, err)
			}
			out, err := FromFixedPoint(ts)
			if err != nil {
				t.Fatalf("FromFixedPoint(%v) error = %v", ts, err)
			}
			if d := in - out; d < 0 || d > 1 {
				t.Fatalf("round trip %d -> %d differs by %d ms", in, out, d)
			}
		}
	}
}

func TestToFixedPointOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
	}{
		{"negative", -1},
		{"era one", (math.MaxUint32 - UnixEpochOffset + 1) * 1000},
		{"max int64", math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ToFixedPoint(tt.ms); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("ToFixedPoint(%d) error = %v, want ErrOutOfRange", tt.ms, err)
			}
		})
	}
}

func TestFromFixedPointRejectsPre1970(t *testing.T) {
	for _, ts := range []Timestamp{0, 1 << 32, Timestamp(uint64(UnixEpochOffset-1)<<32 | 0xffffffff)} {
		if _, err := FromFixedPoint(ts); !errors.Is(err, ErrInvalidTimestamp) {
			t.Errorf("FromFixedPoint(%v) error = %v, want ErrInvalidTimestamp", ts, err)
		}
	}
}

func TestTimestampTime(t *testing.T) {
	want := time.Date(2025, 6, 1, 12, 30, 0, 500_000_000, time.UTC)
	ts, err := ToFixedPoint(want.UnixMilli())
	if err != nil {
		t.Fatal(err)
	}
	diff := ts.Time().Sub(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Millisecond {
		t.Errorf("Time() = %v, want %v", ts.Time(), want)
	}
	if ts.Time().Location() != time.UTC {
		t.Errorf("Time() location = %v, want UTC", ts.Time().Location())
	}
}

func TestTimestampString(t *testing.T) {
	ts := Timestamp(uint64(5)<<32 | 1<<31)
	if got := ts.String(); got != "5.500000000" {
		t.Errorf("String() = %q, want %q", got, "5.500000000")
	}
}

func TestClockFunc(t *testing.T) {
	var c Clock = ClockFunc(func() int64 { return 42 })
	if c.NowMillis() != 42 {
		t.Errorf("ClockFunc.NowMillis() = %d, want 42", c.NowMillis())
	}
	before := time.Now().UnixMilli()
	now := SampleNow()
	after := time.Now().UnixMilli()
	if now < before || now > after {
		t.Errorf("SampleNow() = %d, not within [%d, %d]", now, before, after)
	}
}

func BenchmarkToFixedPoint(b *testing.B) {
	ms := time.Now().UnixMilli()
	for i := 0; i < b.N; i++ {
		_, _ = ToFixedPoint(ms)
	}
}
