package safety

//revive:disable:cognitive-complexity
import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/karasz/gtimesync/sntp"
)

func millisIn(year int) int64 {
	return time.Date(year, time.June, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
}

func TestDecide(t *testing.T) {
	t3 := millisIn(2025)
	tests := []struct {
		name       string
		delay      int64
		offset     int64
		remote     int64
		dryRun     bool
		privileged bool
		want       Action
	}{
		{"adjust", 50, 600, t3, false, true, Adjust},
		{"adjust backwards", 50, -600, t3, false, true, Adjust},
		{"below threshold", 50, 300, t3, false, true, SkipBelowThreshold},
		{"just below threshold", 50, -499, t3, false, true, SkipBelowThreshold},
		{"at threshold", 50, 500, t3, false, true, Adjust},
		{"in sync", 50, 0, t3, false, true, SkipInSync},
		{"negative delay", -5, 600, t3, false, true, SkipDelayOutOfRange},
		{"huge delay", 15000, 600, t3, false, true, SkipDelayOutOfRange},
		{"max delay", 10000, 600, t3, false, true, Adjust},
		{"year too early", 50, 600, millisIn(2024), false, true, SkipYearOutOfRange},
		{"year too late", 50, 600, millisIn(2300), false, true, SkipYearOutOfRange},
		{"last valid year", 50, 600, millisIn(2200), false, true, Adjust},
		{"dry run", 50, 600, t3, true, true, SkipDryRun},
		{"not privileged", 50, 600, t3, false, false, SkipNotPrivileged},
		// order: delay before everything else
		{"delay beats in sync", -1, 0, millisIn(1999), true, false, SkipDelayOutOfRange},
		{"threshold beats year", 50, 10, millisIn(1999), false, true, SkipBelowThreshold},
		{"year beats dry run", 50, 600, millisIn(1999), true, false, SkipYearOutOfRange},
		{"dry run beats privilege", 50, 600, t3, true, false, SkipDryRun},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			p.DryRun = tt.dryRun
			in := Input{
				Sample:         sntp.Sample{Delay: tt.delay, Offset: tt.offset},
				RemoteTransmit: tt.remote,
				Privileged:     tt.privileged,
			}
			d, err := Decide(in, p)
			if err != nil {
				t.Fatalf("Decide() error = %v", err)
			}
			if d.Action != tt.want {
				t.Errorf("Decide() = %v, want %v", d.Action, tt.want)
			}
			if d.Reason == "" {
				t.Error("empty reason")
			}
			if d.Action == Adjust && d.Target != tt.remote+tt.delay/2 {
				t.Errorf("Target = %d, want %d", d.Target, tt.remote+tt.delay/2)
			}
			if d.Action != Adjust && d.Target != 0 {
				t.Errorf("skip carries target %d", d.Target)
			}
		})
	}
}

func TestDecideTargetOverflow(t *testing.T) {
	p := DefaultPolicy()
	p.MaxYear = math.MaxInt32
	p.MinYear = math.MinInt32
	in := Input{
		Sample:         sntp.Sample{Delay: 10, Offset: 600},
		RemoteTransmit: math.MaxInt64 - 1,
		Privileged:     true,
	}
	_, err := Decide(in, p)
	if !errors.Is(err, sntp.ErrOverflow) {
		t.Errorf("Decide() error = %v, want ErrOverflow", err)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.ThresholdMillis != 500 || p.MaxDelayMillis != 10000 ||
		p.MinYear != 2025 || p.MaxYear != 2200 || p.DryRun {
		t.Errorf("DefaultPolicy() = %+v", p)
	}
}

func TestActionSane(t *testing.T) {
	insane := map[Action]bool{SkipDelayOutOfRange: true, SkipYearOutOfRange: true}
	for a := Adjust; a <= SkipNotPrivileged; a++ {
		if a.Sane() == insane[a] {
			t.Errorf("%v.Sane() = %v", a, a.Sane())
		}
	}
}

func TestDecisionString(t *testing.T) {
	d := Decision{Action: Adjust, Target: 42, Reason: "offset 600 ms"}
	if got := d.String(); got != "adjust to 42 ms: offset 600 ms" {
		t.Errorf("String() = %q", got)
	}
	d = Decision{Action: SkipDryRun, Reason: "would adjust"}
	if got := d.String(); !strings.Contains(got, "dry run") {
		t.Errorf("String() = %q", got)
	}
	if got := Action(99).String(); got != "action(99)" {
		t.Errorf("String() = %q", got)
	}
}

func TestAbs(t *testing.T) {
	if abs(math.MinInt64) != math.MaxInt64 || abs(-3) != 3 || abs(3) != 3 {
		t.Error("abs mismatch")
	}
}
