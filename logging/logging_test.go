package logging

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/karasz/glibtai"
	"github.com/sirupsen/logrus"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Options{Verbose: tt.verbose, Out: &buf})
			l.Debugf("debug %d", 1)
			l.Infof("info %d", 2)

			out := buf.String()
			if got := strings.Contains(out, "debug 1"); got != tt.wantDebug {
				t.Errorf("debug line present = %v, want %v: %q", got, tt.wantDebug, out)
			}
			if !strings.Contains(out, "info 2") {
				t.Errorf("info line missing: %q", out)
			}
		})
	}
}

func TestNewTextTimestamp(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Out: &buf})
	l.Warnf("careful")

	re := regexp.MustCompile(`time="\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}" level=warning msg=careful`)
	if !re.MatchString(buf.String()) {
		t.Errorf("unexpected text line %q", buf.String())
	}
}

func TestTAIFormatter(t *testing.T) {
	f := &TAIFormatter{Label: func() string { return "@400000005a848ead00000000" }}
	e := logrus.NewEntry(logrus.New())
	e.Level = logrus.WarnLevel
	e.Message = "invalid mode"
	e.Data = logrus.Fields{"mode": 3, "addr": "192.0.2.1"}

	b, err := f.Format(e)
	if err != nil {
		t.Fatal(err)
	}
	want := "@400000005a848ead00000000 WARNING invalid mode addr=192.0.2.1 mode=3\n"
	if string(b) != want {
		t.Errorf("Format() = %q, want %q", b, want)
	}
}

func TestNowLabelParses(t *testing.T) {
	label := NowLabel()
	if len(label) != 25 || label[0] != '@' {
		t.Fatalf("NowLabel() = %q, want @ and 24 hex digits", label)
	}
	if _, err := glibtai.TAINfromString(label); err != nil {
		t.Errorf("TAINfromString(%q) error = %v", label, err)
	}
}

func TestNewTAIOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{TAI: true, Out: &buf})
	l.Errorf("boom")
	if !regexp.MustCompile(`^@[0-9a-f]{24} ERROR boom\n$`).MatchString(buf.String()) {
		t.Errorf("unexpected TAI line %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	var l Logger = Discard()
	l.Errorf("nothing to see")
}
