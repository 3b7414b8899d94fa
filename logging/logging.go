// Package logging builds the logger handed to the query and run code. The
// core only sees the Logger interface, so the sink may be stderr, syslog,
// both, or nothing at all.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/karasz/glibtai"
	"github.com/sirupsen/logrus"
)

// Tag identifies this program in syslog.
const Tag = "timesync"

// TimestampFormat is used for the human readable stderr prefix.
const TimestampFormat = "2006-01-02 15:04:05"

// Logger records diagnostic messages. *logrus.Logger and *logrus.Entry
// satisfy it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Options selects the sinks.
type Options struct {
	Verbose bool
	Syslog  bool
	// TAI prefixes lines with a TAI64N label instead of a calendar time.
	TAI bool
	Out io.Writer
}

// New returns a logrus logger configured from opts. A syslog sink that cannot
// be opened is reported on the logger itself and otherwise ignored.
func New(opts Options) *logrus.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(out)

	l.SetLevel(logrus.InfoLevel)
	if opts.Verbose {
		l.SetLevel(logrus.DebugLevel)
	}

	if opts.TAI {
		l.SetFormatter(&TAIFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  TimestampFormat,
			DisableColors:    true,
			QuoteEmptyFields: true,
		})
	}

	if opts.Syslog {
		if err := addSyslogHook(l); err != nil {
			l.Warnf("failed to open syslog, ignored: %v", err)
		} else {
			l.Debugf("syslog created")
		}
	}
	return l
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

// TAIFormatter writes daemontools style lines: a TAI64N label, the level,
// the message and any fields as key=value pairs. The tailocal applet turns
// the labels back into readable times.
type TAIFormatter struct {
	// Label returns the label for a line. Nil means the current TAI64N time.
	Label func() string
}

// Format implements logrus.Formatter.
func (f *TAIFormatter) Format(e *logrus.Entry) ([]byte, error) {
	label := f.Label
	if label == nil {
		label = NowLabel
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s %s", label(), levelName(e.Level), e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// NowLabel returns the current time as an external TAI64N label.
func NowLabel() string {
	return fmt.Sprintf("@%x", glibtai.TAINPack(glibtai.TAINNow()))
}

func levelName(l logrus.Level) string {
	switch l {
	case logrus.DebugLevel, logrus.TraceLevel:
		return "DEBUG"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.WarnLevel:
		return "WARNING"
	default:
		return "ERROR"
	}
}
