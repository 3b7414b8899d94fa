package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/karasz/glibtai"
)

const (
	tainLabelLen = 25
	taiLabelLen  = 17
)

// tryParseLabel replaces the label of the given length at atpos with a
// readable time.
func tryParseLabel(working string, atpos int, length int) (string, bool) {
	if len(working) < atpos+length {
		return working, false
	}
	lbl := working[atpos : atpos+length]

	switch length {
	case tainLabelLen:
		if tn, err := glibtai.TAINfromString(lbl); err == nil {
			return strings.Replace(working, lbl, fmt.Sprint(glibtai.TAINTime(tn)), 1), true
		}
	case taiLabelLen:
		if t, err := glibtai.TAIfromString(lbl); err == nil {
			return strings.Replace(working, lbl, fmt.Sprint(glibtai.TAITime(t)), 1), true
		}
	}
	return working, false
}

// processline rewrites the first TAI64N or TAI64 label of a log line.
func processline(s string) string {
	atpos := strings.Index(s, "@")
	if atpos == -1 {
		return s
	}
	if result, ok := tryParseLabel(s, atpos, tainLabelLen); ok {
		return result
	}
	if result, ok := tryParseLabel(s, atpos, taiLabelLen); ok {
		return result
	}
	return s
}

// tailocal copies in to out with every line's label rewritten.
func tailocal(in io.Reader, out io.Writer) error {
	r := bufio.NewReader(in)
	w := bufio.NewWriter(out)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			if _, werr := w.WriteString(processline(line)); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	return w.Flush()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// TAILocalRun rewrites the labels of timesync -tai logs into UTC times. It
// reads the named files in order, or standard input when there are none or
// the name is "-".
func TAILocalRun(args []string) int {
	if len(args) == 0 {
		args = []string{"-"}
	}
	for _, name := range args {
		if err := tailocalFile(name); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			return 111
		}
	}
	return 0
}

func tailocalFile(name string) error {
	if name == "-" {
		if isTerminal(os.Stdin) {
			return errors.New("refusing to read a terminal.\nUsage: timesync -tai 2>&1 | tailocal")
		}
		return tailocal(os.Stdin, os.Stdout)
	}
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return tailocal(f, os.Stdout)
}
