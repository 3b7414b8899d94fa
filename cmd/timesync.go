// Package cmd holds the applets behind the gtimesync binary.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/karasz/gtimesync/logging"
	"github.com/karasz/gtimesync/timesync"
)

const (
	defaultTimeoutMs = 2000
	maxTimeoutMs     = 6000
	defaultRetries   = 3
	maxRetries       = 10
	maxSamples       = 8
)

// errFlags marks command line errors; the FlagSet has already reported them.
var errFlags = errors.New("invalid command line")

// fileConfig is the YAML config file. Pointers tell "absent" from zero.
type fileConfig struct {
	Servers     []string `yaml:"servers"`
	TimeoutMs   *int     `yaml:"timeout_ms"`
	Retries     *int     `yaml:"retries"`
	ThresholdMs *int64   `yaml:"threshold_ms"`
	MaxDelayMs  *int64   `yaml:"max_delay_ms"`
	MinYear     *int     `yaml:"min_year"`
	MaxYear     *int     `yaml:"max_year"`
	DryRun      *bool    `yaml:"dry_run"`
	Verbose     *bool    `yaml:"verbose"`
	Syslog      *bool    `yaml:"syslog"`
	Samples     *int     `yaml:"samples"`
}

// settings is everything the timesync applet derives from its arguments.
type settings struct {
	policy  timesync.Policy
	verbose bool
	syslog  bool
	tai     bool
}

// timesyncFlags mirrors the command line before it is merged with the file.
type timesyncFlags struct {
	timeoutMs  int
	retries    int
	dryRun     bool
	verbose    bool
	syslog     bool
	tai        bool
	samples    int
	configPath string
}

func loadConfig(path string) (fileConfig, error) {
	var fc fileConfig
	f, err := os.Open(path)
	if err != nil {
		return fc, err
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fc, fmt.Errorf("%s: %w", path, err)
	}
	return fc, nil
}

func clamp(v, lo, hi, def int) int {
	switch {
	case v <= 0:
		return def
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

func newTimesyncFlagSet(f *timesyncFlags, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("timesync", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.IntVar(&f.timeoutMs, "t", defaultTimeoutMs, "per attempt timeout in ms (1-6000)")
	fs.IntVar(&f.retries, "r", defaultRetries, "attempts per server address (1-10)")
	fs.BoolVar(&f.dryRun, "n", false, "dry run: query and report, never set the clock")
	fs.BoolVar(&f.verbose, "v", false, "verbose output")
	fs.BoolVar(&f.syslog, "s", false, "also log to syslog")
	fs.BoolVar(&f.tai, "tai", false, "label log lines with TAI64N timestamps")
	fs.IntVar(&f.samples, "samples", 1, "replies to gather, the lowest delay wins (1-8)")
	fs.StringVar(&f.configPath, "c", "", "YAML config file")
	fs.Usage = func() {
		_, _ = fmt.Fprintln(out, "Usage: timesync [options] [server ...]")
		fs.PrintDefaults()
	}
	return fs
}

// parseTimesyncArgs merges defaults, the optional config file and the
// command line, in increasing order of precedence.
func parseTimesyncArgs(args []string, out io.Writer) (settings, error) {
	var f timesyncFlags
	fs := newTimesyncFlagSet(&f, out)
	if err := fs.Parse(args); err != nil {
		return settings{}, fmt.Errorf("%w: %w", errFlags, err)
	}

	s := settings{policy: timesync.DefaultPolicy()}
	timeoutMs, retries, samples := defaultTimeoutMs, defaultRetries, 1

	if f.configPath != "" {
		fc, err := loadConfig(f.configPath)
		if err != nil {
			return settings{}, err
		}
		if len(fc.Servers) > 0 {
			s.policy.Servers = fc.Servers
		}
		setIf(&timeoutMs, fc.TimeoutMs)
		setIf(&retries, fc.Retries)
		setIf(&samples, fc.Samples)
		setIf(&s.policy.ThresholdMillis, fc.ThresholdMs)
		setIf(&s.policy.MaxDelayMillis, fc.MaxDelayMs)
		setIf(&s.policy.MinYear, fc.MinYear)
		setIf(&s.policy.MaxYear, fc.MaxYear)
		setIf(&s.policy.DryRun, fc.DryRun)
		setIf(&s.verbose, fc.Verbose)
		setIf(&s.syslog, fc.Syslog)
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "t":
			timeoutMs = f.timeoutMs
		case "r":
			retries = f.retries
		case "samples":
			samples = f.samples
		case "n":
			s.policy.DryRun = f.dryRun
		case "v":
			s.verbose = f.verbose
		case "s":
			s.syslog = f.syslog
		case "tai":
			s.tai = f.tai
		}
	})
	if fs.NArg() > 0 {
		s.policy.Servers = fs.Args()
	}

	if s.policy.MinYear > s.policy.MaxYear {
		return settings{}, fmt.Errorf("min_year %d is after max_year %d", s.policy.MinYear, s.policy.MaxYear)
	}
	if s.policy.ThresholdMillis < 0 || s.policy.MaxDelayMillis < 0 {
		return settings{}, errors.New("threshold_ms and max_delay_ms must not be negative")
	}

	s.policy.Timeout = time.Duration(clamp(timeoutMs, 1, maxTimeoutMs, defaultTimeoutMs)) * time.Millisecond
	s.policy.Retries = clamp(retries, 1, maxRetries, defaultRetries)
	s.policy.Samples = clamp(samples, 1, maxSamples, 1)
	if s.policy.DryRun {
		// test runs stay off the system log
		s.syslog = false
	}
	return s, nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// TimesyncRun queries the configured servers once and steps the clock when
// the offset is large enough and the sample passes the sanity checks.
func TimesyncRun(args []string) int {
	return runTimesync(args, os.Stderr)
}

func runTimesync(args []string, stderr io.Writer) int {
	s, err := parseTimesyncArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return int(timesync.ExitOK)
	}
	if err != nil {
		if !errors.Is(err, errFlags) {
			_, _ = fmt.Fprintln(stderr, err)
		}
		return int(timesync.ExitUsage)
	}

	log := logging.New(logging.Options{
		Verbose: s.verbose,
		Syslog:  s.syslog,
		TAI:     s.tai,
		Out:     stderr,
	})
	if s.policy.DryRun {
		log.Infof("dry run, the clock will not be changed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := timesync.Run(ctx, s.policy, timesync.Env{Log: log})
	return int(o.Code)
}
