// Package timesync sequences one synchronisation run: query a server,
// compute the offset, pass it through the safety gate and, if allowed,
// step the clock.
package timesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/karasz/gtimesync/clock"
	"github.com/karasz/gtimesync/logging"
	"github.com/karasz/gtimesync/query"
	"github.com/karasz/gtimesync/safety"
	"github.com/karasz/gtimesync/sntp"
)

// ExitCode is the process status a run maps to.
type ExitCode int

// Exit statuses.
const (
	ExitOK          ExitCode = 0
	ExitSanity      ExitCode = 1
	ExitQueryFailed ExitCode = 2
	ExitClockWrite  ExitCode = 10
	ExitUsage       ExitCode = 111
)

// ErrSanity means the sample failed a sanity limit and was discarded.
var ErrSanity = errors.New("sanity check failed")

// Policy is the complete, immutable configuration of a run.
type Policy struct {
	Servers []string
	Port    string
	Timeout time.Duration
	Retries int
	Pause   time.Duration
	Samples int

	ThresholdMillis int64
	MaxDelayMillis  int64
	MinYear         int
	MaxYear         int
	DryRun          bool
}

// DefaultPolicy returns the defaults for every field.
func DefaultPolicy() Policy {
	s := safety.DefaultPolicy()
	return Policy{
		Servers:         []string{query.DefaultServer},
		Port:            sntp.Port,
		Timeout:         query.DefaultTimeout,
		Retries:         query.DefaultRetries,
		Pause:           query.DefaultPause,
		Samples:         1,
		ThresholdMillis: s.ThresholdMillis,
		MaxDelayMillis:  s.MaxDelayMillis,
		MinYear:         s.MinYear,
		MaxYear:         s.MaxYear,
	}
}

func (p Policy) queryConfig() query.Config {
	return query.Config{
		Servers:  p.Servers,
		Port:     p.Port,
		Timeout:  p.Timeout,
		Retries:  p.Retries,
		Pause:    p.Pause,
		Samples:  p.Samples,
		MaxDelay: time.Duration(p.MaxDelayMillis) * time.Millisecond,
	}
}

func (p Policy) safetyPolicy() safety.Policy {
	return safety.Policy{
		ThresholdMillis: p.ThresholdMillis,
		MaxDelayMillis:  p.MaxDelayMillis,
		MinYear:         p.MinYear,
		MaxYear:         p.MaxYear,
		DryRun:          p.DryRun,
	}
}

// Env holds the capabilities a run needs. Nil fields use the system.
type Env struct {
	Resolver   query.Resolver
	Clock      sntp.Clock
	Setter     clock.Setter
	Privileged func() bool
	Log        logging.Logger
	Sleep      func(ctx context.Context, d time.Duration) error
}

func (env Env) withDefaults() Env {
	if env.Setter == nil {
		env.Setter = clock.System{}
	}
	if env.Privileged == nil {
		env.Privileged = clock.Privileged
	}
	if env.Log == nil {
		env.Log = logging.Discard()
	}
	return env
}

// Outcome reports everything a run learned. Err is nil unless Code is
// non-zero.
type Outcome struct {
	Result   query.Result
	Sample   sntp.Sample
	Decision safety.Decision
	Err      error
	Code     ExitCode
}

func fail(o Outcome, code ExitCode, err error) Outcome {
	o.Code = code
	o.Err = err
	return o
}

// Run performs one synchronisation. It logs a single error line for a
// fatal failure and leaves the exit status in Outcome.Code.
func Run(ctx context.Context, p Policy, env Env) Outcome {
	env = env.withDefaults()
	log := env.Log
	var o Outcome

	engine := &query.Engine{
		Resolver: env.Resolver,
		Clock:    env.Clock,
		Log:      log,
		Sleep:    env.Sleep,
	}
	res, err := engine.Query(ctx, p.queryConfig())
	if err != nil {
		log.Errorf("query failed: %v", err)
		return fail(o, ExitQueryFailed, err)
	}
	o.Result = res

	ex := res.Exchange
	log.Debugf("server %s stratum %d after %d attempt(s)", res.Address, res.Reply.Stratum, res.Attempts)
	log.Debugf("local time  %s", formatMillis(ex.T4))
	log.Debugf("remote time %s", formatMillis(ex.T3))
	log.Debugf("T1=%d T2=%d T3=%d T4=%d", ex.T1, ex.T2, ex.T3, ex.T4)
	if !ex.Monotonic() {
		log.Warnf("local clock went backwards during the exchange")
	}

	sample, err := ex.Sample()
	if err != nil {
		log.Errorf("offset computation: %v", err)
		return fail(o, ExitSanity, err)
	}
	o.Sample = sample
	log.Debugf("delay %d ms, offset %d ms, local midpoint %s", sample.Delay, sample.Offset, formatMillis(sample.LocalMidpoint))

	d, err := safety.Decide(safety.Input{
		Sample:         sample,
		RemoteTransmit: ex.T3,
		Privileged:     env.Privileged(),
	}, p.safetyPolicy())
	if err != nil {
		log.Errorf("%v", err)
		return fail(o, ExitSanity, err)
	}
	o.Decision = d

	switch {
	case d.Action == safety.Adjust:
		if err := env.Setter.Set(d.Target); err != nil {
			log.Errorf("setting clock to %s: %v", formatMillis(d.Target), err)
			return fail(o, ExitClockWrite, err)
		}
		log.Infof("clock adjusted by %d ms to %s", sample.Offset, formatMillis(d.Target))
	case !d.Action.Sane():
		err := fmt.Errorf("%w: %s", ErrSanity, d.Reason)
		log.Errorf("%v", err)
		return fail(o, ExitSanity, err)
	case d.Action == safety.SkipNotPrivileged:
		log.Warnf("not adjusting: %s", d.Reason)
	default:
		log.Infof("not adjusting: %s", d.Reason)
	}
	return o
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05.000 UTC")
}
