// Package query performs the request/response exchange with SNTP servers:
// name resolution, bounded retries with a read deadline per attempt, reply
// validation and capture of the four exchange timestamps.
package query

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/karasz/gtimesync/logging"
	"github.com/karasz/gtimesync/sntp"
)

const (
	// DefaultServer is queried when no server is configured.
	DefaultServer = "pool.ntp.org"
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 2000 * time.Millisecond
	// DefaultRetries is the number of failed attempts tolerated per address.
	DefaultRetries = 3
	// DefaultPause separates consecutive attempts.
	DefaultPause = 200 * time.Millisecond
)

var (
	// ErrResolutionFailed means no configured server resolved to an address.
	ErrResolutionFailed = errors.New("server name resolution failed")
	// ErrAttempt wraps the network failure of a single attempt.
	ErrAttempt = errors.New("attempt failed")
	// ErrOriginMismatch means a reply did not echo our transmit timestamp.
	ErrOriginMismatch = errors.New("origin timestamp mismatch")
	// ErrQueryExhausted means every attempt on every address failed.
	ErrQueryExhausted = errors.New("no valid reply")
)

// Resolver maps a host name to addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, host string) ([]string, error)

// LookupHost implements Resolver.
func (f ResolverFunc) LookupHost(ctx context.Context, host string) ([]string, error) {
	return f(ctx, host)
}

// Config is the immutable input of a query.
type Config struct {
	Servers []string
	// Port defaults to sntp.Port.
	Port    string
	Timeout time.Duration
	Retries int
	Pause   time.Duration
	// Samples is the number of valid replies to gather; the lowest-delay
	// one wins. Zero means one.
	Samples int
	// MaxDelay is the largest plausible round trip delay. Samples above it
	// only win when nothing better arrived. Zero means no ceiling.
	MaxDelay time.Duration
}

// Result is a successful exchange.
type Result struct {
	Exchange sntp.Exchange
	Reply    sntp.Reply
	Address  string
	// Attempts counts every request sent, failed or not.
	Attempts int
}

// Engine runs queries. The zero value uses the system resolver and clock,
// real sleeps and no logging.
type Engine struct {
	Resolver Resolver
	Clock    sntp.Clock
	Log      logging.Logger
	// Sleep waits between attempts; nil sleeps for real, honouring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (e *Engine) resolver() Resolver {
	if e.Resolver == nil {
		return net.DefaultResolver
	}
	return e.Resolver
}

func (e *Engine) clock() sntp.Clock {
	if e.Clock == nil {
		return sntp.SystemClock{}
	}
	return e.Clock
}

func (e *Engine) log() logging.Logger {
	if e.Log == nil {
		return logging.Discard()
	}
	return e.Log
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func withDefaults(c Config) Config {
	if len(c.Servers) == 0 {
		c.Servers = []string{DefaultServer}
	}
	if c.Port == "" {
		c.Port = sntp.Port
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries <= 0 {
		c.Retries = DefaultRetries
	}
	if c.Pause < 0 {
		c.Pause = 0
	}
	if c.Samples <= 0 {
		c.Samples = 1
	}
	return c
}

// Query resolves the configured servers and exchanges packets until enough
// valid replies arrive or the attempt budget is spent. Each address gets
// Retries failed attempts before the next one is tried.
func (e *Engine) Query(ctx context.Context, cfg Config) (Result, error) {
	cfg = withDefaults(cfg)

	addrs := e.resolve(ctx, cfg.Servers)
	if len(addrs) == 0 {
		return Result{}, fmt.Errorf("%w: %v", ErrResolutionFailed, cfg.Servers)
	}

	var (
		best     Result
		bestOK   bool
		lastErr  error
		attempts int
		samples  int
	)
	for i, addr := range addrs {
		lastAddr := i == len(addrs)-1
		for failures := 0; failures < cfg.Retries; {
			if err := ctx.Err(); err != nil {
				lastErr = err
				break
			}
			attempts++
			e.log().Debugf("querying %s (attempt %d)", addr, attempts)

			res, err := e.attempt(ctx, cfg, addr)
			if err == nil {
				samples++
				if !bestOK || betterSample(res.Exchange, best.Exchange, cfg.MaxDelay) {
					best, bestOK = res, true
				}
				if samples >= cfg.Samples {
					best.Attempts = attempts
					return best, nil
				}
			} else {
				failures++
				lastErr = err
				e.log().Warnf("attempt %d to %s failed: %v", attempts, addr, err)
				if lastAddr && failures == cfg.Retries {
					break
				}
			}
			if err := e.sleep(ctx, cfg.Pause); err != nil {
				lastErr = err
				break
			}
		}
	}

	if bestOK {
		best.Attempts = attempts
		return best, nil
	}
	return Result{}, fmt.Errorf("%w after %d attempts: %w", ErrQueryExhausted, attempts, lastErr)
}

// resolve returns the addresses of every server that resolves, in order.
func (e *Engine) resolve(ctx context.Context, servers []string) []string {
	var addrs []string
	for _, s := range servers {
		a, err := e.resolver().LookupHost(ctx, s)
		if err != nil {
			e.log().Warnf("resolving %s: %v", s, err)
			continue
		}
		e.log().Debugf("%s resolved to %v", s, a)
		addrs = append(addrs, a...)
	}
	return addrs
}

// attempt performs one request/response on a fresh connected socket.
func (e *Engine) attempt(ctx context.Context, cfg Config, addr string) (Result, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(addr, cfg.Port))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAttempt, err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(cfg.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAttempt, err)
	}

	clk := e.clock()
	t1 := clk.NowMillis()
	transmit, err := sntp.ToFixedPoint(t1)
	if err != nil {
		return Result{}, err
	}
	req := sntp.EncodeRequest(transmit)
	if _, err := conn.Write(req.Bytes()); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAttempt, err)
	}

	var buf [2 * sntp.PacketSize]byte
	n, err := conn.Read(buf[:])
	t4 := clk.NowMillis()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAttempt, err)
	}

	reply, err := sntp.DecodeReply(buf[:n])
	if err != nil {
		return Result{}, err
	}
	if reply.Origin != transmit {
		return Result{}, fmt.Errorf("%w: sent %v, got %v", ErrOriginMismatch, transmit, reply.Origin)
	}
	t2, err := sntp.FromFixedPoint(reply.Receive)
	if err != nil {
		return Result{}, err
	}
	t3, err := sntp.FromFixedPoint(reply.Transmit)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Exchange: sntp.Exchange{T1: t1, T2: t2, T3: t3, T4: t4},
		Reply:    reply,
		Address:  addr,
	}, nil
}

// Sample ranks, best first.
const (
	rankPlausible = iota
	rankTooSlow
	rankNegative
	rankBroken
)

// rank groups an exchange by how trustworthy its delay is.
func rank(e sntp.Exchange, maxDelay time.Duration) (int, int64) {
	s, err := e.Sample()
	switch {
	case err != nil:
		return rankBroken, 0
	case s.Delay < 0:
		return rankNegative, s.Delay
	case maxDelay > 0 && s.Delay > maxDelay.Milliseconds():
		return rankTooSlow, s.Delay
	}
	return rankPlausible, s.Delay
}

// betterSample reports whether a should replace b. A plausible delay beats
// an implausible one; within a group the lower delay wins.
func betterSample(a, b sntp.Exchange, maxDelay time.Duration) bool {
	ra, da := rank(a, maxDelay)
	rb, db := rank(b, maxDelay)
	if ra != rb {
		return ra < rb
	}
	return ra != rankBroken && da < db
}
