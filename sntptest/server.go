// Package sntptest runs an in-process SNTP server on the loopback interface
// so the query path can be exercised against real sockets.
package sntptest

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/karasz/gtimesync/sntp"
)

const (
	// DefaultMaxConcurrentResponses bounds the replies in flight.
	DefaultMaxConcurrentResponses = 16
	// DefaultReadTimeout is how long a read blocks before checking for Stop.
	DefaultReadTimeout = 10 * time.Millisecond

	maxRequestSize = 512
)

const (
	// refLOCL is the reference identifier "LOCL".
	refLOCL      = 0x4c4f434c
	originOffset = 24
)

// Responder builds the reply for one request. A nil result means the
// request is dropped.
type Responder func(req []byte) []byte

// Server answers SNTP requests with a Responder.
type Server struct {
	conn              *net.UDPConn
	respond           Responder
	responseSemaphore chan struct{}
	ctx               context.Context
	cancel            context.CancelFunc
	wg                sync.WaitGroup
	requests          atomic.Int64
	started           atomic.Bool
}

// NewServer listens on an ephemeral loopback port.
func NewServer(r Responder) (*Server, error) {
	if r == nil {
		return nil, errors.New("sntptest: nil responder")
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		conn:              conn,
		respond:           r,
		responseSemaphore: make(chan struct{}, DefaultMaxConcurrentResponses),
		ctx:               ctx,
		cancel:            cancel,
	}, nil
}

// Start serves requests in a background goroutine. Calling it twice is a
// no-op.
func (s *Server) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.handleClientRequests()
	}()
}

// Stop shuts the server down and waits for in-flight replies.
func (s *Server) Stop() error {
	s.cancel()
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Port returns the listening port as a string suitable for net.JoinHostPort.
func (s *Server) Port() string {
	_, port, _ := net.SplitHostPort(s.Addr().String())
	return port
}

// Requests returns the number of datagrams received so far.
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

func (s *Server) handleClientRequests() {
	buf := make([]byte, maxRequestSize)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(DefaultReadTimeout)); err != nil {
			return
		}
		n, remote, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return
		}
		s.requests.Add(1)

		req := append([]byte(nil), buf[:n]...)
		select {
		case s.responseSemaphore <- struct{}{}:
			s.wg.Add(1)
			go s.handleResponse(req, remote)
		default:
			// all slots busy, drop
		}
	}
}

func (s *Server) handleResponse(req []byte, remote *net.UDPAddr) {
	defer s.wg.Done()
	defer func() { <-s.responseSemaphore }()

	reply := s.respond(req)
	if reply == nil {
		return
	}
	_, _ = s.conn.WriteToUDP(reply, remote)
}

// ReplyFunc builds a server header given the transmit timestamp of the
// request, which a well-behaved server copies into the origin field.
type ReplyFunc func(origin sntp.Timestamp) sntp.Reply

// Build turns a ReplyFunc into a Responder. Requests shorter than a header
// are dropped.
func Build(f ReplyFunc) Responder {
	return func(req []byte) []byte {
		origin, ok := sntp.RequestTransmit(req)
		if !ok {
			return nil
		}
		p := f(origin).Packet()
		return p.Bytes()
	}
}

// Echo answers like a healthy server of the given stratum whose clock agrees
// with the local one.
func Echo(stratum byte) Responder {
	return Shifted(stratum, 0)
}

// Shifted answers like a healthy server whose clock runs offset ahead of the
// local one.
func Shifted(stratum byte, offset time.Duration) Responder {
	return Build(func(origin sntp.Timestamp) sntp.Reply {
		return ServerReply(stratum, origin, time.Now().Add(offset))
	})
}

// ServerReply is the reply a healthy server stamped at now would send.
func ServerReply(stratum byte, origin sntp.Timestamp, now time.Time) sntp.Reply {
	ts, err := sntp.ToFixedPoint(now.UnixMilli())
	if err != nil {
		ts = 0
	}
	return sntp.Reply{
		Leap:           sntp.LeapNone,
		Version:        sntp.Version,
		Mode:           sntp.ModeServer,
		Stratum:        stratum,
		Poll:           4,
		Precision:      -20,
		RootDelay:      0x10,
		RootDispersion: 0x10,
		ReferenceID:    refLOCL,
		Reference:      ts,
		Origin:         origin,
		Receive:        ts,
		Transmit:       ts,
	}
}

// WithMode rewrites the mode bits of every reply produced by next.
func WithMode(mode sntp.Mode, next Responder) Responder {
	return func(req []byte) []byte {
		b := next(req)
		if len(b) > 0 {
			b[0] = b[0]&^0x7 | byte(mode)&0x7
		}
		return b
	}
}

// WithOrigin replaces the echoed origin timestamp, as a spoofed or stale
// reply would.
func WithOrigin(origin sntp.Timestamp, next Responder) Responder {
	return func(req []byte) []byte {
		b := next(req)
		if len(b) >= sntp.PacketSize {
			binary.BigEndian.PutUint64(b[originOffset:], uint64(origin))
		}
		return b
	}
}

// Silent never answers.
func Silent() Responder {
	return func([]byte) []byte { return nil }
}

// Sequence answers the n-th request with the n-th responder and repeats the
// last one once the list is used up.
func Sequence(rs ...Responder) Responder {
	var n atomic.Int64
	return func(req []byte) []byte {
		if len(rs) == 0 {
			return nil
		}
		i := int(n.Add(1) - 1)
		if i >= len(rs) {
			i = len(rs) - 1
		}
		return rs[i](req)
	}
}
