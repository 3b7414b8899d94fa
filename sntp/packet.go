// Package sntp implements the client side of the simple network time
// protocol: the 48 byte packet layout, the 64-bit fixed-point timestamp
// format and the delay/offset arithmetic of a single exchange.
package sntp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Mode is the association mode carried in the low three bits of byte 0.
type Mode byte

const (
	ModeReserved Mode = 0 + iota
	ModeSymmetricActive
	ModeSymmetricPassive
	ModeClient
	ModeServer
	ModeBroadcast
	ModeControlMessage
	ModeReservedPrivate
)

// LeapIndicator is the two bit leap warning in byte 0.
type LeapIndicator byte

const (
	LeapNone LeapIndicator = 0 + iota
	LeapAddSecond
	LeapDelSecond
	LeapNotInSync
)

const (
	// PacketSize is the length of an SNTP header without extensions.
	PacketSize = 48
	// Version is the protocol version written into requests.
	Version = 4
	// Port is the well known service port.
	Port = "123"

	offStratum        = 1
	offPoll           = 2
	offPrecision      = 3
	offRootDelay      = 4
	offRootDispersion = 8
	offReferenceID    = 12
	offReference      = 16
	offOrigin         = 24
	offReceive        = 32
	offTransmit       = 40
)

// Validation failures reported by DecodeReply.
var (
	ErrValidation       = errors.New("invalid reply")
	ErrShortPacket      = errors.New("short packet")
	ErrInvalidMode      = errors.New("invalid mode")
	ErrInvalidStratum   = errors.New("invalid stratum")
	ErrInvalidVersion   = errors.New("invalid version")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// ValidationError carries the offending field value of a rejected reply.
// errors.Is matches both ErrValidation and the specific Kind.
type ValidationError struct {
	Kind  error
	Value uint64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %v (%d)", ErrValidation, e.Kind, e.Value)
}

// Unwrap exposes the kind and the generic validation sentinel.
func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Kind}
}

func invalid(kind error, v uint64) error {
	return &ValidationError{Kind: kind, Value: v}
}

// Packet is a raw SNTP header.
type Packet [PacketSize]byte

// Bytes returns the packet as a slice suitable for a socket write.
func (p *Packet) Bytes() []byte {
	return p[:]
}

// EncodeRequest builds a client request: LI 0, version 4, mode 3 and the
// given transmit timestamp. Every other field is zero.
func EncodeRequest(transmit Timestamp) Packet {
	var p Packet
	p[0] = liVnMode(LeapNone, Version, ModeClient)
	binary.BigEndian.PutUint64(p[offTransmit:], uint64(transmit))
	return p
}

func liVnMode(li LeapIndicator, vn byte, m Mode) byte {
	return byte(li)<<6 | (vn&0x7)<<3 | byte(m)&0x7
}

// Reply is a decoded server header.
type Reply struct {
	Leap           LeapIndicator
	Version        byte
	Mode           Mode
	Stratum        byte
	Poll           int8
	Precision      int8
	RootDelay      uint32
	RootDispersion uint32
	ReferenceID    uint32
	Reference      Timestamp
	Origin         Timestamp
	Receive        Timestamp
	Transmit       Timestamp
}

// DecodeReply parses and validates a server reply. Checks run in a fixed
// order: length, mode, stratum, version, transmit timestamp.
func DecodeReply(b []byte) (Reply, error) {
	if len(b) < PacketSize {
		return Reply{}, invalid(ErrShortPacket, uint64(len(b)))
	}

	r := Reply{
		Leap:           LeapIndicator(b[0] >> 6),
		Version:        (b[0] >> 3) & 0x7,
		Mode:           Mode(b[0] & 0x7),
		Stratum:        b[offStratum],
		Poll:           int8(b[offPoll]),
		Precision:      int8(b[offPrecision]),
		RootDelay:      binary.BigEndian.Uint32(b[offRootDelay:]),
		RootDispersion: binary.BigEndian.Uint32(b[offRootDispersion:]),
		ReferenceID:    binary.BigEndian.Uint32(b[offReferenceID:]),
		Reference:      Timestamp(binary.BigEndian.Uint64(b[offReference:])),
		Origin:         Timestamp(binary.BigEndian.Uint64(b[offOrigin:])),
		Receive:        Timestamp(binary.BigEndian.Uint64(b[offReceive:])),
		Transmit:       Timestamp(binary.BigEndian.Uint64(b[offTransmit:])),
	}

	if r.Mode != ModeServer {
		return Reply{}, invalid(ErrInvalidMode, uint64(r.Mode))
	}
	if r.Stratum == 0 {
		return Reply{}, invalid(ErrInvalidStratum, 0)
	}
	if r.Version < 1 || r.Version > 4 {
		return Reply{}, invalid(ErrInvalidVersion, uint64(r.Version))
	}
	if r.Transmit.Seconds() < UnixEpochOffset {
		return Reply{}, invalid(ErrInvalidTimestamp, uint64(r.Transmit.Seconds()))
	}
	return r, nil
}

// Packet encodes the reply back into wire form. Used by servers and tests.
func (r Reply) Packet() Packet {
	var p Packet
	p[0] = liVnMode(r.Leap, r.Version, r.Mode)
	p[offStratum] = r.Stratum
	p[offPoll] = byte(r.Poll)
	p[offPrecision] = byte(r.Precision)
	binary.BigEndian.PutUint32(p[offRootDelay:], r.RootDelay)
	binary.BigEndian.PutUint32(p[offRootDispersion:], r.RootDispersion)
	binary.BigEndian.PutUint32(p[offReferenceID:], r.ReferenceID)
	binary.BigEndian.PutUint64(p[offReference:], uint64(r.Reference))
	binary.BigEndian.PutUint64(p[offOrigin:], uint64(r.Origin))
	binary.BigEndian.PutUint64(p[offReceive:], uint64(r.Receive))
	binary.BigEndian.PutUint64(p[offTransmit:], uint64(r.Transmit))
	return p
}

// RequestTransmit extracts the transmit timestamp of a request packet.
func RequestTransmit(b []byte) (Timestamp, bool) {
	if len(b) < PacketSize {
		return 0, false
	}
	return Timestamp(binary.BigEndian.Uint64(b[offTransmit:])), true
}
