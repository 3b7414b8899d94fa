package sntp

import (
	"errors"
	"math/big"
)

// ErrOverflow reports arithmetic that does not fit the working integer width.
var ErrOverflow = errors.New("arithmetic overflow")

// Exchange holds the four timestamps of one round trip, in milliseconds
// since the Unix epoch: T1 local send, T2 server receive, T3 server
// transmit, T4 local receive.
type Exchange struct {
	T1, T2, T3, T4 int64
}

// Sample is the outcome of an exchange.
type Sample struct {
	// Delay is the round trip minus the server's processing time.
	Delay int64
	// Offset is how far the local clock is behind the server (positive means
	// the local clock is slow).
	Offset int64
	// LocalMidpoint is the local instant halfway through the round trip.
	LocalMidpoint int64
}

// Monotonic reports whether the local clock did not step backwards between
// send and receive.
func (e Exchange) Monotonic() bool {
	return e.T1 <= e.T4
}

// Sample computes delay and offset of the exchange.
func (e Exchange) Sample() (Sample, error) {
	return Compute(e.T1, e.T2, e.T3, e.T4)
}

// Compute returns
//
//	delay  = (t4 - t1) - (t3 - t2)
//	offset = ((t2 - t1) + (t3 - t4)) / 2
//
// evaluated without intermediate wraparound.
func Compute(t1, t2, t3, t4 int64) (Sample, error) {
	mid, err := Midpoint(t1, t4)
	if err != nil {
		return Sample{}, err
	}

	b1, b2, b3, b4 := big.NewInt(t1), big.NewInt(t2), big.NewInt(t3), big.NewInt(t4)

	delay := new(big.Int).Sub(b4, b1)
	delay.Sub(delay, new(big.Int).Sub(b3, b2))

	offset := new(big.Int).Sub(b2, b1)
	offset.Add(offset, new(big.Int).Sub(b3, b4))
	offset.Quo(offset, big.NewInt(2))

	if !delay.IsInt64() || !offset.IsInt64() {
		return Sample{}, ErrOverflow
	}
	return Sample{Delay: delay.Int64(), Offset: offset.Int64(), LocalMidpoint: mid}, nil
}

// AddMillis adds two millisecond quantities, failing instead of wrapping.
func AddMillis(a, b int64) (int64, error) {
	s := a + b
	// signed overflow: operands share a sign the result does not
	if (a >= 0) == (b >= 0) && (s >= 0) != (a >= 0) {
		return 0, ErrOverflow
	}
	return s, nil
}

// Midpoint averages two timestamps. The sum is checked explicitly.
func Midpoint(a, b int64) (int64, error) {
	sum, err := AddMillis(a, b)
	if err != nil {
		return 0, err
	}
	return sum / 2, nil
}
