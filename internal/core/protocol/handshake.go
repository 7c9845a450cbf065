package protocol

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
)

// Handshake is sent once on every freshly opened connection, in either
// direction. It carries the sender's listen endpoint so the receiver can
// correlate the connection with the reciprocal one.
//
//	addressLength:byte address:ASCII port:int16
//
// Ports above 32767 travel as their two's complement int16 and come back
// unchanged.
type Handshake struct {
	Address string
	Port    uint16
}

// Key identifies the endpoint, e.g. "127.0.0.1:9001".
func (h Handshake) Key() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(int(h.Port)))
}

func (h Handshake) String() string {
	return h.Key()
}

// WriteHandshake encodes h and writes it to w in one call.
func WriteHandshake(w io.Writer, h Handshake) error {
	if len(h.Address) == 0 || len(h.Address) > math.MaxUint8 {
		return fmt.Errorf("%w: address length %d", ErrInvalidHandshake, len(h.Address))
	}

	var buf bytes.Buffer
	enc := NewWriter(&buf)
	if err := enc.WriteUint8(byte(len(h.Address))); err != nil {
		return err
	}
	if err := enc.WriteASCII(h.Address); err != nil {
		return err
	}
	if err := enc.WriteInt16(int16(h.Port)); err != nil {
		return err
	}

	_, err := w.Write(buf.Bytes())
	return streamError(err)
}

// ReadHandshake decodes a handshake from r.
func ReadHandshake(r *Reader) (Handshake, error) {
	n, err := r.ReadUint8()
	if err != nil {
		return Handshake{}, err
	}
	if n == 0 {
		return Handshake{}, fmt.Errorf("%w: empty address", ErrInvalidHandshake)
	}
	address, err := r.ReadASCII(int(n))
	if err != nil {
		return Handshake{}, err
	}
	port, err := r.ReadInt16()
	if err != nil {
		return Handshake{}, err
	}
	return Handshake{Address: address, Port: uint16(port)}, nil
}
