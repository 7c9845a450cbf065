package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// ByteOrder is the byte order of every integer on the wire. Peers must agree
// on it; the format carries no marker.
var ByteOrder = binary.LittleEndian

// Writer encodes the framing primitives onto a byte stream.
type Writer struct {
	w   io.Writer
	buf [8]byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) WriteUint8(v byte) error {
	w.buf[0] = v
	return w.write(w.buf[:1])
}

func (w *Writer) WriteInt16(v int16) error {
	ByteOrder.PutUint16(w.buf[:2], uint16(v))
	return w.write(w.buf[:2])
}

func (w *Writer) WriteInt64(v int64) error {
	ByteOrder.PutUint64(w.buf[:8], uint64(v))
	return w.write(w.buf[:8])
}

// WriteASCII writes the bytes of s without a length prefix; the caller
// writes the length separately.
func (w *Writer) WriteASCII(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return fmt.Errorf("%w: byte %d of %q", ErrNonASCII, i, s)
		}
	}
	return w.write([]byte(s))
}

// WriteBytes writes p verbatim.
func (w *Writer) WriteBytes(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return w.write(p)
}

func (w *Writer) write(p []byte) error {
	_, err := w.w.Write(p)
	return streamError(err)
}

// Reader decodes the framing primitives from a byte stream. A read that hits
// the end of the stream, even partway through a value, fails with
// ErrConnectionClosed.
type Reader struct {
	r   io.Reader
	buf [8]byte
}

// NewReader wraps r. Callers reading from a socket should pass a buffered
// reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) ReadUint8() (byte, error) {
	if err := r.fill(1); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

func (r *Reader) ReadInt16() (int16, error) {
	if err := r.fill(2); err != nil {
		return 0, err
	}
	return int16(ByteOrder.Uint16(r.buf[:2])), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	if err := r.fill(8); err != nil {
		return 0, err
	}
	return int64(ByteOrder.Uint64(r.buf[:8])), nil
}

// ReadASCII reads exactly n bytes and returns them as a string.
func (r *Reader) ReadASCII(n int) (string, error) {
	p, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	for i := range p {
		if p[i] >= 0x80 {
			return "", fmt.Errorf("%w: byte %d", ErrNonASCII, i)
		}
	}
	return string(p), nil
}

// ReadBytes reads exactly n bytes into a fresh slice. n == 0 yields nil.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrInvalidFrame, n)
	}
	if n == 0 {
		return nil, nil
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(r.r, p); err != nil {
		return nil, streamError(err)
	}
	return p, nil
}

func (r *Reader) fill(n int) error {
	_, err := io.ReadFull(r.r, r.buf[:n])
	return streamError(err)
}

// streamError folds the different ways a stream can end into
// ErrConnectionClosed, keeping the cause.
func streamError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return err
}
