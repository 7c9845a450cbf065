package protocol

import (
	"bytes"

	"github.com/zeusync/meshsync/pkg/generic"
)

// maxPooledBuffer keeps oversized frame buffers out of the pool.
const maxPooledBuffer = 64 * 1024

var bufferPool = generic.NewResettablePool(
	func() *bytes.Buffer {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
	func(buf *bytes.Buffer) bool {
		if buf.Cap() > maxPooledBuffer {
			return false
		}
		buf.Reset()
		return true
	},
)

// GetBuffer returns an empty buffer from the frame buffer pool.
func GetBuffer() *bytes.Buffer {
	return bufferPool.Get()
}

// PutBuffer hands buf back to the pool. buf must not be used afterwards.
func PutBuffer(buf *bytes.Buffer) {
	if buf != nil {
		bufferPool.Put(buf)
	}
}

// MarshalFrame encodes f into a freshly allocated byte slice, using a pooled
// buffer as scratch space.
func MarshalFrame(f *Frame) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if err := EncodeFrame(buf, f); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
