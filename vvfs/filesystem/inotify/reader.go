package inotify

import (
	"fmt"
	"io"
)

// DefaultBufferSize is the read buffer capacity. It holds at least one record
// with a maximal name (16 + NAME_MAX + 1 bytes) many times over.
const DefaultBufferSize = 8192

// MinBufferSize is the smallest buffer that can hold a record with a
// NAME_MAX name, the kernel refuses reads smaller than that with EINVAL.
const MinBufferSize = HeaderSize + 256

// Reader performs blocking reads from the notification stream into a
// reusable buffer.
type Reader struct {
	r   io.Reader
	buf []byte
	err error
}

// NewReader returns a Reader with a buffer of the given size. A size of zero
// selects DefaultBufferSize.
func NewReader(r io.Reader, size int) (*Reader, error) {
	if r == nil {
		return nil, fmt.Errorf("nil stream")
	}
	if size == 0 {
		size = DefaultBufferSize
	}
	if size < MinBufferSize {
		return nil, fmt.Errorf("buffer size %d below minimum %d", size, MinBufferSize)
	}
	return &Reader{r: r, buf: make([]byte, size)}, nil
}

// Next blocks for one read and returns the bytes delivered by it. The slice
// aliases the internal buffer and is only valid until the following call.
// A zero-length read is reported as io.EOF. Any error ends the stream, Next
// does not retry.
func (r *Reader) Next() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	n, err := r.r.Read(r.buf)
	if n > 0 {
		// bytes delivered alongside an error are still handed out, the
		// error surfaces on the next call
		r.err = err
		return r.buf[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	r.err = err
	return nil, err
}
