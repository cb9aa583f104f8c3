package utils

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// Buffers that grew past this size are dropped instead of pooled.
const maxPooledBuffer = 8 << 20

var bufPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// AcquireBuffer returns an empty buffer from the pool.
func AcquireBuffer() *bytes.Buffer {
	b := bufPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

// ReleaseBuffer returns b to the pool. b must not be used afterwards.
func ReleaseBuffer(b *bytes.Buffer) {
	if b == nil || b.Cap() > maxPooledBuffer {
		return
	}
	bufPool.Put(b)
}

// ctxReader fails the next Read once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// DrainReader reads r to EOF into a pooled buffer, giving up as soon as ctx
// ends. sizeHint, when positive, pre-sizes the buffer. Hand the buffer back
// with ReleaseBuffer once its bytes were copied out.
func DrainReader(ctx context.Context, r io.Reader, sizeHint int) (*bytes.Buffer, error) {
	buf := AcquireBuffer()
	if sizeHint > 0 {
		buf.Grow(sizeHint)
	}
	if _, err := buf.ReadFrom(ctxReader{ctx: ctx, r: r}); err != nil {
		ReleaseBuffer(buf)
		return nil, err
	}
	return buf, nil
}

// ErrTooLarge is returned by LimitedReader once more than Max bytes exist.
var ErrTooLarge = errors.New("input exceeds size limit")

// LimitedReader reads at most Max bytes from R. If R has more, the read after
// the last allowed byte fails with ErrTooLarge. Max <= 0 disables the limit.
type LimitedReader struct {
	R   io.Reader
	Max int64
	n   int64
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.Max <= 0 {
		return l.R.Read(p)
	}
	if l.n >= l.Max {
		var extra [1]byte
		if n, _ := l.R.Read(extra[:]); n > 0 {
			return 0, ErrTooLarge
		}
		return 0, io.EOF
	}
	if remain := l.Max - l.n; int64(len(p)) > remain {
		p = p[:remain]
	}
	n, err := l.R.Read(p)
	l.n += int64(n)
	return n, err
}
