// Package memory pools the buffers used to read API responses.
package memory

import (
	"bytes"
	"io"
	"sync"
)

// DefaultMaxPooled is the largest buffer capacity NewBufferPool keeps.
const DefaultMaxPooled = 64 * 1024

// BufferPool manages a pool of reusable bytes.Buffer instances
type BufferPool struct {
	pool      sync.Pool
	maxPooled int
}

// NewBufferPool creates a new buffer pool
func NewBufferPool() *BufferPool {
	return NewBufferPoolWithLimit(DefaultMaxPooled)
}

// NewBufferPoolWithLimit creates a pool that drops buffers grown beyond
// maxPooled bytes instead of keeping them.
func NewBufferPoolWithLimit(maxPooled int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				return &bytes.Buffer{}
			},
		},
		maxPooled: maxPooled,
	}
}

// Get retrieves an empty buffer from the pool
func (bp *BufferPool) Get() *bytes.Buffer {
	buf := bp.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns a buffer to the pool for reuse. The caller must not touch buf
// afterwards.
func (bp *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > bp.maxPooled {
		return
	}
	bp.pool.Put(buf)
}

// ReadLimited reads r into buf, stopping after limit+1 bytes. It reports
// whether r held more than limit bytes.
func ReadLimited(buf *bytes.Buffer, r io.Reader, limit int64) (exceeded bool, err error) {
	n, err := buf.ReadFrom(io.LimitReader(r, limit+1))
	if err != nil {
		return false, err
	}
	return n > limit, nil
}
