// Package pool provides reusable byte buffers for streaming file content
// through hashes, archive writers and remote files.
package pool

import (
	"fmt"
	"io"
	"sync"
)

// CopyBufferSize is the buffer size of Copy.
const CopyBufferSize = 64 * 1024

// Copy is shared by everything that streams file content.
var Copy = NewFixedBuffer(CopyBufferSize)

// FixedBufferPool hands out buffers of one size.
type FixedBufferPool struct {
	size int
	pool sync.Pool
}

// NewFixedBuffer creates a pool of size-byte buffers. size must be positive.
func NewFixedBuffer(size int) *FixedBufferPool {
	if size <= 0 {
		panic(fmt.Sprintf("buffer size %d must be positive", size))
	}
	return &FixedBufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Size returns the length of the buffers handed out by Get.
func (fp *FixedBufferPool) Size() int {
	return fp.size
}

func (fp *FixedBufferPool) Get() *[]byte {
	return fp.pool.Get().(*[]byte)
}

// Put returns b to the pool. Buffers of another capacity are dropped.
func (fp *FixedBufferPool) Put(b *[]byte) {
	if b == nil || cap(*b) != fp.size {
		return
	}
	*b = (*b)[:fp.size]
	fp.pool.Put(b)
}

// CopyBuffer is io.CopyBuffer with a pooled buffer.
func (fp *FixedBufferPool) CopyBuffer(dst io.Writer, src io.Reader) (int64, error) {
	bufPtr := fp.Get()
	defer fp.Put(bufPtr)
	return io.CopyBuffer(dst, src, *bufPtr)
}
