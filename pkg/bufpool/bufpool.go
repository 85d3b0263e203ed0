// Package bufpool lends the buffers used to stream element contents, so
// copying core dumps into problem directories and archives does not
// allocate a fresh buffer per element.
//
//	n, err := bufpool.Copy(dst, src, size)
package bufpool

import (
	"io"
	"sync"
)

// Size classes. Elements up to SmallSize are copied through a small
// buffer; anything larger, typically a core dump, through a large one.
const (
	SmallSize = 32 << 10
	LargeSize = 1 << 20
)

// Pool holds buffers of two size classes.
type Pool struct {
	small     sync.Pool
	large     sync.Pool
	smallSize int
	largeSize int
}

// NewPool creates a pool. Non-positive sizes select the defaults.
func NewPool(smallSize, largeSize int) *Pool {
	if smallSize <= 0 {
		smallSize = SmallSize
	}
	if largeSize <= 0 {
		largeSize = LargeSize
	}
	p := &Pool{smallSize: smallSize, largeSize: largeSize}
	p.small.New = func() any {
		buf := make([]byte, p.smallSize)
		return &buf
	}
	p.large.New = func() any {
		buf := make([]byte, p.largeSize)
		return &buf
	}
	return p
}

// Get returns a buffer suited to streaming size bytes. Unknown sizes
// (negative) get a large buffer. The buffer is never shorter than the
// small class.
func (p *Pool) Get(size int64) []byte {
	if size >= 0 && size <= int64(p.smallSize) {
		return *p.small.Get().(*[]byte)
	}
	return *p.large.Get().(*[]byte)
}

// Put returns a buffer obtained from Get. Foreign buffers are dropped.
func (p *Pool) Put(buf []byte) {
	buf = buf[:cap(buf)]
	switch len(buf) {
	case p.smallSize:
		p.small.Put(&buf)
	case p.largeSize:
		p.large.Put(&buf)
	}
}

// Copy is io.CopyBuffer with a pooled buffer sized for size bytes.
func (p *Pool) Copy(dst io.Writer, src io.Reader, size int64) (int64, error) {
	buf := p.Get(size)
	defer p.Put(buf)
	return io.CopyBuffer(dst, src, buf)
}

var globalPool = NewPool(0, 0)

// Get returns a buffer from the global pool.
func Get(size int64) []byte { return globalPool.Get(size) }

// Put returns a buffer to the global pool.
func Put(buf []byte) { globalPool.Put(buf) }

// Copy streams src to dst through a buffer of the global pool.
func Copy(dst io.Writer, src io.Reader, size int64) (int64, error) {
	return globalPool.Copy(dst, src, size)
}
