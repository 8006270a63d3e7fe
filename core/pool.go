package core

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// GenericPool is a generic wrapper around sync.Pool
type GenericPool[T any] struct {
	pool sync.Pool
}

// NewGenericPool creates a new GenericPool with a function to create new items.
func NewGenericPool[T any](newItem func() T) *GenericPool[T] {
	return &GenericPool[T]{
		pool: sync.Pool{
			New: func() interface{} {
				return newItem()
			},
		},
	}
}

// Get retrieves an item from the pool.
func (p *GenericPool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns an item to the pool.
func (p *GenericPool[T]) Put(item T) {
	p.pool.Put(item)
}

// DefaultRecordBufferSize is the starting capacity of pooled WAL payload buffers.
const DefaultRecordBufferSize = 4 * 1024

// maxPooledBufferSize keeps one oversized record from pinning memory in the pool.
const maxPooledBufferSize = 1 << 20

// BufferPool is shared by the WAL and compressors for scratch payload buffers.
var BufferPool = NewBufferPool(DefaultRecordBufferSize)

// bufferPool hands out reset bytes.Buffers and tracks reuse.
type bufferPool struct {
	pool *GenericPool[*bytes.Buffer]

	gets    atomic.Uint64
	created atomic.Uint64
	dropped atomic.Uint64
}

// NewBufferPool creates a new buffer pool whose new buffers start with initialCapacity bytes.
func NewBufferPool(initialCapacity int) *bufferPool {
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	bp := &bufferPool{}
	bp.pool = NewGenericPool(func() *bytes.Buffer {
		bp.created.Add(1)
		return bytes.NewBuffer(make([]byte, 0, initialCapacity))
	})
	return bp
}

// Get retrieves an empty buffer from the pool.
func (bp *bufferPool) Get() *bytes.Buffer {
	bp.gets.Add(1)
	buf := bp.pool.Get()
	buf.Reset()
	return buf
}

// Put returns a buffer to the pool. Buffers that grew past maxPooledBufferSize are dropped.
func (bp *bufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() > maxPooledBufferSize {
		bp.dropped.Add(1)
		return
	}
	buf.Reset()
	bp.pool.Put(buf)
}

// GetMetrics returns the current metrics for the pool.
func (bp *bufferPool) GetMetrics() (gets, created, dropped uint64) {
	return bp.gets.Load(), bp.created.Load(), bp.dropped.Load()
}
