package utils

import "sync"

// streamBufferSize is the copy buffer used when relaying response bodies.
// 32KB keeps SSE latency low while staying efficient for bulk bodies.
const streamBufferSize = 32 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, streamBufferSize)
		return &buf
	},
}

// GetBuffer retrieves a copy buffer from the pool.
func GetBuffer() []byte {
	return *(bufferPool.Get().(*[]byte))
}

// PutBuffer returns a buffer to the pool. Buffers of a different size are
// dropped.
func PutBuffer(buf []byte) {
	if cap(buf) != streamBufferSize {
		return
	}
	buf = buf[:streamBufferSize]
	bufferPool.Put(&buf)
}
