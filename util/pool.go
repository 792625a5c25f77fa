package util

import "sync"

// BufPool provides reusable chunk buffers for data-channel transfers,
// reducing GC pressure when many files are moved in one session.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// GetBuf retrieves a buffer from the pool.  Callers must return it
// with [PutBuf] when finished.
func GetBuf() *[]byte {
	return BufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.  Buffers of any other
// size are dropped.
func PutBuf(buf *[]byte) {
	if buf == nil || len(*buf) != DefaultBufSize {
		return
	}
	BufPool.Put(buf)
}

// ChunkBuf returns a buffer of the requested size, taken from the pool
// when size is the default, and a release func for it.
func ChunkBuf(size int) ([]byte, func()) {
	if size <= 0 || size == DefaultBufSize {
		p := GetBuf()
		return *p, func() { PutBuf(p) }
	}
	return make([]byte, size), func() {}
}
