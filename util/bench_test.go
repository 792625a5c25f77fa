package util

import (
	"bytes"
	"context"
	"io"
	"testing"
)

// BenchmarkCopyChunks measures the chunk loop that carries every
// download and upload.
func BenchmarkCopyChunks(b *testing.B) {
	payload := bytes.Repeat([]byte("X"), 4*DefaultBufSize)
	buf, release := ChunkBuf(DefaultBufSize)
	defer release()

	b.SetBytes(int64(len(payload)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		CopyChunks(context.Background(), io.Discard, bytes.NewReader(payload), buf, nil)
	}
}

// BenchmarkBufPool measures the allocation advantage of sync.Pool
// buffer reuse versus fresh allocation.
func BenchmarkBufPool(b *testing.B) {
	b.Run("pool", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := GetBuf()
			_ = (*buf)[0]
			PutBuf(buf)
		}
	})
	b.Run("alloc", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := make([]byte, DefaultBufSize)
			_ = buf[0]
		}
	})
}
