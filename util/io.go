package util

import (
	"context"
	"errors"
	"io"
	"net"
)

// DefaultBufSize is the standard chunk size for data-channel I/O (32 KiB).
const DefaultBufSize = 32 * 1024

// CopyResult describes how a chunked copy ended.  At most one of ReadErr
// and WriteErr is set; both are nil when the source reached EOF and every
// byte was written.
type CopyResult struct {
	Bytes    int64
	ReadErr  error
	WriteErr error
}

// Err returns whichever side failed, or nil.
func (r CopyResult) Err() error {
	if r.ReadErr != nil {
		return r.ReadErr
	}
	return r.WriteErr
}

// CopyChunks moves bytes from src to dst one buffer at a time, in arrival
// order, until src reports EOF or either side fails.  Each chunk is fully
// written before the next read; short writes are retried.  ctx is checked
// between chunks so a cancelled copy stops at a chunk boundary.
//
// onChunk, when non-nil, is called after every chunk with its size.
func CopyChunks(ctx context.Context, dst io.Writer, src io.Reader, buf []byte, onChunk func(n int)) CopyResult {
	var res CopyResult
	for {
		if err := ctx.Err(); err != nil {
			res.ReadErr = err
			return res
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			written, werr := WriteFull(dst, buf[:n])
			res.Bytes += int64(written)
			if werr != nil {
				res.WriteErr = werr
				return res
			}
			if onChunk != nil {
				onChunk(n)
			}
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				res.ReadErr = rerr
			}
			return res
		}
	}
}

// WriteFull writes all of p to w, retrying short writes that come back
// without an error.  A writer that makes no progress at all reports
// [io.ErrShortWrite].
func WriteFull(w io.Writer, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := w.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// IsHarmless returns true for errors that are expected while tearing a
// connection down.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
