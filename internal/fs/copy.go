package fs

import (
	"context"
	"io"
)

// DefaultChunkSize is the buffer used by CopyChunks callers that have no
// reason to pick another.
const DefaultChunkSize = 64 * 1024

// CopyChunks copies r to w in chunks of size bytes and checks ctx between
// chunks. A read or write still blocked when ctx ends is abandoned: the
// call returns ctx.Err() at once and the copying goroutine exits when the
// blocked call does. Callers must not reuse w after an error.
func CopyChunks(ctx context.Context, w io.Writer, r io.Reader, size int) (int64, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}

	type result struct {
		n   int64
		err error
	}
	done := make(chan result, 1)

	go func() {
		var n int64
		buf := make([]byte, size)
		for {
			if err := ctx.Err(); err != nil {
				done <- result{n, err}
				return
			}
			m, rerr := r.Read(buf)
			if m > 0 {
				if _, werr := w.Write(buf[:m]); werr != nil {
					done <- result{n, werr}
					return
				}
				n += int64(m)
			}
			if rerr == io.EOF {
				done <- result{n, nil}
				return
			}
			if rerr != nil {
				done <- result{n, rerr}
				return
			}
		}
	}()

	select {
	case res := <-done:
		return res.n, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
