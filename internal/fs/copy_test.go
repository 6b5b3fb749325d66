package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestCopyChunks(t *testing.T) {
	src := strings.Repeat("0123456789", 1000)

	var buf bytes.Buffer
	n, err := CopyChunks(context.Background(), &buf, strings.NewReader(src), 7)
	if err != nil {
		t.Fatalf("CopyChunks() error = %v", err)
	}
	if n != int64(len(src)) || buf.String() != src {
		t.Errorf("CopyChunks() copied %d bytes, content match = %v", n, buf.String() == src)
	}
}

func TestCopyChunks_ReadError(t *testing.T) {
	boom := errors.New("device gone")
	r := io.MultiReader(strings.NewReader("abc"), &failingReader{err: boom})

	var buf bytes.Buffer
	if _, err := CopyChunks(context.Background(), &buf, r, 0); !errors.Is(err, boom) {
		t.Errorf("CopyChunks() error = %v, want %v", err, boom)
	}
}

func TestCopyChunks_BlockedReadIsBounded(t *testing.T) {
	// A pipe nobody writes to blocks Read forever.
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := CopyChunks(ctx, io.Discard, r, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("CopyChunks() error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("CopyChunks() returned after %v", elapsed)
	}
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }
