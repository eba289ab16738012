package payload

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/deepteams/apng/internal/container"
)

// chunked returns a NextFunc serving the given slices then io.EOF.
func chunked(parts ...[]byte) NextFunc {
	return func() ([]byte, error) {
		if len(parts) == 0 {
			return nil, io.EOF
		}
		p := parts[0]
		parts = parts[1:]
		return p, nil
	}
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(data)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func split(b []byte, n int) [][]byte {
	var out [][]byte
	for len(b) > n {
		out = append(out, b[:n])
		b = b[n:]
	}
	return append(out, b)
}

func TestReaderAcrossChunkBoundaries(t *testing.T) {
	raw := make([]byte, 5000)
	rand.New(rand.NewSource(1)).Read(raw[:2500])
	z := compress(t, raw)

	for _, size := range []int{1, 7, 100, len(z)} {
		parts := split(z, size)
		// Empty chunks in the run are legal and carry nothing.
		parts = append([][]byte{{}}, parts...)
		r := NewReader(chunked(parts...))
		got := make([]byte, len(raw))
		if err := r.ReadFull(got[:1000]); err != nil {
			t.Fatalf("size %d: ReadFull: %v", size, err)
		}
		if err := r.ReadFull(got[1000:]); err != nil {
			t.Fatalf("size %d: ReadFull: %v", size, err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("size %d: data mismatch", size)
		}
		if err := r.Finish(); err != nil {
			t.Fatalf("size %d: Finish: %v", size, err)
		}
	}
}

func TestReaderTruncated(t *testing.T) {
	raw := bytes.Repeat([]byte("scanline"), 200)
	z := compress(t, raw)

	// Compressed stream cut short.
	r := NewReader(chunked(z[:len(z)/2]))
	err := r.ReadFull(make([]byte, len(raw)))
	if !errors.Is(err, container.ErrTruncatedStream) {
		t.Fatalf("cut stream: expected ErrTruncatedStream, got %v", err)
	}
	if err2 := r.ReadFull(make([]byte, 1)); err2 != err {
		t.Fatalf("error not sticky: %v", err2)
	}

	// Complete stream that holds fewer bytes than requested.
	r = NewReader(chunked(z))
	if err := r.ReadFull(make([]byte, len(raw)+1)); !errors.Is(err, container.ErrTruncatedStream) {
		t.Fatalf("short stream: expected ErrTruncatedStream, got %v", err)
	}

	// No data chunks at all.
	r = NewReader(chunked())
	if err := r.ReadFull(make([]byte, 1)); !errors.Is(err, container.ErrTruncatedStream) {
		t.Fatalf("empty run: expected ErrTruncatedStream, got %v", err)
	}
}

func TestReaderCorrupt(t *testing.T) {
	raw := bytes.Repeat([]byte{1, 2, 3}, 100)
	z := compress(t, raw)

	bad := append([]byte(nil), z...)
	bad[0] = 0x00 // not a deflate zlib header
	r := NewReader(chunked(bad))
	if err := r.ReadFull(make([]byte, len(raw))); !errors.Is(err, container.ErrDecompression) {
		t.Fatalf("bad header: expected ErrDecompression, got %v", err)
	}

	bad = append([]byte(nil), z...)
	bad[len(bad)-1] ^= 0xff // Adler-32
	r = NewReader(chunked(bad))
	if err := r.ReadFull(make([]byte, len(raw))); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if err := r.Finish(); !errors.Is(err, container.ErrDecompression) {
		t.Fatalf("bad checksum: expected ErrDecompression, got %v", err)
	}
}

func TestReaderPassesSourceErrors(t *testing.T) {
	z := compress(t, make([]byte, 100))
	calls := 0
	next := func() ([]byte, error) {
		calls++
		if calls == 1 {
			return z[:3], nil
		}
		return nil, container.ErrCorruptChunk
	}
	err := NewReader(next).ReadFull(make([]byte, 100))
	if !errors.Is(err, container.ErrCorruptChunk) {
		t.Fatalf("expected ErrCorruptChunk, got %v", err)
	}
}

func TestReaderReset(t *testing.T) {
	a := compress(t, []byte("first image"))
	b := compress(t, []byte("second"))
	r := NewReader(chunked(a))
	got := make([]byte, 11)
	if err := r.ReadFull(got); err != nil || string(got) != "first image" {
		t.Fatalf("first: %q %v", got, err)
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	r.Reset(chunked(b[:4], b[4:]))
	got = make([]byte, 6)
	if err := r.ReadFull(got); err != nil || string(got) != "second" {
		t.Fatalf("second: %q %v", got, err)
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
}

func TestWriterSplitsChunks(t *testing.T) {
	raw := make([]byte, 20000)
	rand.New(rand.NewSource(2)).Read(raw)

	var parts [][]byte
	emit := func(p []byte) error {
		parts = append(parts, append([]byte(nil), p...))
		return nil
	}
	w, err := NewWriter(zlib.BestSpeed, 1000, emit)
	if err != nil {
		t.Fatal(err)
	}
	w.Write(raw[:7])
	w.Write(raw[7:])
	n, err := w.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n != len(parts) || n < 2 {
		t.Fatalf("emitted %d chunks, reported %d", len(parts), n)
	}
	for i, p := range parts {
		if len(p) > 1000 || len(p) == 0 {
			t.Fatalf("chunk %d has %d bytes", i, len(p))
		}
		if i < len(parts)-1 && len(p) != 1000 {
			t.Fatalf("non-final chunk %d has %d bytes", i, len(p))
		}
	}

	r := NewReader(chunked(parts...))
	got := make([]byte, len(raw))
	if err := r.ReadFull(got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatal("round trip mismatch")
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
}

func TestWriterReset(t *testing.T) {
	var first, second bytes.Buffer
	w, err := NewWriter(zlib.DefaultCompression, 0, func(p []byte) error {
		first.Write(p)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("one"))
	w.Close()
	w.Reset(func(p []byte) error {
		second.Write(p)
		return nil
	})
	w.Write([]byte("two"))
	if n, err := w.Close(); err != nil || n != 1 {
		t.Fatalf("Close = %d, %v", n, err)
	}
	for _, tt := range []struct {
		buf  *bytes.Buffer
		want string
	}{{&first, "one"}, {&second, "two"}} {
		zr, err := zlib.NewReader(tt.buf)
		if err != nil {
			t.Fatal(err)
		}
		got, err := io.ReadAll(zr)
		if err != nil || string(got) != tt.want {
			t.Fatalf("got %q %v, want %q", got, err, tt.want)
		}
	}
}

func TestWriterEmitError(t *testing.T) {
	boom := errors.New("sink failed")
	w, _ := NewWriter(zlib.NoCompression, 16, func([]byte) error { return boom })
	w.Write(make([]byte, 100))
	if _, err := w.Close(); !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestNewWriterRejectsHugeChunks(t *testing.T) {
	_, err := NewWriter(zlib.BestSpeed, container.MaxChunkLength, func([]byte) error { return nil })
	if !errors.Is(err, container.ErrChunkTooLarge) {
		t.Fatalf("expected ErrChunkTooLarge, got %v", err)
	}
}
