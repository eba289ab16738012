package payload

import (
	"fmt"

	"github.com/klauspost/compress/zlib"

	"github.com/deepteams/apng/internal/container"
)

// EmitFunc receives one chunk-sized slice of compressed data. The slice is
// only valid for the duration of the call.
type EmitFunc func(data []byte) error

// splitter buffers compressed output and emits it in slices of at most max
// bytes. Splitting is pure byte slicing; the zlib stream does not care where
// chunk boundaries fall.
type splitter struct {
	buf  []byte
	max  int
	emit EmitFunc
	n    int // chunks emitted
}

func (s *splitter) Write(p []byte) (int, error) {
	written := len(p)
	for len(p) > 0 {
		room := s.max - len(s.buf)
		take := min(room, len(p))
		s.buf = append(s.buf, p[:take]...)
		p = p[take:]
		if len(s.buf) == s.max {
			if err := s.flush(); err != nil {
				return written - len(p), err
			}
		}
	}
	return written, nil
}

func (s *splitter) flush() error {
	if len(s.buf) == 0 {
		return nil
	}
	err := s.emit(s.buf)
	s.buf = s.buf[:0]
	s.n++
	return err
}

// Writer deflates the filtered scanlines of one image and hands the
// compressed stream to an EmitFunc in pieces no larger than the configured
// chunk size. No goroutines are involved: every emit happens inside Write or
// Close.
type Writer struct {
	zw    *zlib.Writer
	split splitter
	level int
}

// NewWriter returns a Writer compressing at level (a zlib level constant) and
// emitting chunks of at most maxChunk bytes; maxChunk of 0 means
// container.DefaultDataChunkSize.
func NewWriter(level, maxChunk int, emit EmitFunc) (*Writer, error) {
	if maxChunk <= 0 {
		maxChunk = container.DefaultDataChunkSize
	}
	if maxChunk > container.MaxChunkLength-container.SequenceSize {
		return nil, fmt.Errorf("%w: data chunk size %d", container.ErrChunkTooLarge, maxChunk)
	}
	w := &Writer{level: level, split: splitter{max: maxChunk, emit: emit}}
	w.split.buf = make([]byte, 0, min(maxChunk, 1<<16))
	zw, err := zlib.NewWriterLevel(&w.split, level)
	if err != nil {
		return nil, err
	}
	w.zw = zw
	return w, nil
}

// Write compresses p.
func (w *Writer) Write(p []byte) (int, error) {
	return w.zw.Write(p)
}

// Close finishes the zlib stream and emits the remaining bytes. It returns
// the number of chunks emitted for this image.
func (w *Writer) Close() (int, error) {
	if err := w.zw.Close(); err != nil {
		return w.split.n, err
	}
	err := w.split.flush()
	return w.split.n, err
}

// Reset prepares the Writer for the next image, emitting through emit.
func (w *Writer) Reset(emit EmitFunc) {
	w.split.buf = w.split.buf[:0]
	w.split.emit = emit
	w.split.n = 0
	w.zw.Reset(&w.split)
}
