// Package payload joins and splits the compressed image data carried by runs
// of IDAT or fdAT chunks, and drives the zlib engine over it.
package payload

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/deepteams/apng/internal/container"
)

// NextFunc returns the payload of the next data chunk of the current run, or
// io.EOF when the run has ended. Any other error aborts decoding.
type NextFunc func() ([]byte, error)

// source presents a run of data chunks as one contiguous byte stream. It
// implements io.ByteReader so the inflater never needs its own read-ahead
// buffer.
type source struct {
	next NextFunc
	buf  []byte
	err  error // first error returned by next, io.EOF at the end of the run
}

func (s *source) fill() bool {
	for len(s.buf) == 0 && s.err == nil {
		s.buf, s.err = s.next()
	}
	return len(s.buf) > 0
}

func (s *source) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !s.fill() {
		return 0, s.err
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *source) ReadByte() (byte, error) {
	if !s.fill() {
		return 0, s.err
	}
	b := s.buf[0]
	s.buf = s.buf[1:]
	return b, nil
}

// Reader inflates the compressed stream of one image. A Reader may be reused
// for successive images with Reset, which keeps the inflater's buffers.
type Reader struct {
	src    source
	zr     io.ReadCloser
	opened bool
	err    error
}

// NewReader returns a Reader pulling compressed bytes from next.
func NewReader(next NextFunc) *Reader {
	r := &Reader{}
	r.Reset(next)
	return r
}

// Reset starts a new compressed stream pulled from next.
func (r *Reader) Reset(next NextFunc) {
	r.src = source{next: next}
	r.opened = false
	r.err = nil
}

func (r *Reader) open() error {
	if r.opened {
		return nil
	}
	r.opened = true
	if r.zr == nil {
		zr, err := zlib.NewReader(&r.src)
		if err != nil {
			return err
		}
		r.zr = zr
		return nil
	}
	return r.zr.(zlib.Resetter).Reset(&r.src, nil)
}

// ReadFull fills p with decompressed bytes. A run that ends before p is full
// fails with ErrTruncatedStream; a corrupt stream fails with ErrDecompression.
func (r *Reader) ReadFull(p []byte) error {
	if r.err != nil {
		return r.err
	}
	if len(p) == 0 {
		return nil
	}
	if err := r.readFull(p); err != nil {
		r.err = r.classify(err)
		return r.err
	}
	return nil
}

func (r *Reader) readFull(p []byte) error {
	if err := r.open(); err != nil {
		return err
	}
	_, err := io.ReadFull(r.zr, p)
	return err
}

// Finish consumes the rest of the compressed stream, verifying its checksum,
// then drains any remaining data chunks of the run. Decompressed bytes beyond
// what the image needs are ignored.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	err := r.open()
	if err == nil {
		_, err = io.Copy(io.Discard, r.zr)
	}
	if err == nil {
		for r.src.err == nil {
			_, r.src.err = r.src.next()
		}
		if r.src.err != io.EOF {
			err = r.src.err
		}
	}
	if err != nil {
		r.err = r.classify(err)
		return r.err
	}
	return nil
}

// classify maps inflater failures onto the codec's error taxonomy. Errors
// raised by the chunk source itself (a bad CRC, an out-of-order chunk) are
// returned unchanged.
func (r *Reader) classify(err error) error {
	if r.src.err != nil && r.src.err != io.EOF {
		return r.src.err
	}
	var corrupt flate.CorruptInputError
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: compressed image data ended early", container.ErrTruncatedStream)
	case errors.Is(err, zlib.ErrChecksum), errors.Is(err, zlib.ErrHeader),
		errors.Is(err, zlib.ErrDictionary), errors.As(err, &corrupt):
		return fmt.Errorf("%w: %w", container.ErrDecompression, err)
	}
	return fmt.Errorf("%w: %v", container.ErrDecompression, err)
}
