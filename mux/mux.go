package mux

import (
	"errors"
	"io"

	"github.com/deepteams/apng/internal/container"
)

// ErrMuxerClosed is returned by Write after Close.
var ErrMuxerClosed = errors.New("apng: muxer closed")

// Muxer writes typed chunks to a PNG/APNG stream. It emits the signature
// before the first chunk and validates, but never reorders, the chunks it is
// given.
type Muxer struct {
	w       io.Writer
	v       container.Validator
	n       int64
	started bool
	closed  bool
	err     error
}

// NewMuxer returns a Muxer writing to w.
func NewMuxer(w io.Writer) *Muxer {
	return &Muxer{w: w}
}

// Header returns the header of the IHDR chunk written so far.
func (m *Muxer) Header() container.Header {
	return m.v.Header()
}

// BytesWritten returns the number of bytes written to the underlying writer.
func (m *Muxer) BytesWritten() int64 {
	return m.n
}

// Write frames and writes one chunk. Errors are sticky.
func (m *Muxer) Write(c Chunk) error {
	if m.err != nil {
		return m.err
	}
	if m.closed {
		return ErrMuxerClosed
	}
	if err := m.write(c.Type(), c.Marshal()); err != nil {
		m.err = err
		return err
	}
	return nil
}

func (m *Muxer) write(t ChunkType, data []byte) error {
	if err := m.v.Check(t, data); err != nil {
		return err
	}
	if !m.started {
		m.started = true
		if err := container.WriteSignature(m.w); err != nil {
			return err
		}
		m.n += container.SignatureSize
	}
	n, err := container.WriteChunk(m.w, t, data)
	m.n += n
	return err
}

// Close writes IEND if it has not been written yet and reports whether the
// resulting stream is structurally complete.
func (m *Muxer) Close() error {
	if m.err != nil {
		return m.err
	}
	if m.closed {
		return nil
	}
	if !m.v.Done() {
		if err := m.write(TypeIEND, nil); err != nil {
			m.err = err
			return err
		}
	}
	m.closed = true
	return m.v.End()
}
