package mux

import (
	"fmt"
	"io"

	"github.com/deepteams/apng/internal/container"
)

// Demuxer reads a PNG/APNG stream one typed chunk at a time. It verifies the
// signature, every CRC and the structural chunk order, but does not interpret
// image data or animation sequencing.
type Demuxer struct {
	r          *container.Reader
	src        io.Reader
	v          container.Validator
	started    bool
	paletteLen int
	err        error
}

// NewDemuxer returns a Demuxer reading from r. Chunks declaring more than
// maxChunkSize bytes are rejected; 0 means the PNG limit of 2^31-1.
func NewDemuxer(r io.Reader, maxChunkSize uint32) *Demuxer {
	return &Demuxer{src: r, r: container.NewReader(r, maxChunkSize)}
}

// Header returns the image header. It is the zero Header until the IHDR
// chunk has been returned by Next.
func (d *Demuxer) Header() container.Header {
	return d.v.Header()
}

// Animated reports whether an acTL chunk has been seen.
func (d *Demuxer) Animated() bool {
	return d.v.SeenACTL()
}

// Next returns the next chunk of the stream. After IEND it returns io.EOF.
// Any other error is final: every later call returns it again.
func (d *Demuxer) Next() (Chunk, error) {
	if d.err != nil {
		return nil, d.err
	}
	c, err := d.next()
	if err != nil {
		d.err = err
		return nil, err
	}
	return c, nil
}

func (d *Demuxer) next() (Chunk, error) {
	if !d.started {
		d.started = true
		if err := container.ReadSignature(d.src); err != nil {
			return nil, err
		}
	}
	if d.v.Done() {
		return nil, io.EOF
	}

	raw, err := d.r.Next()
	if err == io.EOF {
		// The stream ended before IEND.
		return nil, d.v.End()
	}
	if err != nil {
		return nil, err
	}
	if err := d.v.Check(raw.Type, raw.Data); err != nil {
		return nil, err
	}

	c, err := Parse(raw.Type, raw.Data)
	if err != nil {
		return nil, err
	}
	switch c := c.(type) {
	case Palette:
		if depth := d.v.Header().BitDepth; len(c.Entries) > 1<<depth {
			return nil, fmt.Errorf("%w: PLTE has %d entries for bit depth %d",
				container.ErrInvalidChunk, len(c.Entries), depth)
		}
		d.paletteLen = len(c.Entries)
	case Transparency:
		if err := c.Check(d.v.Header().ColorType, d.paletteLen); err != nil {
			return nil, err
		}
	}
	return c, nil
}
